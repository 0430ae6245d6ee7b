package auth

import "strings"

// BearerPrefix is the Authorization scheme accepted by the gateway.
const BearerPrefix = "Bearer "

// ExtractBearer returns the token from an Authorization header value. The
// scheme is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredentials
	}
	if len(header) < len(BearerPrefix) || !strings.EqualFold(header[:len(BearerPrefix)], BearerPrefix) {
		return "", ErrInvalidScheme
	}
	tok := strings.TrimSpace(header[len(BearerPrefix):])
	if tok == "" || strings.ContainsAny(tok, " \t") {
		return "", ErrInvalidScheme
	}
	return tok, nil
}
