// Package middleware provides the gin middleware that wraps every gateway
// route: request correlation ids, panic recovery, security response
// headers, request body limits and the access log.
//
// Middleware order in the server:
//
//	Recovery -> RequestID -> SecurityHeaders -> Logging -> request pipeline -> LimitBody -> route handlers
package middleware
