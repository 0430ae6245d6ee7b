// Package config provides the gateway configuration model and its loader.
//
// Configuration is read once at startup from a YAML file, with
// ${VAR} and ${VAR:-default} environment substitution, then validated.
// The resulting *Config is treated as immutable: main constructs it and
// passes it into each component constructor. Nothing in the gateway reads
// configuration from package-level state.
//
//	cfg, err := config.LoadConfig("configs/gateway.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err // refuse to start
//	}
//
// Validate fails in a production environment when the token signing secret
// is empty, shorter than MinSecretLength bytes, or one of the well-known
// insecure defaults. Outside production the same conditions are reported
// by Warnings instead.
package config
