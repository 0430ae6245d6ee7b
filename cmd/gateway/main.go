// Package main is the entry point for the avagate API gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avagate/internal/config"
	"github.com/vyrodovalexey/avagate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags. Empty log settings defer to the
// configuration file.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	devMode     bool
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if flags.devMode {
		cfg.DevMode = true
	}

	logger := initLogger(cfg, flags)

	validateConfig(cfg, flags.configPath, logger)

	app, err := newApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}
	code := runGateway(app)
	_ = logger.Sync()
	os.Exit(code)
}

// parseFlags parses command line flags, falling back to environment
// variables for defaults.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("avagate", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("AVAGATE_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("AVAGATE_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", getEnvOrDefault("AVAGATE_LOG_FORMAT", ""),
		"Log format (json, console)")
	devMode := fs.Bool("dev", getEnvBool("AVAGATE_DEV_MODE", false),
		"Expose internal error details in responses")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		devMode:     *devMode,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avagate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// logConfig merges the configured logging section with flag overrides.
func logConfig(cfg *config.Config, flags cliFlags) observability.LogConfig {
	lc := observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if flags.logLevel != "" {
		lc.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		lc.Format = flags.logFormat
	}
	return lc
}

// initLogger initializes the logger.
func initLogger(cfg *config.Config, flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(logConfig(cfg, flags))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// validateConfig refuses to start on an invalid configuration and logs
// every warning.
func validateConfig(cfg *config.Config, configPath string, logger observability.Logger) {
	logger.Info("starting avagate",
		observability.String("version", version),
		observability.String("config", configPath),
		observability.String("environment", cfg.Environment),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", observability.String("warning", w))
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.ListenAddress()),
		observability.String("store", cfg.Store.Driver),
		observability.Int("rate_limit_tiers", len(cfg.RateLimit.Tiers)),
		observability.Bool("cache", cfg.Cache.Enabled),
		observability.Bool("dev_mode", cfg.DevMode),
	)
}
