package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	UID             int64
	OID             int64
	UserName        string
	Subscribe       destinationList
	MetricsPort     int
	ProbeInterval   time.Duration
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

// destinationList collects repeated --subscribe flags. A single value may also
// hold a comma-separated list, which is how LEDPUSH_SUBSCRIBE is read.
type destinationList []string

func (d *destinationList) String() string {
	return strings.Join(*d, ",")
}

func (d *destinationList) Set(value string) error {
	for _, dest := range strings.Split(value, ",") {
		if dest = strings.TrimSpace(dest); dest != "" {
			*d = append(*d, dest)
		}
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("LEDPUSH_CONFIG", ""),
		"Path to a .json, .hujson or .yaml configuration file (env: LEDPUSH_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("LEDPUSH_CONFIG", ""),
		"Path to configuration file (env: LEDPUSH_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("LEDPUSH_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: LEDPUSH_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("LEDPUSH_LOG_FORMAT", "json"),
		"Log format: json, text (env: LEDPUSH_LOG_FORMAT)")

	fs.Int64Var(&cfg.UID, "uid",
		getEnvInt64("LEDPUSH_UID", 0),
		"User ID for auto subscriptions, 0 for none (env: LEDPUSH_UID)")

	fs.Int64Var(&cfg.OID, "oid",
		getEnvInt64("LEDPUSH_OID", 0),
		"Organization ID of the user (env: LEDPUSH_OID)")

	fs.StringVar(&cfg.UserName, "user-name",
		getEnv("LEDPUSH_USER_NAME", ""),
		"Display name of the user (env: LEDPUSH_USER_NAME)")

	if env := os.Getenv("LEDPUSH_SUBSCRIBE"); env != "" {
		_ = cfg.Subscribe.Set(env)
	}
	fs.Var(&cfg.Subscribe, "subscribe",
		"Extra destination to subscribe to, repeatable (env: LEDPUSH_SUBSCRIBE, comma-separated)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("LEDPUSH_METRICS_PORT", 0),
		"Serve /metrics and /health on this port, 0 to use the config file (env: LEDPUSH_METRICS_PORT)")

	fs.DurationVar(&cfg.ProbeInterval, "probe-interval",
		getEnvDuration("LEDPUSH_PROBE_INTERVAL", 0),
		"Poll broker reachability at this interval, 0 to disable (env: LEDPUSH_PROBE_INTERVAL)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("LEDPUSH_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: LEDPUSH_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.UID < 0 || cfg.OID < 0 {
		return fmt.Errorf("uid and oid cannot be negative")
	}
	if cfg.OID > 0 && cfg.UID == 0 {
		return fmt.Errorf("--oid needs --uid")
	}
	if cfg.ProbeInterval < 0 {
		return fmt.Errorf("invalid probe interval: %s", cfg.ProbeInterval)
	}

	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(fs.Output(), `%s - real-time push client

Usage: %s [options]

Options:
`, appName, fs.Name())
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(fs.Output(), `
Examples:
  # Connect with a config file and follow user 7 of organization 3
  %s --config=ledpush.yaml --uid=7 --oid=3

  # Also follow a device topic, with readable logs
  %s --uid=7 --oid=3 --subscribe=/topic/device/42 --log-format=text

  # Override configuration from the environment
  export LEDPUSH_BROKER_URL=wss://push.example.com/ws
  export LEDPUSH_LOG_LEVEL=debug
  %s

  # Validate configuration only
  %s --config=ledpush.yaml --validate

Version: %s
Build: %s
`, fs.Name(), fs.Name(), fs.Name(), fs.Name(), Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
