// Package main implements the ledpush command: a real-time push client that
// connects to the broker, follows one user's auto subscriptions plus any extra
// destinations, and logs every dispatched message.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/ledpush/config"
	"github.com/c360/ledpush/connection"
	"github.com/c360/ledpush/message"
	"github.com/c360/ledpush/metric"
	"github.com/c360/ledpush/realtime"
	"github.com/c360/ledpush/signals"
	"github.com/c360/ledpush/subscription"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ledpush"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		_, _ = fmt.Fprintln(os.Stdout, cfg.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runClient(ctx, cliCfg, cfg, logger)
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		return nil, nil, true, err
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil, nil, true, nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting ledpush",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// loadConfig merges the config file (if any) and the environment, then
// applies flag overrides and validates the result.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.MetricsPort > 0 {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runClient(ctx context.Context, cliCfg *CLIConfig, cfg *config.Config, logger *slog.Logger) error {
	opts := []realtime.Option{realtime.WithLogger(logger)}

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled {
		registry = metric.NewMetricsRegistry()
		opts = append(opts, realtime.WithMetrics(registry))
	}

	if cliCfg.ProbeInterval > 0 {
		probe, err := signals.NewProbe(cfg.Broker.URL, cliCfg.ProbeInterval, signals.WithProbeLogger(logger))
		if err != nil {
			return fmt.Errorf("create reachability probe: %w", err)
		}
		probe.Start(ctx)
		defer probe.Stop()
		opts = append(opts, realtime.WithSignals(probe))
	}

	client, err := realtime.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer func() {
		if err := client.Close(cliCfg.ShutdownTimeout); err != nil {
			logger.Warn("Client shutdown incomplete", "error", err)
		}
	}()

	client.Processor().RegisterGlobalHandler(logMessage(logger))

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	if registry != nil {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, client.Health)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() { _ = server.Stop(cliCfg.ShutdownTimeout) }()
		logger.Info("Metrics server started", "address", server.Address())
	}

	followExtras(client, cliCfg.Subscribe, logger)

	if err := client.Connect(ctx); err != nil {
		logger.Warn("Initial connect failed, reconnecting in the background", "error", err)
	}

	if cliCfg.UID > 0 {
		user := &subscription.User{UID: cliCfg.UID, OID: cliCfg.OID, Name: cliCfg.UserName}
		if err := client.SetUser(user); err != nil {
			logger.Warn("Auto subscriptions incomplete", "uid", user.UID, "error", err)
		}
	}

	logger.Info("ledpush running", "broker", cfg.Broker.URL, "transport", cfg.Broker.Transport)
	<-ctx.Done()
	logger.Info("Received shutdown signal")
	return nil
}

// followExtras subscribes to each destination every time the connection comes
// up. Subscribe is idempotent by destination, so repeats after a restore are
// no-ops.
func followExtras(client *realtime.Client, destinations []string, logger *slog.Logger) {
	if len(destinations) == 0 {
		return
	}
	subscribeAll := func() {
		for _, dest := range destinations {
			if _, err := client.Subscriptions().Subscribe(dest, nil); err != nil {
				logger.Warn("Subscribe failed", "destination", dest, "error", err)
			}
		}
	}
	client.Connection().OnStateChange(func(change connection.StateChange) {
		if change.To == connection.StateConnected {
			subscribeAll()
		}
	})
}

func logMessage(logger *slog.Logger) func(context.Context, message.ReceivedMessage) error {
	return func(_ context.Context, msg message.ReceivedMessage) error {
		logger.Info("Message",
			"message_id", msg.MessageID,
			"type", msg.Type,
			"level", msg.Level,
			"priority", msg.Priority,
			"require_ack", msg.RequireAck,
			"payload", string(msg.Payload))
		return nil
	}
}
