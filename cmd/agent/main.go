package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/config"
	"github.com/GriffinCanCode/apm-agent/internal/infrastructure/logging"
	"github.com/GriffinCanCode/apm-agent/internal/server"
)

func main() {
	fs := flag.NewFlagSet("agent", flag.ExitOnError)
	file := fs.String("config", "", "YAML config file applied over the environment")
	host := fs.String("host", "", "Diagnostics API host")
	port := fs.String("port", "", "Diagnostics API port")
	diag := fs.Bool("diag", true, "Serve the diagnostics API")
	socketDir := fs.String("socket-dir", "", "Directory for the control socket")
	engine := fs.String("engine", "", "Native engine: simulator or disabled")
	level := fs.String("log-level", "", "Log level")
	dev := fs.Bool("dev", false, "Development logging")
	_ = fs.Parse(os.Args[1:])

	var cfg *config.Config
	var err error
	if *file != "" {
		cfg, err = config.LoadFile(*file)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(2)
	}

	// Explicit flags win over the environment and the config file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "diag":
			cfg.Server.DiagEnabled = *diag
		case "socket-dir":
			cfg.Notifier.SocketDir = *socketDir
		case "engine":
			cfg.Engine.Mode = *engine
		case "log-level":
			cfg.Logging.Level = *level
		case "dev":
			cfg.Logging.Development = *dev
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(2)
	}

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "agent: %v\n", err)
		os.Exit(2)
	}

	a, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create agent", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("Agent exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
