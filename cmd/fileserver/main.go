package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/config"
	"github.com/granddizzy/ItismAsyncio/pkg/server"
)

const usage = `File Server - header-framed remote file store

Usage:
  fileserver [flags]          Start the server
  fileserver init [flags]     Write a sample configuration file

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

func runInit(args []string) int {
	fs := pflag.NewFlagSet("init", pflag.ContinueOnError)
	configPath := fs.String("config", "", "Where to write the file (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := *configPath
	if path == "" {
		written, err := config.InitConfig(*force)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		path = written
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", path)
	return 0
}

func run(args []string) int {
	fs := pflag.NewFlagSet("fileserver", pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	port := fs.Int("port", config.DefaultPort, "Port for the file protocol")
	root := fs.String("root", config.DefaultStoragePath, "Storage directory for the filesystem store")
	logLevel := fs.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// Flags beat file and environment, but only when given.
	if fs.Changed("port") {
		cfg.Adapters.File.Port = *port
	}
	if fs.Changed("root") {
		cfg.Store.Filesystem["path"] = *root
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = strings.ToUpper(*logLevel)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if err := setupLogging(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("File Server - header-framed remote file store")
	logger.Info("Log level set to: %s", cfg.Logging.Level)
	logger.Info("Store type: %s (locking: %t)", cfg.Store.Type, cfg.Store.LockingEnabled())
	if cfg.Store.Type == "filesystem" {
		logger.Info("Storage path: %v", cfg.Store.Filesystem["path"])
	}

	m := config.InitializeMetrics(cfg)

	st, err := config.CreateStore(ctx, &cfg.Store, m.Store)
	if err != nil {
		logger.Error("Failed to create store: %v", err)
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
	}()

	srv := server.New(st)
	srv.SetShutdownTimeout(cfg.Server.ShutdownTimeout)

	adapters, err := config.CreateAdapters(cfg, m.FileServer)
	if err != nil {
		logger.Error("Failed to create adapters: %v", err)
		return 1
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			logger.Error("Failed to add %s adapter: %v", a.Protocol(), err)
			return 1
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return 1
	}
	logger.Info("Server stopped gracefully")
	return 0
}

func setupLogging(cfg config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	if err := logger.SetFormat(cfg.Format); err != nil {
		return fmt.Errorf("logging format: %w", err)
	}
	if err := logger.SetOutput(cfg.Output); err != nil {
		return fmt.Errorf("logging output: %w", err)
	}
	return nil
}
