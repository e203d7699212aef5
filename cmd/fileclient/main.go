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
	"golang.org/x/term"

	"github.com/granddizzy/ItismAsyncio/internal/cli"
	"github.com/granddizzy/ItismAsyncio/internal/cli/console"
	"github.com/granddizzy/ItismAsyncio/internal/cli/tui"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
	"github.com/granddizzy/ItismAsyncio/pkg/client"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet("fileclient", pflag.ContinueOnError)
	fs.String("host", client.DefaultHost, "Server host (env FILECLI_HOST)")
	fs.Int("port", client.DefaultPort, "Server port (env FILECLI_PORT)")
	fs.Duration("timeout", client.DefaultResponseTimeout, "Wait for each server response (env FILECLI_RESPONSE_TIMEOUT)")
	fs.Duration("dial-timeout", client.DefaultDialTimeout, "Wait for the TCP connection (env FILECLI_DIAL_TIMEOUT)")
	fs.Duration("io-timeout", client.DefaultIOTimeout, "Wait for each transfer chunk (env FILECLI_IO_TIMEOUT)")
	ui := fs.String("ui", "auto", "Front-end: console, tui or auto")
	logLevel := fs.String("log-level", "WARN", "Log level (DEBUG, INFO, WARN, ERROR)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Logs go to stderr so they do not tear through the menus.
	logger.SetLevel(*logLevel)
	if err := logger.SetOutput("stderr"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := client.LoadConfig(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	view, err := newView(*ui)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to %s", cfg.Address)
	session := client.NewSession(cfg)
	if err := cli.NewController(session, view).Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// newView picks the front-end. auto uses the TUI on an interactive
// terminal and the plain console otherwise.
func newView(kind string) (cli.View, error) {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	switch strings.ToLower(kind) {
	case "auto":
		if interactive {
			return tui.New(), nil
		}
		return console.New(), nil
	case "tui":
		if !interactive {
			return nil, fmt.Errorf("the tui needs an interactive terminal")
		}
		return tui.New(), nil
	case "console":
		if interactive {
			return console.New(console.WithLineReader(console.NewPromptReader())), nil
		}
		return console.New(), nil
	default:
		return nil, fmt.Errorf("unknown ui %q (want console, tui or auto)", kind)
	}
}
