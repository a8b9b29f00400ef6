package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/piradio/pkg/config"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/germanamz/piradio/pkg/session"
	"github.com/rs/zerolog"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "bridge":
			bridgeCmd := flag.NewFlagSet("bridge", flag.ExitOnError)
			bridgeCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: piradio bridge [flags]\n\nMirror the radio onto MQTT and accept commands from it.\n\nFlags:\n")
				bridgeCmd.PrintDefaults()
			}
			cfgPath := bridgeCmd.String("config", "", "path to configuration file")
			envFile := bridgeCmd.String("env", ".env", "path to .env file (ignored if missing)")
			_ = bridgeCmd.Parse(os.Args[2:])

			exitOnError(loadDotEnv(*envFile))
			exitOnError(runBridge(*cfgPath))

			return
		case "mcp":
			mcpCmd := flag.NewFlagSet("mcp", flag.ExitOnError)
			mcpCmd.Usage = func() {
				fmt.Fprintf(os.Stderr, "Usage: piradio mcp [flags]\n\nServe radio controls as MCP tools over stdio.\n\nFlags:\n")
				mcpCmd.PrintDefaults()
			}
			cfgPath := mcpCmd.String("config", "", "path to configuration file")
			envFile := mcpCmd.String("env", ".env", "path to .env file (ignored if missing)")
			_ = mcpCmd.Parse(os.Args[2:])

			exitOnError(loadDotEnv(*envFile))
			exitOnError(runMCP(*cfgPath))

			return
		}
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: piradio [flags]\n       piradio <command> [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  bridge  Mirror the radio onto MQTT\n  mcp     Serve radio controls as MCP tools over stdio\n")
	}

	cfgPath := flag.String("config", "", "path to configuration file (default: $"+config.EnvPath+" or "+config.DefaultPath+")")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	address := flag.String("address", "", "radio address (overrides connection.address)")
	poll := flag.Duration("poll", 0, "poll playback status at this interval (overrides controls.poll; 0 keeps the config)")
	logFile := flag.String("log", "", "append logs to this file (discarded otherwise)")
	flag.Parse()

	exitOnError(loadDotEnv(*envFile))
	exitOnError(runTUI(*cfgPath, *address, *poll, *logFile))
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the resolved config file. A missing default file is not
// an error: every setting has a default and the TUI asks for the address.
func loadConfig(flagPath string) (config.Config, error) {
	path := config.ResolvePath(flagPath)

	cfg, err := config.LoadConfig(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == config.DefaultPath:
		cfg = config.Default()
	case err != nil:
		return config.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func newManager(cfg config.Config, log *zerolog.Logger) (*session.Manager, error) {
	opts, err := cfg.SessionOptions(log)
	if err != nil {
		return nil, err
	}
	return session.New(opts), nil
}

// connect opens the first session. A partial connect still leaves a usable
// session; the push channel or a later refresh fills the gaps.
func connect(ctx context.Context, mgr *session.Manager, cfg config.Config, log *zerolog.Logger) error {
	err := mgr.Reconfigure(ctx, cfg.Radio())
	if err == nil {
		return nil
	}

	var connErr *radio.ConnectError
	if !errors.As(err, &connErr) || mgr.Current() == nil {
		return err
	}

	log.Warn().Err(err).Msg("connected with errors")
	return nil
}

func runTUI(cfgPath, address string, poll time.Duration, logFile string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Connection.Address = address
	}
	if poll == 0 {
		if poll, err = cfg.Controls.PollInterval(); err != nil {
			return err
		}
	}

	// The terminal belongs to the UI, so logs only go to a file.
	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // user-chosen log path
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	log := logger.New(cfg.Logger, w)

	mgr, err := newManager(cfg, &log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	timeout, err := cfg.Connection.TimeoutDuration()
	if err != nil {
		return err
	}

	model := newAppModel(ctx, mgr, cfg.Radio(), timeout, poll)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Send the program reference so the model can start bridge goroutines.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	if model.cancelBridge != nil {
		model.cancelBridge()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
