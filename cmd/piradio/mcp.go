package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/mcpremote"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// runMCP serves the radio as MCP tools on stdin/stdout. Logs go to stderr so
// they never mix with the protocol stream.
func runMCP(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Connection.Address == "" {
		return errors.New("mcp: connection.address is required")
	}

	log := logger.New(cfg.Logger, os.Stderr)

	mgr, err := newManager(cfg, &log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	if err := connect(ctx, mgr, cfg, &log); err != nil {
		return err
	}

	srv := mcpremote.New("piradio", version, mgr, &log)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
