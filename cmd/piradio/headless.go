package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/germanamz/piradio/pkg/config"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/mqttbridge"
	"github.com/germanamz/piradio/pkg/nowplaying"
	"github.com/soellman/pidfile"
)

// runBridge runs without a terminal UI: it keeps a session open, mirrors it
// onto MQTT and raises now-playing notifications, until SIGINT or SIGTERM.
func runBridge(cfgPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Connection.Address == "" {
		return errors.New("bridge: connection.address is required")
	}
	if !cfg.MQTT.Enabled && !cfg.Notify.Enabled {
		return errors.New("bridge: enable mqtt or notify in the config")
	}

	log := logger.New(cfg.Logger, os.Stderr)

	if cfg.Bridge.PIDFile != "" {
		if err := pidfile.Write(cfg.Bridge.PIDFile); err != nil {
			return fmt.Errorf("bridge: failed to create pid file: %w", err)
		}
		defer func() { _ = pidfile.Remove(cfg.Bridge.PIDFile) }()
	}

	mgr, err := newManager(cfg, &log)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.Close() }()

	if err := connect(ctx, mgr, cfg, &log); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	if cfg.MQTT.Enabled {
		broker, err := mqttbridge.Dial(mqttbridge.PahoConfig{
			BrokerURL: cfg.MQTT.BrokerURL(),
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			Logger:    &log,
		})
		if err != nil {
			return err
		}
		defer broker.Close()

		b := mqttbridge.New(mgr, broker, mqttbridge.Options{
			StateTopic:   cfg.MQTT.StateTopic,
			CommandTopic: cfg.MQTT.CommandTopic,
			Logger:       &log,
		})
		wg.Go(func() { errc <- b.Run(ctx) })
	}

	if cfg.Notify.Enabled {
		n := nowplaying.New(nowplaying.Options{
			Title:  cfg.Notify.Title,
			Icon:   cfg.Notify.Icon,
			Logger: &log,
		})
		wg.Go(func() { errc <- n.Run(ctx, mgr.Status()) })
	}

	log.Info().Stringer("radio", cfg.Radio()).Bool("mqtt", cfg.MQTT.Enabled).Bool("notify", cfg.Notify.Enabled).Msg("bridge running")

	// Either worker failing stops the other.
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		cancel()
	}
	wg.Wait()

	log.Info().Msg("bridge stopped")
	return runErr
}
