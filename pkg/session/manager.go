// Package session owns the connection to the radio device on behalf of the
// caller. A [Manager] holds at most one live reconciler at a time and
// rebuilds it, together with its push channel, whenever the connection
// config changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/germanamz/piradio/pkg/commandclient"
	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/pushchannel"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/germanamz/piradio/pkg/reconciler"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNoSession is returned by commands issued before a successful
	// Reconfigure.
	ErrNoSession = errors.New("session: not configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: manager closed")
)

// Options configures a Manager.
type Options struct {
	HTTPClient    *http.Client
	Auth          commandclient.Auth
	Headers       map[string]string
	Timeout       time.Duration // Per-request timeout when HTTPClient is nil.
	PushPath      string        // Push endpoint (default: "/events").
	VolumeStep    int
	CatalogPolicy reconciler.CatalogPolicy
	Logger        *zerolog.Logger
}

// Manager is the caller-facing entry point. Its feeds live as long as the
// manager; subscribers keep receiving values across reconfigurations.
type Manager struct {
	opts   Options
	base   zerolog.Logger
	log    zerolog.Logger
	client *commandclient.Client
	feeds  *reconciler.Feeds

	reconfigMu sync.Mutex // serializes Reconfigure

	pendingMu     sync.Mutex
	pendingCancel context.CancelFunc

	mu      sync.RWMutex
	cfg     radio.ConnectionConfig
	current *reconciler.Reconciler
	closed  bool
}

// New creates an unconfigured Manager.
func New(opts Options) *Manager {
	base := logger.OrNop(opts.Logger)

	return &Manager{
		opts: opts,
		base: base,
		log:  logger.Component(base, "session"),
		client: commandclient.New(radio.ConnectionConfig{}, commandclient.Options{
			HTTPClient: opts.HTTPClient,
			Auth:       opts.Auth,
			Headers:    opts.Headers,
			Timeout:    opts.Timeout,
		}),
		feeds: reconciler.NewFeeds(),
	}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// supersede cancels any Reconfigure still in flight and registers cancel as
// the one a later call will cancel.
func (m *Manager) supersede(cancel context.CancelFunc) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	if m.pendingCancel != nil {
		m.pendingCancel()
	}
	m.pendingCancel = cancel
}

// Reconfigure replaces the connection. The previous session is torn down
// and the feeds are reset before the new session pulls the initial state and
// opens its push channel.
//
// Calls are serialized, and a newer call cancels an older one still in
// progress; the older call then returns context.Canceled. Pull failures and
// a failed push handshake are reported together as a *radio.ConnectError,
// but the new session stays current with whatever state it obtained.
func (m *Manager) Reconfigure(ctx context.Context, cfg radio.ConnectionConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.supersede(cancel)

	m.reconfigMu.Lock()
	defer m.reconfigMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	prev := m.current
	m.current = nil
	m.cfg = cfg
	m.mu.Unlock()

	if prev != nil {
		prev.Teardown()
	}
	m.feeds.Reset()

	if err := m.client.Reconfigure(cfg); err != nil {
		m.log.Warn().Err(err).Stringer("address", cfg).Msg("invalid connection config")
		return &radio.ConnectError{Address: cfg.Address, Err: err}
	}

	id := newSessionID()
	log := m.log.With().Str("session", id).Logger()

	r := reconciler.New(m.client, m.feeds, reconciler.Options{
		ID:            id,
		VolumeStep:    m.opts.VolumeStep,
		CatalogPolicy: m.opts.CatalogPolicy,
		Logger:        &m.base,
	})

	m.mu.Lock()
	m.current = r
	m.mu.Unlock()

	log.Info().Stringer("address", cfg).Msg("connecting")

	pullErr := r.Prime(ctx)

	var openErr error
	if ctx.Err() == nil {
		ch, err := pushchannel.Open(ctx, cfg, r.HandleEvent, pushchannel.Options{
			Path:       m.opts.PushPath,
			HTTPClient: m.opts.HTTPClient,
			Auth:       m.opts.Auth,
			Headers:    m.opts.Headers,
			Logger:     &log,
		})
		if err != nil {
			openErr = err
		} else {
			openErr = r.Attach(ch)
		}
	}

	if err := ctx.Err(); err != nil {
		m.drop(r)
		log.Info().Msg("connection superseded")
		return err
	}

	if pullErr == nil && openErr == nil {
		log.Info().Msg("connected")
		return nil
	}

	err := &radio.ConnectError{Address: cfg.Address, Err: joinConnectErrors(pullErr, openErr)}
	log.Warn().Err(err).Msg("connected with errors")

	return err
}

// joinConnectErrors flattens a push handshake ConnectError so the caller
// sees a single ConnectError level.
func joinConnectErrors(pullErr, openErr error) error {
	if pullErr != nil {
		pullErr = fmt.Errorf("initial pull: %w", pullErr)
	}

	var ce *radio.ConnectError
	if errors.As(openErr, &ce) {
		openErr = ce.Err
	}
	if openErr != nil {
		openErr = fmt.Errorf("push channel: %w", openErr)
	}

	return errors.Join(pullErr, openErr)
}

// drop tears r down. If r was still the current session its state is
// cleared from the feeds as well.
func (m *Manager) drop(r *reconciler.Reconciler) {
	m.mu.Lock()
	current := m.current == r
	if current {
		m.current = nil
	}
	m.mu.Unlock()

	r.Teardown()
	if current {
		m.feeds.Reset()
	}
}

// Close tears down the current session and closes the feeds. It is safe to
// call more than once.
func (m *Manager) Close() error {
	m.supersede(nil)

	m.reconfigMu.Lock()
	defer m.reconfigMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	r := m.current
	m.current = nil
	m.mu.Unlock()

	if r != nil {
		r.Teardown()
	}
	m.feeds.Close()
	m.client.CloseIdleConnections()

	m.log.Debug().Msg("closed")

	return nil
}

// Config returns the config passed to the latest Reconfigure.
func (m *Manager) Config() radio.ConnectionConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg
}

// Current returns the active reconciler, or nil.
func (m *Manager) Current() *reconciler.Reconciler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// Stations is the catalog feed.
func (m *Manager) Stations() *feed.Feed[[]radio.Station] { return m.feeds.Stations }

// Status is the playback status feed.
func (m *Manager) Status() *feed.Feed[radio.PlaybackStatus] { return m.feeds.Status }

// Volume is the volume feed.
func (m *Manager) Volume() *feed.Feed[int] { return m.feeds.Volume }

func (m *Manager) session() (*reconciler.Reconciler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.closed:
		return nil, ErrClosed
	case m.current == nil:
		return nil, ErrNoSession
	default:
		return m.current, nil
	}
}

// GetStation fetches a fresh copy of one station.
func (m *Manager) GetStation(ctx context.Context, id string) (radio.Station, error) {
	r, err := m.session()
	if err != nil {
		return radio.Station{}, err
	}
	return r.GetStation(ctx, id)
}

// CreateStation creates a station from draft.
func (m *Manager) CreateStation(ctx context.Context, draft radio.Station) (radio.Station, error) {
	r, err := m.session()
	if err != nil {
		return radio.Station{}, err
	}
	return r.CreateStation(ctx, draft)
}

// UpdateStation replaces the station with the given id.
func (m *Manager) UpdateStation(ctx context.Context, id string, draft radio.Station) (radio.Station, error) {
	r, err := m.session()
	if err != nil {
		return radio.Station{}, err
	}
	return r.UpdateStation(ctx, id, draft)
}

// DeleteStation removes the station with the given id.
func (m *Manager) DeleteStation(ctx context.Context, id string) error {
	r, err := m.session()
	if err != nil {
		return err
	}
	return r.DeleteStation(ctx, id)
}

// Play starts the station with the given id.
func (m *Manager) Play(ctx context.Context, id string) error {
	r, err := m.session()
	if err != nil {
		return err
	}
	return r.Play(ctx, id)
}

// Stop stops playback.
func (m *Manager) Stop(ctx context.Context) error {
	r, err := m.session()
	if err != nil {
		return err
	}
	return r.Stop(ctx)
}

// SetVolume sets the output level.
func (m *Manager) SetVolume(ctx context.Context, level int) (int, error) {
	r, err := m.session()
	if err != nil {
		return 0, err
	}
	return r.SetVolume(ctx, level)
}

// AdjustVolume moves the output level by delta.
func (m *Manager) AdjustVolume(ctx context.Context, delta int) (int, error) {
	r, err := m.session()
	if err != nil {
		return 0, err
	}
	return r.AdjustVolume(ctx, delta)
}

// VolumeUp raises the output level by one step.
func (m *Manager) VolumeUp(ctx context.Context) (int, error) {
	r, err := m.session()
	if err != nil {
		return 0, err
	}
	return r.VolumeUp(ctx)
}

// VolumeDown lowers the output level by one step.
func (m *Manager) VolumeDown(ctx context.Context) (int, error) {
	r, err := m.session()
	if err != nil {
		return 0, err
	}
	return r.VolumeDown(ctx)
}

// Refresh pulls the catalog, status and volume again.
func (m *Manager) Refresh(ctx context.Context) error {
	r, err := m.session()
	if err != nil {
		return err
	}
	return r.Refresh(ctx)
}

// RefreshStatus pulls the playback status again.
func (m *Manager) RefreshStatus(ctx context.Context) (radio.PlaybackStatus, error) {
	r, err := m.session()
	if err != nil {
		return radio.PlaybackStatus{}, err
	}
	return r.RefreshStatus(ctx)
}
