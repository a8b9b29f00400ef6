package pushchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/germanamz/piradio/pkg/commandclient"
	"github.com/germanamz/piradio/pkg/logger"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/rs/zerolog"
)

// DefaultPath is the push endpoint relative to the device base URL.
const DefaultPath = "/events"

// DefaultReadLimit caps a single push message. Catalog pushes carry the whole
// station list, so the library default of 32 KiB is too small.
const DefaultReadLimit = 1 << 20

// EventKind names a push event.
type EventKind string

const (
	KindStations EventKind = "stations"
	KindStatus   EventKind = "status"
	KindVolume   EventKind = "volume"
)

// Event is a decoded push message. Only the field matching Kind is set.
type Event struct {
	Kind     EventKind
	Stations []radio.Station
	Status   radio.PlaybackStatus
	Volume   int
}

// Handler receives events from the reader goroutine. It must not call
// Channel.Close.
type Handler func(Event)

// Options configures a Channel.
type Options struct {
	Path       string             // Endpoint path (default: "/events").
	HTTPClient *http.Client       // Client used for the handshake.
	Auth       commandclient.Auth // Credential placement; matches the command client.
	Headers    map[string]string  // Extra handshake headers.
	ReadLimit  int64              // Max message size in bytes (default: 1 MiB).
	Logger     *zerolog.Logger
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses one push message.
func Decode(msg []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Event{}, fmt.Errorf("pushchannel: decode envelope: %w", err)
	}
	if len(env.Data) == 0 {
		return Event{}, fmt.Errorf("pushchannel: %q event without data", env.Event)
	}

	ev := Event{Kind: EventKind(env.Event)}

	switch ev.Kind {
	case KindStations:
		if err := json.Unmarshal(env.Data, &ev.Stations); err != nil {
			return Event{}, fmt.Errorf("pushchannel: decode stations: %w", err)
		}
		if ev.Stations == nil {
			ev.Stations = []radio.Station{}
		}
	case KindStatus:
		if err := json.Unmarshal(env.Data, &ev.Status); err != nil {
			return Event{}, fmt.Errorf("pushchannel: decode status: %w", err)
		}
	case KindVolume:
		var v radio.Volume
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return Event{}, fmt.Errorf("pushchannel: decode volume: %w", err)
		}
		ev.Volume = int(v)
	default:
		return Event{}, fmt.Errorf("pushchannel: unknown event %q", env.Event)
	}

	return ev, nil
}

// Channel is one open push connection.
type Channel struct {
	conn   *websocket.Conn
	log    zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Open dials the push endpoint of cfg and starts delivering events to
// handler. ctx bounds the handshake only. Every failure is a
// *radio.ConnectError; a rejected credential additionally wraps
// *radio.AuthError.
func Open(ctx context.Context, cfg radio.ConnectionConfig, handler Handler, opts Options) (*Channel, error) {
	base, err := cfg.BaseURL()
	if err != nil {
		return nil, &radio.ConnectError{Address: cfg.Address, Err: err}
	}

	path := opts.Path
	if path == "" {
		path = DefaultPath
	}

	conn, resp, err := websocket.Dial(ctx, wsURL(base+path), &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: wsHeaders(cfg, opts),
	})
	if err != nil {
		if resp != nil && radio.IsAuthStatus(resp.StatusCode) {
			return nil, &radio.ConnectError{Address: cfg.Address, Err: &radio.AuthError{Status: resp.StatusCode}}
		}
		return nil, &radio.ConnectError{Address: cfg.Address, Err: fmt.Errorf("dial websocket: %w", err)}
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	if handler == nil {
		handler = func(Event) {}
	}

	readCtx, cancel := context.WithCancel(context.Background())

	c := &Channel{
		conn:   conn,
		log:    logger.Component(logger.OrNop(opts.Logger), "pushchannel"),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go c.run(readCtx, handler)

	c.log.Debug().Stringer("address", cfg).Msg("push channel open")

	return c, nil
}

// wsURL converts an http(s) URL to its ws(s) form.
func wsURL(u string) string {
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[len("https://"):]
	}

	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[len("http://"):]
	}

	return u
}

func wsHeaders(cfg radio.ConnectionConfig, opts Options) http.Header {
	h := make(http.Header)

	opts.Auth.Apply(h, cfg.Credential)

	for k, v := range opts.Headers {
		h.Set(k, v)
	}

	return h
}

func (c *Channel) run(ctx context.Context, handler Handler) {
	defer close(c.done)
	defer c.cancel()

	for {
		typ, msg, err := c.conn.Read(ctx)
		if err != nil {
			c.stopped(err)
			return
		}

		if typ != websocket.MessageText {
			c.log.Warn().Int("bytes", len(msg)).Msg("skipping binary push message")
			continue
		}

		ev, err := Decode(msg)
		if err != nil {
			c.log.Warn().Err(err).Msg("skipping push message")
			continue
		}

		handler(ev)
	}
}

func (c *Channel) stopped(err error) {
	if c.closing.Load() {
		c.log.Debug().Msg("push channel closed")
		return
	}

	_ = c.conn.CloseNow()

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info().Msg("push channel closed by server")
		return
	}

	c.log.Warn().Err(err).Msg("push channel lost")
}

// Done is closed once delivery has stopped, by Close or by a connection
// failure.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the connection failure that stopped delivery, or nil while the
// channel is running or when it was stopped by Close.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// Close shuts the connection down with a normal closure and waits for the
// reader to exit. After it returns the handler is never invoked again. It is
// safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)

		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			_ = c.conn.CloseNow()
		}

		c.cancel()
	})

	<-c.done

	return nil
}
