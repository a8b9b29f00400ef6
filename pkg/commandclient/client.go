package commandclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/germanamz/piradio/pkg/radio"
)

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 10 * time.Second

// DefaultMaxResponseSize caps a response body. It matches the push
// channel's message limit.
const DefaultMaxResponseSize = 1 << 20

// DefaultAuthHeader carries the credential unless Auth.Header overrides it.
const DefaultAuthHeader = "Api-Key"

// Auth describes how the credential is attached to requests.
type Auth struct {
	Header string // Header name (default: "Api-Key").
	Scheme string // Optional prefix, e.g. "Bearer".
}

// Apply sets the credential header on h. An empty credential is a no-op.
func (a Auth) Apply(h http.Header, credential string) {
	if credential == "" {
		return
	}

	header := a.Header
	if header == "" {
		header = DefaultAuthHeader
	}

	value := credential
	if a.Scheme != "" {
		value = a.Scheme + " " + credential
	}

	h.Set(header, value)
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client      // Falls back to a client with Timeout.
	Auth       Auth              // Credential placement.
	Headers    map[string]string // Extra headers applied to every request.
	Timeout    time.Duration     // Used only when HTTPClient is nil (default 10s).

	MaxResponseSize int64 // Max response body in bytes (default: 1 MiB).
}

// target is an immutable snapshot of where requests go.
type target struct {
	cfg     radio.ConnectionConfig
	baseURL string
}

// Client issues catalog, playback and volume operations against one device.
// It is safe for concurrent use.
type Client struct {
	opts   Options
	target atomic.Pointer[target]

	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a Client aimed at cfg. An invalid cfg is accepted; every call
// then fails with a TransportError until Reconfigure supplies a valid one.
func New(cfg radio.ConnectionConfig, opts Options) *Client {
	c := &Client{opts: opts}
	_ = c.Reconfigure(cfg)
	return c
}

// Reconfigure retargets subsequent requests. In-flight requests are not
// affected. The new config is installed even when invalid so stale targets
// are never reused; the validation error is returned.
func (c *Client) Reconfigure(cfg radio.ConnectionConfig) error {
	base, err := cfg.BaseURL()
	c.target.Store(&target{cfg: cfg, baseURL: base})
	return err
}

// Config returns the active connection config.
func (c *Client) Config() radio.ConnectionConfig {
	return c.target.Load().cfg
}

// BaseURL returns the normalized base URL of the active target.
func (c *Client) BaseURL() string {
	return c.target.Load().baseURL
}

// CloseIdleConnections releases pooled connections of the underlying client.
func (c *Client) CloseIdleConnections() {
	c.httpClient().CloseIdleConnections()
}

func (c *Client) httpClient() *http.Client {
	if c.opts.HTTPClient != nil {
		return c.opts.HTTPClient
	}

	c.clientOnce.Do(func() {
		timeout := c.opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.defaultClient = &http.Client{Timeout: timeout}
	})

	return c.defaultClient
}

// newRequest builds a request against t with the credential and custom
// headers applied.
func (c *Client) newRequest(ctx context.Context, t *target, method, path string, body io.Reader) (*http.Request, error) {
	if t.baseURL == "" {
		return nil, fmt.Errorf("invalid address %q", t.cfg.Address)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	c.opts.Auth.Apply(req.Header, t.cfg.Credential)

	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("Accept", "application/json")

	return req, nil
}

// call describes one remote operation.
type call struct {
	op      string
	method  string
	path    string
	id      string // Station id the call addresses; drives 404 mapping.
	payload any
	dest    any
}

// do sends the call and decodes the response into dest. It reports whether
// the response carried a body. Every failure is a *radio.TransportError.
func (c *Client) do(ctx context.Context, cl call) (bool, error) {
	t := c.target.Load()

	var body io.Reader
	if cl.payload != nil {
		b, err := json.Marshal(cl.payload)
		if err != nil {
			return false, &radio.TransportError{Op: cl.op, Err: fmt.Errorf("marshal payload: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, t, cl.method, cl.path, body)
	if err != nil {
		return false, &radio.TransportError{Op: cl.op, Err: fmt.Errorf("build request: %w", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req) //nolint:gosec // URL is built from the configured device address.
	if err != nil {
		return false, &radio.TransportError{Op: cl.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	limit := c.opts.MaxResponseSize
	if limit <= 0 {
		limit = DefaultMaxResponseSize
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return false, &radio.TransportError{Op: cl.op, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(respBody)) > limit {
		return false, &radio.TransportError{
			Op:     cl.op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("response exceeds %d bytes", limit),
		}
	}

	if err := statusError(cl, resp.StatusCode, respBody); err != nil {
		return false, err
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return false, nil
	}
	if cl.dest == nil {
		return true, nil
	}

	if err := json.Unmarshal(respBody, cl.dest); err != nil {
		return true, &radio.TransportError{
			Op:     cl.op,
			Status: resp.StatusCode,
			Body:   string(respBody),
			Err:    fmt.Errorf("malformed response: %w", err),
		}
	}

	return true, nil
}

func statusError(cl call, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	te := &radio.TransportError{Op: cl.op, Status: status, Body: string(body)}

	switch {
	case radio.IsAuthStatus(status):
		te.Err = &radio.AuthError{Status: status}
	case status == http.StatusNotFound && cl.id != "":
		te.Err = &radio.StaleReferenceError{ID: cl.id}
	}

	return te
}

func stationPath(id string) string {
	return "/stations/" + url.PathEscape(id)
}

// ListStations returns the full catalog.
func (c *Client) ListStations(ctx context.Context) ([]radio.Station, error) {
	var out []radio.Station
	if _, err := c.do(ctx, call{op: "list stations", method: http.MethodGet, path: "/stations", dest: &out}); err != nil {
		return nil, err
	}
	if out == nil {
		out = []radio.Station{}
	}
	return out, nil
}

// GetStation fetches one station by id.
func (c *Client) GetStation(ctx context.Context, id string) (radio.Station, error) {
	var out radio.Station
	ok, err := c.do(ctx, call{op: "get station", method: http.MethodGet, path: stationPath(id), id: id, dest: &out})
	if err != nil {
		return radio.Station{}, err
	}
	if !ok {
		return radio.Station{}, &radio.TransportError{Op: "get station", Err: errors.New("empty response")}
	}
	return out, nil
}

// CreateStation creates draft and returns the stored station with its id.
func (c *Client) CreateStation(ctx context.Context, draft radio.Station) (radio.Station, error) {
	var out radio.Station
	ok, err := c.do(ctx, call{op: "create station", method: http.MethodPost, path: "/stations", payload: draft.Draft(), dest: &out})
	if err != nil {
		return radio.Station{}, err
	}
	if !ok || out.ID == "" {
		return radio.Station{}, &radio.TransportError{Op: "create station", Err: errors.New("response carries no station id")}
	}
	return out, nil
}

// UpdateStation replaces the station with the given id. When the server
// replies without a body the draft, stamped with id, is returned.
func (c *Client) UpdateStation(ctx context.Context, id string, draft radio.Station) (radio.Station, error) {
	var out radio.Station
	ok, err := c.do(ctx, call{op: "update station", method: http.MethodPut, path: stationPath(id), id: id, payload: draft.Draft(), dest: &out})
	if err != nil {
		return radio.Station{}, err
	}
	if !ok {
		out = draft.Draft()
	}
	if out.ID == "" {
		out.ID = id
	}
	return out, nil
}

// DeleteStation removes the station with the given id.
func (c *Client) DeleteStation(ctx context.Context, id string) error {
	_, err := c.do(ctx, call{op: "delete station", method: http.MethodDelete, path: stationPath(id), id: id})
	return err
}

// GetStatus returns the current playback status.
func (c *Client) GetStatus(ctx context.Context) (radio.PlaybackStatus, error) {
	var out radio.PlaybackStatus
	if _, err := c.do(ctx, call{op: "get status", method: http.MethodGet, path: "/status", dest: &out}); err != nil {
		return radio.PlaybackStatus{}, err
	}
	return out, nil
}

// Play asks the device to play the station with the given id. The resulting
// status is reported by the device, not returned here.
func (c *Client) Play(ctx context.Context, id string) error {
	_, err := c.do(ctx, call{op: "play", method: http.MethodGet, path: "/play/" + url.PathEscape(id), id: id})
	return err
}

// Stop asks the device to stop playback.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, call{op: "stop", method: http.MethodGet, path: "/stop"})
	return err
}

// GetVolume returns the current output level.
func (c *Client) GetVolume(ctx context.Context) (int, error) {
	var out radio.Volume
	ok, err := c.do(ctx, call{op: "get volume", method: http.MethodGet, path: "/volume", dest: &out})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &radio.TransportError{Op: "get volume", Err: errors.New("empty response")}
	}
	return int(out), nil
}

type volumeBody struct {
	Volume int `json:"volume"`
}

// SetVolume sends level unchanged; the device decides whether to accept it.
// It returns the level the device confirmed, or level itself when the reply
// has no body.
func (c *Client) SetVolume(ctx context.Context, level int) (int, error) {
	var out radio.Volume
	ok, err := c.do(ctx, call{op: "set volume", method: http.MethodPost, path: "/volume", payload: volumeBody{Volume: level}, dest: &out})
	if err != nil {
		return 0, err
	}
	if !ok {
		return level, nil
	}
	return int(out), nil
}
