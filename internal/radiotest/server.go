// Package radiotest provides an in-process fake of the radio service for
// tests: the REST surface plus the WebSocket push endpoint, with hooks to
// hold responses, inject failures, and inspect what clients sent.
package radiotest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/stretchr/testify/require"
)

// Route patterns, usable with Hold, Fail and Requests.
const (
	RouteListStations  = "GET /stations"
	RouteGetStation    = "GET /stations/{id}"
	RouteCreateStation = "POST /stations"
	RouteUpdateStation = "PUT /stations/{id}"
	RouteDeleteStation = "DELETE /stations/{id}"
	RouteStatus        = "GET /status"
	RoutePlay          = "GET /play/{id}"
	RouteStop          = "GET /stop"
	RouteGetVolume     = "GET /volume"
	RouteSetVolume     = "POST /volume"
	RouteEvents        = "GET /events"
)

// Request is a recorded client request.
type Request struct {
	Method string
	Path   string
	Body   string
	Header http.Header
}

// Option configures a Server.
type Option func(*Server)

// WithAPIKey makes every route require the Api-Key header to equal key.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.apiKey = key }
}

// WithAutoPush makes mutations broadcast the resulting event, like the real
// device does.
func WithAutoPush() Option {
	return func(s *Server) { s.autoPush = true }
}

// WithStations seeds the catalog.
func WithStations(list ...radio.Station) Option {
	return func(s *Server) { s.stations = radio.CloneStations(list) }
}

// WithStatus seeds the playback status.
func WithStatus(st radio.PlaybackStatus) Option {
	return func(s *Server) { s.status = st.Clone() }
}

// WithVolume seeds the volume level.
func WithVolume(v int) Option {
	return func(s *Server) { s.volume = v }
}

// Server is a fake radio device.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	apiKey   string
	autoPush bool
	stations []radio.Station
	status   radio.PlaybackStatus
	volume   int
	nextID   int
	requests map[string][]Request
	gates    map[string]chan struct{}
	failures map[string]int
	sockets  map[*websocket.Conn]struct{}
	dials    int
}

// New starts a fake device that is shut down when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		stations: []radio.Station{},
		nextID:   100,
		requests: make(map[string][]Request),
		gates:    make(map[string]chan struct{}),
		failures: make(map[string]int),
		sockets:  make(map[*websocket.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	s.handle(mux, RouteListStations, s.listStations)
	s.handle(mux, RouteGetStation, s.getStation)
	s.handle(mux, RouteCreateStation, s.createStation)
	s.handle(mux, RouteUpdateStation, s.updateStation)
	s.handle(mux, RouteDeleteStation, s.deleteStation)
	s.handle(mux, RouteStatus, s.getStatus)
	s.handle(mux, RoutePlay, s.play)
	s.handle(mux, RouteStop, s.stop)
	s.handle(mux, RouteGetVolume, s.getVolume)
	s.handle(mux, RouteSetVolume, s.setVolume)
	s.handle(mux, RouteEvents, s.events)

	s.srv = httptest.NewServer(mux)

	t.Cleanup(s.shutdown)

	return s
}

// URL returns the base URL of the fake device.
func (s *Server) URL() string { return s.srv.URL }

// Client returns an HTTP client wired to the fake device.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// Config returns a connection config aimed at this server, carrying the
// expected key.
func (s *Server) Config() radio.ConnectionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return radio.ConnectionConfig{Address: s.srv.URL, Credential: s.apiKey}
}

func (s *Server) shutdown() {
	s.mu.Lock()
	for route, g := range s.gates {
		close(g)
		delete(s.gates, route)
	}
	s.mu.Unlock()

	s.DropSockets()
	s.srv.Close()
}

func (s *Server) handle(mux *http.ServeMux, route string, fn http.HandlerFunc) {
	mux.HandleFunc(route, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.requests[route] = append(s.requests[route], Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   string(body),
			Header: r.Header.Clone(),
		})
		key := s.apiKey
		status := s.failures[route]
		gate := s.gates[route]
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}

		if key != "" && r.Header.Get("Api-Key") != key {
			http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
			return
		}

		if status != 0 {
			http.Error(w, `{"error":"injected failure"}`, status)
			return
		}

		fn(w, r)
	})
}

// Hold makes requests on route block until the returned release func is
// called (or the test ends). Requests are still recorded when they arrive.
func (s *Server) Hold(route string) (release func()) {
	g := make(chan struct{})

	s.mu.Lock()
	s.gates[route] = g
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[route] == g {
				delete(s.gates, route)
				close(g)
			}
			s.mu.Unlock()
		})
	}
}

// Fail makes route answer with status. A zero status clears the failure.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = status
}

// Requests returns the recorded requests for route.
func (s *Server) Requests(route string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Request, len(s.requests[route]))
	copy(out, s.requests[route])
	return out
}

// VolumeRequests returns the levels received by POST /volume, in order.
func (s *Server) VolumeRequests() []int {
	var out []int
	for _, r := range s.Requests(RouteSetVolume) {
		var body struct {
			Volume int `json:"volume"`
		}
		if err := json.Unmarshal([]byte(r.Body), &body); err == nil {
			out = append(out, body.Volume)
		}
	}
	return out
}

// WaitRequests blocks until route has received at least n requests.
func (s *Server) WaitRequests(t testing.TB, route string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(s.Requests(route)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d requests on %s", n, route)
}

// Stations returns the server-side catalog.
func (s *Server) Stations() []radio.Station {
	s.mu.Lock()
	defer s.mu.Unlock()

	return radio.CloneStations(s.stations)
}

// SetStations replaces the catalog without broadcasting.
func (s *Server) SetStations(list ...radio.Station) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stations = radio.CloneStations(list)
}

// SetStatus replaces the status without broadcasting.
func (s *Server) SetStatus(st radio.PlaybackStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = st.Clone()
}

// SetVolume replaces the volume without broadcasting.
func (s *Server) SetVolume(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = v
}

// --- REST handlers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) listStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Stations())
}

func (s *Server) getStation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := radio.IndexStation(s.stations, r.PathValue("id"))
	var st radio.Station
	if i >= 0 {
		st = s.stations[i]
	}
	s.mu.Unlock()

	if i < 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, st)
}

func (s *Server) createStation(w http.ResponseWriter, r *http.Request) {
	var draft radio.Station
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextID++
	draft.ID = strconv.Itoa(s.nextID)
	s.stations = append(s.stations, draft)
	list := radio.CloneStations(s.stations)
	push := s.autoPush
	s.mu.Unlock()

	if push {
		s.BroadcastStations(list)
	}
	writeJSON(w, draft)
}

func (s *Server) updateStation(w http.ResponseWriter, r *http.Request) {
	var draft radio.Station
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")

	s.mu.Lock()
	i := radio.IndexStation(s.stations, id)
	if i >= 0 {
		draft.ID = id
		s.stations[i] = draft
	}
	list := radio.CloneStations(s.stations)
	push := s.autoPush
	s.mu.Unlock()

	if i < 0 {
		http.NotFound(w, r)
		return
	}
	if push {
		s.BroadcastStations(list)
	}
	writeJSON(w, draft)
}

func (s *Server) deleteStation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	i := radio.IndexStation(s.stations, id)
	if i >= 0 {
		s.stations = append(s.stations[:i:i], s.stations[i+1:]...)
	}
	list := radio.CloneStations(s.stations)
	push := s.autoPush
	s.mu.Unlock()

	if i < 0 {
		http.NotFound(w, r)
		return
	}
	if push {
		s.BroadcastStations(list)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	st := s.status.Clone()
	s.mu.Unlock()

	writeJSON(w, st)
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	i := radio.IndexStation(s.stations, id)
	if i >= 0 {
		sel := s.stations[i]
		s.status = radio.PlaybackStatus{Selected: &sel, Playing: true}
	}
	st := s.status.Clone()
	push := s.autoPush
	s.mu.Unlock()

	if i < 0 {
		http.NotFound(w, r)
		return
	}
	if push {
		s.BroadcastStatus(st)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) stop(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.status.Playing = false
	st := s.status.Clone()
	push := s.autoPush
	s.mu.Unlock()

	if push {
		s.BroadcastStatus(st)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getVolume(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	v := s.volume
	s.mu.Unlock()

	writeJSON(w, map[string]int{"volume": v})
}

func (s *Server) setVolume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume *int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Volume == nil {
		http.Error(w, `{"error":"volume is required"}`, http.StatusBadRequest)
		return
	}
	if *body.Volume < radio.MinVolume || *body.Volume > radio.MaxVolume {
		http.Error(w, `{"error":"volume out of range"}`, http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	s.volume = *body.Volume
	v := s.volume
	push := s.autoPush
	s.mu.Unlock()

	if push {
		s.BroadcastVolume(v)
	}
	writeJSON(w, map[string]int{"volume": v})
}

// --- push endpoint ---

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.sockets[conn] = struct{}{}
	s.dials++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.sockets, conn)
		s.mu.Unlock()
		_ = conn.CloseNow()
	}()

	// Clients never send; Read only observes the close.
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// OpenSockets returns the number of push connections currently open.
func (s *Server) OpenSockets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sockets)
}

// Dials returns how many push handshakes succeeded in total.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dials
}

// WaitSockets blocks until exactly n push connections are open.
func (s *Server) WaitSockets(t testing.TB, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.OpenSockets() == n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d open sockets", n)
}

// Broadcast sends a named event to every open push connection.
func (s *Server) Broadcast(event string, data any) {
	s.write(envelope{Event: event, Data: data})
}

// BroadcastStations pushes a full catalog.
func (s *Server) BroadcastStations(list []radio.Station) {
	if list == nil {
		list = []radio.Station{}
	}
	s.Broadcast("stations", list)
}

// BroadcastStatus pushes a playback status.
func (s *Server) BroadcastStatus(st radio.PlaybackStatus) {
	s.Broadcast("status", st)
}

// BroadcastVolume pushes a volume level as a bare number.
func (s *Server) BroadcastVolume(v int) {
	s.Broadcast("volume", v)
}

// BroadcastRaw sends text verbatim, for malformed-message tests.
func (s *Server) BroadcastRaw(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.sockets {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.Write(ctx, websocket.MessageText, []byte(text))
		cancel()
	}
}

func (s *Server) write(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.sockets {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = wsjson.Write(ctx, c, v)
		cancel()
	}
}

// DropSockets closes every push connection from the server side.
func (s *Server) DropSockets() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.CloseNow()
	}
}
