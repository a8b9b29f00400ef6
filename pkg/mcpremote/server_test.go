package mcpremote

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/radio"
	"github.com/germanamz/piradio/pkg/reconciler"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bbc = radio.Station{ID: "1", Name: "BBC", URL: "http://a"}

type fakeController struct {
	feeds *reconciler.Feeds

	mu    sync.Mutex
	calls []string
	err   error
}

func newFakeController() *fakeController {
	return &fakeController{feeds: reconciler.NewFeeds()}
}

func (c *fakeController) record(call string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	return c.err
}

func (c *fakeController) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeController) Stations() *feed.Feed[[]radio.Station]   { return c.feeds.Stations }
func (c *fakeController) Status() *feed.Feed[radio.PlaybackStatus] { return c.feeds.Status }
func (c *fakeController) Volume() *feed.Feed[int]                  { return c.feeds.Volume }

func (c *fakeController) Play(_ context.Context, id string) error { return c.record("play " + id) }
func (c *fakeController) Stop(context.Context) error              { return c.record("stop") }
func (c *fakeController) Refresh(context.Context) error           { return c.record("refresh") }

func (c *fakeController) SetVolume(_ context.Context, level int) (int, error) {
	return level, c.record("volume " + strconv.Itoa(level))
}

func (c *fakeController) VolumeUp(context.Context) (int, error)   { return 55, c.record("volume up") }
func (c *fakeController) VolumeDown(context.Context) (int, error) { return 45, c.record("volume down") }

func connect(t *testing.T, ctrl Controller) *mcp.ClientSession {
	t.Helper()

	s := New("piradio-test", "1.0.0", ctrl, nil)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() { serverDone <- s.Run(ctx, serverTransport) }()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func call(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()

	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text, res.IsError
}

func TestListTools(t *testing.T) {
	session := connect(t, newFakeController())

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	sort.Strings(names)

	assert.Equal(t, []string{
		"get_status", "get_volume", "list_stations", "play", "refresh",
		"set_volume", "stop", "volume_down", "volume_up",
	}, names)
}

func TestReadTools(t *testing.T) {
	ctrl := newFakeController()
	session := connect(t, ctrl)

	text, isErr := call(t, session, "list_stations", nil)
	assert.False(t, isErr)
	assert.JSONEq(t, `[]`, text)

	ctrl.feeds.Stations.Set([]radio.Station{bbc})
	ctrl.feeds.Status.Set(radio.PlaybackStatus{Selected: &bbc, Playing: true})
	ctrl.feeds.Volume.Set(30)

	text, _ = call(t, session, "list_stations", nil)
	assert.JSONEq(t, `[{"_id":"1","name":"BBC","url":"http://a"}]`, text)

	text, _ = call(t, session, "get_status", nil)
	assert.JSONEq(t, `{"selectedStation":{"_id":"1","name":"BBC","url":"http://a"},"isPlaying":true}`, text)

	text, _ = call(t, session, "get_volume", nil)
	assert.JSONEq(t, `{"volume":30}`, text)
}

func TestCommandTools(t *testing.T) {
	ctrl := newFakeController()
	session := connect(t, ctrl)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"play", map[string]any{"id": "1"}, "ok"},
		{"stop", nil, "ok"},
		{"set_volume", map[string]any{"level": 35}, `{"volume":35}`},
		{"volume_up", nil, `{"volume":55}`},
		{"volume_down", nil, `{"volume":45}`},
		{"refresh", nil, "ok"},
	}

	for _, tt := range tests {
		text, isErr := call(t, session, tt.name, tt.args)
		assert.False(t, isErr, tt.name)
		assert.Equal(t, tt.want, text, tt.name)
	}

	assert.Equal(t, []string{"play 1", "stop", "volume 35", "volume up", "volume down", "refresh"}, ctrl.recorded())
}

func TestCommandTools_MissingArguments(t *testing.T) {
	ctrl := newFakeController()
	session := connect(t, ctrl)

	text, isErr := call(t, session, "play", map[string]any{"id": ""})
	assert.True(t, isErr)
	assert.Equal(t, "id is required", text)

	text, isErr = call(t, session, "set_volume", map[string]any{})
	assert.True(t, isErr)
	assert.Equal(t, "level is required", text)

	assert.Empty(t, ctrl.recorded())
}

func TestCommandTools_ControllerError(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = &radio.StaleReferenceError{ID: "9"}
	session := connect(t, ctrl)

	text, isErr := call(t, session, "play", map[string]any{"id": "9"})
	assert.True(t, isErr)
	assert.Contains(t, text, "9")

	ctrl.err = errors.New("unreachable")
	text, isErr = call(t, session, "volume_up", nil)
	assert.True(t, isErr)
	assert.Equal(t, "unreachable", text)
}

func TestUnknownTool(t *testing.T) {
	session := connect(t, newFakeController())

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "shuffle", Arguments: map[string]any{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shuffle")
}

func TestRun_Cancelled(t *testing.T) {
	s := New("srv", "1.0.0", newFakeController(), nil)
	serverTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Run(ctx, serverTransport), context.Canceled)
}
