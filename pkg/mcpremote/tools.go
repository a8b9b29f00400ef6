package mcpremote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/radio"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a named operation exposed to MCP clients.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Controller is the radio surface exposed as tools. *session.Manager
// implements it.
type Controller interface {
	Stations() *feed.Feed[[]radio.Station]
	Status() *feed.Feed[radio.PlaybackStatus]
	Volume() *feed.Feed[int]
	Play(ctx context.Context, id string) error
	Stop(ctx context.Context) error
	SetVolume(ctx context.Context, level int) (int, error)
	VolumeUp(ctx context.Context) (int, error)
	VolumeDown(ctx context.Context) (int, error)
	Refresh(ctx context.Context) error
}

const noArgs = `{"type":"object"}`

// Tools returns the tool set backed by ctrl.
func Tools(ctrl Controller) []Tool {
	r := remote{ctrl: ctrl}

	return []Tool{
		{
			Name:        "list_stations",
			Description: "List the stations known to the radio.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.listStations,
		},
		{
			Name:        "get_status",
			Description: "Get the selected station and whether it is playing.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.getStatus,
		},
		{
			Name:        "get_volume",
			Description: "Get the output volume (0-100).",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.getVolume,
		},
		{
			Name:        "play",
			Description: "Play the station with the given id.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`),
			Handler:     r.play,
		},
		{
			Name:        "stop",
			Description: "Stop playback.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.stop,
		},
		{
			Name:        "set_volume",
			Description: "Set the output volume (0-100).",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"level":{"type":"integer","minimum":0,"maximum":100}},"required":["level"]}`),
			Handler:     r.setVolume,
		},
		{
			Name:        "volume_up",
			Description: "Raise the volume by one step.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.volumeUp,
		},
		{
			Name:        "volume_down",
			Description: "Lower the volume by one step.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.volumeDown,
		},
		{
			Name:        "refresh",
			Description: "Re-read stations, status and volume from the radio.",
			InputSchema: json.RawMessage(noArgs),
			Handler:     r.refresh,
		},
	}
}

type remote struct {
	ctrl Controller
}

type playInput struct {
	ID string `json:"id"`
}

type volumeInput struct {
	Level *int `json:"level"`
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(b), nil
}

func volumeResult(level int, err error) (string, error) {
	if err != nil {
		return "", err
	}
	return encode(map[string]int{"volume": level})
}

func (r remote) listStations(context.Context, json.RawMessage) (string, error) {
	stations, _ := r.ctrl.Stations().Value()
	if stations == nil {
		stations = []radio.Station{}
	}
	return encode(stations)
}

func (r remote) getStatus(context.Context, json.RawMessage) (string, error) {
	status, _ := r.ctrl.Status().Value()
	return encode(status)
}

func (r remote) getVolume(context.Context, json.RawMessage) (string, error) {
	volume, _ := r.ctrl.Volume().Value()
	return encode(map[string]int{"volume": volume})
}

func (r remote) play(ctx context.Context, input json.RawMessage) (string, error) {
	var in playInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.ID == "" {
		return "", errors.New("id is required")
	}

	if err := r.ctrl.Play(ctx, in.ID); err != nil {
		return "", err
	}
	return "ok", nil
}

func (r remote) stop(ctx context.Context, _ json.RawMessage) (string, error) {
	if err := r.ctrl.Stop(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}

func (r remote) setVolume(ctx context.Context, input json.RawMessage) (string, error) {
	var in volumeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Level == nil {
		return "", errors.New("level is required")
	}

	return volumeResult(r.ctrl.SetVolume(ctx, *in.Level))
}

func (r remote) volumeUp(ctx context.Context, _ json.RawMessage) (string, error) {
	return volumeResult(r.ctrl.VolumeUp(ctx))
}

func (r remote) volumeDown(ctx context.Context, _ json.RawMessage) (string, error) {
	return volumeResult(r.ctrl.VolumeDown(ctx))
}

func (r remote) refresh(ctx context.Context, _ json.RawMessage) (string, error) {
	if err := r.ctrl.Refresh(ctx); err != nil {
		return "", err
	}
	return "ok", nil
}
