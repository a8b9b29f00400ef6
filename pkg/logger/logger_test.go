package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(New(Config{Level: "debug"}, &buf), "session")

	log.Debug().Str("session", "abc").Msg("primed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "primed", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn"}, &buf)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_InvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "chatty"}, &buf)

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_PrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{PrettyPrint: true}, &buf)

	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())), "console output is not JSON")
}

func TestNew_ShowCaller(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{ShowCaller: true}, &buf)

	log.Info().Msg("x")
	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error().Msg("nothing happens")
}

func TestOrNop(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{}, &buf)

	OrNop(&log).Info().Msg("kept")
	OrNop(nil).Info().Msg("dropped")

	assert.Contains(t, buf.String(), "kept")
	assert.NotContains(t, buf.String(), "dropped")
}
