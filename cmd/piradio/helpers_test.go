package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel…", truncate("hello world", 4))
	assert.Equal(t, "hello world", truncate("hello\nworld", 20))
	assert.Empty(t, truncate("", 5))
	assert.Empty(t, truncate("hello", 0))
}

func TestTruncate_WideRunes(t *testing.T) {
	got := truncate("東京ラジオ放送", 7)
	assert.LessOrEqual(t, runewidth.StringWidth(got), 7)
	assert.True(t, strings.HasPrefix(got, "東京"), got)
	assert.True(t, strings.HasSuffix(got, "…"), got)
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab   ", pad("ab", 5))
	assert.Equal(t, 6, runewidth.StringWidth(pad("東京", 6)))
	assert.Equal(t, "abcdef", pad("abcdef", 3), "never cuts")
}

func TestVolumeBar(t *testing.T) {
	tests := []struct {
		level, width int
	}{
		{0, 10},
		{50, 10},
		{100, 10},
		{150, 10},
		{-5, 10},
		{33, 20},
	}
	for _, tt := range tests {
		bar := volumeBar(tt.level, tt.width)
		assert.Equal(t, tt.width, lipgloss.Width(bar), "volumeBar(%d, %d)", tt.level, tt.width)
	}
	assert.Empty(t, volumeBar(50, 0))
}

func TestRenderMarkdown_WithoutRenderer(t *testing.T) {
	mdRenderer = nil
	assert.Equal(t, "# title", renderMarkdown("# title"))
}

func TestRenderMarkdown(t *testing.T) {
	initMarkdownRenderer(80)
	t.Cleanup(func() { mdRenderer = nil })

	out := renderMarkdown(helpMarkdown)
	assert.Contains(t, out, "piradio")
	assert.NotEqual(t, helpMarkdown, out)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PIRADIO_DOTENV_TEST=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PIRADIO_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("PIRADIO_DOTENV_TEST"))
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateAddress("raspberrypi.local"))
	assert.NoError(t, validateAddress("http://10.0.0.2:3000"))
	assert.Error(t, validateAddress(""))
	assert.Error(t, validateAddress("ftp://pi"))

	assert.NoError(t, validateName("BBC"))
	assert.Error(t, validateName("   "))

	assert.NoError(t, validateStreamURL("http://stream.example/live"))
	assert.NoError(t, validateStreamURL(" https://stream.example "))
	assert.Error(t, validateStreamURL("stream.example"))
	assert.Error(t, validateStreamURL("http://"))
	assert.Error(t, validateStreamURL("rtmp://stream.example"))
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PIRADIO_CONFIG", "")

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Connection.Address)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "piradio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("controls:\n  volume_step: 0\n"), 0o600))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "volume_step")
}
