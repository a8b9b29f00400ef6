package main

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
)

// spinnerFrames are braille characters for smooth animation.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const helpMarkdown = `# piradio

Remote control for a network radio. The list mirrors the device: changes made
from other clients show up here as soon as the device announces them.

| key | action |
|-----|--------|
| enter | play the station, or stop it if it is playing |
| s | stop |
| e | edit the station |
| n | new station |
| d | delete the station |
| + / - | volume up / down |
| r | re-read everything from the device |
| a | connect to another address |
| esc | dismiss an error |
| ? | toggle this help |
| q | quit |

Adding, editing or deleting a station only changes the list once the device
confirms it, unless ` + "`catalog_policy: optimistic`" + ` is configured.
`

// mdRenderer renders markdown to terminal-formatted output.
var mdRenderer *glamour.TermRenderer

func initMarkdownRenderer(width int) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
}

// renderMarkdown converts markdown text to terminal-formatted output.
func renderMarkdown(text string) string {
	if mdRenderer == nil {
		return text
	}
	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// truncate shortens s to at most width terminal cells, appending "…" when
// cut. Newlines are replaced with spaces for single-line display.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 {
		return ""
	}
	return runewidth.Truncate(s, width, "…")
}

// pad fills s with spaces up to width terminal cells.
func pad(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// volumeBar draws level (0-100) as a bar of width cells.
func volumeBar(level, width int) string {
	if width <= 0 {
		return ""
	}
	level = max(0, min(level, 100))
	full := level * width / 100

	return volumeFullStyle.Render(strings.Repeat("█", full)) +
		volumeEmptyStyle.Render(strings.Repeat("░", width-full))
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
