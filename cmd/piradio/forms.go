package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/huh"
	"github.com/germanamz/piradio/pkg/radio"
)

// formKind identifies the dialog currently on screen.
type formKind int

const (
	formNone formKind = iota
	formAddress
	formCreate
	formEdit
	formDelete
)

// formData holds the values bound to the active form. It lives behind a
// pointer so the bindings survive the model being copied on every Update.
type formData struct {
	address string
	apiKey  string

	stationID string
	name      string
	url       string

	confirm bool
}

func (d *formData) draft() radio.Station {
	return radio.Station{
		Name: strings.TrimSpace(d.name),
		URL:  strings.TrimSpace(d.url),
	}
}

func (d *formData) connection() radio.ConnectionConfig {
	return radio.ConnectionConfig{
		Address:    strings.TrimSpace(d.address),
		Credential: d.apiKey,
	}
}

// formKeyMap cancels with esc instead of ctrl+c, which would otherwise quit
// the whole program.
func formKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel"))
	return km
}

func newAddressForm(d *formData) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Radio address").
			Description("host, host:port or http(s) URL").
			Placeholder("raspberrypi.local").
			Value(&d.address).
			Validate(validateAddress),
		huh.NewInput().
			Title("API key").
			EchoMode(huh.EchoModePassword).
			Value(&d.apiKey),
	)).WithKeyMap(formKeyMap()).WithShowHelp(true)
}

func newStationForm(title string, d *formData) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewNote().Title(title),
		huh.NewInput().Title("Name").Value(&d.name).Validate(validateName),
		huh.NewInput().Title("Stream URL").Placeholder("http://").Value(&d.url).Validate(validateStreamURL),
	)).WithKeyMap(formKeyMap()).WithShowHelp(true)
}

func newDeleteForm(name string, d *formData) *huh.Form {
	return huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Delete %q?", name)).
			Affirmative("Delete").
			Negative("Cancel").
			Value(&d.confirm),
	)).WithKeyMap(formKeyMap())
}

func validateAddress(s string) error {
	return radio.ConnectionConfig{Address: s}.Validate()
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("name is required")
	}
	return nil
}

func validateStreamURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL must start with http:// or https://")
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}
