package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/piradio/pkg/radio"
)

// stationsMsg delivers a new catalog snapshot from the bridge goroutine.
type stationsMsg []radio.Station

// statusMsg delivers a new playback status from the bridge goroutine.
type statusMsg radio.PlaybackStatus

// volumeMsg delivers a new volume level from the bridge goroutine.
type volumeMsg int

// connectedMsg is returned by the tea.Cmd that calls Reconfigure.
type connectedMsg struct {
	cfg radio.ConnectionConfig
	err error
}

// commandDoneMsg is returned by every tea.Cmd that issues a radio command.
type commandDoneMsg struct {
	op         string
	err        error
	background bool // Did not count towards the spinner.
}

// stationLoadedMsg carries a fresh copy of a station for the edit form.
type stationLoadedMsg struct {
	station radio.Station
	err     error
}

// programReadyMsg passes the *tea.Program to the model so it can start bridge goroutines.
type programReadyMsg struct {
	program *tea.Program
}

// tickMsg drives the busy spinner.
type tickMsg time.Time

// pollMsg triggers a status refresh when polling is enabled.
type pollMsg struct{}
