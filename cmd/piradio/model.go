package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/germanamz/piradio/pkg/feed"
	"github.com/germanamz/piradio/pkg/radio"
)

// controller is the radio surface the TUI drives. *session.Manager
// implements it.
type controller interface {
	Stations() *feed.Feed[[]radio.Station]
	Status() *feed.Feed[radio.PlaybackStatus]
	Volume() *feed.Feed[int]
	Reconfigure(ctx context.Context, cfg radio.ConnectionConfig) error
	GetStation(ctx context.Context, id string) (radio.Station, error)
	CreateStation(ctx context.Context, draft radio.Station) (radio.Station, error)
	UpdateStation(ctx context.Context, id string, draft radio.Station) (radio.Station, error)
	DeleteStation(ctx context.Context, id string) error
	Play(ctx context.Context, id string) error
	Stop(ctx context.Context) error
	VolumeUp(ctx context.Context) (int, error)
	VolumeDown(ctx context.Context) (int, error)
	Refresh(ctx context.Context) error
	RefreshStatus(ctx context.Context) (radio.PlaybackStatus, error)
}

const (
	defaultCommandTimeout = 10 * time.Second
	maxFormWidth          = 60
)

// appModel is the root bubbletea model.
type appModel struct {
	ctx     context.Context
	ctrl    controller
	cfg     radio.ConnectionConfig
	timeout time.Duration
	poll    time.Duration

	keys keyMap
	help help.Model

	stations []radio.Station
	status   radio.PlaybackStatus
	volume   int
	cursor   int

	connected  bool
	connecting bool
	pending    int
	frame      int
	banner     string
	showHelp   bool

	form     *huh.Form
	formKind formKind
	formData *formData

	cancelBridge context.CancelFunc
	width        int
	height       int
}

func newAppModel(ctx context.Context, ctrl controller, cfg radio.ConnectionConfig, timeout, poll time.Duration) *appModel {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	m := &appModel{
		ctx:     ctx,
		ctrl:    ctrl,
		cfg:     cfg,
		timeout: timeout,
		poll:    poll,
		keys:    newKeyMap(),
		help:    help.New(),
	}

	if strings.TrimSpace(cfg.Address) == "" {
		m.openAddressForm()
	} else {
		m.connecting = true
	}

	return m
}

func (m *appModel) Init() tea.Cmd {
	if m.form != nil {
		return m.form.Init()
	}
	return tea.Batch(m.connectCmd(m.cfg), tickCmd())
}

func (m *appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		initMarkdownRenderer(m.width - 4)
		if m.form != nil {
			m.form = m.form.WithWidth(m.formWidth())
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case programReadyMsg:
		m.cancelBridge = startBridge(m.ctx, msg.program, m.ctrl)
		if m.poll > 0 {
			return m, pollCmd(m.poll)
		}
		return m, nil

	case stationsMsg:
		m.stations = msg
		m.cursor = max(0, min(m.cursor, len(m.stations)-1))
		return m, nil

	case statusMsg:
		m.status = radio.PlaybackStatus(msg)
		return m, nil

	case volumeMsg:
		m.volume = int(msg)
		return m, nil

	case connectedMsg:
		return m.handleConnected(msg)

	case commandDoneMsg:
		if !msg.background {
			m.pending = max(0, m.pending-1)
		}
		m.report(msg.op, msg.err)
		return m, nil

	case stationLoadedMsg:
		m.pending = max(0, m.pending-1)
		if msg.err != nil {
			m.report("load station", msg.err)
			return m, nil
		}
		return m, m.openStationForm(formEdit, msg.station)

	case pollMsg:
		return m, tea.Batch(m.refreshStatusCmd(), pollCmd(m.poll))

	case tickMsg:
		if m.busy() {
			m.frame++
			return m, tickCmd()
		}
		return m, nil
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	return m, nil
}

func (m *appModel) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	// A newer connect superseded this one.
	if errors.Is(msg.err, context.Canceled) && m.ctx.Err() == nil {
		return m, nil
	}

	m.connecting = false
	m.cfg = msg.cfg
	m.connected = msg.err == nil
	m.cursor = 0
	m.report("connect", msg.err)

	return m, nil
}

func (m *appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, m.quit()
	}

	if m.form != nil {
		return m.updateForm(msg)
	}

	ctrl := m.ctrl

	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Dismiss, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit()

	case key.Matches(msg, m.keys.Dismiss):
		m.banner = ""

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true

	case key.Matches(msg, m.keys.Up):
		m.cursor = max(0, m.cursor-1)

	case key.Matches(msg, m.keys.Down):
		m.cursor = max(0, min(m.cursor+1, len(m.stations)-1))

	case key.Matches(msg, m.keys.Toggle):
		st, ok := m.selected()
		if !ok {
			return m, nil
		}
		if m.status.IsPlaying(st.ID) {
			return m, m.run("stop", ctrl.Stop)
		}
		return m, m.run("play "+displayName(st), func(ctx context.Context) error {
			return ctrl.Play(ctx, st.ID)
		})

	case key.Matches(msg, m.keys.Stop):
		return m, m.run("stop", ctrl.Stop)

	case key.Matches(msg, m.keys.Edit):
		if st, ok := m.selected(); ok {
			return m, m.loadStationCmd(st.ID)
		}

	case key.Matches(msg, m.keys.New):
		return m, m.openStationForm(formCreate, radio.Station{})

	case key.Matches(msg, m.keys.Delete):
		if st, ok := m.selected(); ok {
			return m, m.openDeleteForm(st)
		}

	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.run("volume up", func(ctx context.Context) error {
			_, err := ctrl.VolumeUp(ctx)
			return err
		})

	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.run("volume down", func(ctx context.Context) error {
			_, err := ctrl.VolumeDown(ctx)
			return err
		})

	case key.Matches(msg, m.keys.Refresh):
		return m, m.run("refresh", ctrl.Refresh)

	case key.Matches(msg, m.keys.Address):
		m.openAddressForm()
		return m, m.form.Init()
	}

	return m, nil
}

func (m *appModel) quit() tea.Cmd {
	if m.cancelBridge != nil {
		m.cancelBridge()
	}
	return tea.Quit
}

// report shows err in the banner unless the program is shutting down.
func (m *appModel) report(op string, err error) {
	if err == nil || m.ctx.Err() != nil {
		return
	}
	m.banner = op + ": " + err.Error()
}

func (m *appModel) busy() bool {
	return m.pending > 0 || m.connecting
}

func (m *appModel) selected() (radio.Station, bool) {
	if m.cursor < 0 || m.cursor >= len(m.stations) {
		return radio.Station{}, false
	}
	return m.stations[m.cursor], true
}

// run issues a radio command in the background. The spinner runs while any
// command is pending.
func (m *appModel) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	wasBusy := m.busy()
	m.pending++

	ctx, timeout := m.ctx, m.timeout
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return commandDoneMsg{op: op, err: fn(ctx)}
	}

	return withSpinner(wasBusy, cmd)
}

// withSpinner starts the spinner tick loop unless one is already running.
func withSpinner(wasBusy bool, cmd tea.Cmd) tea.Cmd {
	if wasBusy {
		return cmd
	}
	return tea.Batch(cmd, tickCmd())
}

func (m *appModel) connectCmd(cfg radio.ConnectionConfig) tea.Cmd {
	m.connecting = true

	ctrl, ctx, timeout := m.ctrl, m.ctx, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return connectedMsg{cfg: cfg, err: ctrl.Reconfigure(ctx, cfg)}
	}
}

func (m *appModel) loadStationCmd(id string) tea.Cmd {
	wasBusy := m.busy()
	m.pending++

	ctrl, ctx, timeout := m.ctrl, m.ctx, m.timeout
	return withSpinner(wasBusy, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		st, err := ctrl.GetStation(ctx, id)
		return stationLoadedMsg{station: st, err: err}
	})
}

// refreshStatusCmd polls the status without touching the spinner. Only
// failures produce a message.
func (m *appModel) refreshStatusCmd() tea.Cmd {
	if !m.connected {
		return nil
	}

	ctrl, ctx, timeout := m.ctrl, m.ctx, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := ctrl.RefreshStatus(ctx); err != nil {
			return commandDoneMsg{op: "refresh status", err: err, background: true}
		}
		return nil
	}
}

// --- forms ---

func (m *appModel) formWidth() int {
	if m.width == 0 {
		return maxFormWidth
	}
	return max(20, min(m.width-4, maxFormWidth))
}

func (m *appModel) setForm(kind formKind, d *formData, f *huh.Form) {
	m.formKind = kind
	m.formData = d
	m.form = f.WithWidth(m.formWidth())
}

func (m *appModel) closeForm() {
	m.form = nil
	m.formKind = formNone
	m.formData = nil
}

func (m *appModel) openAddressForm() {
	d := &formData{address: m.cfg.Address, apiKey: m.cfg.Credential}
	m.setForm(formAddress, d, newAddressForm(d))
}

func (m *appModel) openStationForm(kind formKind, st radio.Station) tea.Cmd {
	title := "New station"
	if kind == formEdit {
		title = "Edit " + displayName(st)
	}

	d := &formData{stationID: st.ID, name: st.Name, url: st.URL}
	m.setForm(kind, d, newStationForm(title, d))
	return m.form.Init()
}

func (m *appModel) openDeleteForm(st radio.Station) tea.Cmd {
	d := &formData{stationID: st.ID, name: st.Name}
	m.setForm(formDelete, d, newDeleteForm(displayName(st), d))
	return m.form.Init()
}

func (m *appModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.form.Update(msg)
	if f, ok := updated.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.submitForm()
	case huh.StateAborted:
		m.closeForm()
		return m, nil
	}

	return m, cmd
}

func (m *appModel) submitForm() tea.Cmd {
	kind, d, ctrl := m.formKind, m.formData, m.ctrl
	m.closeForm()

	switch kind {
	case formAddress:
		wasBusy := m.busy()
		return withSpinner(wasBusy, m.connectCmd(d.connection()))

	case formCreate:
		draft := d.draft()
		return m.run("create station", func(ctx context.Context) error {
			_, err := ctrl.CreateStation(ctx, draft)
			return err
		})

	case formEdit:
		id, draft := d.stationID, d.draft()
		return m.run("update station", func(ctx context.Context) error {
			_, err := ctrl.UpdateStation(ctx, id, draft)
			return err
		})

	case formDelete:
		if !d.confirm {
			return nil
		}
		id := d.stationID
		return m.run("delete station", func(ctx context.Context) error {
			return ctrl.DeleteStation(ctx, id)
		})
	}

	return nil
}

// --- view ---

func (m *appModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return renderMarkdown(helpMarkdown) + "\n" + dimStyle.Render("press ? or esc to go back")
	}

	sections := []string{m.headerView(), m.nowPlayingView(), ""}

	if m.form != nil {
		sections = append(sections, formBorder.Render(m.form.View()))
	} else {
		sections = append(sections, m.listView())
	}

	if m.banner != "" {
		sections = append(sections, "", errorBlockStyle.Render("error: "+m.banner)+dimStyle.Render("  (esc to dismiss)"))
	}

	if m.form == nil {
		sections = append(sections, "", m.help.View(m.keys))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *appModel) headerView() string {
	addr := m.cfg.Address
	switch {
	case m.connecting:
		addr = "connecting to " + addr
	case !m.connected:
		addr = "not connected"
	}

	line := titleStyle.Render("piradio") + " " + addressStyle.Render(addr)
	if m.busy() {
		line += " " + spinnerStyle.Render(spinnerFrames[m.frame%len(spinnerFrames)])
	}
	return line
}

func (m *appModel) nowPlayingView() string {
	var state string
	switch {
	case m.status.Playing && m.status.Selected != nil:
		state = playingStyle.Render("▶ " + displayName(*m.status.Selected))
	case m.status.Selected != nil:
		state = selectedStyle.Render("■ " + displayName(*m.status.Selected))
	default:
		state = dimStyle.Render("■ stopped")
	}

	return fmt.Sprintf("%s   vol %s %3d", state, volumeBar(m.volume, 20), m.volume)
}

func (m *appModel) listView() string {
	if len(m.stations) == 0 {
		if !m.connected {
			return dimStyle.Render("No radio connected. Press a to set the address.")
		}
		return dimStyle.Render("No stations. Press n to add one.")
	}

	// Header, now playing, blank lines, banner and help take about 8 rows.
	rows := max(3, m.height-8)
	start := max(0, min(m.cursor-rows/2, len(m.stations)-rows))
	end := min(len(m.stations), start+rows)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, m.rowView(i, m.stations[i]))
	}
	return strings.Join(lines, "\n")
}

func (m *appModel) rowView(i int, st radio.Station) string {
	marker := "  "
	if i == m.cursor {
		marker = cursorStyle.Render("› ")
	}

	icon := "  "
	switch {
	case m.status.IsPlaying(st.ID):
		icon = playingStyle.Render("▶ ")
	case m.status.SelectedID() == st.ID && st.ID != "":
		icon = selectedStyle.Render("■ ")
	}

	nameWidth := max(12, m.width/3)
	name := pad(truncate(displayName(st), nameWidth), nameWidth)
	if i == m.cursor {
		name = cursorStyle.Render(name)
	}

	urlWidth := max(0, m.width-nameWidth-6)
	return marker + icon + name + " " + urlStyle.Render(truncate(st.URL, urlWidth))
}

// displayName falls back to the id for stations without a name.
func displayName(st radio.Station) string {
	if strings.TrimSpace(st.Name) != "" {
		return st.Name
	}
	return st.ID
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func pollCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return pollMsg{}
	})
}
