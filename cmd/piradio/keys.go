package main

import "github.com/charmbracelet/bubbles/key"

// keyMap lists every binding of the station screen.
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Stop       key.Binding
	Edit       key.Binding
	New        key.Binding
	Delete     key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Refresh    key.Binding
	Address    key.Binding
	Dismiss    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:     key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "play/stop")),
		Stop:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "stop")),
		Edit:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		New:        key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		VolumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "vol up")),
		VolumeDown: key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "vol down")),
		Refresh:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Address:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "address")),
		Dismiss:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "dismiss")),
		Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.VolumeUp, k.VolumeDown, k.New, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle, k.Stop},
		{k.Edit, k.New, k.Delete},
		{k.VolumeUp, k.VolumeDown, k.Refresh, k.Address},
		{k.Dismiss, k.Help, k.Quit},
	}
}
