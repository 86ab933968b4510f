package state

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Jobs     key.Binding
	Dismiss  key.Binding
	Activate key.Binding
	ClearJob key.Binding
	ClearAll key.Binding
	Sync     key.Binding
	Quit     key.Binding
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Jobs, k.Dismiss, k.Activate, k.ClearJob, k.ClearAll, k.Sync, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "down")),
		Jobs:     key.NewBinding(key.WithKeys("j"), key.WithHelp("j", "jobs")),
		Dismiss:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "dismiss")),
		Activate: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "action")),
		ClearJob: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear job")),
		ClearAll: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear all")),
		Sync:     key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sync")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
