// Package tui runs the interactive notification view.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cristianoliveira/job-intray/internal/notification"
	"github.com/cristianoliveira/job-intray/internal/tui/state"
)

// Run shows the view until the user quits or ctx is cancelled.
func Run(ctx context.Context, store *notification.Store, opts ...state.Option) error {
	m := state.NewModel(store, opts...)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running tui: %w", err)
	}
	return nil
}
