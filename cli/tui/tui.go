package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/justapithecus/catalogfeed/cli/reader"
)

// ViewStatus is the only view with a TUI.
const ViewStatus = "status"

// IsTUISupported reports whether view has a TUI.
func IsTUISupported(view string) bool {
	return view == ViewStatus
}

// Run starts the TUI for view and blocks until the user quits.
func Run(view string, data any) error {
	if !IsTUISupported(view) {
		return fmt.Errorf("TUI mode is not supported for %s", view)
	}
	status, ok := data.(*reader.StatusResponse)
	if !ok {
		return fmt.Errorf("invalid data type %T for %s view", data, view)
	}
	_, err := tea.NewProgram(NewStatusModel(status), tea.WithAltScreen()).Run()
	return err
}
