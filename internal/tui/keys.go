package tui

// Keybinding constants
const (
	KeyQuit  = "q"
	KeyCtrlC = "ctrl+c"
)

// HelpView returns a one-line help bar with common keybindings.
func HelpView() string {
	return StyleHelp.Render("q: quit")
}

// HelpResultsView is the help bar shown once the results view is up.
func HelpResultsView() string {
	return StyleHelp.Render("↑/↓: scroll results | q: quit")
}
