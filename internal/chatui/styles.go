package chatui

import "github.com/charmbracelet/lipgloss"

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	yellow = lipgloss.Color("220")
	red    = lipgloss.Color("196")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	sideListStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(gray).
			Padding(0, 1)

	roomConnectedStyle    = lipgloss.NewStyle().Foreground(cyan)
	roomDisconnectedStyle = lipgloss.NewStyle().Foreground(gray)
	roomUnseenStyle       = lipgloss.NewStyle().Bold(true).Foreground(yellow)

	messageStyle            = lipgloss.NewStyle()
	highlightedMessageStyle = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	placeholderStyle        = lipgloss.NewStyle().Foreground(gray).Italic(true)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Foreground(red)
)
