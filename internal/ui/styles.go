package ui

import "github.com/charmbracelet/lipgloss"

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

var (
	titleStyle = cyan.Bold(true)
	labelStyle = gray
	valueStyle = green
	helpStyle  = gray
	errorStyle = red.Bold(true)
	pauseStyle = yellow.Bold(true)
	logBox     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("242")).
			Padding(0, 1)
)
