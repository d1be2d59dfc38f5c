package main

import "github.com/charmbracelet/lipgloss"

var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	label = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(14)
)
