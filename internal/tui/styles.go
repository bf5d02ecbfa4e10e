// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package tui

import "github.com/charmbracelet/lipgloss"

var (
	StyleApp = lipgloss.NewStyle().Padding(1, 2)

	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("228"))

	StyleSubtitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	StyleCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 2).
			MarginRight(2)

	StyleStatusGood = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	StyleStatusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	StyleStatusBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	StyleTopBar = lipgloss.NewStyle().
			Padding(0, 1).
			MarginBottom(1)

	StyleMenuKey = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)
