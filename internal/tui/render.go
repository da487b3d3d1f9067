package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

var (
	badgeStyle      = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("3"))
	emptyBadgeStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("241"))
	stateStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	okStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
)

func renderHeader(count uint, snap badge.Snapshot, width int) string {
	var pill string
	if count == 0 {
		pill = emptyBadgeStyle.Render("🔔 0")
	} else {
		pill = badgeStyle.Render(fmt.Sprintf("🔔 %d", count))
	}

	info := snap.State.String()
	if snap.CooldownActive {
		info += " · cooldown"
	}
	if snap.RefreshPending {
		info += " · refresh pending"
	}
	line := lipgloss.JoinHorizontal(lipgloss.Center,
		pill, "  ", snap.Principal, "  ", stateStyle.Render(info))
	return lipgloss.NewStyle().MaxWidth(max(width, 1)).Render(line)
}

func renderStatus(text string, isErr bool) string {
	if isErr {
		return errorStyle.Render(text)
	}
	return okStyle.Render(text)
}
