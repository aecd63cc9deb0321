package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kirillkom/docintel/internal/core/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func statusText(status domain.DocumentStatus) string {
	switch status {
	case domain.StatusCompleted:
		return okStyle.Render(string(status))
	case domain.StatusFailed:
		return errorStyle.Render(string(status))
	default:
		return warnStyle.Render(string(status))
	}
}
