package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(1, 2)

	helpTitleStyle = lipgloss.NewStyle().
			Foreground(ColorAccent).
			Bold(true).
			MarginBottom(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true).
			Width(14)

	helpDescStyle = lipgloss.NewStyle().Foreground(ColorTextSecondary)
)

func (m Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderServerCards())
	if m.prompting {
		b.WriteString("\n")
		b.WriteString(m.renderPrompt())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// renderHeader shows fleet totals and data freshness.
func (m Model) renderHeader() string {
	title := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Render("fleetmon")

	updated := "waiting for data"
	if !m.lastUpdate.IsZero() {
		updated = "updated " + formatAgo(m.now().Sub(m.lastUpdate))
	}
	parts := []string{
		fmt.Sprintf("%d servers", len(m.servers)),
		fmt.Sprintf("%d online", m.OnlineCount()),
	}
	if n := m.AttentionCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d need attention", n))
	}
	parts = append(parts, updated)
	if m.serverAddr != "" {
		parts = append(parts, m.serverAddr)
	}

	stats := lipgloss.NewStyle().Foreground(ColorTextSecondary).Render(" | " + strings.Join(parts, " | "))
	return HeaderStyle.Render(title + stats)
}

func (m Model) renderServerCards() string {
	if len(m.servers) == 0 {
		if m.fetchErr != "" {
			return ErrorTextStyle.Render(m.fetchErr)
		}
		return LabelStyle.Render("No servers configured")
	}

	cardWidth := m.calculateCardWidth()
	cards := make([]string, 0, len(m.servers))
	for i, v := range m.servers {
		cards = append(cards, m.renderCard(v, cardWidth, i == m.selected))
	}
	return m.layoutCards(cards, cardWidth)
}

func (m Model) calculateCardWidth() int {
	switch {
	case m.width == 0:
		return 40
	case m.width >= 80:
		return 38
	default:
		return m.width - 4
	}
}

// layoutCards arranges cards in rows that fit the terminal width.
func (m Model) layoutCards(cards []string, cardWidth int) string {
	perRow := 1
	if m.width > 0 {
		perRow = m.width / (cardWidth + 3)
		if perRow < 1 {
			perRow = 1
		}
	}

	var rows []string
	for i := 0; i < len(cards); i += perRow {
		end := i + perRow
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) renderPrompt() string {
	title := HostNameStyle.Render("Password for " + m.promptFor)
	hint := MutedStyle.Render("enter to connect, esc to cancel")
	return PromptStyle.Render(title + "\n" + m.prompt.View() + "\n" + hint)
}

func (m Model) renderFooter() string {
	var status string
	switch {
	case m.fetchErr != "" && len(m.servers) > 0:
		status = ErrorTextStyle.Render(m.fetchErr)
	case m.notice != "":
		status = LabelStyle.Render(m.notice)
	}

	hints := FooterStyle.Render(strings.Join([]string{
		"q quit",
		"r refresh",
		"↑↓ select",
		"enter details",
		"c connect",
		"p password",
		"s sort: " + m.sortOrder.String(),
		"? help",
	}, " | "))
	if status == "" {
		return hints
	}
	return status + "\n" + hints
}

// renderHelpOverlay renders a centred box listing the key bindings.
func (m Model) renderHelpOverlay() string {
	lines := []string{helpTitleStyle.Render("Keyboard Shortcuts"), ""}
	for _, binding := range helpBindings {
		lines = append(lines, helpKeyStyle.Render(binding.Key)+helpDescStyle.Render(binding.Desc))
	}
	lines = append(lines, "", LabelStyle.Render("Press ? to close"))

	box := helpBoxStyle.Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(ColorDarkBg))
}
