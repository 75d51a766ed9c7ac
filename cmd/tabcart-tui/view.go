package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	normalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	buttonStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	cardStyle   = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	paneStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func (m model) renderItemRows() string {
	if m.items.Len() == 0 {
		return normalStyle.Render("(catalog is empty, seed it with `tabcart seed`)")
	}
	lines := make([]string, 0, m.items.Len()*2)
	for i, it := range m.items.Items() {
		pref := "  "
		if i == m.cursor {
			pref = "> "
		}
		row := fmt.Sprintf("%s%s  %s", pref, trimText(emptyDefault(it.Name, it.ID), 32), formatPrice(it.Price))
		if i == m.cursor {
			row = cursorStyle.Render(row)
		}
		row = zone.Mark("item-"+it.ID, row)

		sub := zone.Mark("sub-"+it.ID, buttonStyle.Render("[-]"))
		add := zone.Mark("add-"+it.ID, buttonStyle.Render("[+]"))
		stock := fmt.Sprintf("stock %d", it.AmountInStock)
		if it.AmountInStock == 0 {
			stock = warnStyle.Render("sold out")
		}
		detail := fmt.Sprintf("    %s %d %s  %s  %s", sub, it.AmountInCart, add, stock, normalStyle.Render(it.ServingSize))
		lines = append(lines, row, detail)
	}
	return strings.Join(lines, "\n")
}

func (m model) renderTabRows() string {
	if m.settings.SlotBackend != "hub" {
		return normalStyle.Render("backend " + m.settings.SlotBackend + ": no hub to inspect")
	}
	if m.tabsErr != nil {
		return warnStyle.Render("hub unreachable: " + m.tabsErr.Error())
	}
	if len(m.tabs) == 0 {
		return normalStyle.Render("(none)")
	}
	lines := make([]string, 0, len(m.tabs))
	for _, t := range m.tabs {
		lines = append(lines, fmt.Sprintf("%s  %-12s %-6s writes=%d  seen %s",
			shortID(t.ID), trimText(emptyDefault(t.Name, "unnamed"), 12), t.Transport, t.Writes, timeAgo(t.LastSeen)))
	}
	return strings.Join(lines, "\n")
}

func (m model) View() string {
	if m.mode == settingsMode {
		return zone.Scan(m.settingsView())
	}

	paneW := max(40, m.width/2-2)
	loading := " "
	if m.loading {
		loading = m.spin.View()
	}
	itemsPane := paneStyle.Width(paneW).Render(titleStyle.Render("Catalog") + " " + loading + "\n" + m.listVP.View())

	cards := lipgloss.JoinHorizontal(
		lipgloss.Top,
		cardStyle.Render(fmt.Sprintf("Cart\n%d", int(math.Round(m.animSize)))),
		cardStyle.Render(fmt.Sprintf("Total\n%s", formatPrice(m.animSum))),
		cardStyle.Render(fmt.Sprintf("Writes\n%d/%d", m.stats.Persist.Writes, m.stats.Persist.Skipped)),
		cardStyle.Render(fmt.Sprintf("Merged\n%d", m.stats.Sync.Merged)),
		cardStyle.Render(zone.Mark("clear", buttonStyle.Render("clear\ncart"))),
	)
	side := lipgloss.JoinVertical(lipgloss.Left,
		cards,
		paneStyle.Render("Total trend\n"+m.chart.View()),
		paneStyle.Width(paneW).Render(titleStyle.Render("Tabs")+"\n"+m.renderTabRows()),
	)

	header := titleStyle.Render("tabcart") + normalStyle.Render(fmt.Sprintf("  tab %s  %s  updated %s",
		shortID(m.tab.ID()), m.settings.SlotBackend, lastUpdatedText(m.lastUpdated)))
	status := titleStyle.Render("status: ") + m.status
	help := normalStyle.Render("mouse: click [+]/[-] | j/k move | +/- cart | x clear | d remove | c settings | q quit")

	return zone.Scan(strings.Join([]string{
		header,
		lipgloss.JoinHorizontal(lipgloss.Top, itemsPane, side),
		status,
		help,
	}, "\n"))
}

func (m model) settingsView() string {
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)

	lines := []string{titleStyle.Render("Settings")}
	for i, name := range settingNames() {
		prefix := "  "
		if i == m.settingsCursor {
			prefix = cursorStyle.Render("> ")
		}
		lines = append(lines, fmt.Sprintf("%s%s = %s", prefix, name, m.settingValueByIndex(i)))
	}

	editLine := normalStyle.Render("select a field, press e or enter to edit")
	if m.editingSetting {
		editLine = keyStyle.Render("editing") + " " + settingNames()[m.settingsCursor] + "\n" + m.editor.View()
	}

	help := normalStyle.Render("j/k move | e/enter edit+apply | s save | c/esc back")
	status := titleStyle.Render("status: ") + m.status
	box := paneStyle.Width(max(80, m.width-2)).Render(strings.Join(lines, "\n"))
	return strings.Join([]string{box, editLine, status, help}, "\n")
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

func shortID(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func emptyDefault(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Since(t).Round(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func trimText(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func lastUpdatedText(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.TimeOnly)
}
