package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/tabsync"
)

type settingsForm struct {
	SlotBackend     string
	SlotPath        string
	HubURL          string
	PublishDelay    string
	EchoGuard       string
	AdminBaseURL    string
	RefreshInterval string
}

func settingNames() []string {
	return []string{
		"slot.backend",
		"slot.path",
		"slot.hub_url",
		"store.publish_delay",
		"sync.echo_guard",
		"tui.admin_base_url",
		"tui.refresh_interval",
	}
}

func updateSettingsMode(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingSetting {
		switch msg.String() {
		case "enter":
			m.setSelectedSettingValue(m.editor.Value())
			m.editingSetting = false
			m.editor.Blur()
			m.status = "value updated (press s to save config)"
			return m, nil
		case "esc":
			m.editingSetting = false
			m.editor.Blur()
			m.status = "edit canceled"
			return m, nil
		}
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "c":
		m.mode = shopMode
		m.status = "shop mode"
		return m, nil
	case "up", "k":
		if m.settingsCursor > 0 {
			m.settingsCursor--
		}
		return m, nil
	case "down", "j":
		if m.settingsCursor < len(settingNames())-1 {
			m.settingsCursor++
		}
		return m, nil
	case "s":
		return m, saveConfigCmd(m.settings, m.form)
	case "e", "enter":
		m.editingSetting = true
		m.editor.SetValue(m.settingValueByIndex(m.settingsCursor))
		m.editor.CursorEnd()
		cmd := m.editor.Focus()
		m.status = "editing " + settingNames()[m.settingsCursor]
		return m, cmd
	}
	return m, nil
}

func saveConfigCmd(current config.Settings, form settingsForm) tea.Cmd {
	return func() tea.Msg {
		next, err := formToSettings(current, form)
		if err != nil {
			return configSavedMsg{err: err}
		}
		saved, err := config.Save(next)
		if err != nil {
			return configSavedMsg{err: err}
		}
		return configSavedMsg{settings: saved}
	}
}

func formFromSettings(s config.Settings) settingsForm {
	return settingsForm{
		SlotBackend:     s.SlotBackend,
		SlotPath:        s.SlotPath,
		HubURL:          s.HubURL,
		PublishDelay:    s.PublishDelay.String(),
		EchoGuard:       s.EchoGuard,
		AdminBaseURL:    s.AdminBaseURL,
		RefreshInterval: s.TUIRefreshInterval.String(),
	}
}

func formToSettings(base config.Settings, form settingsForm) (config.Settings, error) {
	next := base
	next.SlotBackend = strings.TrimSpace(form.SlotBackend)
	if !config.ValidBackend(next.SlotBackend) {
		return config.Settings{}, fmt.Errorf("invalid slot.backend %q", next.SlotBackend)
	}
	next.SlotPath = strings.TrimSpace(form.SlotPath)
	next.HubURL = strings.TrimSpace(form.HubURL)
	next.AdminBaseURL = strings.TrimSpace(form.AdminBaseURL)

	if _, err := tabsync.ParseGuard(strings.TrimSpace(form.EchoGuard)); err != nil {
		return config.Settings{}, err
	}
	next.EchoGuard = strings.TrimSpace(form.EchoGuard)

	delay, err := parseDuration("store.publish_delay", form.PublishDelay)
	if err != nil {
		return config.Settings{}, err
	}
	refresh, err := parseDuration("tui.refresh_interval", form.RefreshInterval)
	if err != nil {
		return config.Settings{}, err
	}
	if refresh == 0 {
		return config.Settings{}, errors.New("tui.refresh_interval must be positive")
	}
	next.PublishDelay = delay
	next.TUIRefreshInterval = refresh
	return next, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%s cannot be empty", name)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return d, nil
}

func (m model) settingValueByIndex(i int) string {
	switch i {
	case 0:
		return m.form.SlotBackend
	case 1:
		return m.form.SlotPath
	case 2:
		return m.form.HubURL
	case 3:
		return m.form.PublishDelay
	case 4:
		return m.form.EchoGuard
	case 5:
		return m.form.AdminBaseURL
	case 6:
		return m.form.RefreshInterval
	default:
		return ""
	}
}

func (m *model) setSelectedSettingValue(value string) {
	switch m.settingsCursor {
	case 0:
		m.form.SlotBackend = value
	case 1:
		m.form.SlotPath = value
	case 2:
		m.form.HubURL = value
	case 3:
		m.form.PublishDelay = value
	case 4:
		m.form.EchoGuard = value
	case 5:
		m.form.AdminBaseURL = value
	case 6:
		m.form.RefreshInterval = value
	}
}
