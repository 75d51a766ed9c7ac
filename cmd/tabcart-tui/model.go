package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"github.com/adityalohuni/tabcart/internal/adminclient"
	"github.com/adityalohuni/tabcart/internal/cart"
	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/session"
	"github.com/adityalohuni/tabcart/internal/tab"
)

type uiMode int

const (
	shopMode uiMode = iota
	settingsMode
)

// snapshotMsg carries the tab state after the feed was woken.
type snapshotMsg struct {
	items   catalog.Snapshot
	cart    cart.Info
	loading bool
	stats   tab.Stats
	at      time.Time
}

type opResultMsg struct {
	op  string
	id  string
	err error
}

type tabsResultMsg struct {
	tabs []session.TabInfo
	err  error
}

type configSavedMsg struct {
	settings config.Settings
	err      error
}

type tickMsg time.Time

// feed turns tab subscriptions into tea messages. Subscribers only poke it,
// so a publish never blocks on the UI loop.
type feed struct {
	wake chan struct{}
}

func newFeed() *feed { return &feed{wake: make(chan struct{}, 1)} }

func (f *feed) poke() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *feed) next(t *tab.Tab) tea.Cmd {
	return func() tea.Msg {
		<-f.wake
		return snapshotMsg{
			items:   t.Items(),
			cart:    t.CartInfo(),
			loading: t.Loading(),
			stats:   t.Stats(),
			at:      time.Now(),
		}
	}
}

type model struct {
	tab         *tab.Tab
	feed        *feed
	adminClient *adminclient.Client
	refresh     time.Duration

	settings config.Settings
	form     settingsForm

	items   catalog.Snapshot
	cart    cart.Info
	loading bool
	stats   tab.Stats
	tabs    []session.TabInfo
	tabsErr error

	mode           uiMode
	cursor         int
	settingsCursor int
	editingSetting bool

	editor textinput.Model
	spin   spinner.Model
	listVP viewport.Model
	chart  streamlinechart.Model

	spring   harmonica.Spring
	animSize float64
	velSize  float64
	animSum  float64
	velSum   float64

	status      string
	lastUpdated time.Time
	width       int
	height      int
}

func newModel(t *tab.Tab, f *feed, client *adminclient.Client, cfg config.Settings) model {
	ed := textinput.New()
	ed.Prompt = "value> "
	ed.CharLimit = 512
	ed.Width = 64

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	chart := streamlinechart.New(
		48,
		8,
		streamlinechart.WithYRange(0, 100),
		streamlinechart.WithStyles(runes.ArcLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("14"))),
	)

	refresh := cfg.TUIRefreshInterval
	if refresh <= 0 {
		refresh = time.Second
	}

	return model{
		tab:         t,
		feed:        f,
		adminClient: client,
		refresh:     refresh,
		settings:    cfg,
		form:        formFromSettings(cfg),
		mode:        shopMode,
		items:       t.Items(),
		cart:        t.CartInfo(),
		status:      "tab " + shortID(t.ID()) + " live",
		editor:      ed,
		spin:        sp,
		listVP:      viewport.New(60, 20),
		chart:       chart,
		spring:      harmonica.NewSpring(harmonica.FPS(60), 12.0, 1.0),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.feed.next(m.tab), m.fetchTabs(), tickCmd(m.refresh), m.spin.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.syncLayout()
		m.syncListContent()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case snapshotMsg:
		m.items = msg.items
		m.cart = msg.cart
		m.loading = msg.loading
		m.stats = msg.stats
		m.lastUpdated = msg.at
		if m.cursor >= m.items.Len() {
			m.cursor = max(0, m.items.Len()-1)
		}
		m.pushTotal(msg.cart.TotalPrice)
		m.syncListContent()
		return m, m.feed.next(m.tab)

	case opResultMsg:
		m.status = describeResult(msg)
		return m, nil

	case tabsResultMsg:
		m.tabs, m.tabsErr = msg.tabs, msg.err
		return m, nil

	case configSavedMsg:
		if msg.err != nil {
			m.status = "save failed: " + msg.err.Error()
			return m, nil
		}
		m.settings = msg.settings
		m.form = formFromSettings(msg.settings)
		m.refresh = msg.settings.TUIRefreshInterval
		m.adminClient = newAdminClient(msg.settings)
		m.status = "settings saved, slot changes apply on restart"
		return m, m.fetchTabs()

	case tickMsg:
		m.animSize, m.velSize = m.spring.Update(m.animSize, m.velSize, float64(m.cart.CartSize))
		m.animSum, m.velSum = m.spring.Update(m.animSum, m.velSum, m.cart.TotalPrice)
		return m, tea.Batch(m.fetchTabs(), tickCmd(m.refresh))

	case tea.MouseMsg:
		if m.mode == shopMode && msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			return m.handleClick(msg)
		}

	case tea.KeyMsg:
		if m.mode == settingsMode {
			return updateSettingsMode(m, msg)
		}
		return updateShopMode(m, msg)
	}

	return m, nil
}

func updateShopMode(m model, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "c":
		m.mode = settingsMode
		m.editingSetting = false
		m.editor.Blur()
		m.status = "settings mode"
		return m, nil
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.syncListContent()
		return m, nil
	case "down", "j":
		if m.cursor < m.items.Len()-1 {
			m.cursor++
		}
		m.syncListContent()
		return m, nil
	case "pgup":
		m.listVP.HalfViewUp()
		return m, nil
	case "pgdown":
		m.listVP.HalfViewDown()
		return m, nil
	case "+", "a", "right", "l":
		return m, m.itemOp("add", m.tab.AddToCart)
	case "-", "s", "left", "h":
		return m, m.itemOp("subtract", m.tab.SubtractFromCart)
	case "d":
		return m, m.itemOp("remove", m.tab.RemoveItem)
	case "x":
		return m, opCmd("clear", "", func(string) error { return m.tab.ClearCart() })
	}
	return m, nil
}

func (m model) handleClick(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	for i, it := range m.items.Items() {
		if z := zone.Get("add-" + it.ID); z != nil && z.InBounds(msg) {
			m.cursor = i
			m.syncListContent()
			return m, opCmd("add", it.ID, m.tab.AddToCart)
		}
		if z := zone.Get("sub-" + it.ID); z != nil && z.InBounds(msg) {
			m.cursor = i
			m.syncListContent()
			return m, opCmd("subtract", it.ID, m.tab.SubtractFromCart)
		}
		if z := zone.Get("item-" + it.ID); z != nil && z.InBounds(msg) {
			m.cursor = i
			m.syncListContent()
			return m, nil
		}
	}
	if z := zone.Get("clear"); z != nil && z.InBounds(msg) {
		return m, opCmd("clear", "", func(string) error { return m.tab.ClearCart() })
	}
	return m, nil
}

// itemOp applies fn to the item under the cursor.
func (m model) itemOp(op string, fn func(string) error) tea.Cmd {
	if m.items.Len() == 0 {
		return nil
	}
	return opCmd(op, m.items.At(m.cursor).ID, fn)
}

func (m *model) pushTotal(total float64) {
	m.chart.Push(total)
	m.chart.Draw()
}

func (m *model) syncLayout() {
	m.listVP.Width = max(40, m.width/2-4)
	m.listVP.Height = max(8, m.height-22)
}

func (m *model) syncListContent() {
	m.listVP.SetContent(m.renderItemRows())
	m.listVP.GotoTop()
	for i := 0; i < m.cursor; i++ {
		m.listVP.LineDown(2)
	}
}

func opCmd(op, id string, fn func(string) error) tea.Cmd {
	return func() tea.Msg {
		return opResultMsg{op: op, id: id, err: fn(id)}
	}
}

func describeResult(msg opResultMsg) string {
	var stock *catalog.InsufficientStockError
	switch {
	case errors.As(msg.err, &stock):
		return fmt.Sprintf("%s is out of stock", stock.ID)
	case msg.err != nil:
		return fmt.Sprintf("%s %s failed: %v", msg.op, msg.id, msg.err)
	case msg.id == "":
		return msg.op + " ok"
	}
	return fmt.Sprintf("%s %s ok", msg.op, msg.id)
}

func (m model) fetchTabs() tea.Cmd {
	if m.settings.SlotBackend != "hub" || m.adminClient == nil {
		return nil
	}
	client := m.adminClient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		tabs, err := client.ListTabs(ctx)
		return tabsResultMsg{tabs: tabs, err: err}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}
