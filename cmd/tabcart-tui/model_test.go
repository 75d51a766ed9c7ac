package main

import (
	"context"
	"os"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/tabcart/internal/catalog"
	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/slot"
	"github.com/adityalohuni/tabcart/internal/tab"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	code := m.Run()
	zone.Close()
	os.Exit(code)
}

func newTestModel(t *testing.T, items ...catalog.Item) (model, *tab.Tab, *feed) {
	t.Helper()
	hub := slot.NewHub(slot.HubOptions{})
	t.Cleanup(hub.Close)
	view := hub.Open()
	t.Cleanup(func() { _ = view.Close() })

	tb := tab.New(view, tab.Options{})
	require.NoError(t, tb.Open(context.Background()))
	t.Cleanup(tb.Close)
	for _, it := range items {
		require.NoError(t, tb.AddItem(it))
	}

	f := newFeed()
	unsub, err := tb.SubscribeItems(func(catalog.Snapshot) { f.poke() })
	require.NoError(t, err)
	t.Cleanup(unsub)

	m := newModel(tb, f, nil, config.Settings{SlotBackend: "memory", TUIRefreshInterval: time.Second})
	return m, tb, f
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestAddKeyMovesUnitIntoCart(t *testing.T) {
	m, tb, f := newTestModel(t,
		catalog.Item{ID: "a", Name: "Apple", Price: 2, AmountInStock: 3},
		catalog.Item{ID: "b", Name: "Bread", Price: 5, AmountInStock: 1},
	)

	next, _ := m.Update(key('j'))
	m = next.(model)
	assert.Equal(t, 1, m.cursor)

	_, cmd := m.Update(key('+'))
	require.NotNil(t, cmd)
	res, ok := cmd().(opResultMsg)
	require.True(t, ok)
	require.NoError(t, res.err)
	assert.Equal(t, "b", res.id)

	next, _ = m.Update(f.next(tb)())
	m = next.(model)
	assert.Equal(t, 1, m.cart.CartSize)
	assert.InDelta(t, 5.0, m.cart.TotalPrice, 1e-9)
	assert.Contains(t, m.View(), "Bread")
}

func TestOutOfStockShowsStatus(t *testing.T) {
	m, _, _ := newTestModel(t, catalog.Item{ID: "gone", Name: "Gone", AmountInStock: 0})

	_, cmd := m.Update(key('a'))
	require.NotNil(t, cmd)
	next, _ := m.Update(cmd())
	assert.Equal(t, "gone is out of stock", next.(model).status)
}

func TestClearKey(t *testing.T) {
	m, tb, _ := newTestModel(t, catalog.Item{ID: "a", Price: 1, AmountInStock: 2, AmountInCart: 2})

	_, cmd := m.Update(key('x'))
	require.NotNil(t, cmd)
	res := cmd().(opResultMsg)
	require.NoError(t, res.err)
	assert.Equal(t, 0, tb.CartInfo().CartSize)
	assert.Equal(t, "clear ok", describeResult(res))
}

func TestItemKeysOnEmptyCatalog(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := m.Update(key('+'))
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "catalog is empty")
}

func TestSettingsModeEditsForm(t *testing.T) {
	m, _, _ := newTestModel(t)
	next, _ := m.Update(key('c'))
	m = next.(model)
	require.Equal(t, settingsMode, m.mode)

	next, _ = m.Update(key('e'))
	m = next.(model)
	require.True(t, m.editingSetting)
	m.editor.SetValue("hub")
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	assert.False(t, m.editingSetting)
	assert.Equal(t, "hub", m.form.SlotBackend)
}

func TestFormToSettings(t *testing.T) {
	base := config.Settings{SlotBackend: "sqlite"}
	form := settingsForm{
		SlotBackend:     "file",
		SlotPath:        " /tmp/slots ",
		PublishDelay:    "1.5s",
		EchoGuard:       "value",
		RefreshInterval: "2s",
	}
	next, err := formToSettings(base, form)
	require.NoError(t, err)
	assert.Equal(t, "file", next.SlotBackend)
	assert.Equal(t, "/tmp/slots", next.SlotPath)
	assert.Equal(t, 1500*time.Millisecond, next.PublishDelay)
	assert.Equal(t, 2*time.Second, next.TUIRefreshInterval)

	bad := form
	bad.SlotBackend = "redis"
	_, err = formToSettings(base, bad)
	assert.Error(t, err)

	bad = form
	bad.PublishDelay = "-1s"
	_, err = formToSettings(base, bad)
	assert.Error(t, err)

	bad = form
	bad.EchoGuard = "never"
	_, err = formToSettings(base, bad)
	assert.Error(t, err)
}
