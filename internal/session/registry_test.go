package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecordWrites(t *testing.T) {
	r := NewRegistry()
	id := r.Register("", TabInfo{Transport: "ws"})
	require.NotEmpty(t, id)

	r.Rename(id, "tab-a")
	r.Rename(id, "")
	r.RecordWrite(id, Write{Key: "items", Origin: "origin-1", Size: 10})
	r.RecordWrite(id, Write{Key: "items", Size: 5})

	tabs := r.List()
	require.Len(t, tabs, 1)
	got := tabs[0]
	assert.Equal(t, "tab-a", got.Name)
	assert.Equal(t, "ws", got.Transport)
	assert.Equal(t, 2, got.Writes)
	assert.Equal(t, 15, got.Bytes)
	assert.Equal(t, "items", got.LastKey)
	assert.Equal(t, "origin-1", got.Origin, "a write without origin keeps the previous one")
	assert.False(t, got.LastWriteAt.IsZero())
}

func TestUnknownIDsAreIgnored(t *testing.T) {
	r := NewRegistry()
	r.Seen("ghost")
	r.RecordWrite("ghost", Write{Key: "items", Origin: "o"})
	assert.Equal(t, 0, r.Count())
	_, ok := r.ByOrigin("o")
	assert.False(t, ok)
}

func TestByOrigin(t *testing.T) {
	r := NewRegistry()
	a := r.Register("a", TabInfo{})
	r.Register("b", TabInfo{})
	r.RecordWrite(a, Write{Key: "items", Origin: "tab-x"})

	got, ok := r.ByOrigin("tab-x")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	_, ok = r.ByOrigin("")
	assert.False(t, ok)
}

func TestIdleTabs(t *testing.T) {
	r := NewRegistry()
	old := r.Register("old", TabInfo{})
	r.Register("fresh", TabInfo{})
	r.mu.Lock()
	r.tabs[old].LastSeen = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	idle := r.Idle(time.Minute)
	require.Len(t, idle, 1)
	assert.Equal(t, "old", idle[0].ID)
	assert.Equal(t, 2, r.Count(), "Idle does not remove anything")
	assert.Nil(t, r.Idle(0))

	r.Seen(old)
	assert.Empty(t, r.Idle(time.Minute))

	r.Unregister("old")
	assert.Equal(t, 1, r.Count())
}
