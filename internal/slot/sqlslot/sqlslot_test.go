package sqlslot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/tabcart/internal/slot"
)

func openPair(t *testing.T) (*Slot, *Slot) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile", "slot.db")
	a, err := Open(path, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	b, err := Open(path, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return a, b
}

type changeLog struct {
	mu      sync.Mutex
	changes []slot.Change
}

func (l *changeLog) add(c slot.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) all() []slot.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]slot.Change(nil), l.changes...)
}

func TestGetMissingKey(t *testing.T) {
	a, _ := openPair(t)
	_, ok, err := a.Get(context.Background(), "items")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteIsVisibleAndNotifiesOtherConnection(t *testing.T) {
	a, b := openPair(t)
	var seenA, seenB changeLog
	a.OnChange(seenA.add)
	b.OnChange(seenB.add)

	ctx := context.Background()
	require.NoError(t, a.Set(ctx, "items", []byte(`{"items":[]}`)))

	val, ok, err := b.Get(ctx, "items")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"items":[]}`, string(val))

	require.Eventually(t, func() bool { return len(seenB.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	c := seenB.all()[0]
	assert.Equal(t, "items", c.Key)
	assert.Nil(t, c.OldValue)
	assert.Equal(t, `{"items":[]}`, string(c.NewValue))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, seenA.all(), "own writes are not reported back")
}

func TestSecondWriteCarriesOldValue(t *testing.T) {
	a, b := openPair(t)
	var seen changeLog
	b.OnChange(seen.add)
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", []byte("one")))
	require.Eventually(t, func() bool { return len(seen.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Set(ctx, "k", []byte("two")))
	require.Eventually(t, func() bool { return len(seen.all()) == 2 }, 2*time.Second, 10*time.Millisecond)

	last := seen.all()[1]
	assert.Equal(t, "one", string(last.OldValue))
	assert.Equal(t, "two", string(last.NewValue))
}

func TestOpenFailsOnUnusablePath(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, slot.ErrUnavailable)
}
