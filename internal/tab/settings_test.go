package tab

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/tabsync"
)

func TestOptionsFromSettings(t *testing.T) {
	opts, err := OptionsFromSettings(config.Settings{
		Key:          "cart",
		PublishDelay: 2 * time.Second,
		EchoGuard:    "value",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "cart", opts.Key)
	assert.Equal(t, 2*time.Second, opts.PublishDelay)
	assert.Equal(t, tabsync.GuardValue, opts.EchoGuard)
	assert.Empty(t, opts.Origin)

	_, err = OptionsFromSettings(config.Settings{EchoGuard: "sometimes"}, nil)
	assert.Error(t, err)
}
