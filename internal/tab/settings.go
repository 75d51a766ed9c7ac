package tab

import (
	"go.uber.org/zap"

	"github.com/adityalohuni/tabcart/internal/config"
	"github.com/adityalohuni/tabcart/internal/tabsync"
)

// OptionsFromSettings maps the store and sync sections of a config onto tab
// options. The origin is left empty so every tab gets its own.
func OptionsFromSettings(s config.Settings, logger *zap.Logger) (Options, error) {
	guard, err := tabsync.ParseGuard(s.EchoGuard)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Key:          s.Key,
		PublishDelay: s.PublishDelay,
		EchoGuard:    guard,
		Logger:       logger,
	}, nil
}
