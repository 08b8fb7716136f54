package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"firestige.xyz/tanalyzer/internal/log"
)

// Watch loads path and reloads it on every change, passing each valid
// configuration to onChange. An invalid edit is logged and skipped so the
// last good configuration stays in effect.
func Watch(path string, onChange func(*Config)) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("watch requires a config file")
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			log.GetLogger().WithError(err).WithField("file", e.Name).Warn("config reload rejected")
			return
		}
		log.GetLogger().WithField("file", e.Name).Info("config reloaded")
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}
