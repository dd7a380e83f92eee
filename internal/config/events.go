package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// EventsConfig holds configuration for the events command.
type EventsConfig struct {
	In       string
	Pool     string
	LogLevel string
}

// LoadEvents merges config file, environment variables, and flags into EventsConfig.
func LoadEvents(cfgFile string, flags *pflag.FlagSet) (EventsConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level": "info",
	})
	if err != nil {
		return EventsConfig{}, err
	}

	cfg := EventsConfig{
		In:       v.GetString("in"),
		Pool:     v.GetString("pool"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.In == "" {
		return EventsConfig{}, fmt.Errorf("input path is required")
	}
	return cfg, nil
}
