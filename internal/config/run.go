package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	Scenario  string
	Out       string
	StateFile string
	PGDSN     string
	StateName string
	Start     string
	LogLevel  string
}

// LoadRun merges config file, environment variables, and flags into RunConfig.
func LoadRun(cfgFile string, flags *pflag.FlagSet) (RunConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"state-name": "scenario",
		"log-level":  "info",
	})
	if err != nil {
		return RunConfig{}, err
	}

	cfg := RunConfig{
		Scenario:  v.GetString("scenario"),
		Out:       v.GetString("out"),
		StateFile: v.GetString("state-file"),
		PGDSN:     v.GetString("pg-dsn"),
		StateName: v.GetString("state-name"),
		Start:     v.GetString("start"),
		LogLevel:  v.GetString("log-level"),
	}
	if cfg.Scenario == "" {
		return RunConfig{}, fmt.Errorf("scenario path is required")
	}
	return cfg, nil
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (int64, bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, false, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return 0, false, err
		}
		return val, true, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, false, err
	}
	return tm.Unix(), true, nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
