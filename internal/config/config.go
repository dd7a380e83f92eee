package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	Listen          string
	Asset           string
	Pool            string
	Owner           string
	Rate            string
	Mint            []string
	RPCURL          string
	Token           string
	PrivateKey      string
	PGDSN           string
	StateFile       string
	StateName       string
	EventsOut       string
	GaugeSchedule   string
	MaxRetries      int
	RetryBackoff    time.Duration
	ReceiptTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"listen":           ":8080",
		"asset":            "memory",
		"rate":             "0",
		"state-name":       "ledger",
		"gauge-schedule":   "@every 15s",
		"max-retries":      5,
		"retry-backoff":    500 * time.Millisecond,
		"receipt-timeout":  2 * time.Minute,
		"shutdown-timeout": 10 * time.Second,
		"log-level":        "info",
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:          v.GetString("listen"),
		Asset:           v.GetString("asset"),
		Pool:            v.GetString("pool"),
		Owner:           v.GetString("owner"),
		Rate:            v.GetString("rate"),
		Mint:            getStringSlice(v, "mint"),
		RPCURL:          v.GetString("rpc"),
		Token:           v.GetString("token"),
		PrivateKey:      v.GetString("private-key"),
		PGDSN:           v.GetString("pg-dsn"),
		StateFile:       v.GetString("state-file"),
		StateName:       v.GetString("state-name"),
		EventsOut:       v.GetString("events-out"),
		GaugeSchedule:   v.GetString("gauge-schedule"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		ReceiptTimeout:  v.GetDuration("receipt-timeout"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		LogLevel:        v.GetString("log-level"),
	}

	switch cfg.Asset {
	case "memory":
	case "erc20":
		if cfg.RPCURL == "" || cfg.Token == "" || cfg.PrivateKey == "" {
			return ServeConfig{}, fmt.Errorf("erc20 asset requires rpc, token and private-key")
		}
	default:
		return ServeConfig{}, fmt.Errorf("unknown asset %q (memory, erc20)", cfg.Asset)
	}

	return cfg, nil
}

// newViper layers defaults, environment (LEDGER_*), an optional config file
// and flags, in increasing precedence.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
