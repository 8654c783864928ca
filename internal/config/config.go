package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Common holds the settings every command needs.
type Common struct {
	RPCURL      string
	ChainID     uint64
	Store       string
	PGDSN       string
	SQLitePath  string
	Governance  string
	MultiSig    string
	LockedGold  string
	CallTimeout time.Duration
	MaxRetries  int
	LogLevel    string
}

// SyncConfig holds configuration for the sync command.
type SyncConfig struct {
	Common
	Events         []string
	FromBlock      *uint64
	InitialStep    uint64
	MinStep        uint64
	WindowDelay    time.Duration
	MaxWindowDelay time.Duration
	Concurrency    int
	RedisAddr      string
}

// Load merges config file, environment variables, and flags into SyncConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (SyncConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return SyncConfig{}, err
	}
	return syncConfig(v)
}

func syncConfig(v *viper.Viper) (SyncConfig, error) {
	common, err := commonConfig(v)
	if err != nil {
		return SyncConfig{}, err
	}
	cfg := SyncConfig{
		Common:         common,
		Events:         getStringSlice(v, "event"),
		InitialStep:    v.GetUint64("initial-step"),
		MinStep:        v.GetUint64("min-step"),
		WindowDelay:    v.GetDuration("window-delay"),
		MaxWindowDelay: v.GetDuration("max-window-delay"),
		Concurrency:    v.GetInt("concurrency"),
		RedisAddr:      v.GetString("redis-addr"),
	}
	if v.IsSet("from") {
		from := v.GetUint64("from")
		cfg.FromBlock = &from
	}
	if len(cfg.Events) == 0 {
		return SyncConfig{}, fmt.Errorf("at least one event is required")
	}
	if cfg.MinStep > cfg.InitialStep {
		return SyncConfig{}, fmt.Errorf("min-step %d exceeds initial-step %d", cfg.MinStep, cfg.InitialStep)
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("store", StoreSQLite)
	v.SetDefault("sqlite-path", "./data/govwatch.db")
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("max-retries", 3)
	v.SetDefault("log-level", "info")
	v.SetDefault("initial-step", uint64(100_000))
	v.SetDefault("min-step", uint64(1_000))
	v.SetDefault("window-delay", 250*time.Millisecond)
	v.SetDefault("max-window-delay", 10*time.Second)
	v.SetDefault("concurrency", 4)
	v.SetDefault("read-concurrency", 8)
	v.SetDefault("listen", ":8080")
	v.SetDefault("out", "./data/events.jsonl")

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

func commonConfig(v *viper.Viper) (Common, error) {
	cfg := Common{
		RPCURL:      v.GetString("rpc"),
		ChainID:     v.GetUint64("chain-id"),
		Store:       strings.ToLower(v.GetString("store")),
		PGDSN:       v.GetString("pg-dsn"),
		SQLitePath:  v.GetString("sqlite-path"),
		Governance:  v.GetString("governance"),
		MultiSig:    v.GetString("multisig"),
		LockedGold:  v.GetString("locked-gold"),
		CallTimeout: v.GetDuration("call-timeout"),
		MaxRetries:  v.GetInt("max-retries"),
		LogLevel:    v.GetString("log-level"),
	}

	switch cfg.Store {
	case StorePostgres:
		if cfg.PGDSN == "" {
			return Common{}, fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case StoreSQLite:
	default:
		return Common{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.RPCURL == "" {
		return Common{}, fmt.Errorf("rpc is required")
	}
	if cfg.Governance == "" {
		return Common{}, fmt.Errorf("governance address is required")
	}
	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return splitAndClean(strings.Join(typed, ","))
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
