package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the serve command.
type ServeConfig struct {
	SyncConfig
	Listen          string
	Schedule        string
	ReadConcurrency int
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
// Events are only required when a sync schedule is set. redis-addr is read
// either way; without a schedule it feeds cache invalidation from an
// external sync process.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Listen:          v.GetString("listen"),
		Schedule:        v.GetString("schedule"),
		ReadConcurrency: v.GetInt("read-concurrency"),
	}
	if cfg.Schedule == "" {
		common, err := commonConfig(v)
		if err != nil {
			return ServeConfig{}, err
		}
		cfg.Common = common
		cfg.RedisAddr = v.GetString("redis-addr")
		return cfg, nil
	}

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return ServeConfig{}, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	syncCfg, err := syncConfig(v)
	if err != nil {
		return ServeConfig{}, err
	}
	cfg.SyncConfig = syncCfg
	return cfg, nil
}
