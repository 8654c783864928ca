package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// QueryConfig holds configuration for the votes, quorum, stage and approvals commands.
type QueryConfig struct {
	Common
	ReadConcurrency int
}

// LoadQuery merges config file, environment variables, and flags into QueryConfig.
func LoadQuery(cfgFile string, flags *pflag.FlagSet) (QueryConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return QueryConfig{}, err
	}
	common, err := commonConfig(v)
	if err != nil {
		return QueryConfig{}, err
	}
	return QueryConfig{Common: common, ReadConcurrency: v.GetInt("read-concurrency")}, nil
}

// ExportConfig holds configuration for the export command.
type ExportConfig struct {
	Common
	Events     []string
	Out        string
	Append     bool
	FromBlock  *uint64
	ToBlock    *uint64
	ProposalID *uint64
}

// LoadExport merges config file, environment variables, and flags into ExportConfig.
func LoadExport(cfgFile string, flags *pflag.FlagSet) (ExportConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return ExportConfig{}, err
	}
	common, err := commonConfig(v)
	if err != nil {
		return ExportConfig{}, err
	}
	cfg := ExportConfig{
		Common: common,
		Events: getStringSlice(v, "event"),
		Out:    v.GetString("out"),
		Append: v.GetBool("append"),
	}
	if cfg.Out == "" {
		return ExportConfig{}, fmt.Errorf("out is required")
	}
	if v.IsSet("from") {
		from := v.GetUint64("from")
		cfg.FromBlock = &from
	}
	if v.IsSet("to") {
		to := v.GetUint64("to")
		cfg.ToBlock = &to
	}
	if v.IsSet("proposal") {
		id := v.GetUint64("proposal")
		cfg.ProposalID = &id
	}
	return cfg, nil
}
