package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"govwatch/internal/chain"
	"govwatch/internal/config"
	"govwatch/internal/contracts"
	"govwatch/internal/indexer"
	"govwatch/internal/storage"
	"govwatch/internal/storage/postgres"
	"govwatch/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "govwatch",
		Short:        "Governance event indexer and derivation engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync governance event logs into the store",
		RunE:  runSync,
	}
	addCommonFlags(syncCmd.Flags())
	addSyncFlags(syncCmd.Flags())
	root.AddCommand(syncCmd)

	for _, q := range queryCommands() {
		addCommonFlags(q.Flags())
		q.Flags().Int("read-concurrency", 8, "parallel contract reads per derivation")
		root.AddCommand(q)
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored events to JSONL",
		RunE:  runExport,
	}
	addCommonFlags(exportCmd.Flags())
	exportCmd.Flags().StringSlice("event", nil, "event kinds or contract names (comma-separated)")
	exportCmd.Flags().Uint64("from", 0, "first block (inclusive)")
	exportCmd.Flags().Uint64("to", 0, "last block (inclusive)")
	exportCmd.Flags().Uint64("proposal", 0, "only events of this proposal id")
	exportCmd.Flags().String("out", "./data/events.jsonl", "output JSONL path, - for stdout")
	exportCmd.Flags().Bool("append", false, "append to the output instead of replacing it")
	root.AddCommand(exportCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API and optionally sync on a schedule",
		RunE:  runServe,
	}
	addCommonFlags(serveCmd.Flags())
	addSyncFlags(serveCmd.Flags())
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("schedule", "", "cron expression for periodic sync (empty disables)")
	serveCmd.Flags().Int("read-concurrency", 8, "parallel contract reads per derivation")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Celo RPC URL")
	flags.Uint64("chain-id", 0, "chain id, 0 asks the RPC")
	flags.String("store", config.StoreSQLite, "event store (postgres, sqlite)")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("sqlite-path", "./data/govwatch.db", "SQLite database path")
	flags.String("governance", "", "Governance contract address")
	flags.String("multisig", "", "approver multisig address, empty reads Governance.approver()")
	flags.String("locked-gold", "", "LockedGold contract address")
	flags.Duration("call-timeout", 30*time.Second, "timeout per RPC call")
	flags.Int("max-retries", 3, "retries for transient contract read failures")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func addSyncFlags(flags *pflag.FlagSet) {
	flags.StringSlice("event", nil, "event kinds or contract names (comma-separated)")
	flags.Uint64("from", 0, "start block, overrides the stored watermark")
	flags.Uint64("initial-step", 100_000, "blocks per window")
	flags.Uint64("min-step", 1_000, "smallest window before the sync aborts")
	flags.Duration("window-delay", 250*time.Millisecond, "base delay between windows")
	flags.Duration("max-window-delay", 10*time.Second, "delay cap between windows")
	flags.Int("concurrency", 4, "event kinds synced in parallel")
	flags.String("redis-addr", "", "redis address for sync notifications (empty disables)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// runtime holds the shared connections of a command.
type runtime struct {
	chainID uint64
	client  *chain.Client
	reader  *contracts.Reader
	store   storage.Store
}

func (r *runtime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
	if r.client != nil {
		r.client.Close()
	}
}

func openRuntime(ctx context.Context, cfg config.Common, logger *zap.Logger) (*runtime, error) {
	client, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		CallTimeout: cfg.CallTimeout,
		MaxRetries:  cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	rt := &runtime{client: client, chainID: cfg.ChainID}

	if rt.chainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		rt.chainID = id.Uint64()
	}

	addrs, err := resolveAddresses(ctx, cfg, client)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.reader = contracts.NewReader(client, addrs)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store = store

	logger.Info("runtime ready",
		zap.Uint64("chain_id", rt.chainID),
		zap.String("store", cfg.Store),
		zap.String("governance", addrs.Governance.Hex()),
		zap.String("multisig", addrs.MultiSig.Hex()),
		zap.String("locked_gold", addrs.LockedGold.Hex()),
	)
	return rt, nil
}

func resolveAddresses(ctx context.Context, cfg config.Common, client *chain.Client) (contracts.Addresses, error) {
	var addrs contracts.Addresses
	var err error
	if addrs.Governance, err = indexer.ParseAddress(cfg.Governance); err != nil {
		return contracts.Addresses{}, fmt.Errorf("governance: %w", err)
	}
	if addrs.MultiSig, err = indexer.ParseAddress(cfg.MultiSig); err != nil {
		return contracts.Addresses{}, fmt.Errorf("multisig: %w", err)
	}
	if addrs.LockedGold, err = indexer.ParseAddress(cfg.LockedGold); err != nil {
		return contracts.Addresses{}, fmt.Errorf("locked-gold: %w", err)
	}

	if addrs.MultiSig == (common.Address{}) {
		approver, err := contracts.NewReader(client, addrs).Approver(ctx, nil)
		if err != nil {
			return contracts.Addresses{}, fmt.Errorf("resolve approver multisig: %w", err)
		}
		addrs.MultiSig = approver
	}
	return addrs, nil
}

func openStore(ctx context.Context, cfg config.Common, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.New(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	}
}
