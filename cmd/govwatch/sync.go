package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"govwatch/internal/config"
	"govwatch/internal/indexer"
	"govwatch/internal/notify"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg.Common, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	notifier, err := newNotifier(ctx, cfg.RedisAddr, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	job := newSyncJob(cfg, rt, notifier, indexer.NewMetrics(prometheus.NewRegistry()), logger)
	_, err = job.Run(ctx)
	return err
}

func newNotifier(ctx context.Context, addr string, logger *zap.Logger) (notify.Notifier, error) {
	if addr == "" {
		return notify.Nop{}, nil
	}
	n, err := notify.NewRedisNotifier(ctx, addr, logger)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// syncJob runs the configured event kinds once per call.
type syncJob struct {
	cfg      config.SyncConfig
	rt       *runtime
	fetcher  *indexer.Fetcher
	notifier notify.Notifier
	logger   *zap.Logger
}

func newSyncJob(cfg config.SyncConfig, rt *runtime, notifier notify.Notifier, metrics *indexer.Metrics, logger *zap.Logger) *syncJob {
	fetcher := indexer.NewFetcher(indexer.FetcherConfig{
		ChainID:   rt.chainID,
		Addresses: rt.reader.Addresses(),
		Policy: indexer.StepPolicy{
			InitialStep: cfg.InitialStep,
			MinStep:     cfg.MinStep,
			BaseDelay:   cfg.WindowDelay,
			MaxDelay:    cfg.MaxWindowDelay,
		},
	}, rt.client, rt.store, logger, indexer.WithMetrics(metrics))

	return &syncJob{cfg: cfg, rt: rt, fetcher: fetcher, notifier: notifier, logger: logger}
}

// Run syncs every configured event kind and returns the ids observed per kind.
// An explicit start block only applies to the first run.
func (j *syncJob) Run(ctx context.Context) (map[string][]uint64, error) {
	marks, err := j.rt.store.Watermarks(ctx, j.rt.chainID)
	if err != nil {
		return nil, fmt.Errorf("load watermarks: %w", err)
	}

	names := indexer.ExpandEventNames(j.cfg.Events)
	reqs := make([]indexer.SyncRequest, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, indexer.SyncRequest{
			EventName:  name,
			FromBlock:  j.cfg.FromBlock,
			Watermarks: marks,
		})
	}
	j.cfg.FromBlock = nil

	j.logger.Info("sync start",
		zap.Uint64("chain_id", j.rt.chainID),
		zap.Strings("events", names),
		zap.Int("concurrency", j.cfg.Concurrency),
	)

	results, err := indexer.SyncAll(ctx, j.fetcher, reqs, j.cfg.Concurrency)
	for _, res := range results {
		if res.EventName == "" {
			continue
		}
		j.logger.Info("sync done",
			zap.String("event", string(res.EventName)),
			zap.Uint64("from", res.FromBlock),
			zap.Uint64("head", res.Head),
			zap.Int("windows", res.Windows),
			zap.Int("inserted", res.Inserted),
			zap.Int("ids", len(res.IDs)),
		)
		j.notifier.SyncCompleted(ctx, notify.SyncNotification{
			ChainID: j.rt.chainID,
			Event:   string(res.EventName),
			IDs:     res.IDs,
			Head:    res.Head,
		})
	}

	ids := indexer.MergeIDs(results)
	if err != nil {
		return ids, fmt.Errorf("sync: %w", err)
	}
	return ids, nil
}
