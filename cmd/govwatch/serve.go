package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"govwatch/internal/api"
	"govwatch/internal/config"
	"govwatch/internal/contracts"
	"govwatch/internal/governance"
	"govwatch/internal/indexer"
	"govwatch/internal/notify"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
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

	reg := prometheus.NewRegistry()

	// Tallies are cached only when something invalidates them.
	svc := governance.NewService(governance.ServiceConfig{
		ChainID:         rt.chainID,
		ReadConcurrency: cfg.ReadConcurrency,
		NoVoteCache:     cfg.Schedule == "" && cfg.RedisAddr == "",
	}, rt.store, rt.reader, logger)
	defer svc.Close()

	if cfg.Schedule == "" && cfg.RedisAddr != "" {
		listener, err := notify.NewRedisListener(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return err
		}
		defer listener.Close()

		listenCtx, cancelListen := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = listener.Run(listenCtx, rt.chainID, invalidateOnSync(svc, logger))
		}()
		defer func() {
			cancelListen()
			<-done
		}()
	}

	if cfg.Schedule != "" {
		notifier, err := newNotifier(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return err
		}
		defer notifier.Close()

		job := newSyncJob(cfg.SyncConfig, rt, notifier, indexer.NewMetrics(reg), logger)
		scheduler, err := scheduleSync(ctx, cfg.Schedule, job, svc, logger)
		if err != nil {
			return err
		}
		defer func() {
			<-scheduler.Stop().Done()
		}()
	}

	server := api.NewServer(svc, rt.store, reg, logger)
	return server.ListenAndServe(ctx, cfg.Listen)
}

// scheduleSync runs job on the cron schedule. Overlapping runs are skipped and the
// proposals seen by a run are dropped from the derivation cache.
func scheduleSync(ctx context.Context, schedule string, job *syncJob, svc invalidator, logger *zap.Logger) (*cron.Cron, error) {
	cl := cronLogger{logger.Sugar()}
	scheduler := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	_, err := scheduler.AddFunc(schedule, func() {
		ids, err := job.Run(ctx)
		svc.Invalidate(proposalIDs(ids))
		if err != nil {
			logger.Error("scheduled sync failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	logger.Info("sync scheduled", zap.String("schedule", schedule))
	return scheduler, nil
}

type invalidator interface {
	Invalidate(ids []uint64)
}

// invalidateOnSync drops cached tallies for proposals announced by a sync
// running in another process.
func invalidateOnSync(svc invalidator, logger *zap.Logger) func(notify.SyncNotification) {
	return func(n notify.SyncNotification) {
		ids := proposalIDs(map[string][]uint64{n.Event: n.IDs})
		if len(ids) == 0 {
			return
		}
		svc.Invalidate(ids)
		logger.Debug("invalidated tallies", zap.String("event", n.Event), zap.Int("proposals", len(ids)))
	}
}

// proposalIDs keeps the ids of Governance events; multisig events carry
// transaction ids.
func proposalIDs(byEvent map[string][]uint64) []uint64 {
	var out []uint64
	for event, ids := range byEvent {
		name, ok := contracts.ParseEventName(event)
		if !ok || name.Contract() != contracts.Governance {
			continue
		}
		out = append(out, ids...)
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
