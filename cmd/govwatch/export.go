package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"govwatch/internal/config"
	"govwatch/internal/contracts"
	"govwatch/internal/indexer"
	"govwatch/internal/storage"
)

func runExport(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadExport(cfgFile, cmd.Flags())
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

	filter := exportFilter(cfg, rt.chainID)
	events, err := rt.store.QueryEvents(ctx, filter)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}

	if err := storage.NewJsonlWriter(cfg.Out, cfg.Append).WriteEvents(events); err != nil {
		return err
	}

	logger.Info("export done",
		zap.Uint64("chain_id", rt.chainID),
		zap.Strings("events", filter.EventNames),
		zap.Int("rows", len(events)),
		zap.String("out", cfg.Out),
	)
	return nil
}

func exportFilter(cfg config.ExportConfig, chainID uint64) storage.EventFilter {
	filter := storage.EventFilter{
		ChainID:    chainID,
		EventNames: indexer.ExpandEventNames(cfg.Events),
		FromBlock:  cfg.FromBlock,
		ToBlock:    cfg.ToBlock,
	}
	if cfg.ProposalID != nil {
		filter.Topics = map[int]string{1: contracts.UintTopic(*cfg.ProposalID).Hex()}
	}
	return filter
}
