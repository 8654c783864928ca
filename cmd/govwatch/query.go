package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"govwatch/internal/api"
	"govwatch/internal/config"
	"govwatch/internal/governance"
)

type queryFunc func(ctx context.Context, svc *governance.Service, proposalID uint64) (interface{}, error)

func queryCommands() []*cobra.Command {
	return []*cobra.Command{
		newQueryCommand("votes", "Print per-account votes and totals of a proposal",
			func(ctx context.Context, svc *governance.Service, id uint64) (interface{}, error) {
				return svc.VotersFor(ctx, id)
			}),
		newQueryCommand("quorum", "Print the quorum requirement of a proposal",
			func(ctx context.Context, svc *governance.Service, id uint64) (interface{}, error) {
				state, err := svc.QuorumRequired(ctx, id)
				if err != nil {
					return nil, err
				}
				votes, err := svc.VotersFor(ctx, id)
				if err != nil {
					return nil, err
				}
				return api.QuorumResponse{
					ProposalQuorumState: state,
					Totals:              votes.Totals,
					Passing:             governance.IsPassingQuorum(votes.Totals, state.QuorumVotesRequired),
				}, nil
			}),
		newQueryCommand("stage", "Print the on-chain and refined stage of a proposal",
			func(ctx context.Context, svc *governance.Service, id uint64) (interface{}, error) {
				return svc.Stage(ctx, id)
			}),
		newQueryCommand("approvals", "Print the multisig approvers of a proposal",
			func(ctx context.Context, svc *governance.Service, id uint64) (interface{}, error) {
				return svc.ApproversFor(ctx, id)
			}),
	}
}

func newQueryCommand(use, short string, fn queryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <proposal-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid proposal id %q: %w", args[0], err)
			}
			return runQuery(cmd, proposalID, fn)
		},
	}
}

func runQuery(cmd *cobra.Command, proposalID uint64, fn queryFunc) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuery(cfgFile, cmd.Flags())
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

	svc := governance.NewService(governance.ServiceConfig{
		ChainID:         rt.chainID,
		ReadConcurrency: cfg.ReadConcurrency,
	}, rt.store, rt.reader, logger)
	defer svc.Close()

	out, err := fn(ctx, svc, proposalID)
	if err != nil {
		logger.Error("query failed", zap.String("query", cmd.Name()), zap.Uint64("proposal_id", proposalID), zap.Error(err))
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
