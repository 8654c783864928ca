package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"govwatch/internal/chain"
	"govwatch/internal/contracts"
	"govwatch/internal/model"
	"govwatch/internal/storage"
)

// ErrSyncAborted is returned when a run gives up because the window step
// fell below the minimum. It wraps the last transient error.
var ErrSyncAborted = errors.New("sync aborted")

// LogSource is the part of the chain client the fetcher needs.
type LogSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, address common.Address, topic0 common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)
}

// FetcherConfig holds runtime settings for the fetcher.
type FetcherConfig struct {
	ChainID   uint64
	Addresses contracts.Addresses
	Policy    StepPolicy
}

// SyncRequest asks for one event kind to be synced. A nil FromBlock resumes
// after the watermark. Watermarks optionally seeds the starting state; keys
// missing from it are read from the store.
type SyncRequest struct {
	EventName  string
	FromBlock  *uint64
	Watermarks model.Watermarks
}

// SyncResult summarizes a run.
type SyncResult struct {
	EventName contracts.EventName
	// IDs are the distinct proposal or multisig transaction ids seen, ascending.
	IDs        []uint64
	Inserted   int
	Windows    int
	FromBlock  uint64
	Head       uint64
	Watermarks model.Watermarks
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMetrics records sync progress on m.
func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// WithSleep replaces the inter-window sleep.
func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithTransientClassifier replaces chain.IsTransient.
func WithTransientClassifier(fn func(error) bool) Option {
	return func(f *Fetcher) { f.isTransient = fn }
}

// Fetcher pulls event logs window by window and writes them to the store.
type Fetcher struct {
	cfg         FetcherConfig
	source      LogSource
	store       storage.Store
	logger      *zap.Logger
	metrics     *Metrics
	sleep       SleepFunc
	isTransient func(error) bool
}

// NewFetcher builds a Fetcher with its dependencies.
func NewFetcher(cfg FetcherConfig, source LogSource, store storage.Store, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Policy = cfg.Policy.withDefaults()
	f := &Fetcher{
		cfg:         cfg,
		source:      source,
		store:       store,
		logger:      logger,
		sleep:       sleepContext,
		isTransient: chain.IsTransient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ChainID returns the chain the fetcher writes events for.
func (f *Fetcher) ChainID() uint64 {
	return f.cfg.ChainID
}

// Sync fetches logs for one event kind from the start position up to the
// chain head observed when the run starts.
func (f *Fetcher) Sync(ctx context.Context, req SyncRequest) (SyncResult, error) {
	if f.source == nil {
		return SyncResult{}, fmt.Errorf("log source is nil")
	}
	if f.store == nil {
		return SyncResult{}, fmt.Errorf("store is nil")
	}

	name, ok := contracts.ParseEventName(req.EventName)
	if !ok {
		f.logger.Warn("skip unknown event", zap.String("event", req.EventName), zap.Uint64("chain_id", f.cfg.ChainID))
		return SyncResult{}, nil
	}
	address := f.cfg.Addresses.Of(name.Contract())
	if address == (common.Address{}) {
		return SyncResult{}, fmt.Errorf("no address configured for %s", name.Contract())
	}
	topic0, err := name.Topic0()
	if err != nil {
		return SyncResult{}, err
	}

	key := model.WatermarkKey{ChainID: f.cfg.ChainID, EventName: string(name)}
	marks := make(model.Watermarks, len(req.Watermarks)+1)
	for k, v := range req.Watermarks {
		marks[k] = v
	}
	if _, ok := marks[key]; !ok {
		stored, found, err := f.store.GetWatermark(ctx, key)
		if err != nil {
			return SyncResult{}, fmt.Errorf("load watermark %s: %w", key, err)
		}
		if found {
			marks[key] = stored
		}
	}

	var cursor uint64
	switch {
	case req.FromBlock != nil:
		cursor = *req.FromBlock
	default:
		if mark, ok := marks[key]; ok {
			cursor = mark + 1
		}
	}

	labels := []string{strconv.FormatUint(f.cfg.ChainID, 10), string(name)}
	logger := f.logger.With(zap.String("event", string(name)), zap.Uint64("chain_id", f.cfg.ChainID))

	head, err := f.latestBlock(ctx, labels, logger)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{EventName: name, FromBlock: cursor, Head: head, Watermarks: marks}

	if cursor > head {
		logger.Info("nothing to sync", zap.Uint64("from", cursor), zap.Uint64("head", head))
		return result, nil
	}

	ids := make(map[uint64]struct{})
	step := f.cfg.Policy.InitialStep
	failures := 0

	for {
		window, ok := Window(cursor, step, head)
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			result.IDs = sortedIDs(ids)
			return result, err
		}

		logs, err := f.source.FilterLogs(ctx, address, topic0, window.From, window.To)
		if err != nil {
			if !f.isTransient(err) {
				result.IDs = sortedIDs(ids)
				return result, fmt.Errorf("filter logs %s [%d,%d]: %w", name, window.From, window.To, err)
			}
			failures++
			f.metrics.windowFailed(labels)

			next, ok := f.cfg.Policy.Next(step, failures)
			if !ok {
				f.metrics.aborted(labels)
				logger.Error("sync aborted",
					zap.Uint64("cursor", cursor),
					zap.Uint64("step", step),
					zap.Int("failures", failures),
					zap.Error(err),
				)
				result.IDs = sortedIDs(ids)
				return result, fmt.Errorf("%w: %s at block %d with step %d: %w", ErrSyncAborted, name, cursor, step, err)
			}

			logger.Warn("window failed, halving step",
				zap.Uint64("from", window.From),
				zap.Uint64("to", window.To),
				zap.Uint64("step", step),
				zap.Uint64("next_step", next),
				zap.Error(err),
			)
			f.metrics.stepHalved(labels)
			step = next
			if err := f.sleep(ctx, f.cfg.Policy.Delay(failures)); err != nil {
				result.IDs = sortedIDs(ids)
				return result, err
			}
			continue
		}

		events := decodeLogs(f.cfg.ChainID, name, logs, logger)
		inserted, err := f.store.UpsertEvents(ctx, events)
		if err != nil {
			result.IDs = sortedIDs(ids)
			return result, fmt.Errorf("store events %s [%d,%d]: %w", name, window.From, window.To, err)
		}
		for _, event := range events {
			if id, ok := subjectID(name, event); ok {
				ids[id] = struct{}{}
			}
		}

		if marks.Advance(key, window.To) {
			if err := f.store.SetWatermark(ctx, key, window.To); err != nil {
				result.IDs = sortedIDs(ids)
				return result, fmt.Errorf("save watermark %s: %w", key, err)
			}
			f.metrics.watermarkSet(labels, window.To)
		}

		result.Inserted += inserted
		result.Windows++
		f.metrics.windowFetched(labels, inserted)

		logger.Info("window complete",
			zap.Uint64("from", window.From),
			zap.Uint64("to", window.To),
			zap.Int("logs", len(logs)),
			zap.Int("inserted", inserted),
		)

		if window.To >= head {
			break
		}
		cursor = window.To + 1
		if err := f.sleep(ctx, f.cfg.Policy.Delay(failures)); err != nil {
			result.IDs = sortedIDs(ids)
			return result, err
		}
	}

	result.IDs = sortedIDs(ids)
	logger.Info("sync complete",
		zap.Uint64("head", head),
		zap.Int("windows", result.Windows),
		zap.Int("inserted", result.Inserted),
		zap.Int("ids", len(result.IDs)),
	)
	return result, nil
}

// latestBlock reads the chain head. Transient failures are retried with the
// policy's delays, up to StepPolicy.Retries times.
func (f *Fetcher) latestBlock(ctx context.Context, labels []string, logger *zap.Logger) (uint64, error) {
	limit := f.cfg.Policy.Retries()
	for failures := 0; ; failures++ {
		head, err := f.source.LatestBlockNumber(ctx)
		if err == nil {
			return head, nil
		}
		if !f.isTransient(err) {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		if failures >= limit {
			f.metrics.aborted(labels)
			logger.Error("sync aborted reading head", zap.Int("attempts", failures+1), zap.Error(err))
			return 0, fmt.Errorf("%w: latest block after %d attempts: %w", ErrSyncAborted, failures+1, err)
		}
		logger.Warn("latest block failed, retrying", zap.Int("attempt", failures+1), zap.Error(err))
		if err := f.sleep(ctx, f.cfg.Policy.Delay(failures+1)); err != nil {
			return 0, err
		}
	}
}

func sortedIDs(set map[uint64]struct{}) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
