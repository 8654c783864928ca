package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
	"govwatch/internal/storage"
	"govwatch/internal/storage/sqlite"
)

const testChainID = 42220

var (
	testGovernance = common.HexToAddress("0xD533Ca259b330c7A88f74E000a3FaEa2d63B7972")
	testMultiSig   = common.HexToAddress("0x41822d8A191fcfB1cfcA5F7048818aCd8eE933d3")
)

type fakeSource struct {
	mu       sync.Mutex
	head     uint64
	headErrs []error
	headHits int
	logs    []types.Log
	failFor func(call int, r BlockRange) error
	windows []BlockRange
}

func (f *fakeSource) LatestBlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headHits++
	if len(f.headErrs) > 0 {
		err := f.headErrs[0]
		f.headErrs = f.headErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	return f.head, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, address common.Address, topic0 common.Hash, from, to uint64) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := BlockRange{From: from, To: to}
	f.windows = append(f.windows, r)
	if f.failFor != nil {
		if err := f.failFor(len(f.windows), r); err != nil {
			return nil, err
		}
	}
	var out []types.Log
	for _, log := range f.logs {
		if log.Address != address || len(log.Topics) == 0 || log.Topics[0] != topic0 {
			continue
		}
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func votedV2Log(t *testing.T, block uint64, tx byte, proposalID uint64, account common.Address, yes int64) types.Log {
	t.Helper()
	event, err := contracts.ProposalVotedV2.Event()
	if err != nil {
		t.Fatalf("event: %v", err)
	}
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(yes), big.NewInt(0), big.NewInt(0))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return types.Log{
		Address:     testGovernance,
		Topics:      []common.Hash{event.ID, contracts.UintTopic(proposalID), common.BytesToHash(account.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		BlockHash:   common.BytesToHash([]byte{0xbb, tx}),
	}
}

func newTestFetcher(t *testing.T, source LogSource, policy StepPolicy) (*Fetcher, storage.Store, *sleepRecorder) {
	t.Helper()
	store, err := sqlite.New("", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rec := &sleepRecorder{}
	fetcher := NewFetcher(FetcherConfig{
		ChainID:   testChainID,
		Addresses: contracts.Addresses{Governance: testGovernance, MultiSig: testMultiSig},
		Policy:    policy,
	}, source, store, nil, WithSleep(rec.sleep))
	return fetcher, store, rec
}

func TestSyncResumesFromWatermark(t *testing.T) {
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")
	source := &fakeSource{
		head: 250_000,
		logs: []types.Log{
			votedV2Log(t, 10, 1, 137, alice, 5),
			votedV2Log(t, 150_000, 2, 138, bob, 7),
			votedV2Log(t, 249_999, 3, 137, bob, 1),
		},
	}
	fetcher, store, _ := newTestFetcher(t, source, StepPolicy{InitialStep: 100_000, MinStep: 1_000})
	ctx := context.Background()

	res, err := fetcher.Sync(ctx, SyncRequest{EventName: "ProposalVotedV2"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	wantWindows := []BlockRange{{0, 100_000}, {100_001, 200_001}, {200_002, 250_000}}
	if !reflect.DeepEqual(source.windows, wantWindows) {
		t.Fatalf("windows mismatch: %+v != %+v", source.windows, wantWindows)
	}
	if res.Inserted != 3 || res.Windows != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !reflect.DeepEqual(res.IDs, []uint64{137, 138}) {
		t.Fatalf("ids mismatch: %v", res.IDs)
	}

	key := model.WatermarkKey{ChainID: testChainID, EventName: "ProposalVotedV2"}
	mark, ok, err := store.GetWatermark(ctx, key)
	if err != nil || !ok || mark != 250_000 {
		t.Fatalf("watermark = %d %v %v", mark, ok, err)
	}
	if res.Watermarks[key] != 250_000 {
		t.Fatalf("result watermark = %d", res.Watermarks[key])
	}

	// Nothing new: a resumed run makes no log queries.
	source.windows = nil
	res, err = fetcher.Sync(ctx, SyncRequest{EventName: "ProposalVotedV2"})
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if len(source.windows) != 0 || res.Inserted != 0 {
		t.Fatalf("expected no work, got windows=%v inserted=%d", source.windows, res.Inserted)
	}

	// The chain moves on; only the new range is fetched.
	source.head = 260_000
	source.logs = append(source.logs, votedV2Log(t, 255_000, 4, 139, alice, 2))
	res, err = fetcher.Sync(ctx, SyncRequest{EventName: "ProposalVotedV2"})
	if err != nil {
		t.Fatalf("sync new range: %v", err)
	}
	if !reflect.DeepEqual(source.windows, []BlockRange{{250_001, 260_000}}) {
		t.Fatalf("windows mismatch: %+v", source.windows)
	}
	if res.Inserted != 1 || !reflect.DeepEqual(res.IDs, []uint64{139}) {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	source := &fakeSource{
		head: 5_000,
		logs: []types.Log{
			votedV2Log(t, 100, 1, 140, common.HexToAddress("0x01"), 5),
			votedV2Log(t, 4_000, 2, 140, common.HexToAddress("0x02"), 5),
		},
	}
	fetcher, store, _ := newTestFetcher(t, source, StepPolicy{})
	ctx := context.Background()
	from := uint64(0)

	first, err := fetcher.Sync(ctx, SyncRequest{EventName: "ProposalVotedV2", FromBlock: &from})
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	second, err := fetcher.Sync(ctx, SyncRequest{EventName: "proposalvotedv2", FromBlock: &from})
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if first.Inserted != 2 || second.Inserted != 0 {
		t.Fatalf("inserted %d then %d", first.Inserted, second.Inserted)
	}

	events, err := store.QueryEvents(ctx, storage.EventFilter{ChainID: testChainID})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(events))
	}
	if events[0].Args["yesVotes"] != "5" || events[0].Args["proposalId"] != "140" {
		t.Fatalf("unexpected args: %v", events[0].Args)
	}
}

func TestSyncAbortsWhenStepTooSmall(t *testing.T) {
	source := &fakeSource{
		head: 1_000_000,
		failFor: func(int, BlockRange) error {
			return fmt.Errorf("eth_getLogs: %w", context.DeadlineExceeded)
		},
	}
	fetcher, store, rec := newTestFetcher(t, source, StepPolicy{
		InitialStep: 100_000,
		MinStep:     1_000,
		BaseDelay:   time.Millisecond,
		MaxDelay:    8 * time.Millisecond,
	})

	_, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalQueued"})
	if !errors.Is(err, ErrSyncAborted) {
		t.Fatalf("expected ErrSyncAborted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}

	// 100000, 50000, 25000, 12500, 6250, 3125, 1562 then abort.
	if len(source.windows) != 7 {
		t.Fatalf("expected 7 attempts, got %d", len(source.windows))
	}
	for _, w := range source.windows {
		if w.From != 0 {
			t.Fatalf("cursor moved on failure: %+v", w)
		}
	}
	wantDelays := []time.Duration{2, 4, 8, 8, 8, 8}
	if len(rec.delays) != len(wantDelays) {
		t.Fatalf("delays mismatch: %v", rec.delays)
	}
	for i, d := range wantDelays {
		if rec.delays[i] != d*time.Millisecond {
			t.Fatalf("delays mismatch: %v", rec.delays)
		}
	}

	_, ok, err := store.GetWatermark(context.Background(), model.WatermarkKey{ChainID: testChainID, EventName: "ProposalQueued"})
	if err != nil || ok {
		t.Fatalf("watermark must not be written on abort: %v %v", ok, err)
	}
}

func TestSyncHalvesStepAndContinues(t *testing.T) {
	source := &fakeSource{
		head: 120_000,
		failFor: func(call int, _ BlockRange) error {
			if call == 1 {
				return errors.New("query returned more than 10000 results")
			}
			return nil
		},
	}
	fetcher, store, _ := newTestFetcher(t, source, StepPolicy{InitialStep: 100_000, MinStep: 1_000})

	res, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalQueued"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	want := []BlockRange{{0, 100_000}, {0, 50_000}, {50_001, 100_001}, {100_002, 120_000}}
	if !reflect.DeepEqual(source.windows, want) {
		t.Fatalf("windows mismatch: %+v != %+v", source.windows, want)
	}
	if res.Windows != 3 {
		t.Fatalf("expected 3 windows, got %d", res.Windows)
	}
	mark, _, _ := store.GetWatermark(context.Background(), model.WatermarkKey{ChainID: testChainID, EventName: "ProposalQueued"})
	if mark != 120_000 {
		t.Fatalf("watermark = %d", mark)
	}
}

func TestSyncPropagatesPermanentError(t *testing.T) {
	source := &fakeSource{
		head: 10,
		failFor: func(int, BlockRange) error {
			return errors.New("invalid argument 0: hex string without 0x prefix")
		},
	}
	fetcher, _, _ := newTestFetcher(t, source, StepPolicy{})

	_, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalQueued"})
	if err == nil || errors.Is(err, ErrSyncAborted) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if len(source.windows) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(source.windows))
	}
}

func TestSyncSkipsUnknownEvent(t *testing.T) {
	source := &fakeSource{head: 10}
	fetcher, _, _ := newTestFetcher(t, source, StepPolicy{})

	res, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "Transfer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.IDs) != 0 || len(source.windows) != 0 {
		t.Fatalf("unknown event must be a no-op: %+v", res)
	}
}

func TestSyncUsesInjectedWatermarks(t *testing.T) {
	source := &fakeSource{head: 500}
	fetcher, _, _ := newTestFetcher(t, source, StepPolicy{})
	key := model.WatermarkKey{ChainID: testChainID, EventName: "Confirmation"}

	res, err := fetcher.Sync(context.Background(), SyncRequest{
		EventName:  "Confirmation",
		Watermarks: model.Watermarks{key: 99},
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !reflect.DeepEqual(source.windows, []BlockRange{{100, 500}}) {
		t.Fatalf("windows mismatch: %+v", source.windows)
	}
	if res.Watermarks[key] != 500 {
		t.Fatalf("watermark = %d", res.Watermarks[key])
	}
}

func TestSyncAll(t *testing.T) {
	source := &fakeSource{
		head: 1_000,
		logs: []types.Log{votedV2Log(t, 10, 1, 150, common.HexToAddress("0x01"), 1)},
	}
	fetcher, _, _ := newTestFetcher(t, source, StepPolicy{})

	results, err := SyncAll(context.Background(), fetcher, []SyncRequest{
		{EventName: "ProposalVotedV2"},
		{EventName: "ProposalQueued"},
		{EventName: "Bogus"},
	}, 2)
	if err != nil {
		t.Fatalf("sync all: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !reflect.DeepEqual(results[0].IDs, []uint64{150}) {
		t.Fatalf("ids mismatch: %v", results[0].IDs)
	}
	merged := MergeIDs(results)
	if !reflect.DeepEqual(merged, map[string][]uint64{"ProposalVotedV2": {150}}) {
		t.Fatalf("merged mismatch: %v", merged)
	}
}

func TestSyncRetriesTransientHeadRead(t *testing.T) {
	timeout := fmt.Errorf("eth_blockNumber: %w", context.DeadlineExceeded)
	source := &fakeSource{
		head:     500,
		headErrs: []error{timeout, timeout},
		logs:     []types.Log{votedV2Log(t, 10, 1, 137, common.HexToAddress("0x01"), 5)},
	}
	fetcher, _, rec := newTestFetcher(t, source, StepPolicy{BaseDelay: time.Millisecond, MaxDelay: 8 * time.Millisecond})

	res, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalVotedV2"})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if source.headHits != 3 {
		t.Fatalf("expected 3 head reads, got %d", source.headHits)
	}
	if res.Head != 500 || res.Inserted != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(rec.delays) < 2 || rec.delays[0] != 2*time.Millisecond || rec.delays[1] != 4*time.Millisecond {
		t.Fatalf("unexpected delays %v", rec.delays)
	}
}

func TestSyncAbortsWhenHeadKeepsFailing(t *testing.T) {
	timeout := fmt.Errorf("eth_blockNumber: %w", context.DeadlineExceeded)
	source := &fakeSource{head: 500}
	for i := 0; i < 20; i++ {
		source.headErrs = append(source.headErrs, timeout)
	}
	fetcher, _, _ := newTestFetcher(t, source, StepPolicy{InitialStep: 100_000, MinStep: 1_000})

	_, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalVotedV2"})
	if !errors.Is(err, ErrSyncAborted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped abort, got %v", err)
	}
	// One attempt plus one retry per allowed halving.
	if source.headHits != 7 {
		t.Fatalf("expected 7 head reads, got %d", source.headHits)
	}
	if len(source.windows) != 0 {
		t.Fatalf("no window may be fetched without a head: %v", source.windows)
	}
}

func TestSyncHeadPermanentError(t *testing.T) {
	source := &fakeSource{headErrs: []error{errors.New("invalid api key")}}
	fetcher, _, rec := newTestFetcher(t, source, StepPolicy{})

	_, err := fetcher.Sync(context.Background(), SyncRequest{EventName: "ProposalVotedV2"})
	if err == nil || errors.Is(err, ErrSyncAborted) {
		t.Fatalf("expected plain error, got %v", err)
	}
	if source.headHits != 1 || len(rec.delays) != 0 {
		t.Fatalf("permanent errors must not be retried: hits=%d delays=%v", source.headHits, rec.delays)
	}
}
