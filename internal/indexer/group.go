package indexer

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"
)

// Syncer runs a single sync request.
type Syncer interface {
	Sync(ctx context.Context, req SyncRequest) (SyncResult, error)
}

// SyncAll runs the requests concurrently, one task per event kind. Each
// request owns its own watermark key so tasks never share a cursor. Results
// keep the order of reqs; the returned error joins every failure after all
// tasks have finished.
func SyncAll(ctx context.Context, syncer Syncer, reqs []SyncRequest, concurrency int) ([]SyncResult, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if concurrency <= 0 || concurrency > len(reqs) {
		concurrency = len(reqs)
	}

	results := make([]SyncResult, len(reqs))
	errs := make([]error, len(reqs))

	pool := pond.NewPool(concurrency)
	defer pool.StopAndWait()

	group := pool.NewGroup()
	for i := range reqs {
		i := i
		group.Submit(func() {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = syncer.Sync(ctx, reqs[i])
		})
	}
	if err := group.Wait(); err != nil {
		return results, err
	}

	return results, errors.Join(errs...)
}

// MergeIDs returns the union of ids across results, keyed by event kind.
func MergeIDs(results []SyncResult) map[string][]uint64 {
	out := make(map[string][]uint64)
	for _, res := range results {
		if res.EventName == "" || len(res.IDs) == 0 {
			continue
		}
		set := make(map[uint64]struct{}, len(out[string(res.EventName)])+len(res.IDs))
		for _, id := range out[string(res.EventName)] {
			set[id] = struct{}{}
		}
		for _, id := range res.IDs {
			set[id] = struct{}{}
		}
		out[string(res.EventName)] = sortedIDs(set)
	}
	return out
}
