package main

import (
	"sort"
	"testing"

	"go.uber.org/zap"

	"govwatch/internal/config"
	"govwatch/internal/contracts"
	"govwatch/internal/notify"
)

func TestProposalIDsSkipsMultiSigEvents(t *testing.T) {
	got := proposalIDs(map[string][]uint64{
		string(contracts.ProposalVotedV2): {130, 131},
		string(contracts.Confirmation):    {7},
		string(contracts.ProposalQueued):  {132},
		"Unknown":                         {9},
	})
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	want := []uint64{130, 131, 132}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestExportFilter(t *testing.T) {
	from := uint64(10)
	id := uint64(42)
	filter := exportFilter(config.ExportConfig{
		Events:     []string{"GovernanceApproverMultiSig"},
		FromBlock:  &from,
		ProposalID: &id,
	}, 42220)

	if filter.ChainID != 42220 {
		t.Fatalf("unexpected chain id %d", filter.ChainID)
	}
	if len(filter.EventNames) != 4 {
		t.Fatalf("expected multisig events expanded, got %v", filter.EventNames)
	}
	if filter.FromBlock == nil || *filter.FromBlock != 10 || filter.ToBlock != nil {
		t.Fatalf("unexpected block bounds %v %v", filter.FromBlock, filter.ToBlock)
	}
	if filter.Topics[1] != contracts.UintTopic(42).Hex() {
		t.Fatalf("unexpected topic filter %v", filter.Topics)
	}
}

type recordingInvalidator struct {
	calls [][]uint64
}

func (r *recordingInvalidator) Invalidate(ids []uint64) {
	r.calls = append(r.calls, ids)
}

func TestInvalidateOnSync(t *testing.T) {
	rec := &recordingInvalidator{}
	handle := invalidateOnSync(rec, zap.NewNop())

	handle(notify.SyncNotification{ChainID: 42220, Event: string(contracts.ProposalVotedV2), IDs: []uint64{130, 131}})
	handle(notify.SyncNotification{ChainID: 42220, Event: string(contracts.Confirmation), IDs: []uint64{7}})
	handle(notify.SyncNotification{ChainID: 42220, Event: string(contracts.ProposalExecuted)})

	if len(rec.calls) != 1 {
		t.Fatalf("expected one invalidation, got %v", rec.calls)
	}
	if len(rec.calls[0]) != 2 || rec.calls[0][0] != 130 || rec.calls[0][1] != 131 {
		t.Fatalf("unexpected ids %v", rec.calls[0])
	}
}
