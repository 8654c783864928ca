package governance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
	"govwatch/internal/storage/sqlite"
)

var (
	testGovernance = common.HexToAddress("0xD533Ca259b330c7A88f74E000a3FaEa2d63B7972")
	testMultiSig   = common.HexToAddress("0x41822d8A191fcfB1cfcA5F7048818aCd8eE933d3")
	testProposer   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fakeReader struct {
	fakeMultiSig

	mu           sync.Mutex
	params       contracts.ParticipationParameters
	proposals    map[uint64]contracts.ProposalInfo
	transactions map[uint64][]contracts.ProposalTransaction
	constitution map[string]*big.Int
	stages       map[uint64]uint8
	deletedAt    map[uint64]uint64
	dequeue      []*big.Int
	required     uint64
	lockedGold   *big.Int
	readBlocks   []*big.Int
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		params:       params("0.5", "0.2"),
		proposals:    make(map[uint64]contracts.ProposalInfo),
		transactions: make(map[uint64][]contracts.ProposalTransaction),
		constitution: map[string]*big.Int{constitutionKey(common.Address{}, [4]byte{}): fixed("0.6")},
		stages:       make(map[uint64]uint8),
		deletedAt:    make(map[uint64]uint64),
		required:     2,
		lockedGold:   big.NewInt(0),
	}
}

func constitutionKey(dest common.Address, selector [4]byte) string {
	return fmt.Sprintf("%s:%x", dest.Hex(), selector)
}

func (f *fakeReader) Addresses() contracts.Addresses {
	return contracts.Addresses{Governance: testGovernance, MultiSig: testMultiSig}
}

func (f *fakeReader) ParticipationParameters(_ context.Context, block *big.Int) (contracts.ParticipationParameters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readBlocks = append(f.readBlocks, block)
	return f.params, nil
}

func (f *fakeReader) Proposal(_ context.Context, id uint64, block *big.Int) (contracts.ProposalInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.proposals[id]
	if at, deleted := f.deletedAt[id]; deleted && (block == nil || block.Uint64() >= at) {
		ok = false
	}
	if !ok {
		return contracts.ProposalInfo{Deposit: new(big.Int), Timestamp: new(big.Int), NetworkWeight: new(big.Int)}, nil
	}
	return info, nil
}

func (f *fakeReader) ProposalTransaction(_ context.Context, id, index uint64, _ *big.Int) (contracts.ProposalTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := f.transactions[id]
	if index >= uint64(len(txs)) {
		return contracts.ProposalTransaction{}, fmt.Errorf("execution reverted")
	}
	return txs[index], nil
}

func (f *fakeReader) Constitution(_ context.Context, dest common.Address, selector [4]byte, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.constitution[constitutionKey(dest, selector)]; ok {
		return v, nil
	}
	return f.constitution[constitutionKey(common.Address{}, [4]byte{})], nil
}

func (f *fakeReader) ProposalStage(_ context.Context, id uint64, _ *big.Int) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stages[id], nil
}

func (f *fakeReader) Dequeue(context.Context, *big.Int) ([]*big.Int, error) {
	return f.dequeue, nil
}

func (f *fakeReader) Approver(context.Context, *big.Int) (common.Address, error) {
	return testMultiSig, nil
}

func (f *fakeReader) MultiSigRequired(context.Context, common.Address, *big.Int) (uint64, error) {
	return f.required, nil
}

func (f *fakeReader) TotalLockedGold(context.Context, *big.Int) (*big.Int, error) {
	return f.lockedGold, nil
}

func proposal(txCount uint64, networkWeight int64) contracts.ProposalInfo {
	return contracts.ProposalInfo{
		Proposer:         testProposer,
		Deposit:          big.NewInt(100),
		Timestamp:        big.NewInt(1_700_000_000),
		TransactionCount: txCount,
		NetworkWeight:    big.NewInt(networkWeight),
	}
}

func newTestService(t *testing.T, reader ContractReader, events ...model.ChainEvent) (*Service, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if len(events) > 0 {
		_, err := store.UpsertEvents(context.Background(), events)
		require.NoError(t, err)
	}

	svc := NewService(ServiceConfig{ChainID: testChainID, ReadConcurrency: 4}, store, reader, nil)
	t.Cleanup(svc.Close)
	return svc, store
}

func TestServiceVotersForCachesUntilInvalidated(t *testing.T) {
	voter := addr(0xa1)
	svc, store := newTestService(t, newFakeReader(),
		voteV2(100, 0, 137, voter, 100, 0, 0),
		voteV2(110, 0, 137, voter, 0, 50, 0),
		voteV2(120, 0, 138, addr(0xb2), 9, 0, 0),
	)
	ctx := context.Background()

	votes, err := svc.VotersFor(ctx, 137)
	require.NoError(t, err)
	require.Len(t, votes.PerAccount, 1)
	assert.Equal(t, "0", votes.Totals.Yes.String())
	assert.Equal(t, "50", votes.Totals.No.String())

	_, err = store.UpsertEvents(ctx, []model.ChainEvent{revokeV2(130, 0, 137, voter, 0, 50, 0)})
	require.NoError(t, err)

	cached, err := svc.VotersFor(ctx, 137)
	require.NoError(t, err)
	assert.Equal(t, "50", cached.Totals.No.String())

	svc.Invalidate([]uint64{137})
	fresh, err := svc.VotersFor(ctx, 137)
	require.NoError(t, err)
	assert.Empty(t, fresh.PerAccount)
	assert.True(t, fresh.Totals.IsZero())
}

func TestServiceVotersForWithoutCache(t *testing.T) {
	voter := addr(0xa1)
	store, err := sqlite.New("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	_, err = store.UpsertEvents(ctx, []model.ChainEvent{voteV2(100, 0, 137, voter, 100, 0, 0)})
	require.NoError(t, err)

	svc := NewService(ServiceConfig{ChainID: testChainID, NoVoteCache: true}, store, newFakeReader(), nil)
	t.Cleanup(svc.Close)

	votes, err := svc.VotersFor(ctx, 137)
	require.NoError(t, err)
	assert.Equal(t, "100", votes.Totals.Yes.String())

	_, err = store.UpsertEvents(ctx, []model.ChainEvent{revokeV2(110, 0, 137, voter, 100, 0, 0)})
	require.NoError(t, err)

	votes, err = svc.VotersFor(ctx, 137)
	require.NoError(t, err)
	assert.True(t, votes.Totals.IsZero())
}

func TestServiceVotersForLegacySchema(t *testing.T) {
	svc, _ := newTestService(t, newFakeReader(),
		voteV1(contracts.ProposalVoted, 1, 0, 12, addr(1), VoteYes, 40),
		// V2 events for a legacy proposal id are not part of its schema.
		voteV2(2, 0, 12, addr(2), 99, 0, 0),
	)

	votes, err := svc.VotersFor(context.Background(), 12)
	require.NoError(t, err)
	assert.Len(t, votes.PerAccount, 1)
	assert.Equal(t, "40", votes.Totals.Yes.String())
}

func TestServiceQuorumRequired(t *testing.T) {
	reader := newFakeReader()
	target := common.HexToAddress("0x0000000000000000000000000000000000000c0d")
	reader.proposals[137] = proposal(2, 1000)
	reader.transactions[137] = []contracts.ProposalTransaction{
		{Destination: target, Data: []byte{0xde, 0xad, 0xbe, 0xef, 0x01}, Value: big.NewInt(0)},
		{Destination: target, Data: []byte{0x12, 0x34, 0x56, 0x78}, Value: big.NewInt(0)},
	}
	reader.constitution[constitutionKey(target, [4]byte{0xde, 0xad, 0xbe, 0xef})] = fixed("0.7")
	reader.constitution[constitutionKey(target, [4]byte{0x12, 0x34, 0x56, 0x78})] = fixed("0.5")

	svc, _ := newTestService(t, reader,
		voteV2(480, 0, 137, addr(1), 1, 0, 0),
		govEvent(contracts.ProposalApproved, 500, 0, 137, nil),
		govEvent(contracts.ProposalExecuted, 900, 0, 137, nil),
	)

	state, err := svc.QuorumRequired(context.Background(), 137)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), state.BlockNumber)
	assert.Equal(t, "100", state.QuorumVotes.String())
	assert.Equal(t, "70", state.QuorumVotesRequired.String())
	assert.Len(t, state.ConstitutionalThresholds, 2)
	assert.Equal(t, "1000", state.NetworkWeight.String())
	require.NotEmpty(t, reader.readBlocks)
	assert.Equal(t, "500", reader.readBlocks[0].String())
}

func TestServiceQuorumRequiredFallbacks(t *testing.T) {
	reader := newFakeReader()
	reader.proposals[140] = proposal(0, 0)
	reader.lockedGold = big.NewInt(2000)

	svc, _ := newTestService(t, reader)

	state, err := svc.QuorumRequired(context.Background(), 140)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), state.BlockNumber)
	assert.Equal(t, "2000", state.NetworkWeight.String())
	assert.Equal(t, "200", state.QuorumVotes.String())
	assert.Equal(t, "120", state.QuorumVotesRequired.String())

	_, err = svc.QuorumRequired(context.Background(), 999)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestServiceApproversFor(t *testing.T) {
	alice, bob, carol := addr(0xa), addr(0xb), addr(0xc)
	reader := newFakeReader()
	reader.dequeue = []*big.Int{big.NewInt(130), big.NewInt(137)}
	callData, err := contracts.ApproveCallData(137, 1)
	require.NoError(t, err)
	stale, err := contracts.ApproveCallData(137, 0)
	require.NoError(t, err)
	reader.txs = []contracts.MultiSigTransaction{
		{Destination: testGovernance, Data: stale},
		{Destination: testGovernance, Data: []byte{0x01}},
		{Destination: testGovernance, Data: callData},
	}

	svc, _ := newTestService(t, reader,
		multisigEvent(contracts.Confirmation, 10, 0, alice, 2),
		multisigEvent(contracts.Confirmation, 11, 0, bob, 2),
		multisigEvent(contracts.Revocation, 12, 0, bob, 2),
		multisigEvent(contracts.Confirmation, 13, 0, carol, 0),
	)

	set, err := svc.ApproversFor(context.Background(), 137)
	require.NoError(t, err)
	require.NotNil(t, set.TransactionID)
	assert.Equal(t, uint64(2), *set.TransactionID)
	assert.Equal(t, []string{alice}, set.Confirmed)
	assert.Equal(t, uint64(2), set.Required)
	assert.True(t, set.Has(alice))
	assert.False(t, set.Has(bob))
}

func TestServiceApproversForMissingTransaction(t *testing.T) {
	reader := newFakeReader()
	reader.dequeue = []*big.Int{big.NewInt(150)}
	svc, _ := newTestService(t, reader,
		multisigEvent(contracts.Confirmation, 10, 0, addr(0xa), 0),
	)

	set, err := svc.ApproversFor(context.Background(), 150)
	require.NoError(t, err)
	assert.Nil(t, set.TransactionID)
	assert.Empty(t, set.Confirmed)
	assert.Equal(t, uint64(2), set.Required)

	set, err = svc.ApproversFor(context.Background(), 151)
	require.NoError(t, err)
	assert.Empty(t, set.Confirmed)
}

func TestServiceStage(t *testing.T) {
	reader := newFakeReader()
	reader.stages[140] = uint8(StageExpiration)
	reader.proposals[140] = proposal(0, 1000)
	reader.stages[141] = uint8(StageExpiration)
	reader.proposals[141] = proposal(1, 1000)
	reader.stages[142] = uint8(StageNone)
	reader.stages[143] = uint8(StageNone)

	svc, _ := newTestService(t, reader,
		voteV2(10, 0, 140, addr(1), 200, 5, 0),
		voteV2(10, 1, 141, addr(1), 5, 200, 0),
		govEvent(contracts.ProposalDequeued, 3, 0, 142, nil),
		govEvent(contracts.ProposalExecuted, 20, 0, 142, nil),
		govEvent(contracts.ProposalExpired, 30, 0, 143, nil),
	)
	ctx := context.Background()

	cases := map[uint64]Stage{
		140: StageAdopted,
		141: StageRejected,
		142: StageExecuted,
		143: StageWithdrawn,
	}
	for id, want := range cases {
		report, err := svc.Stage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, report.Stage, "proposal %d", id)
	}
}

func TestServiceStageRejectsRegression(t *testing.T) {
	reader := newFakeReader()
	reader.stages[137] = uint8(StageExecution)
	svc, _ := newTestService(t, reader)
	ctx := context.Background()

	report, err := svc.Stage(ctx, 137)
	require.NoError(t, err)
	assert.Equal(t, StageExecution, report.Stage)

	reader.mu.Lock()
	reader.stages[137] = uint8(StageReferendum)
	reader.mu.Unlock()

	_, err = svc.Stage(ctx, 137)
	assert.ErrorIs(t, err, ErrStageRegression)
}

func TestServiceStageDeletedProposal(t *testing.T) {
	reader := newFakeReader()
	reader.stages[141] = uint8(StageExpiration)
	reader.proposals[141] = proposal(1, 1000)
	reader.proposals[144] = proposal(0, 1000)

	svc, store := newTestService(t, reader,
		govEvent(contracts.ProposalDequeued, 3, 0, 141, nil),
		voteV2(10, 0, 141, addr(1), 5, 200, 0),
		govEvent(contracts.ProposalDequeued, 3, 1, 144, nil),
		voteV2(11, 0, 144, addr(2), 200, 5, 0),
	)
	ctx := context.Background()

	report, err := svc.Stage(ctx, 141)
	require.NoError(t, err)
	assert.Equal(t, StageRejected, report.Stage)

	reader.mu.Lock()
	reader.stages[141] = uint8(StageNone)
	reader.deletedAt[141] = 40
	reader.deletedAt[144] = 41
	reader.mu.Unlock()
	_, err = store.UpsertEvents(ctx, []model.ChainEvent{
		govEvent(contracts.ProposalExpired, 40, 0, 141, nil),
		govEvent(contracts.ProposalExpired, 41, 0, 144, nil),
	})
	require.NoError(t, err)

	report, err = svc.Stage(ctx, 141)
	require.NoError(t, err)
	assert.Equal(t, StageNone, report.OnChain)
	assert.Equal(t, StageRejected, report.Stage)

	fresh := NewService(ServiceConfig{ChainID: testChainID}, store, reader, nil)
	t.Cleanup(fresh.Close)
	for id, want := range map[uint64]Stage{141: StageRejected, 144: StageAdopted} {
		report, err := fresh.Stage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, report.Stage, "proposal %d", id)
	}
}
