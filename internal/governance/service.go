package governance

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
	"govwatch/internal/storage"
)

const defaultReadConcurrency = 8

var (
	// ErrProposalNotFound is returned when the contract has no record of a proposal.
	ErrProposalNotFound = errors.New("proposal not found")
	// ErrStageRegression is returned when a derived stage would move a
	// proposal backwards from the last stage this service reported.
	ErrStageRegression = errors.New("stage regression")
)

// ContractReader is the set of point-in-time contract reads the service uses.
// *contracts.Reader implements it.
type ContractReader interface {
	MultiSigReader
	Addresses() contracts.Addresses
	ParticipationParameters(ctx context.Context, block *big.Int) (contracts.ParticipationParameters, error)
	Proposal(ctx context.Context, proposalID uint64, block *big.Int) (contracts.ProposalInfo, error)
	ProposalTransaction(ctx context.Context, proposalID, index uint64, block *big.Int) (contracts.ProposalTransaction, error)
	Constitution(ctx context.Context, destination common.Address, selector [4]byte, block *big.Int) (*big.Int, error)
	ProposalStage(ctx context.Context, proposalID uint64, block *big.Int) (uint8, error)
	Dequeue(ctx context.Context, block *big.Int) ([]*big.Int, error)
	Approver(ctx context.Context, block *big.Int) (common.Address, error)
	MultiSigRequired(ctx context.Context, multisig common.Address, block *big.Int) (uint64, error)
	TotalLockedGold(ctx context.Context, block *big.Int) (*big.Int, error)
}

// ServiceConfig holds settings for Service.
type ServiceConfig struct {
	ChainID         uint64
	ReadConcurrency int
	// NoVoteCache recomputes tallies on every call. Set it when nothing
	// calls Invalidate after the store changes.
	NoVoteCache bool
}

// StageReport is the on-chain stage of a proposal and its refined stage.
type StageReport struct {
	ProposalID uint64 `json:"proposal_id"`
	OnChain    Stage  `json:"on_chain"`
	Stage      Stage  `json:"stage"`
}

// Service derives governance facts from stored events and contract reads.
// Vote tallies are cached per proposal until Invalidate is called for it,
// unless the cache is disabled.
type Service struct {
	cfg    ServiceConfig
	store  storage.Store
	reader ContractReader
	logger *zap.Logger
	pool   pond.Pool
	votes  *xsync.MapOf[uint64, model.ProposalVotes]
	stages *xsync.MapOf[uint64, Stage]
}

// NewService builds a Service. Close releases its read pool.
func NewService(cfg ServiceConfig, store storage.Store, reader ContractReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReadConcurrency <= 0 {
		cfg.ReadConcurrency = defaultReadConcurrency
	}
	return &Service{
		cfg:    cfg,
		store:  store,
		reader: reader,
		logger: logger,
		pool:   pond.NewPool(cfg.ReadConcurrency),
		votes:  xsync.NewMapOf[uint64, model.ProposalVotes](),
		stages: xsync.NewMapOf[uint64, Stage](),
	}
}

// Close stops the read pool.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// Invalidate drops cached tallies for the given proposals.
func (s *Service) Invalidate(ids []uint64) {
	for _, id := range ids {
		s.votes.Delete(id)
	}
}

// VotersFor returns the current vote of every account on proposalID and the totals.
func (s *Service) VotersFor(ctx context.Context, proposalID uint64) (model.ProposalVotes, error) {
	if !s.cfg.NoVoteCache {
		if cached, ok := s.votes.Load(proposalID); ok {
			return cached, nil
		}
	}

	cast, revoke := SchemaFor(proposalID).Events()
	events, err := s.store.QueryEvents(ctx, storage.EventFilter{
		ChainID:    s.cfg.ChainID,
		EventNames: []string{string(cast), string(revoke)},
		Topics:     map[int]string{1: proposalTopic(proposalID)},
	})
	if err != nil {
		return model.ProposalVotes{}, fmt.Errorf("query votes: %w", err)
	}

	votes, err := AggregateVotes(proposalID, events, s.logger)
	if err != nil {
		s.logger.Error("refusing vote tally", zap.Uint64("proposal_id", proposalID), zap.Error(err))
		return model.ProposalVotes{}, err
	}
	if !s.cfg.NoVoteCache {
		s.votes.Store(proposalID, votes)
	}
	return votes, nil
}

// QuorumRequired reads the quorum inputs as of the proposal's most recent
// vote or approval event (latest state when there is none) and computes the
// votes required to pass.
func (s *Service) QuorumRequired(ctx context.Context, proposalID uint64) (model.ProposalQuorumState, error) {
	block, err := s.anchorBlock(ctx, proposalID)
	if err != nil {
		return model.ProposalQuorumState{}, err
	}
	return s.quorumAt(ctx, proposalID, block)
}

func (s *Service) quorumAt(ctx context.Context, proposalID uint64, block *big.Int) (model.ProposalQuorumState, error) {
	params, err := s.reader.ParticipationParameters(ctx, block)
	if err != nil {
		return model.ProposalQuorumState{}, fmt.Errorf("participation parameters: %w", err)
	}
	info, err := s.reader.Proposal(ctx, proposalID, block)
	if err != nil {
		return model.ProposalQuorumState{}, fmt.Errorf("proposal %d: %w", proposalID, err)
	}
	if info.Proposer == (common.Address{}) {
		return model.ProposalQuorumState{}, fmt.Errorf("%w: %d", ErrProposalNotFound, proposalID)
	}

	thresholds, err := s.thresholds(ctx, proposalID, info.TransactionCount, block)
	if err != nil {
		return model.ProposalQuorumState{}, err
	}

	networkWeight := info.NetworkWeight
	if networkWeight == nil || networkWeight.Sign() == 0 {
		networkWeight, err = s.reader.TotalLockedGold(ctx, block)
		if err != nil {
			return model.ProposalQuorumState{}, fmt.Errorf("total locked gold: %w", err)
		}
	}

	quorumVotes, required, err := ComputeQuorum(params, thresholds, networkWeight)
	if err != nil {
		return model.ProposalQuorumState{}, fmt.Errorf("proposal %d: %w", proposalID, err)
	}

	state := model.ProposalQuorumState{
		ProposalID:               proposalID,
		ParticipationBaseline:    params.Baseline,
		ParticipationFloor:       params.BaselineFloor,
		BaselineUpdateFactor:     params.BaselineUpdateFactor,
		BaselineQuorumFactor:     params.BaselineQuorumFactor,
		ConstitutionalThresholds: thresholds,
		NetworkWeight:            networkWeight,
		QuorumVotes:              quorumVotes,
		QuorumVotesRequired:      required,
	}
	if block != nil {
		state.BlockNumber = block.Uint64()
	}
	return state, nil
}

// thresholds resolves the constitution entry of every proposal transaction
// in parallel. Proposals without transactions use the default entry.
func (s *Service) thresholds(ctx context.Context, proposalID, count uint64, block *big.Int) ([]*big.Int, error) {
	if count == 0 {
		threshold, err := s.reader.Constitution(ctx, common.Address{}, [4]byte{}, block)
		if err != nil {
			return nil, fmt.Errorf("default constitution: %w", err)
		}
		return []*big.Int{threshold}, nil
	}

	out := make([]*big.Int, count)
	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i := uint64(0); i < count; i++ {
		index := i
		group.SubmitErr(func() error {
			tx, err := s.reader.ProposalTransaction(groupCtx, proposalID, index, block)
			if err != nil {
				return fmt.Errorf("proposal %d transaction %d: %w", proposalID, index, err)
			}
			threshold, err := s.reader.Constitution(groupCtx, tx.Destination, tx.Selector(), block)
			if err != nil {
				return fmt.Errorf("constitution %s: %w", tx.Destination.Hex(), err)
			}
			out[index] = threshold
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stage classifies the proposal from its latest on-chain stage and stored
// lifecycle events. The on-chain stage is read at latest state. When the
// proposal has finished, the transaction count and quorum are read at the
// anchor block used by QuorumRequired, so a proposal the contract already
// deleted is still classified from its last stored state. Votes always come
// from the store.
func (s *Service) Stage(ctx context.Context, proposalID uint64) (StageReport, error) {
	raw, err := s.reader.ProposalStage(ctx, proposalID, nil)
	if err != nil {
		return StageReport{}, fmt.Errorf("proposal stage: %w", err)
	}
	onChain, err := StageFromChain(raw)
	if err != nil {
		return StageReport{}, err
	}

	events, err := s.store.QueryEvents(ctx, storage.EventFilter{
		ChainID: s.cfg.ChainID,
		EventNames: []string{
			string(contracts.ProposalExecuted),
			string(contracts.ProposalDequeued),
			string(contracts.ProposalExpired),
		},
		Topics: map[int]string{1: proposalTopic(proposalID)},
	})
	if err != nil {
		return StageReport{}, fmt.Errorf("query lifecycle events: %w", err)
	}

	facts := StageFacts{OnChain: onChain}
	var expiredAt uint64
	for _, event := range events {
		switch contracts.EventName(event.EventName) {
		case contracts.ProposalExecuted:
			facts.Executed = true
		case contracts.ProposalDequeued:
			facts.Dequeued = true
		case contracts.ProposalExpired:
			facts.ExpiredFromQueue = true
			expiredAt = event.BlockNumber
		}
	}

	if facts.Finished() {
		if err := s.loadOutcome(ctx, proposalID, &facts, expiredAt); err != nil {
			return StageReport{}, err
		}
	}

	report := StageReport{ProposalID: proposalID, OnChain: onChain, Stage: ClassifyStage(facts)}
	if prev, ok := s.stages.Load(proposalID); ok && !ValidTransition(prev, report.Stage) {
		s.logger.Warn("stage regression",
			zap.Uint64("proposal_id", proposalID),
			zap.Stringer("previous", prev),
			zap.Stringer("derived", report.Stage),
		)
		return report, fmt.Errorf("%w: proposal %d %s -> %s", ErrStageRegression, proposalID, prev, report.Stage)
	}
	s.stages.Store(proposalID, report.Stage)
	return report, nil
}

// loadOutcome fills the vote totals, transaction count and, when the
// proposal could be adopted, the quorum requirement of a finished proposal.
func (s *Service) loadOutcome(ctx context.Context, proposalID uint64, facts *StageFacts, expiredAt uint64) error {
	votes, err := s.VotersFor(ctx, proposalID)
	if err != nil {
		return err
	}
	facts.Votes = votes.Totals

	block, err := s.anchorBlock(ctx, proposalID)
	if err != nil {
		return err
	}
	if block == nil && facts.Deleted() && expiredAt > 0 {
		block = new(big.Int).SetUint64(expiredAt - 1)
	}

	info, err := s.reader.Proposal(ctx, proposalID, block)
	if err != nil {
		return fmt.Errorf("proposal %d: %w", proposalID, err)
	}
	if info.Proposer == (common.Address{}) {
		return fmt.Errorf("%w: %d", ErrProposalNotFound, proposalID)
	}
	facts.TransactionCount = info.TransactionCount

	if info.TransactionCount == 0 && intOrZero(facts.Votes.Yes).Cmp(intOrZero(facts.Votes.No)) > 0 {
		quorum, err := s.quorumAt(ctx, proposalID, block)
		if err != nil {
			return err
		}
		facts.QuorumRequired = quorum.QuorumVotesRequired
	}
	return nil
}

// ApproversFor replays multisig confirmations on the proposal's approval
// transaction. When that transaction cannot be located the set is empty.
func (s *Service) ApproversFor(ctx context.Context, proposalID uint64) (model.ApprovalSet, error) {
	block, err := s.anchorBlock(ctx, proposalID)
	if err != nil {
		return model.ApprovalSet{}, err
	}

	multisig := s.reader.Addresses().MultiSig
	if multisig == (common.Address{}) {
		multisig, err = s.reader.Approver(ctx, block)
		if err != nil {
			return model.ApprovalSet{}, fmt.Errorf("approver: %w", err)
		}
	}

	required, err := s.reader.MultiSigRequired(ctx, multisig, block)
	if err != nil {
		return model.ApprovalSet{}, fmt.Errorf("multisig required: %w", err)
	}
	set := model.ApprovalSet{ProposalID: proposalID, Confirmed: []string{}, Required: required}

	dequeue, err := s.reader.Dequeue(ctx, block)
	if err != nil {
		return model.ApprovalSet{}, fmt.Errorf("dequeue: %w", err)
	}
	index, ok := approvalIndex(dequeue, proposalID)
	if !ok {
		s.logger.Debug("proposal not in dequeue", zap.Uint64("proposal_id", proposalID))
		return set, nil
	}

	callData, err := contracts.ApproveCallData(proposalID, index)
	if err != nil {
		return model.ApprovalSet{}, err
	}
	txID, err := FindApprovalTx(ctx, s.reader, multisig, s.reader.Addresses().Governance, callData, block)
	if errors.Is(err, ErrApprovalTxNotFound) {
		s.logger.Debug("approval transaction not found", zap.Uint64("proposal_id", proposalID), zap.Uint64("index", index))
		return set, nil
	}
	if err != nil {
		return model.ApprovalSet{}, err
	}
	set.TransactionID = &txID

	events, err := s.store.QueryEvents(ctx, storage.EventFilter{
		ChainID:    s.cfg.ChainID,
		EventNames: []string{string(contracts.Confirmation), string(contracts.Revocation)},
		Topics:     map[int]string{2: contracts.UintTopic(txID).Hex()},
	})
	if err != nil {
		return model.ApprovalSet{}, fmt.Errorf("query confirmations: %w", err)
	}
	set.Confirmed = ReplayApprovals(txID, events)
	return set, nil
}

// anchorBlock is the block of the newest vote or approval event stored for
// the proposal, nil when there is none.
func (s *Service) anchorBlock(ctx context.Context, proposalID uint64) (*big.Int, error) {
	cast, revoke := SchemaFor(proposalID).Events()
	events, err := s.store.QueryEvents(ctx, storage.EventFilter{
		ChainID:    s.cfg.ChainID,
		EventNames: []string{string(cast), string(revoke), string(contracts.ProposalApproved)},
		Topics:     map[int]string{1: proposalTopic(proposalID)},
	})
	if err != nil {
		return nil, fmt.Errorf("query anchor events: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	var latest uint64
	for _, event := range events {
		if event.BlockNumber > latest {
			latest = event.BlockNumber
		}
	}
	return new(big.Int).SetUint64(latest), nil
}

func proposalTopic(proposalID uint64) string {
	return contracts.UintTopic(proposalID).Hex()
}
