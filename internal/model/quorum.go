package model

import "math/big"

// ProposalQuorumState captures the inputs and result of a quorum computation.
// It is always recomputed from contract reads as of BlockNumber.
type ProposalQuorumState struct {
	ProposalID               uint64     `json:"proposal_id"`
	BlockNumber              uint64     `json:"block_number"`
	ParticipationBaseline    *big.Int   `json:"participation_baseline"`
	ParticipationFloor       *big.Int   `json:"participation_floor"`
	BaselineUpdateFactor     *big.Int   `json:"baseline_update_factor"`
	BaselineQuorumFactor     *big.Int   `json:"baseline_quorum_factor"`
	ConstitutionalThresholds []*big.Int `json:"constitutional_thresholds"`
	NetworkWeight            *big.Int   `json:"network_weight"`
	QuorumVotes              *big.Int   `json:"quorum_votes"`
	QuorumVotesRequired      *big.Int   `json:"quorum_votes_required"`
}
