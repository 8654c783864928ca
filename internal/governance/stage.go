package governance

import (
	"fmt"
	"math/big"
	"strings"

	"govwatch/internal/model"
)

// Stage is the lifecycle position of a proposal. None through Expiration
// mirror Governance.getProposalStage; the rest are refinements derived from
// events and votes.
type Stage uint8

const (
	StageNone Stage = iota
	StageQueued
	StageApproval
	StageReferendum
	StageExecution
	StageExpiration
	StageExecuted
	StageWithdrawn
	StageRejected
	StageAdopted
)

var stageNames = [...]string{
	StageNone:       "None",
	StageQueued:     "Queued",
	StageApproval:   "Approval",
	StageReferendum: "Referendum",
	StageExecution:  "Execution",
	StageExpiration: "Expiration",
	StageExecuted:   "Executed",
	StageWithdrawn:  "Withdrawn",
	StageRejected:   "Rejected",
	StageAdopted:    "Adopted",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

// MarshalText renders the stage name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStage parses a stage name, case-insensitively.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Stage(i), true
		}
	}
	return StageNone, false
}

// StageFromChain maps the uint8 returned by getProposalStage.
func StageFromChain(v uint8) (Stage, error) {
	if Stage(v) > StageExpiration {
		return StageNone, fmt.Errorf("unknown on-chain stage %d", v)
	}
	return Stage(v), nil
}

// OnChain reports whether the stage is one the contract can return.
func (s Stage) OnChain() bool {
	return s <= StageExpiration
}

// StageFacts are the inputs of ClassifyStage.
type StageFacts struct {
	OnChain          Stage
	Executed         bool // a ProposalExecuted event is stored
	Dequeued         bool // a ProposalDequeued event is stored
	ExpiredFromQueue bool // a ProposalExpired event is stored
	TransactionCount uint64
	Votes            model.VoteAmounts
	// QuorumRequired is nil when unknown; the proposal is then not Adopted.
	QuorumRequired *big.Int
}

// Deleted reports whether the proposal expired after leaving the queue.
// The contract deletes such proposals, so getProposalStage reads None.
func (f StageFacts) Deleted() bool {
	return f.Dequeued && f.ExpiredFromQueue && !f.Executed
}

// Finished reports whether the proposal reached Expiration, either still
// stored on-chain or already deleted.
func (f StageFacts) Finished() bool {
	return !f.Executed && (f.OnChain == StageExpiration || f.Deleted())
}

// ClassifyStage applies the event-driven refinements on top of the
// on-chain stage.
func ClassifyStage(f StageFacts) Stage {
	if f.Executed {
		return StageExecuted
	}
	if f.ExpiredFromQueue && !f.Dequeued {
		return StageWithdrawn
	}
	if !f.Finished() {
		return f.OnChain
	}

	yes, no := intOrZero(f.Votes.Yes), intOrZero(f.Votes.No)
	if no.Cmp(yes) > 0 {
		return StageRejected
	}
	if f.TransactionCount == 0 && yes.Cmp(no) > 0 && IsPassingQuorum(f.Votes, f.QuorumRequired) {
		return StageAdopted
	}
	return StageExpiration
}

// refinementSources lists the terminal on-chain stage each refinement leaves.
var refinementSources = map[Stage]Stage{
	StageExecuted:  StageExecution,
	StageWithdrawn: StageQueued,
	StageRejected:  StageExpiration,
	StageAdopted:   StageExpiration,
}

// ValidTransition reports whether a proposal observed at from may next be
// observed at to. On-chain stages only move forward. A refinement leaves its
// terminal on-chain stage, so it may follow that stage or any earlier one
// (stages can be skipped between observations), and it is final.
func ValidTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	if !from.OnChain() {
		return false
	}
	if to.OnChain() {
		return to > from
	}
	source, ok := refinementSources[to]
	return ok && from <= source
}

func intOrZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
