package governance

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

// VoteV2CutoverProposalID is the first proposal whose votes are emitted with
// separate yes/no/abstain fields. Earlier proposals use value + weight.
const VoteV2CutoverProposalID uint64 = 130

// VoteSchema selects which pair of vote events applies to a proposal.
type VoteSchema int

const (
	VoteSchemaV1 VoteSchema = iota + 1
	VoteSchemaV2
)

// SchemaFor returns the vote schema used by proposalID.
func SchemaFor(proposalID uint64) VoteSchema {
	if proposalID >= VoteV2CutoverProposalID {
		return VoteSchemaV2
	}
	return VoteSchemaV1
}

// Events returns the cast and revoke event kinds of the schema.
func (s VoteSchema) Events() (cast, revoke contracts.EventName) {
	if s == VoteSchemaV2 {
		return contracts.ProposalVotedV2, contracts.ProposalVoteRevokedV2
	}
	return contracts.ProposalVoted, contracts.ProposalVoteRevoked
}

// VoteValue is the legacy vote choice.
type VoteValue uint8

const (
	VoteNone VoteValue = iota
	VoteAbstain
	VoteNo
	VoteYes
)

func (v VoteValue) String() string {
	switch v {
	case VoteNone:
		return "None"
	case VoteAbstain:
		return "Abstain"
	case VoteNo:
		return "No"
	case VoteYes:
		return "Yes"
	default:
		return "VoteValue(" + strconv.Itoa(int(v)) + ")"
	}
}

// VoteEvent is one of VoteV1 or VoteV2.
type VoteEvent interface {
	isVoteEvent()
}

// VoteV1 puts the whole weight on a single choice.
type VoteV1 struct {
	Value  VoteValue
	Weight *big.Int
}

// VoteV2 splits the weight across choices.
type VoteV2 struct {
	Yes     *big.Int
	No      *big.Int
	Abstain *big.Int
}

func (VoteV1) isVoteEvent() {}
func (VoteV2) isVoteEvent() {}

// NormalizeVote converts either schema into VoteAmounts.
func NormalizeVote(ev VoteEvent) (model.VoteAmounts, error) {
	switch v := ev.(type) {
	case VoteV1:
		if v.Weight != nil && v.Weight.Sign() < 0 {
			return model.VoteAmounts{}, fmt.Errorf("negative weight %s", v.Weight)
		}
		weight := new(big.Int)
		if v.Weight != nil {
			weight.Set(v.Weight)
		}
		out := model.ZeroVotes()
		switch v.Value {
		case VoteNone:
		case VoteAbstain:
			out.Abstain = weight
		case VoteNo:
			out.No = weight
		case VoteYes:
			out.Yes = weight
		default:
			return model.VoteAmounts{}, fmt.Errorf("unknown vote value %d", v.Value)
		}
		return out, nil
	case VoteV2:
		out := model.NewVoteAmounts(v.Yes, v.No, v.Abstain)
		if err := out.Validate(); err != nil {
			return model.VoteAmounts{}, err
		}
		return out, nil
	default:
		return model.VoteAmounts{}, fmt.Errorf("unsupported vote event %T", ev)
	}
}

// VoteRecord is a decoded cast or revoke for one account.
type VoteRecord struct {
	ProposalID  uint64
	Account     string
	Revoke      bool
	Vote        VoteEvent
	BlockNumber uint64
	LogIndex    uint64
}

// ParseVoteRecord decodes a stored vote event.
func ParseVoteRecord(event model.ChainEvent) (VoteRecord, error) {
	name, ok := contracts.ParseEventName(event.EventName)
	if !ok {
		return VoteRecord{}, fmt.Errorf("unknown event %q", event.EventName)
	}

	rec := VoteRecord{BlockNumber: event.BlockNumber, LogIndex: event.LogIndex}
	proposalID, err := contracts.ParseUint(event.Args, "proposalId")
	if err != nil {
		return VoteRecord{}, err
	}
	if !proposalID.IsUint64() {
		return VoteRecord{}, fmt.Errorf("proposal id overflows: %s", proposalID)
	}
	rec.ProposalID = proposalID.Uint64()

	account, err := contracts.ParseAddress(event.Args, "account")
	if err != nil {
		return VoteRecord{}, err
	}
	rec.Account = account.Hex()

	switch name {
	case contracts.ProposalVoted, contracts.ProposalVoteRevoked:
		value, err := contracts.ParseUint(event.Args, "value")
		if err != nil {
			return VoteRecord{}, err
		}
		if !value.IsUint64() || value.Uint64() > uint64(VoteYes) {
			return VoteRecord{}, fmt.Errorf("unknown vote value %s", value)
		}
		weight, err := contracts.ParseUint(event.Args, "weight")
		if err != nil {
			return VoteRecord{}, err
		}
		rec.Vote = VoteV1{Value: VoteValue(value.Uint64()), Weight: weight}
		rec.Revoke = name == contracts.ProposalVoteRevoked
	case contracts.ProposalVotedV2, contracts.ProposalVoteRevokedV2:
		var amounts [3]*big.Int
		for i, key := range []string{"yesVotes", "noVotes", "abstainVotes"} {
			amounts[i], err = contracts.ParseUint(event.Args, key)
			if err != nil {
				return VoteRecord{}, err
			}
		}
		rec.Vote = VoteV2{Yes: amounts[0], No: amounts[1], Abstain: amounts[2]}
		rec.Revoke = name == contracts.ProposalVoteRevokedV2
	default:
		return VoteRecord{}, fmt.Errorf("%s is not a vote event", name)
	}
	return rec, nil
}

// AggregateVotes folds vote events into the current position of every
// account. A cast replaces the account's previous vote, a revoke clears it.
// Events that cannot be parsed or belong to another proposal are skipped.
func AggregateVotes(proposalID uint64, events []model.ChainEvent, logger *zap.Logger) (model.ProposalVotes, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	records := make([]VoteRecord, 0, len(events))
	for _, event := range events {
		rec, err := ParseVoteRecord(event)
		if err != nil {
			logger.Warn("skip vote event",
				zap.Uint64("proposal_id", proposalID),
				zap.String("event", event.EventName),
				zap.String("tx_hash", event.TxHash),
				zap.Error(err),
			)
			continue
		}
		if rec.ProposalID != proposalID {
			continue
		}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		return records[i].LogIndex < records[j].LogIndex
	})

	current := make(map[string]model.VoteAmounts)
	for _, rec := range records {
		if rec.Revoke {
			current[rec.Account] = model.ZeroVotes()
			continue
		}
		amounts, err := NormalizeVote(rec.Vote)
		if err != nil {
			logger.Warn("skip vote event",
				zap.Uint64("proposal_id", proposalID),
				zap.String("account", rec.Account),
				zap.Uint64("block_number", rec.BlockNumber),
				zap.Error(err),
			)
			continue
		}
		current[rec.Account] = amounts
	}

	out := model.ProposalVotes{
		ProposalID: proposalID,
		PerAccount: make(map[string]model.VoteAmounts),
		Totals:     model.ZeroVotes(),
	}
	for account, amounts := range current {
		if amounts.IsZero() {
			continue
		}
		out.PerAccount[account] = amounts
		out.Totals = out.Totals.Add(amounts)
	}
	if err := out.Totals.Validate(); err != nil {
		return model.ProposalVotes{}, fmt.Errorf("proposal %d: %w", proposalID, err)
	}
	return out, nil
}
