package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract identifies one of the tracked contracts.
type Contract string

const (
	Governance       Contract = "Governance"
	ApproverMultiSig Contract = "GovernanceApproverMultiSig"
	LockedGold       Contract = "LockedGold"
)

// ABI returns the parsed ABI of the contract.
func (c Contract) ABI() (abi.ABI, error) {
	switch c {
	case Governance:
		return GovernanceABI()
	case ApproverMultiSig:
		return MultiSigABI()
	case LockedGold:
		return LockedGoldABI()
	default:
		return abi.ABI{}, fmt.Errorf("unknown contract: %s", c)
	}
}

// EventName is a closed set of event kinds the indexer understands.
type EventName string

const (
	ProposalQueued        EventName = "ProposalQueued"
	ProposalDequeued      EventName = "ProposalDequeued"
	ProposalApproved      EventName = "ProposalApproved"
	ProposalExecuted      EventName = "ProposalExecuted"
	ProposalExpired       EventName = "ProposalExpired"
	ProposalUpvoted       EventName = "ProposalUpvoted"
	ProposalUpvoteRevoked EventName = "ProposalUpvoteRevoked"
	ProposalVoted         EventName = "ProposalVoted"
	ProposalVotedV2       EventName = "ProposalVotedV2"
	ProposalVoteRevoked   EventName = "ProposalVoteRevoked"
	ProposalVoteRevokedV2 EventName = "ProposalVoteRevokedV2"

	Confirmation EventName = "Confirmation"
	Revocation   EventName = "Revocation"
	Submission   EventName = "Submission"
	Execution    EventName = "Execution"
)

var eventContracts = map[EventName]Contract{
	ProposalQueued:        Governance,
	ProposalDequeued:      Governance,
	ProposalApproved:      Governance,
	ProposalExecuted:      Governance,
	ProposalExpired:       Governance,
	ProposalUpvoted:       Governance,
	ProposalUpvoteRevoked: Governance,
	ProposalVoted:         Governance,
	ProposalVotedV2:       Governance,
	ProposalVoteRevoked:   Governance,
	ProposalVoteRevokedV2: Governance,

	Confirmation: ApproverMultiSig,
	Revocation:   ApproverMultiSig,
	Submission:   ApproverMultiSig,
	Execution:    ApproverMultiSig,
}

// ParseEventName maps a raw event name onto the allow-list. Matching is
// case-insensitive; unknown names return false.
func ParseEventName(name string) (EventName, bool) {
	name = strings.TrimSpace(name)
	for known := range eventContracts {
		if strings.EqualFold(string(known), name) {
			return known, true
		}
	}
	return "", false
}

// EventNames returns the allow-listed events of a contract.
func EventNames(c Contract) []EventName {
	out := make([]EventName, 0, len(eventContracts))
	for name, owner := range eventContracts {
		if owner == c {
			out = append(out, name)
		}
	}
	return out
}

// Contract returns the contract that emits the event.
func (e EventName) Contract() Contract {
	return eventContracts[e]
}

// Event returns the ABI definition of the event.
func (e EventName) Event() (abi.Event, error) {
	contract, ok := eventContracts[e]
	if !ok {
		return abi.Event{}, fmt.Errorf("unknown event: %s", e)
	}
	parsed, err := contract.ABI()
	if err != nil {
		return abi.Event{}, err
	}
	event, ok := parsed.Events[string(e)]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s missing from %s abi", e, contract)
	}
	return event, nil
}

// Topic0 returns the event signature hash.
func (e EventName) Topic0() (common.Hash, error) {
	event, err := e.Event()
	if err != nil {
		return common.Hash{}, err
	}
	return event.ID, nil
}

// SubjectTopic is the topic index carrying the id the event is about:
// proposalId for Governance events, transactionId for multisig events.
func (e EventName) SubjectTopic() int {
	switch e {
	case Confirmation, Revocation:
		return 2
	default:
		return 1
	}
}
