package governance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

// ErrApprovalTxNotFound means no multisig transaction carries the expected
// approve call. Callers report an empty approval set.
var ErrApprovalTxNotFound = errors.New("approval transaction not found")

// MultiSigReader reads the approver multisig transaction list.
type MultiSigReader interface {
	MultiSigTransactionCount(ctx context.Context, multisig common.Address, block *big.Int) (uint64, error)
	MultiSigTransaction(ctx context.Context, multisig common.Address, index uint64, block *big.Int) (contracts.MultiSigTransaction, error)
}

// FindApprovalTx returns the index of the newest multisig transaction that
// calls governance with exactly callData.
func FindApprovalTx(
	ctx context.Context,
	reader MultiSigReader,
	multisig common.Address,
	governance common.Address,
	callData []byte,
	block *big.Int,
) (uint64, error) {
	count, err := reader.MultiSigTransactionCount(ctx, multisig, block)
	if err != nil {
		return 0, fmt.Errorf("multisig transaction count: %w", err)
	}
	for i := count; i > 0; i-- {
		tx, err := reader.MultiSigTransaction(ctx, multisig, i-1, block)
		if err != nil {
			return 0, fmt.Errorf("multisig transaction %d: %w", i-1, err)
		}
		if tx.Matches(governance, callData) {
			return i - 1, nil
		}
	}
	return 0, ErrApprovalTxNotFound
}

// ReplayApprovals folds Confirmation and Revocation events for transactionID
// into the set of currently confirming owners, sorted. Events for other
// transactions or with malformed args are ignored.
func ReplayApprovals(transactionID uint64, events []model.ChainEvent) []string {
	ordered := make([]model.ChainEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].LogIndex < ordered[j].LogIndex
	})

	confirmed := make(map[string]struct{})
	for _, event := range ordered {
		name, ok := contracts.ParseEventName(event.EventName)
		if !ok || (name != contracts.Confirmation && name != contracts.Revocation) {
			continue
		}
		txID, err := contracts.ParseUint(event.Args, "transactionId")
		if err != nil || !txID.IsUint64() || txID.Uint64() != transactionID {
			continue
		}
		sender, err := contracts.ParseAddress(event.Args, "sender")
		if err != nil {
			continue
		}
		if name == contracts.Confirmation {
			confirmed[sender.Hex()] = struct{}{}
		} else {
			delete(confirmed, sender.Hex())
		}
	}

	out := make([]string, 0, len(confirmed))
	for addr := range confirmed {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// approvalIndex returns the position of proposalID in the dequeue list.
func approvalIndex(dequeue []*big.Int, proposalID uint64) (uint64, bool) {
	target := new(big.Int).SetUint64(proposalID)
	for i, id := range dequeue {
		if id != nil && id.Cmp(target) == 0 {
			return uint64(i), true
		}
	}
	return 0, false
}
