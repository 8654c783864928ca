package model

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrNegativeTotal is returned when aggregated vote weights go below zero.
var ErrNegativeTotal = errors.New("negative vote total")

// VoteAmounts holds yes/no/abstain weights in wei.
type VoteAmounts struct {
	Yes     *big.Int `json:"yes"`
	No      *big.Int `json:"no"`
	Abstain *big.Int `json:"abstain"`
}

// ZeroVotes returns VoteAmounts with all weights set to zero.
func ZeroVotes() VoteAmounts {
	return VoteAmounts{Yes: new(big.Int), No: new(big.Int), Abstain: new(big.Int)}
}

// NewVoteAmounts copies the given weights. Nil values are treated as zero.
func NewVoteAmounts(yes, no, abstain *big.Int) VoteAmounts {
	return VoteAmounts{Yes: copyInt(yes), No: copyInt(no), Abstain: copyInt(abstain)}
}

// IsZero reports whether all weights are zero.
func (v VoteAmounts) IsZero() bool {
	return sign(v.Yes) == 0 && sign(v.No) == 0 && sign(v.Abstain) == 0
}

// Total returns yes + no + abstain.
func (v VoteAmounts) Total() *big.Int {
	total := copyInt(v.Yes)
	total.Add(total, copyInt(v.No))
	return total.Add(total, copyInt(v.Abstain))
}

// Add returns the element-wise sum of v and o.
func (v VoteAmounts) Add(o VoteAmounts) VoteAmounts {
	return VoteAmounts{
		Yes:     new(big.Int).Add(copyInt(v.Yes), copyInt(o.Yes)),
		No:      new(big.Int).Add(copyInt(v.No), copyInt(o.No)),
		Abstain: new(big.Int).Add(copyInt(v.Abstain), copyInt(o.Abstain)),
	}
}

// Equal compares weights numerically.
func (v VoteAmounts) Equal(o VoteAmounts) bool {
	return copyInt(v.Yes).Cmp(copyInt(o.Yes)) == 0 &&
		copyInt(v.No).Cmp(copyInt(o.No)) == 0 &&
		copyInt(v.Abstain).Cmp(copyInt(o.Abstain)) == 0
}

// Validate returns ErrNegativeTotal if any weight is negative.
func (v VoteAmounts) Validate() error {
	if sign(v.Yes) < 0 || sign(v.No) < 0 || sign(v.Abstain) < 0 {
		return fmt.Errorf("%w: yes=%s no=%s abstain=%s", ErrNegativeTotal, copyInt(v.Yes), copyInt(v.No), copyInt(v.Abstain))
	}
	return nil
}

// ProposalVotes is the aggregated vote view for a proposal.
type ProposalVotes struct {
	ProposalID uint64                 `json:"proposal_id"`
	PerAccount map[string]VoteAmounts `json:"per_account"`
	Totals     VoteAmounts            `json:"totals"`
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func sign(x *big.Int) int {
	if x == nil {
		return 0
	}
	return x.Sign()
}
