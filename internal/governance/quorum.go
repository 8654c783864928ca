package governance

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

// fixidityDigits is the scale of on-chain fixed-point fractions (1e24 == 1.0).
const fixidityDigits = 24

// FromFixidity converts a 1e24-scaled fraction to a decimal.
func FromFixidity(value *big.Int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -fixidityDigits)
}

// ComputeQuorum derives the votes a proposal needs:
//
//	quorumPercent = baseline * baselineQuorumFactor
//	quorumVotes   = round(quorumPercent * networkWeight)
//	required      = round(quorumVotes * max(thresholds))
func ComputeQuorum(params contracts.ParticipationParameters, thresholds []*big.Int, networkWeight *big.Int) (quorumVotes, required *big.Int, err error) {
	if len(thresholds) == 0 {
		return nil, nil, fmt.Errorf("no constitutional thresholds")
	}
	if networkWeight == nil || networkWeight.Sign() < 0 {
		return nil, nil, fmt.Errorf("invalid network weight %v", networkWeight)
	}

	var strictest decimal.Decimal
	for i, threshold := range thresholds {
		if threshold == nil || threshold.Sign() < 0 {
			return nil, nil, fmt.Errorf("invalid threshold %d: %v", i, threshold)
		}
		if value := FromFixidity(threshold); i == 0 || value.GreaterThan(strictest) {
			strictest = value
		}
	}

	quorumPercent := FromFixidity(params.Baseline).Mul(FromFixidity(params.BaselineQuorumFactor))
	votes := quorumPercent.Mul(decimal.NewFromBigInt(networkWeight, 0)).Round(0)
	req := votes.Mul(strictest).Round(0)
	return votes.BigInt(), req.BigInt(), nil
}

// IsPassingQuorum reports whether yes + abstain strictly exceeds required.
func IsPassingQuorum(votes model.VoteAmounts, required *big.Int) bool {
	if required == nil {
		return false
	}
	participation := new(big.Int)
	if votes.Yes != nil {
		participation.Add(participation, votes.Yes)
	}
	if votes.Abstain != nil {
		participation.Add(participation, votes.Abstain)
	}
	return participation.Cmp(required) > 0
}
