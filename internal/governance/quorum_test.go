package governance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

func params(baseline, quorumFactor string) contracts.ParticipationParameters {
	return contracts.ParticipationParameters{
		Baseline:             fixed(baseline),
		BaselineFloor:        fixed("0.05"),
		BaselineUpdateFactor: fixed("0.2"),
		BaselineQuorumFactor: fixed(quorumFactor),
	}
}

func TestComputeQuorumUsesStrictestThreshold(t *testing.T) {
	votes, required, err := ComputeQuorum(
		params("0.5", "0.2"),
		[]*big.Int{fixed("0.5"), fixed("0.7"), fixed("0.6")},
		big.NewInt(1000),
	)
	require.NoError(t, err)
	assert.Equal(t, "100", votes.String())
	assert.Equal(t, "70", required.String())
}

func TestComputeQuorumRounds(t *testing.T) {
	// 0.1 * 1005 = 100.5 -> 101; 101 * 0.7 = 70.7 -> 71.
	votes, required, err := ComputeQuorum(params("0.5", "0.2"), []*big.Int{fixed("0.7")}, big.NewInt(1005))
	require.NoError(t, err)
	assert.Equal(t, "101", votes.String())
	assert.Equal(t, "71", required.String())

	// 0.1 * 1004 = 100.4 -> 100; 100 * 0.6 = 60.
	votes, required, err = ComputeQuorum(params("0.5", "0.2"), []*big.Int{fixed("0.6")}, big.NewInt(1004))
	require.NoError(t, err)
	assert.Equal(t, "100", votes.String())
	assert.Equal(t, "60", required.String())
}

func TestComputeQuorumLargeWeights(t *testing.T) {
	weight, _ := new(big.Int).SetString("250000000000000000000000000", 10) // 250M CELO in wei
	_, required, err := ComputeQuorum(params("0.05", "1"), []*big.Int{fixed("0.5")}, weight)
	require.NoError(t, err)
	assert.Equal(t, "6250000000000000000000000", required.String())
}

func TestComputeQuorumErrors(t *testing.T) {
	_, _, err := ComputeQuorum(params("0.5", "0.2"), nil, big.NewInt(1))
	assert.Error(t, err)

	_, _, err = ComputeQuorum(params("0.5", "0.2"), []*big.Int{fixed("0.5")}, nil)
	assert.Error(t, err)

	_, _, err = ComputeQuorum(params("0.5", "0.2"), []*big.Int{big.NewInt(-1)}, big.NewInt(1))
	assert.Error(t, err)
}

func TestIsPassingQuorumBoundary(t *testing.T) {
	required := big.NewInt(70)

	atQuorum := model.NewVoteAmounts(big.NewInt(60), big.NewInt(500), big.NewInt(10))
	assert.False(t, IsPassingQuorum(atQuorum, required))

	oneMore := model.NewVoteAmounts(big.NewInt(60), nil, big.NewInt(11))
	assert.True(t, IsPassingQuorum(oneMore, required))

	// No votes do not count towards quorum.
	noOnly := model.NewVoteAmounts(nil, big.NewInt(1000), nil)
	assert.False(t, IsPassingQuorum(noOnly, required))

	assert.False(t, IsPassingQuorum(oneMore, nil))
}
