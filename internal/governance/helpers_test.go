package governance

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"govwatch/internal/contracts"
	"govwatch/internal/model"
)

const testChainID = 42220

var txCounter int

func nextTxHash() string {
	txCounter++
	return common.BigToHash(big.NewInt(int64(txCounter))).Hex()
}

func addr(n int64) string {
	return common.BigToAddress(big.NewInt(n)).Hex()
}

func topic0(name contracts.EventName) string {
	h, err := name.Topic0()
	if err != nil {
		panic(err)
	}
	return h.Hex()
}

func govEvent(name contracts.EventName, block, logIndex, proposalID uint64, args map[string]string) model.ChainEvent {
	if args == nil {
		args = map[string]string{}
	}
	args["proposalId"] = strconv.FormatUint(proposalID, 10)
	topics := []string{topic0(name), proposalTopic(proposalID)}
	if account, ok := args["account"]; ok {
		topics = append(topics, common.BytesToHash(common.HexToAddress(account).Bytes()).Hex())
	}
	return model.ChainEvent{
		ChainID:     testChainID,
		Contract:    "0xD533Ca259b330c7A88f74E000a3FaEa2d63B7972",
		EventName:   string(name),
		BlockNumber: block,
		TxHash:      nextTxHash(),
		LogIndex:    logIndex,
		Topics:      topics,
		Args:        args,
	}
}

func voteV2(block, logIndex, proposalID uint64, account string, yes, no, abstain int64) model.ChainEvent {
	return govEvent(contracts.ProposalVotedV2, block, logIndex, proposalID, map[string]string{
		"account":      account,
		"yesVotes":     strconv.FormatInt(yes, 10),
		"noVotes":      strconv.FormatInt(no, 10),
		"abstainVotes": strconv.FormatInt(abstain, 10),
	})
}

func revokeV2(block, logIndex, proposalID uint64, account string, yes, no, abstain int64) model.ChainEvent {
	ev := voteV2(block, logIndex, proposalID, account, yes, no, abstain)
	ev.EventName = string(contracts.ProposalVoteRevokedV2)
	ev.Topics[0] = topic0(contracts.ProposalVoteRevokedV2)
	return ev
}

func voteV1(name contracts.EventName, block, logIndex, proposalID uint64, account string, value VoteValue, weight int64) model.ChainEvent {
	return govEvent(name, block, logIndex, proposalID, map[string]string{
		"account": account,
		"value":   strconv.Itoa(int(value)),
		"weight":  strconv.FormatInt(weight, 10),
	})
}

func multisigEvent(name contracts.EventName, block, logIndex uint64, sender string, txID uint64) model.ChainEvent {
	return model.ChainEvent{
		ChainID:     testChainID,
		Contract:    "0x41822d8A191fcfB1cfcA5F7048818aCd8eE933d3",
		EventName:   string(name),
		BlockNumber: block,
		TxHash:      nextTxHash(),
		LogIndex:    logIndex,
		Topics: []string{
			topic0(name),
			common.BytesToHash(common.HexToAddress(sender).Bytes()).Hex(),
			contracts.UintTopic(txID).Hex(),
		},
		Args: map[string]string{
			"sender":        sender,
			"transactionId": fmt.Sprintf("%d", txID),
		},
	}
}

// fixed scales a decimal fraction such as "0.5" by 1e24.
func fixed(f string) *big.Int {
	return decimal.RequireFromString(f).Shift(fixidityDigits).BigInt()
}
