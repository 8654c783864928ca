package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const governanceABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "proposer", "type": "address"},
    {"indexed": false, "name": "transactionCount", "type": "uint256"},
    {"indexed": false, "name": "deposit", "type": "uint256"},
    {"indexed": false, "name": "timestamp", "type": "uint256"}
  ], "name": "ProposalQueued", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": false, "name": "timestamp", "type": "uint256"}
  ], "name": "ProposalDequeued", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"}
  ], "name": "ProposalApproved", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"}
  ], "name": "ProposalExecuted", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"}
  ], "name": "ProposalExpired", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "upvotes", "type": "uint256"}
  ], "name": "ProposalUpvoted", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "revokedUpvotes", "type": "uint256"}
  ], "name": "ProposalUpvoteRevoked", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"},
    {"indexed": false, "name": "weight", "type": "uint256"}
  ], "name": "ProposalVoted", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "yesVotes", "type": "uint256"},
    {"indexed": false, "name": "noVotes", "type": "uint256"},
    {"indexed": false, "name": "abstainVotes", "type": "uint256"}
  ], "name": "ProposalVotedV2", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"},
    {"indexed": false, "name": "weight", "type": "uint256"}
  ], "name": "ProposalVoteRevoked", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "proposalId", "type": "uint256"},
    {"indexed": true, "name": "account", "type": "address"},
    {"indexed": false, "name": "yesVotes", "type": "uint256"},
    {"indexed": false, "name": "noVotes", "type": "uint256"},
    {"indexed": false, "name": "abstainVotes", "type": "uint256"}
  ], "name": "ProposalVoteRevokedV2", "type": "event"},
  {"inputs": [], "name": "getParticipationParameters", "outputs": [
    {"name": "baseline", "type": "uint256"},
    {"name": "baselineFloor", "type": "uint256"},
    {"name": "baselineUpdateFactor", "type": "uint256"},
    {"name": "baselineQuorumFactor", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "proposalId", "type": "uint256"}], "name": "getProposal", "outputs": [
    {"name": "proposer", "type": "address"},
    {"name": "deposit", "type": "uint256"},
    {"name": "timestamp", "type": "uint256"},
    {"name": "transactionCount", "type": "uint256"},
    {"name": "descriptionUrl", "type": "string"},
    {"name": "networkWeight", "type": "uint256"},
    {"name": "approved", "type": "bool"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "proposalId", "type": "uint256"}, {"name": "index", "type": "uint256"}], "name": "getProposalTransaction", "outputs": [
    {"name": "value", "type": "uint256"},
    {"name": "destination", "type": "address"},
    {"name": "data", "type": "bytes"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "destination", "type": "address"}, {"name": "functionId", "type": "bytes4"}], "name": "getConstitution", "outputs": [
    {"name": "", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "proposalId", "type": "uint256"}], "name": "getProposalStage", "outputs": [
    {"name": "", "type": "uint8"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "getDequeue", "outputs": [
    {"name": "", "type": "uint256[]"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "approver", "outputs": [
    {"name": "", "type": "address"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "proposalId", "type": "uint256"}, {"name": "index", "type": "uint256"}], "name": "approve", "outputs": [
    {"name": "", "type": "bool"}
  ], "stateMutability": "nonpayable", "type": "function"}
]`

const multiSigABIJSON = `[
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "sender", "type": "address"},
    {"indexed": true, "name": "transactionId", "type": "uint256"}
  ], "name": "Confirmation", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "sender", "type": "address"},
    {"indexed": true, "name": "transactionId", "type": "uint256"}
  ], "name": "Revocation", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "transactionId", "type": "uint256"}
  ], "name": "Submission", "type": "event"},
  {"anonymous": false, "inputs": [
    {"indexed": true, "name": "transactionId", "type": "uint256"},
    {"indexed": false, "name": "returnData", "type": "bytes"}
  ], "name": "Execution", "type": "event"},
  {"inputs": [{"name": "pending", "type": "bool"}, {"name": "executed", "type": "bool"}], "name": "getTransactionCount", "outputs": [
    {"name": "", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "", "type": "uint256"}], "name": "transactions", "outputs": [
    {"name": "destination", "type": "address"},
    {"name": "value", "type": "uint256"},
    {"name": "data", "type": "bytes"},
    {"name": "executed", "type": "bool"}
  ], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "required", "outputs": [
    {"name": "", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"}
]`

const lockedGoldABIJSON = `[
  {"inputs": [], "name": "getTotalLockedGold", "outputs": [
    {"name": "", "type": "uint256"}
  ], "stateMutability": "view", "type": "function"}
]`

var (
	governanceABI     abi.ABI
	governanceABIOnce sync.Once
	governanceABIErr  error

	multiSigABI     abi.ABI
	multiSigABIOnce sync.Once
	multiSigABIErr  error

	lockedGoldABI     abi.ABI
	lockedGoldABIOnce sync.Once
	lockedGoldABIErr  error
)

// GovernanceABI returns the parsed Governance ABI.
func GovernanceABI() (abi.ABI, error) {
	governanceABIOnce.Do(func() {
		governanceABI, governanceABIErr = abi.JSON(strings.NewReader(governanceABIJSON))
	})
	return governanceABI, governanceABIErr
}

// MultiSigABI returns the parsed approver MultiSig ABI.
func MultiSigABI() (abi.ABI, error) {
	multiSigABIOnce.Do(func() {
		multiSigABI, multiSigABIErr = abi.JSON(strings.NewReader(multiSigABIJSON))
	})
	return multiSigABI, multiSigABIErr
}

// LockedGoldABI returns the parsed LockedGold ABI.
func LockedGoldABI() (abi.ABI, error) {
	lockedGoldABIOnce.Do(func() {
		lockedGoldABI, lockedGoldABIErr = abi.JSON(strings.NewReader(lockedGoldABIJSON))
	})
	return lockedGoldABI, lockedGoldABIErr
}
