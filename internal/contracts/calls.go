package contracts

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// ParticipationParameters are the Governance quorum inputs, as 1e24 fixed-point fractions.
type ParticipationParameters struct {
	Baseline             *big.Int
	BaselineFloor        *big.Int
	BaselineUpdateFactor *big.Int
	BaselineQuorumFactor *big.Int
}

// ProposalInfo is the result of Governance.getProposal.
type ProposalInfo struct {
	Proposer         common.Address
	Deposit          *big.Int
	Timestamp        *big.Int
	TransactionCount uint64
	DescriptionURL   string
	NetworkWeight    *big.Int
	Approved         bool
}

// ProposalTransaction is one call a proposal executes.
type ProposalTransaction struct {
	Value       *big.Int
	Destination common.Address
	Data        []byte
}

// Selector returns the 4-byte function selector of the call, zero for plain transfers.
func (t ProposalTransaction) Selector() [4]byte {
	var sel [4]byte
	if len(t.Data) >= 4 {
		copy(sel[:], t.Data[:4])
	}
	return sel
}

// MultiSigTransaction is an entry of the approver multisig transaction list.
type MultiSigTransaction struct {
	Destination common.Address
	Value       *big.Int
	Data        []byte
	Executed    bool
}

// Matches reports whether the transaction calls destination with exactly data.
func (t MultiSigTransaction) Matches(destination common.Address, data []byte) bool {
	return t.Destination == destination && bytes.Equal(t.Data, data)
}

// Addresses locates the tracked contracts.
type Addresses struct {
	Governance common.Address
	MultiSig   common.Address
	LockedGold common.Address
}

// Of returns the address of c, zero when c is unknown.
func (a Addresses) Of(c Contract) common.Address {
	switch c {
	case Governance:
		return a.Governance
	case ApproverMultiSig:
		return a.MultiSig
	case LockedGold:
		return a.LockedGold
	default:
		return common.Address{}
	}
}

// Reader performs point-in-time reads against the governance contracts.
// A nil block reads at the latest state.
type Reader struct {
	caller ethereum.ContractCaller
	addrs  Addresses
}

func NewReader(caller ethereum.ContractCaller, addrs Addresses) *Reader {
	return &Reader{caller: caller, addrs: addrs}
}

// Addresses returns the configured contract addresses.
func (r *Reader) Addresses() Addresses {
	return r.addrs
}

func (r *Reader) ParticipationParameters(ctx context.Context, block *big.Int) (ParticipationParameters, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getParticipationParameters", block)
	if err != nil {
		return ParticipationParameters{}, err
	}
	ints, err := bigInts(values, 4)
	if err != nil {
		return ParticipationParameters{}, fmt.Errorf("participation parameters: %w", err)
	}
	return ParticipationParameters{
		Baseline:             ints[0],
		BaselineFloor:        ints[1],
		BaselineUpdateFactor: ints[2],
		BaselineQuorumFactor: ints[3],
	}, nil
}

func (r *Reader) Proposal(ctx context.Context, proposalID uint64, block *big.Int) (ProposalInfo, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getProposal", block, new(big.Int).SetUint64(proposalID))
	if err != nil {
		return ProposalInfo{}, err
	}
	if len(values) != 7 {
		return ProposalInfo{}, fmt.Errorf("getProposal return size %d", len(values))
	}
	proposer, err := asAddress(values[0])
	if err != nil {
		return ProposalInfo{}, fmt.Errorf("proposer: %w", err)
	}
	deposit, err := asBigInt(values[1])
	if err != nil {
		return ProposalInfo{}, fmt.Errorf("deposit: %w", err)
	}
	timestamp, err := asBigInt(values[2])
	if err != nil {
		return ProposalInfo{}, fmt.Errorf("timestamp: %w", err)
	}
	txCount, err := asBigInt(values[3])
	if err != nil {
		return ProposalInfo{}, fmt.Errorf("transaction count: %w", err)
	}
	if !txCount.IsUint64() {
		return ProposalInfo{}, fmt.Errorf("transaction count overflows uint64: %s", txCount)
	}
	url, _ := values[4].(string)
	weight, err := asBigInt(values[5])
	if err != nil {
		return ProposalInfo{}, fmt.Errorf("network weight: %w", err)
	}
	approved, _ := values[6].(bool)

	return ProposalInfo{
		Proposer:         proposer,
		Deposit:          deposit,
		Timestamp:        timestamp,
		TransactionCount: txCount.Uint64(),
		DescriptionURL:   url,
		NetworkWeight:    weight,
		Approved:         approved,
	}, nil
}

func (r *Reader) ProposalTransaction(ctx context.Context, proposalID, index uint64, block *big.Int) (ProposalTransaction, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getProposalTransaction", block,
		new(big.Int).SetUint64(proposalID), new(big.Int).SetUint64(index))
	if err != nil {
		return ProposalTransaction{}, err
	}
	if len(values) != 3 {
		return ProposalTransaction{}, fmt.Errorf("getProposalTransaction return size %d", len(values))
	}
	value, err := asBigInt(values[0])
	if err != nil {
		return ProposalTransaction{}, fmt.Errorf("value: %w", err)
	}
	dest, err := asAddress(values[1])
	if err != nil {
		return ProposalTransaction{}, fmt.Errorf("destination: %w", err)
	}
	data, ok := values[2].([]byte)
	if !ok {
		return ProposalTransaction{}, fmt.Errorf("data unexpected type %T", values[2])
	}
	return ProposalTransaction{Value: value, Destination: dest, Data: data}, nil
}

// Constitution returns the approval threshold for calls of selector on destination.
func (r *Reader) Constitution(ctx context.Context, destination common.Address, selector [4]byte, block *big.Int) (*big.Int, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getConstitution", block, destination, selector)
	if err != nil {
		return nil, err
	}
	ints, err := bigInts(values, 1)
	if err != nil {
		return nil, fmt.Errorf("constitution: %w", err)
	}
	return ints[0], nil
}

func (r *Reader) ProposalStage(ctx context.Context, proposalID uint64, block *big.Int) (uint8, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getProposalStage", block, new(big.Int).SetUint64(proposalID))
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("getProposalStage return size %d", len(values))
	}
	stage, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("stage unexpected type %T", values[0])
	}
	return stage, nil
}

// Dequeue returns the dequeued proposal ids; a proposal's position is its approval index.
func (r *Reader) Dequeue(ctx context.Context, block *big.Int) ([]*big.Int, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "getDequeue", block)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getDequeue return size %d", len(values))
	}
	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("dequeue unexpected type %T", values[0])
	}
	return ids, nil
}

// Approver returns the address allowed to approve proposals.
func (r *Reader) Approver(ctx context.Context, block *big.Int) (common.Address, error) {
	values, err := r.call(ctx, Governance, r.addrs.Governance, "approver", block)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("approver return size %d", len(values))
	}
	return asAddress(values[0])
}

// ApproveCallData encodes Governance.approve(proposalId, index).
func ApproveCallData(proposalID, index uint64) ([]byte, error) {
	parsed, err := GovernanceABI()
	if err != nil {
		return nil, err
	}
	return parsed.Pack("approve", new(big.Int).SetUint64(proposalID), new(big.Int).SetUint64(index))
}

// MultiSigTransactionCount counts multisig transactions, pending and executed.
func (r *Reader) MultiSigTransactionCount(ctx context.Context, multisig common.Address, block *big.Int) (uint64, error) {
	values, err := r.call(ctx, ApproverMultiSig, multisig, "getTransactionCount", block, true, true)
	if err != nil {
		return 0, err
	}
	ints, err := bigInts(values, 1)
	if err != nil {
		return 0, fmt.Errorf("transaction count: %w", err)
	}
	if !ints[0].IsUint64() {
		return 0, fmt.Errorf("transaction count overflows uint64: %s", ints[0])
	}
	return ints[0].Uint64(), nil
}

func (r *Reader) MultiSigTransaction(ctx context.Context, multisig common.Address, index uint64, block *big.Int) (MultiSigTransaction, error) {
	values, err := r.call(ctx, ApproverMultiSig, multisig, "transactions", block, new(big.Int).SetUint64(index))
	if err != nil {
		return MultiSigTransaction{}, err
	}
	if len(values) != 4 {
		return MultiSigTransaction{}, fmt.Errorf("transactions return size %d", len(values))
	}
	dest, err := asAddress(values[0])
	if err != nil {
		return MultiSigTransaction{}, fmt.Errorf("destination: %w", err)
	}
	value, err := asBigInt(values[1])
	if err != nil {
		return MultiSigTransaction{}, fmt.Errorf("value: %w", err)
	}
	data, ok := values[2].([]byte)
	if !ok {
		return MultiSigTransaction{}, fmt.Errorf("data unexpected type %T", values[2])
	}
	executed, _ := values[3].(bool)
	return MultiSigTransaction{Destination: dest, Value: value, Data: data, Executed: executed}, nil
}

// MultiSigRequired returns the number of confirmations the multisig needs.
func (r *Reader) MultiSigRequired(ctx context.Context, multisig common.Address, block *big.Int) (uint64, error) {
	values, err := r.call(ctx, ApproverMultiSig, multisig, "required", block)
	if err != nil {
		return 0, err
	}
	ints, err := bigInts(values, 1)
	if err != nil {
		return 0, fmt.Errorf("required: %w", err)
	}
	return ints[0].Uint64(), nil
}

func (r *Reader) TotalLockedGold(ctx context.Context, block *big.Int) (*big.Int, error) {
	values, err := r.call(ctx, LockedGold, r.addrs.LockedGold, "getTotalLockedGold", block)
	if err != nil {
		return nil, err
	}
	ints, err := bigInts(values, 1)
	if err != nil {
		return nil, fmt.Errorf("total locked gold: %w", err)
	}
	return ints[0], nil
}

func (r *Reader) call(ctx context.Context, contract Contract, to common.Address, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	if r.caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := contract.ABI()
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", contract, err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func bigInts(values []interface{}, n int) ([]*big.Int, error) {
	if len(values) != n {
		return nil, fmt.Errorf("return size %d, want %d", len(values), n)
	}
	out := make([]*big.Int, 0, n)
	for _, v := range values {
		i, err := asBigInt(v)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return v, nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unexpected integer type %T", value)
	}
}

func asAddress(value interface{}) (common.Address, error) {
	addr, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected address type %T", value)
	}
	return addr, nil
}
