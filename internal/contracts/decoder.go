package contracts

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeLog decodes the indexed and non-indexed arguments of an event log
// into a string map. Integers are base-10, addresses and bytes are hex.
func DecodeLog(name EventName, log types.Log) (map[string]string, error) {
	event, err := name.Event()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	if log.Topics[0] != event.ID {
		return nil, fmt.Errorf("topic0 %s does not match %s", log.Topics[0].Hex(), name)
	}

	indexed := indexedArguments(event.Inputs)
	if len(log.Topics) != len(indexed)+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(log.Topics))
	}

	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	out := make(map[string]string, len(values))
	for key, value := range values {
		out[key] = FormatValue(value)
	}
	return out, nil
}

// FormatValue renders an ABI-decoded value as a string.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case [4]byte:
		return hexutil.Encode(v[:])
	case [32]byte:
		return hexutil.Encode(v[:])
	case bool:
		return strconv.FormatBool(v)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ParseUint parses a decimal argument. Negative or malformed values are errors.
func ParseUint(args map[string]string, key string) (*big.Int, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing arg %q", key)
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer for %q: %s", key, raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("negative value for %q: %s", key, raw)
	}
	return value, nil
}

// ParseAddress parses a hex address argument.
func ParseAddress(args map[string]string, key string) (common.Address, error) {
	raw, ok := args[key]
	if !ok {
		return common.Address{}, fmt.Errorf("missing arg %q", key)
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address for %q: %s", key, raw)
	}
	return common.HexToAddress(raw), nil
}

// UintTopic encodes an integer as a 32-byte topic, the way indexed uint256 values are logged.
func UintTopic(value uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(value))
}

// TopicUint reads an indexed uint256 topic. It fails when the value does not fit in uint64.
func TopicUint(topic string) (uint64, error) {
	data, err := hexutil.Decode(topic)
	if err != nil {
		return 0, fmt.Errorf("invalid topic: %w", err)
	}
	if len(data) > 32 {
		return 0, fmt.Errorf("topic length %d", len(data))
	}
	value := new(big.Int).SetBytes(data)
	if !value.IsUint64() {
		return 0, fmt.Errorf("topic value overflows uint64: %s", value)
	}
	return value.Uint64(), nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
