package indexer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"govwatch/internal/contracts"
)

// ParseAddress converts a string address into common.Address. Empty input
// yields the zero address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}

// ExpandEventNames resolves contract names ("Governance",
// "GovernanceApproverMultiSig") to their event kinds. Other entries are
// passed through untouched so unknown names reach the fetcher, which
// skips them with a warning.
func ExpandEventNames(inputs []string) []string {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		var contract contracts.Contract
		switch {
		case strings.EqualFold(input, string(contracts.Governance)):
			contract = contracts.Governance
		case strings.EqualFold(input, string(contracts.ApproverMultiSig)), strings.EqualFold(input, "multisig"):
			contract = contracts.ApproverMultiSig
		}
		if contract == "" {
			add(input)
			continue
		}
		names := contracts.EventNames(contract)
		sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
		for _, name := range names {
			add(string(name))
		}
	}
	return out
}
