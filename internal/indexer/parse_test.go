package indexer

import (
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress(" 0xD533Ca259b330c7A88f74E000a3FaEa2d63B7972 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != common.HexToAddress("0xD533Ca259b330c7A88f74E000a3FaEa2d63B7972") {
		t.Fatalf("unexpected address %s", addr.Hex())
	}

	if addr, err := ParseAddress(""); err != nil || addr != (common.Address{}) {
		t.Fatalf("expected zero address, got %s %v", addr.Hex(), err)
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestExpandEventNames(t *testing.T) {
	got := ExpandEventNames([]string{"multisig", "Confirmation", "Bogus", ""})
	want := []string{"Confirmation", "Execution", "Revocation", "Submission", "Bogus"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("names mismatch: %v != %v", got, want)
	}

	gov := ExpandEventNames([]string{"governance"})
	if len(gov) != 11 {
		t.Fatalf("expected 11 governance events, got %d: %v", len(gov), gov)
	}
}
