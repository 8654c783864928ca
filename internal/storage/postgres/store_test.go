package postgres

import (
	"strings"
	"testing"

	"govwatch/internal/storage"
)

func TestBuildQuery(t *testing.T) {
	from := uint64(100)
	query, args, err := buildQuery(storage.EventFilter{
		ChainID:    42220,
		EventNames: []string{"ProposalVoted"},
		Topics:     map[int]string{1: "0xABC"},
		FromBlock:  &from,
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"chain_id = $1",
		"event_name = ANY($2)",
		"topics[2] = $3",
		"block_number >= $4",
		"ORDER BY block_number ASC, log_index ASC",
		"LIMIT 10",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %d", len(args))
	}
	if args[2] != "0xabc" {
		t.Fatalf("topic arg not lowercased: %v", args[2])
	}
}

func TestBuildQueryRejectsTopicPosition(t *testing.T) {
	if _, _, err := buildQuery(storage.EventFilter{Topics: map[int]string{0: "0x1"}}); err == nil {
		t.Fatalf("expected error for topic 0")
	}
}

func TestBuildQueryNoFilter(t *testing.T) {
	query, args, err := buildQuery(storage.EventFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(query, "WHERE") || len(args) != 0 {
		t.Fatalf("unexpected constraints: %s %v", query, args)
	}
}
