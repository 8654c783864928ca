package model

import "strings"

// ChainEvent is a decoded contract event as persisted by the event store.
// The natural key is (EventName, TxHash, ChainID).
type ChainEvent struct {
	ChainID     uint64            `json:"chain_id"`
	Contract    string            `json:"contract"`
	EventName   string            `json:"event_name"`
	BlockNumber uint64            `json:"block_number"`
	BlockHash   string            `json:"block_hash"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint64            `json:"log_index"`
	Topics      []string          `json:"topics"`
	Args        map[string]string `json:"args"`
	Data        string            `json:"data"`
}

// Key returns the idempotency key of the event.
func (e ChainEvent) Key() EventKey {
	return EventKey{EventName: e.EventName, TxHash: strings.ToLower(e.TxHash), ChainID: e.ChainID}
}

// Topic returns the topic at index i, or "" when the log has fewer topics.
func (e ChainEvent) Topic(i int) string {
	if i < 0 || i >= len(e.Topics) {
		return ""
	}
	return e.Topics[i]
}

// EventKey identifies a ChainEvent.
type EventKey struct {
	EventName string
	TxHash    string
	ChainID   uint64
}
