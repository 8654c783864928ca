package notify

import (
	"context"
	"fmt"
)

// SyncNotification announces ids observed by a sync run.
type SyncNotification struct {
	ChainID uint64   `json:"chain_id"`
	Event   string   `json:"event"`
	IDs     []uint64 `json:"ids"`
	Head    uint64   `json:"head"`
}

// Notifier delivers sync notifications. Delivery is best-effort.
type Notifier interface {
	SyncCompleted(ctx context.Context, n SyncNotification)
	Close() error
}

// Channel is the pub/sub channel for an event kind on a chain.
func Channel(chainID uint64, event string) string {
	return fmt.Sprintf("govwatch:%d:%s.synced", chainID, event)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) SyncCompleted(context.Context, SyncNotification) {}

func (Nop) Close() error { return nil }
