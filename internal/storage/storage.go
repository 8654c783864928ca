package storage

import (
	"context"

	"govwatch/internal/model"
)

// EventFilter selects stored events. Zero values mean "no constraint".
// Results are ordered by block number then log index.
type EventFilter struct {
	ChainID    uint64
	Contract   string
	EventNames []string
	// Topics constrains topic positions (1..3) to exact hex values.
	Topics    map[int]string
	FromBlock *uint64
	ToBlock   *uint64
	Limit     int
}

// Store persists chain events and per-(chain, event) watermarks.
type Store interface {
	// UpsertEvents inserts events, silently skipping natural-key conflicts,
	// and returns the number of new rows.
	UpsertEvents(ctx context.Context, events []model.ChainEvent) (int, error)
	// GetWatermark returns the last fully processed block for key.
	GetWatermark(ctx context.Context, key model.WatermarkKey) (uint64, bool, error)
	// SetWatermark records block for key; the stored value never decreases.
	SetWatermark(ctx context.Context, key model.WatermarkKey, block uint64) error
	// Watermarks lists all watermarks of a chain.
	Watermarks(ctx context.Context, chainID uint64) (model.Watermarks, error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]model.ChainEvent, error)
	Close() error
}
