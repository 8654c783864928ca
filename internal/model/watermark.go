package model

import "fmt"

// WatermarkKey identifies an independent sync cursor.
type WatermarkKey struct {
	ChainID   uint64 `json:"chain_id"`
	EventName string `json:"event_name"`
}

func (k WatermarkKey) String() string {
	return fmt.Sprintf("%d:%s", k.ChainID, k.EventName)
}

// SyncWatermark is the highest block fully processed for a key.
type SyncWatermark struct {
	WatermarkKey
	BlockNumber uint64 `json:"block_number"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Watermarks is a keyed view of sync progress, passed into and returned from a sync run.
type Watermarks map[WatermarkKey]uint64

// Advance records block for key unless it would move the watermark backwards.
// It reports whether the stored value changed.
func (w Watermarks) Advance(key WatermarkKey, block uint64) bool {
	if cur, ok := w[key]; ok && block <= cur {
		return false
	}
	w[key] = block
	return true
}
