package sqlite

import "time"

// eventRow is the persisted form of model.ChainEvent.
type eventRow struct {
	ID          uint   `gorm:"primarykey"`
	EventName   string `gorm:"uniqueIndex:idx_event_natural,priority:1;index:idx_event_lookup,priority:2;size:64;not null"`
	TxHash      string `gorm:"uniqueIndex:idx_event_natural,priority:2;size:66;not null"`
	ChainID     uint64 `gorm:"uniqueIndex:idx_event_natural,priority:3;index:idx_event_lookup,priority:1;not null"`
	Contract    string `gorm:"size:42;not null"`
	BlockNumber uint64 `gorm:"index;not null"`
	BlockHash   string `gorm:"size:66"`
	LogIndex    uint64
	Topic1      string `gorm:"index;size:66"`
	Topic2      string `gorm:"index;size:66"`
	Topic3      string `gorm:"size:66"`
	Topics      string `gorm:"type:text"` // JSON array
	Args        string `gorm:"type:text"` // JSON object
	Data        string `gorm:"type:text"`
}

func (eventRow) TableName() string {
	return "chain_events"
}

// watermarkRow tracks the last processed block per (chain, event).
type watermarkRow struct {
	ChainID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	EventName   string `gorm:"primaryKey;size:64"`
	BlockNumber uint64 `gorm:"not null"`
	UpdatedAt   time.Time
}

func (watermarkRow) TableName() string {
	return "sync_watermarks"
}
