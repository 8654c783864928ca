package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"govwatch/internal/model"
	"govwatch/internal/storage"
)

const insertBatchSize = 500

var memoryDBCounter atomic.Uint64

// Store is an embedded event store backed by SQLite.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at path. An empty path opens a
// private in-memory database.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dsn string
	if path == "" {
		dsn = fmt.Sprintf("file:govwatch%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&eventRow{}, &watermarkRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Debug("sqlite store ready", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertEvents inserts events, ignoring natural-key conflicts.
func (s *Store) UpsertEvents(ctx context.Context, events []model.ChainEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([]eventRow, 0, len(events))
	for _, event := range events {
		row, err := toRow(event)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_name"}, {Name: "tx_hash"}, {Name: "chain_id"}},
		DoNothing: true,
	}).CreateInBatches(&rows, insertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("insert events: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// GetWatermark returns the stored watermark for key.
func (s *Store) GetWatermark(ctx context.Context, key model.WatermarkKey) (uint64, bool, error) {
	var row watermarkRow
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND event_name = ?", key.ChainID, key.EventName).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return row.BlockNumber, true, nil
}

// SetWatermark upserts the watermark, keeping the larger of the stored and new value.
func (s *Store) SetWatermark(ctx context.Context, key model.WatermarkKey, block uint64) error {
	if key.EventName == "" {
		return fmt.Errorf("watermark event name required")
	}
	row := watermarkRow{
		ChainID:     key.ChainID,
		EventName:   key.EventName,
		BlockNumber: block,
		UpdatedAt:   time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_id"}, {Name: "event_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"block_number": gorm.Expr("MAX(sync_watermarks.block_number, excluded.block_number)"),
			"updated_at":   row.UpdatedAt,
		}),
	}).Create(&row).Error
}

// Watermarks lists all watermarks of a chain.
func (s *Store) Watermarks(ctx context.Context, chainID uint64) (model.Watermarks, error) {
	var rows []watermarkRow
	if err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(model.Watermarks, len(rows))
	for _, row := range rows {
		out[model.WatermarkKey{ChainID: row.ChainID, EventName: row.EventName}] = row.BlockNumber
	}
	return out, nil
}

// QueryEvents returns events matching filter in chain order.
func (s *Store) QueryEvents(ctx context.Context, filter storage.EventFilter) ([]model.ChainEvent, error) {
	q := s.db.WithContext(ctx).Model(&eventRow{})
	if filter.ChainID != 0 {
		q = q.Where("chain_id = ?", filter.ChainID)
	}
	if filter.Contract != "" {
		q = q.Where("LOWER(contract) = ?", strings.ToLower(filter.Contract))
	}
	if len(filter.EventNames) > 0 {
		q = q.Where("event_name IN ?", filter.EventNames)
	}
	for pos, value := range filter.Topics {
		column, err := topicColumn(pos)
		if err != nil {
			return nil, err
		}
		q = q.Where(column+" = ?", strings.ToLower(value))
	}
	if filter.FromBlock != nil {
		q = q.Where("block_number >= ?", *filter.FromBlock)
	}
	if filter.ToBlock != nil {
		q = q.Where("block_number <= ?", *filter.ToBlock)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []eventRow
	if err := q.Order("block_number ASC, log_index ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]model.ChainEvent, 0, len(rows))
	for _, row := range rows {
		event, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func topicColumn(pos int) (string, error) {
	switch pos {
	case 1:
		return "topic1", nil
	case 2:
		return "topic2", nil
	case 3:
		return "topic3", nil
	default:
		return "", fmt.Errorf("unsupported topic position %d", pos)
	}
}

func toRow(event model.ChainEvent) (eventRow, error) {
	topics := make([]string, 0, len(event.Topics))
	for _, topic := range event.Topics {
		topics = append(topics, strings.ToLower(topic))
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return eventRow{}, fmt.Errorf("marshal topics: %w", err)
	}
	args := event.Args
	if args == nil {
		args = map[string]string{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return eventRow{}, fmt.Errorf("marshal args: %w", err)
	}

	topicAt := func(i int) string {
		if i < len(topics) {
			return topics[i]
		}
		return ""
	}

	return eventRow{
		EventName:   event.EventName,
		TxHash:      strings.ToLower(event.TxHash),
		ChainID:     event.ChainID,
		Contract:    event.Contract,
		BlockNumber: event.BlockNumber,
		BlockHash:   event.BlockHash,
		LogIndex:    event.LogIndex,
		Topic1:      topicAt(1),
		Topic2:      topicAt(2),
		Topic3:      topicAt(3),
		Topics:      string(topicsJSON),
		Args:        string(argsJSON),
		Data:        event.Data,
	}, nil
}

func fromRow(row eventRow) (model.ChainEvent, error) {
	var topics []string
	if row.Topics != "" {
		if err := json.Unmarshal([]byte(row.Topics), &topics); err != nil {
			return model.ChainEvent{}, fmt.Errorf("parse topics of %s: %w", row.TxHash, err)
		}
	}
	args := map[string]string{}
	if row.Args != "" {
		if err := json.Unmarshal([]byte(row.Args), &args); err != nil {
			return model.ChainEvent{}, fmt.Errorf("parse args of %s: %w", row.TxHash, err)
		}
	}
	return model.ChainEvent{
		ChainID:     row.ChainID,
		Contract:    row.Contract,
		EventName:   row.EventName,
		BlockNumber: row.BlockNumber,
		BlockHash:   row.BlockHash,
		TxHash:      row.TxHash,
		LogIndex:    row.LogIndex,
		Topics:      topics,
		Args:        args,
		Data:        row.Data,
	}, nil
}
