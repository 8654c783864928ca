package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"govwatch/internal/model"
	"govwatch/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS chain_events (
	id BIGSERIAL PRIMARY KEY,
	event_name TEXT NOT NULL,
	tx_hash TEXT NOT NULL,
	chain_id BIGINT NOT NULL,
	contract TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	block_hash TEXT NOT NULL DEFAULT '',
	log_index BIGINT NOT NULL DEFAULT 0,
	topics TEXT[] NOT NULL DEFAULT '{}',
	args JSONB NOT NULL DEFAULT '{}',
	data TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (event_name, tx_hash, chain_id)
);
CREATE INDEX IF NOT EXISTS chain_events_lookup_idx
	ON chain_events (chain_id, event_name, block_number, log_index);
CREATE INDEX IF NOT EXISTS chain_events_topic1_idx
	ON chain_events (chain_id, event_name, (topics[2]));

CREATE TABLE IF NOT EXISTS sync_watermarks (
	chain_id BIGINT NOT NULL,
	event_name TEXT NOT NULL,
	block_number BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, event_name)
);
`

// Store provides Postgres persistence for chain events and watermarks.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore connects to dsn and bootstraps the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// UpsertEvents inserts events, skipping rows whose natural key already exists.
func (s *Store) UpsertEvents(ctx context.Context, events []model.ChainEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, event := range events {
		args := event.Args
		if args == nil {
			args = map[string]string{}
		}
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return 0, fmt.Errorf("marshal args: %w", err)
		}
		topics := make([]string, 0, len(event.Topics))
		for _, topic := range event.Topics {
			topics = append(topics, strings.ToLower(topic))
		}
		batch.Queue(`
			INSERT INTO chain_events (
				event_name, tx_hash, chain_id, contract, block_number, block_hash,
				log_index, topics, args, data
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
			ON CONFLICT (event_name, tx_hash, chain_id) DO NOTHING
		`,
			event.EventName,
			strings.ToLower(event.TxHash),
			int64(event.ChainID),
			event.Contract,
			int64(event.BlockNumber),
			event.BlockHash,
			int64(event.LogIndex),
			topics,
			string(argsJSON),
			event.Data,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range events {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetWatermark returns the stored block for key.
func (s *Store) GetWatermark(ctx context.Context, key model.WatermarkKey) (uint64, bool, error) {
	if key.EventName == "" {
		return 0, false, fmt.Errorf("watermark event name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx,
		`SELECT block_number FROM sync_watermarks WHERE chain_id=$1 AND event_name=$2`,
		int64(key.ChainID), key.EventName)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SetWatermark upserts block for key without ever lowering the stored value.
func (s *Store) SetWatermark(ctx context.Context, key model.WatermarkKey, block uint64) error {
	if key.EventName == "" {
		return fmt.Errorf("watermark event name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_watermarks (chain_id, event_name, block_number, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (chain_id, event_name) DO UPDATE
		SET block_number = GREATEST(sync_watermarks.block_number, EXCLUDED.block_number),
			updated_at = now()
	`, int64(key.ChainID), key.EventName, int64(block))
	return err
}

// Watermarks lists every watermark of chainID.
func (s *Store) Watermarks(ctx context.Context, chainID uint64) (model.Watermarks, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_name, block_number FROM sync_watermarks WHERE chain_id=$1`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := model.Watermarks{}
	for rows.Next() {
		var (
			name  string
			block int64
		)
		if err := rows.Scan(&name, &block); err != nil {
			return nil, err
		}
		out[model.WatermarkKey{ChainID: chainID, EventName: name}] = uint64(block)
	}
	return out, rows.Err()
}

// QueryEvents returns events matching filter ordered by block and log index.
func (s *Store) QueryEvents(ctx context.Context, filter storage.EventFilter) ([]model.ChainEvent, error) {
	query, args, err := buildQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChainEvent
	for rows.Next() {
		var (
			event                    model.ChainEvent
			chainID, block, logIndex int64
			argsJSON                 []byte
		)
		if err := rows.Scan(
			&event.EventName,
			&event.TxHash,
			&chainID,
			&event.Contract,
			&block,
			&event.BlockHash,
			&logIndex,
			&event.Topics,
			&argsJSON,
			&event.Data,
		); err != nil {
			return nil, err
		}
		event.ChainID = uint64(chainID)
		event.BlockNumber = uint64(block)
		event.LogIndex = uint64(logIndex)
		event.Args = map[string]string{}
		if len(argsJSON) > 0 {
			if err := json.Unmarshal(argsJSON, &event.Args); err != nil {
				return nil, fmt.Errorf("parse args of %s: %w", event.TxHash, err)
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func buildQuery(filter storage.EventFilter) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.ChainID != 0 {
		add("chain_id = $%d", int64(filter.ChainID))
	}
	if filter.Contract != "" {
		add("lower(contract) = $%d", strings.ToLower(filter.Contract))
	}
	if len(filter.EventNames) > 0 {
		add("event_name = ANY($%d)", filter.EventNames)
	}
	for pos, value := range filter.Topics {
		if pos < 1 || pos > 3 {
			return "", nil, fmt.Errorf("unsupported topic position %d", pos)
		}
		// Postgres arrays are 1-based.
		add(fmt.Sprintf("topics[%d] = $%%d", pos+1), strings.ToLower(value))
	}
	if filter.FromBlock != nil {
		add("block_number >= $%d", int64(*filter.FromBlock))
	}
	if filter.ToBlock != nil {
		add("block_number <= $%d", int64(*filter.ToBlock))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT event_name, tx_hash, chain_id, contract, block_number, block_hash,
		log_index, topics, args, data FROM chain_events`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY block_number ASC, log_index ASC, id ASC")
	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}
	return sb.String(), args, nil
}
