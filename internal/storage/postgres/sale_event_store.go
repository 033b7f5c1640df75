package postgres

import (
	"context"
	"fmt"
	"time"

	"token-presale/internal/domain"
	"token-presale/internal/storage"
)

// SaleEventStore implements storage.SaleEventStore over the sale_events log.
// Reporting reads it; InsertBulk imports events of existing sales.
type SaleEventStore struct {
	pool *Pool
}

// NewSaleEventStore creates a new SaleEventStore.
func NewSaleEventStore(pool *Pool) *SaleEventStore {
	return &SaleEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SaleEventStore = (*SaleEventStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *SaleEventStore) InsertBulk(ctx context.Context, events []*domain.SaleEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	started := time.Now()
	defer func() { observe("sale_events_insert", started, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetBySale retrieves all events of a sale, ordered by seq ASC.
func (s *SaleEventStore) GetBySale(ctx context.Context, saleID string) ([]*domain.SaleEvent, error) {
	return queryEvents(ctx, s.pool, `
		SELECT event_id::text, sale_id, seq, event_type, actor, tokens, amount,
		       stage, start_time, end_time, timestamp
		FROM sale_events
		WHERE sale_id = $1
		ORDER BY seq ASC
	`, saleID)
}

// GetByTimeRange retrieves events of a sale within [start, end] (inclusive).
func (s *SaleEventStore) GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.SaleEvent, error) {
	return queryEvents(ctx, s.pool, `
		SELECT event_id::text, sale_id, seq, event_type, actor, tokens, amount,
		       stage, start_time, end_time, timestamp
		FROM sale_events
		WHERE sale_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY seq ASC
	`, saleID, start, end)
}

func insertEvent(ctx context.Context, q querier, e *domain.SaleEvent) error {
	var b bigints
	tokens, amount := b.put("tokens", e.Tokens), b.put("amount", e.Amount)
	if b.err != nil {
		return b.err
	}

	_, err := q.Exec(ctx, `
		INSERT INTO sale_events (
			event_id, sale_id, seq, event_type, actor, tokens, amount,
			stage, start_time, end_time, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.EventID, e.SaleID, e.Seq, string(e.Type), e.Actor, tokens, amount,
		e.Stage, e.StartTime, e.EndTime, e.Timestamp)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale event: %w", err)
	}
	return nil
}

func queryEvents(ctx context.Context, q querier, query string, args ...any) ([]*domain.SaleEvent, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sale events: %w", err)
	}
	defer rows.Close()

	var events []*domain.SaleEvent
	for rows.Next() {
		var e domain.SaleEvent
		var eventType string
		var tokens, amount int64
		err := rows.Scan(
			&e.EventID, &e.SaleID, &e.Seq, &eventType, &e.Actor, &tokens, &amount,
			&e.Stage, &e.StartTime, &e.EndTime, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale event row: %w", err)
		}
		e.Type = domain.SaleEventType(eventType)
		e.Tokens, e.Amount = uint64(tokens), uint64(amount)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale events: %w", err)
	}
	return events, nil
}
