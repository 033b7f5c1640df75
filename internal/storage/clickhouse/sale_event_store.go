package clickhouse

import (
	"context"
	"fmt"
	"time"

	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/storage"
)

// SaleEventStore implements storage.SaleEventStore on a ReplacingMergeTree.
// MergeTree does not enforce uniqueness, so InsertBulk checks event ids first.
type SaleEventStore struct {
	conn *Conn
}

// NewSaleEventStore creates a new SaleEventStore.
func NewSaleEventStore(conn *Conn) *SaleEventStore {
	return &SaleEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SaleEventStore = (*SaleEventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *SaleEventStore) InsertBulk(ctx context.Context, events []*domain.SaleEvent) (err error) {
	if len(events) == 0 {
		return nil
	}
	started := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "sale_events_insert", time.Since(started).Seconds(), err)
	}()

	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[e.EventID]; dup {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
		ids = append(ids, e.EventID)
	}

	var existing uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM sale_events WHERE event_id IN (?)`, ids).Scan(&existing); err != nil {
		return fmt.Errorf("check existing events: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO sale_events (
			event_id, sale_id, seq, event_type, actor,
			tokens, amount, stage, start_time, end_time, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID, e.SaleID, e.Seq, string(e.Type), e.Actor,
			e.Tokens, e.Amount, int32(e.Stage), e.StartTime, e.EndTime, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySale retrieves all events of a sale, ordered by seq ASC.
func (s *SaleEventStore) GetBySale(ctx context.Context, saleID string) ([]*domain.SaleEvent, error) {
	query := `
		SELECT event_id, sale_id, seq, event_type, actor,
		       tokens, amount, stage, start_time, end_time, timestamp
		FROM sale_events FINAL
		WHERE sale_id = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, saleID)
	if err != nil {
		return nil, fmt.Errorf("query by sale: %w", err)
	}
	defer rows.Close()

	return scanSaleEvents(rows)
}

// GetByTimeRange retrieves events of a sale within [start, end] (inclusive).
func (s *SaleEventStore) GetByTimeRange(ctx context.Context, saleID string, start, end int64) ([]*domain.SaleEvent, error) {
	query := `
		SELECT event_id, sale_id, seq, event_type, actor,
		       tokens, amount, stage, start_time, end_time, timestamp
		FROM sale_events FINAL
		WHERE sale_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, saleID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSaleEvents(rows)
}

func scanSaleEvents(rows chRows) ([]*domain.SaleEvent, error) {
	var events []*domain.SaleEvent

	for rows.Next() {
		var e domain.SaleEvent
		var eventType string
		var stage int32

		err := rows.Scan(
			&e.EventID, &e.SaleID, &e.Seq, &eventType, &e.Actor,
			&e.Tokens, &e.Amount, &stage, &e.StartTime, &e.EndTime, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sale event row: %w", err)
		}

		e.Type = domain.SaleEventType(eventType)
		e.Stage = int(stage)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale event rows: %w", err)
	}
	return events, nil
}
