package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-presale/internal/domain"
	"token-presale/internal/storage"
)

// SaleStore implements storage.SaleStore using PostgreSQL.
// Update serializes transitions of one sale with a transaction-scoped
// advisory lock, which also covers the not-yet-created sale row.
type SaleStore struct {
	pool *Pool
}

// NewSaleStore creates a new SaleStore.
func NewSaleStore(pool *Pool) *SaleStore {
	return &SaleStore{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.SaleStore = (*SaleStore)(nil)
	_ storage.SaleTx    = (*saleTx)(nil)
)

// Update runs fn inside one database transaction.
func (s *SaleStore) Update(ctx context.Context, saleID string, fn func(tx storage.SaleTx) error) (err error) {
	if saleID == "" || fn == nil {
		return storage.ErrInvalidInput
	}
	started := time.Now()
	defer func() { observe("sale_update", started, err) }()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, saleID); err != nil {
		return fmt.Errorf("lock sale: %w", err)
	}

	if err := fn(&saleTx{tx: tx, saleID: saleID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetSale retrieves committed sale state. Returns ErrNotFound if not initialized.
func (s *SaleStore) GetSale(ctx context.Context, saleID string) (*domain.SaleState, error) {
	return getSale(ctx, s.pool, saleID, false)
}

// GetAllocation retrieves a committed allocation. Returns ErrNotFound if absent.
func (s *SaleStore) GetAllocation(ctx context.Context, saleID, owner string) (*domain.Allocation, error) {
	return getAllocation(ctx, s.pool, saleID, owner, false)
}

// ListAllocations retrieves all allocations of a sale, ordered by owner ASC.
func (s *SaleStore) ListAllocations(ctx context.Context, saleID string) ([]*domain.Allocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sale_id, owner, address, purchased, claimed, created_at, updated_at
		FROM allocations
		WHERE sale_id = $1
		ORDER BY owner ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query allocations: %w", err)
	}
	defer rows.Close()

	var result []*domain.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return result, nil
}

// GetEvents retrieves the committed event log of a sale, ordered by seq ASC.
func (s *SaleStore) GetEvents(ctx context.Context, saleID string) ([]*domain.SaleEvent, error) {
	return queryEvents(ctx, s.pool, `
		SELECT event_id::text, sale_id, seq, event_type, actor, tokens, amount,
		       stage, start_time, end_time, timestamp
		FROM sale_events
		WHERE sale_id = $1
		ORDER BY seq ASC
	`, saleID)
}

// saleTx is the view of one sale inside an Update.
type saleTx struct {
	tx     pgx.Tx
	saleID string
}

func (t *saleTx) GetSale(ctx context.Context) (*domain.SaleState, error) {
	return getSale(ctx, t.tx, t.saleID, true)
}

func (t *saleTx) CreateSale(ctx context.Context, st *domain.SaleState) error {
	if st == nil || st.SaleID != t.saleID {
		return storage.ErrInvalidInput
	}

	var b bigints
	args := []any{
		st.SaleID, st.Owner, st.Mint, st.Treasury, st.MintAuthority,
		b.put("usd_per_coin", st.USDPerCoin), b.put("base_units_per_coin", st.BaseUnitsPerCoin),
		int16(st.TokenDecimals), st.StartTime, st.EndTime, st.Paused, string(st.ClaimPolicy),
		st.CurrentStage,
		b.put("custody_balance", st.CustodyBalance), b.put("total_paid", st.TotalPaid),
		b.put("total_withdrawn", st.TotalWithdrawn), b.put("unsold_withdrawn", st.UnsoldWithdrawn),
		b.put("total_purchased", st.TotalPurchased), b.put("total_claimed", st.TotalClaimed),
		st.CreatedAt, st.UpdatedAt,
	}
	if b.err != nil {
		return b.err
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO sales (
			sale_id, owner, mint, treasury, mint_authority,
			usd_per_coin, base_units_per_coin,
			token_decimals, start_time, end_time, paused, claim_policy,
			current_stage,
			custody_balance, total_paid,
			total_withdrawn, unsold_withdrawn,
			total_purchased, total_claimed,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11, $12,
			$13,
			$14, $15,
			$16, $17,
			$18, $19,
			$20, $21
		)
	`, args...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert sale: %w", err)
	}

	for i, stage := range st.Stages {
		price, capacity, sold := b.put("price_usd", stage.PriceUSD), b.put("capacity", stage.Capacity), b.put("sold", stage.Sold)
		if b.err != nil {
			return b.err
		}
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sale_stages (sale_id, stage_index, price_usd, capacity, sold)
			VALUES ($1, $2, $3, $4, $5)
		`, st.SaleID, i, price, capacity, sold)
		if err != nil {
			return fmt.Errorf("insert stage %d: %w", i, err)
		}
	}
	return nil
}

func (t *saleTx) PutSale(ctx context.Context, st *domain.SaleState) error {
	if st == nil || st.SaleID != t.saleID {
		return storage.ErrInvalidInput
	}

	var b bigints
	args := []any{
		st.SaleID, st.StartTime, st.EndTime, st.Paused, st.CurrentStage,
		b.put("custody_balance", st.CustodyBalance), b.put("total_paid", st.TotalPaid),
		b.put("total_withdrawn", st.TotalWithdrawn), b.put("unsold_withdrawn", st.UnsoldWithdrawn),
		b.put("total_purchased", st.TotalPurchased), b.put("total_claimed", st.TotalClaimed),
		st.UpdatedAt,
	}
	if b.err != nil {
		return b.err
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE sales SET
			start_time = $2, end_time = $3, paused = $4, current_stage = $5,
			custody_balance = $6, total_paid = $7,
			total_withdrawn = $8, unsold_withdrawn = $9,
			total_purchased = $10, total_claimed = $11,
			updated_at = $12
		WHERE sale_id = $1
	`, args...)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	// Stage prices and capacities are fixed at creation; only sold moves.
	for i, stage := range st.Stages {
		sold := b.put("sold", stage.Sold)
		if b.err != nil {
			return b.err
		}
		tag, err := t.tx.Exec(ctx, `
			UPDATE sale_stages SET sold = $3
			WHERE sale_id = $1 AND stage_index = $2
		`, st.SaleID, i, sold)
		if err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("%w: stage %d: %v", storage.ErrInvalidInput, i, err)
			}
			return fmt.Errorf("update stage %d: %w", i, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: stage %d", storage.ErrNotFound, i)
		}
	}
	return nil
}

func (t *saleTx) GetAllocation(ctx context.Context, owner string) (*domain.Allocation, error) {
	return getAllocation(ctx, t.tx, t.saleID, owner, true)
}

func (t *saleTx) PutAllocation(ctx context.Context, a *domain.Allocation) error {
	if a == nil || a.Owner == "" || a.SaleID != t.saleID {
		return storage.ErrInvalidInput
	}
	var b bigints
	purchased, claimed := b.put("purchased", a.Purchased), b.put("claimed", a.Claimed)
	if b.err != nil {
		return b.err
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO allocations (sale_id, owner, address, purchased, claimed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sale_id, owner) DO UPDATE SET
			purchased = EXCLUDED.purchased,
			claimed = EXCLUDED.claimed,
			updated_at = EXCLUDED.updated_at
	`, a.SaleID, a.Owner, a.Address, purchased, claimed, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		return fmt.Errorf("upsert allocation: %w", err)
	}
	return nil
}

func (t *saleTx) AppendEvents(ctx context.Context, events ...*domain.SaleEvent) error {
	if len(events) == 0 {
		return nil
	}

	var last int64
	if err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM sale_events WHERE sale_id = $1`, t.saleID,
	).Scan(&last); err != nil {
		return fmt.Errorf("read event seq: %w", err)
	}

	for _, e := range events {
		if e == nil || e.EventID == "" || e.SaleID != t.saleID {
			return storage.ErrInvalidInput
		}
		last++
		e.Seq = last
		if err := insertEvent(ctx, t.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func getSale(ctx context.Context, q querier, saleID string, forUpdate bool) (*domain.SaleState, error) {
	query := `
		SELECT sale_id, owner, mint, treasury, mint_authority,
		       usd_per_coin, base_units_per_coin, token_decimals,
		       start_time, end_time, paused, claim_policy, current_stage,
		       custody_balance, total_paid, total_withdrawn, unsold_withdrawn,
		       total_purchased, total_claimed, created_at, updated_at
		FROM sales
		WHERE sale_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var st domain.SaleState
	var usdPerCoin, baseUnits, custody, paid, withdrawn, unsold, purchased, claimed int64
	var decimals int16
	var policy string
	err := q.QueryRow(ctx, query, saleID).Scan(
		&st.SaleID, &st.Owner, &st.Mint, &st.Treasury, &st.MintAuthority,
		&usdPerCoin, &baseUnits, &decimals,
		&st.StartTime, &st.EndTime, &st.Paused, &policy, &st.CurrentStage,
		&custody, &paid, &withdrawn, &unsold,
		&purchased, &claimed, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query sale: %w", err)
	}
	st.USDPerCoin, st.BaseUnitsPerCoin = uint64(usdPerCoin), uint64(baseUnits)
	st.TokenDecimals = uint8(decimals)
	st.ClaimPolicy = domain.ClaimPolicy(policy)
	st.CustodyBalance, st.TotalPaid = uint64(custody), uint64(paid)
	st.TotalWithdrawn, st.UnsoldWithdrawn = uint64(withdrawn), uint64(unsold)
	st.TotalPurchased, st.TotalClaimed = uint64(purchased), uint64(claimed)

	rows, err := q.Query(ctx, `
		SELECT price_usd, capacity, sold
		FROM sale_stages
		WHERE sale_id = $1
		ORDER BY stage_index ASC
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var price, capacity, sold int64
		if err := rows.Scan(&price, &capacity, &sold); err != nil {
			return nil, fmt.Errorf("scan stage row: %w", err)
		}
		st.Stages = append(st.Stages, domain.Stage{
			PriceUSD: uint64(price),
			Capacity: uint64(capacity),
			Sold:     uint64(sold),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stages: %w", err)
	}
	return &st, nil
}

func getAllocation(ctx context.Context, q querier, saleID, owner string, forUpdate bool) (*domain.Allocation, error) {
	query := `
		SELECT sale_id, owner, address, purchased, claimed, created_at, updated_at
		FROM allocations
		WHERE sale_id = $1 AND owner = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	a, err := scanAllocation(q.QueryRow(ctx, query, saleID, owner))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// scanAllocation scans one allocation row. pgx.Rows satisfies pgx.Row.
func scanAllocation(row pgx.Row) (*domain.Allocation, error) {
	var a domain.Allocation
	var purchased, claimed int64
	err := row.Scan(&a.SaleID, &a.Owner, &a.Address, &purchased, &claimed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan allocation row: %w", err)
	}
	a.Purchased, a.Claimed = uint64(purchased), uint64(claimed)
	return &a, nil
}
