// Package presale implements the staged token sale engine: a stage ladder,
// a sale window guard, purchase and claim processing over an allocation
// ledger, and owner-only custody administration. Every operation is one
// atomic transition against the sale store.
package presale

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"token-presale/internal/address"
	"token-presale/internal/custody"
	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/storage"
)

// Publisher receives committed sale events (archives, live streams).
// Publishing happens after commit and never affects the transition.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, events []*domain.SaleEvent) error
}

// Options configures an Engine.
type Options struct {
	ProgramID  string            // base58 program id the sale addresses derive from
	Store      storage.SaleStore // authoritative state
	Treasury   custody.Treasury  // payment custody
	Minter     custody.Minter    // token mint authority
	Publishers []Publisher       // optional post-commit sinks
	Logger     *log.Logger       // defaults to stderr with a [presale] prefix
	Now        func() time.Time  // defaults to time.Now
}

// Engine runs sale operations for one sale.
type Engine struct {
	programID  address.Pubkey
	addrs      address.SaleAddresses
	saleID     string
	store      storage.SaleStore
	treasury   custody.Treasury
	minter     custody.Minter
	publishers []Publisher
	logger     *log.Logger
	now        func() time.Time
}

// NewEngine creates an engine bound to the sale derived from opts.ProgramID.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Treasury == nil || opts.Minter == nil {
		return nil, fmt.Errorf("%w: store, treasury and minter are required", ErrInvalidParams)
	}
	programID, err := address.ParsePubkey(opts.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("%w: program id: %v", ErrInvalidIdentity, err)
	}
	addrs, err := address.DeriveSaleAddresses(programID)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[presale] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		programID:  programID,
		addrs:      addrs,
		saleID:     addrs.Sale.String(),
		store:      opts.Store,
		treasury:   opts.Treasury,
		minter:     opts.Minter,
		publishers: opts.Publishers,
		logger:     logger,
		now:        now,
	}, nil
}

// SaleID returns the sale's program-derived address.
func (e *Engine) SaleID() string { return e.saleID }

// TreasuryAddress returns the payment custody address.
func (e *Engine) TreasuryAddress() string { return e.addrs.Treasury.String() }

// AddPublisher registers a post-commit event sink.
func (e *Engine) AddPublisher(p Publisher) { e.publishers = append(e.publishers, p) }

// effect moves value outside the store. It runs last inside the transition,
// after every store write succeeded, so a failure aborts everything.
type effect func(ctx context.Context) error

// step is the body of a transition.
type step func(ctx context.Context, tx storage.SaleTx, now int64) ([]*domain.SaleEvent, effect, error)

// transition runs one operation as a single atomic unit and publishes its
// events after commit.
func (e *Engine) transition(ctx context.Context, op string, body step) error {
	started := time.Now()
	var committed []*domain.SaleEvent
	var state *domain.SaleState

	err := e.store.Update(ctx, e.saleID, func(tx storage.SaleTx) error {
		now := e.now().Unix()
		events, eff, err := body(ctx, tx, now)
		if err != nil {
			return err
		}
		for _, ev := range events {
			ev.EventID = uuid.NewString()
			ev.SaleID = e.saleID
			ev.Timestamp = now
		}
		if len(events) > 0 {
			if err := tx.AppendEvents(ctx, events...); err != nil {
				return fmt.Errorf("append events: %w", err)
			}
		}
		if eff != nil {
			if err := eff(ctx); err != nil {
				return err
			}
		}
		if state, err = tx.GetSale(ctx); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("reload sale: %w", err)
		}
		committed = events
		return nil
	})

	observability.RecordOperation(op, outcome(err), time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, ErrLedgerInvariant) {
			observability.RecordInvariantFault()
			e.logger.Printf("LEDGER INVARIANT VIOLATION in %s, transition aborted: %v", op, err)
		}
		return err
	}

	if state != nil {
		sold := make([]uint64, len(state.Stages))
		for i, st := range state.Stages {
			sold[i] = st.Sold
		}
		observability.UpdateSaleGauges(state.CurrentStage, sold, state.CustodyBalance, state.Paused)
	}
	e.publish(ctx, committed)
	return nil
}

func (e *Engine) publish(ctx context.Context, events []*domain.SaleEvent) {
	if len(events) == 0 {
		return
	}
	for _, p := range e.publishers {
		err := p.Publish(ctx, events)
		observability.RecordPublish(p.Name(), len(events), err)
		if err != nil {
			e.logger.Printf("publish %d events to %s: %v", len(events), p.Name(), err)
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, ErrLedgerInvariant) {
		return "fault"
	}
	return "rejected"
}

// loadSale reads sale state inside a transition.
func loadSale(ctx context.Context, tx storage.SaleTx) (*domain.SaleState, error) {
	s, err := tx.GetSale(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

func saveSale(ctx context.Context, tx storage.SaleTx, s *domain.SaleState, now int64) error {
	s.UpdatedAt = now
	if err := tx.PutSale(ctx, s); err != nil {
		return fmt.Errorf("put sale: %w", err)
	}
	return nil
}

func parseIdentity(s string) (address.Pubkey, error) {
	pk, err := address.ParsePubkey(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return pk, nil
}

// Params are the initialization arguments of a sale.
type Params struct {
	Owner            string
	Mint             string
	USDPerCoin       uint64
	BaseUnitsPerCoin uint64
	TokenDecimals    uint8
	StartTime        int64
	EndTime          int64
	Stages           []domain.Stage
	ClaimPolicy      domain.ClaimPolicy // empty means ClaimAfterEnd
}

// Initialize creates the sale state. The caller becomes the owner.
func (e *Engine) Initialize(ctx context.Context, p Params) (*domain.SaleState, error) {
	if _, err := parseIdentity(p.Owner); err != nil {
		return nil, err
	}
	if _, err := parseIdentity(p.Mint); err != nil {
		return nil, err
	}
	if p.USDPerCoin == 0 || p.BaseUnitsPerCoin == 0 {
		return nil, ErrInvalidRate
	}
	if _, err := TokenBase(p.TokenDecimals); err != nil {
		return nil, err
	}
	if p.EndTime <= p.StartTime {
		return nil, fmt.Errorf("%w: end %d <= start %d", ErrInvalidWindow, p.EndTime, p.StartTime)
	}
	if err := validateStages(p.Stages); err != nil {
		return nil, err
	}
	policy := p.ClaimPolicy
	if policy == "" {
		policy = domain.ClaimAfterEnd
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("%w: claim policy %q", ErrInvalidParams, policy)
	}

	var created *domain.SaleState
	err := e.transition(ctx, "initialize", func(ctx context.Context, tx storage.SaleTx, now int64) ([]*domain.SaleEvent, effect, error) {
		st := &domain.SaleState{
			SaleID:           e.saleID,
			Owner:            p.Owner,
			Mint:             p.Mint,
			Treasury:         e.addrs.Treasury.String(),
			MintAuthority:    e.addrs.MintAuthority.String(),
			USDPerCoin:       p.USDPerCoin,
			BaseUnitsPerCoin: p.BaseUnitsPerCoin,
			TokenDecimals:    p.TokenDecimals,
			StartTime:        p.StartTime,
			EndTime:          p.EndTime,
			ClaimPolicy:      policy,
			Stages:           append([]domain.Stage(nil), p.Stages...),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreateSale(ctx, st); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil, nil, ErrAlreadyInitialized
			}
			return nil, nil, fmt.Errorf("create sale: %w", err)
		}
		created = st
		return []*domain.SaleEvent{{
			Type:      domain.EventInitialized,
			Actor:     p.Owner,
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
		}}, nil, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Printf("initialized sale %s: owner=%s stages=%d window=[%d, %d]",
		e.saleID, p.Owner, len(p.Stages), p.StartTime, p.EndTime)
	return created.Clone(), nil
}

// GetSaleState returns the committed sale state.
func (e *Engine) GetSaleState(ctx context.Context) (*domain.SaleState, error) {
	s, err := e.store.GetSale(ctx, e.saleID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return s, nil
}

// GetAllocation returns the committed allocation of owner.
func (e *Engine) GetAllocation(ctx context.Context, owner string) (*domain.Allocation, error) {
	if _, err := parseIdentity(owner); err != nil {
		return nil, err
	}
	a, err := e.store.GetAllocation(ctx, e.saleID, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAllocationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return a, nil
}

// ListAllocations returns every committed allocation, ordered by owner.
func (e *Engine) ListAllocations(ctx context.Context) ([]*domain.Allocation, error) {
	allocs, err := e.store.ListAllocations(ctx, e.saleID)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	return allocs, nil
}

// Events returns the committed event log, ordered by seq.
func (e *Engine) Events(ctx context.Context) ([]*domain.SaleEvent, error) {
	events, err := e.store.GetEvents(ctx, e.saleID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	return events, nil
}

// Phase reports the lifecycle phase of the sale now.
func (e *Engine) Phase(ctx context.Context) (Phase, error) {
	s, err := e.GetSaleState(ctx)
	if errors.Is(err, ErrNotInitialized) {
		return PhaseUninitialized, nil
	}
	if err != nil {
		return "", err
	}
	return PhaseOf(s, e.now().Unix()), nil
}

// Quote previews a purchase against committed state without applying it.
func (e *Engine) Quote(ctx context.Context, payment uint64) (*Quote, error) {
	s, err := e.GetSaleState(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeQuote(s, payment)
}

// CheckInvariants audits committed state: stage sums against the ledger,
// per-allocation claim bounds and custody accounting.
func (e *Engine) CheckInvariants(ctx context.Context) error {
	s, err := e.GetSaleState(ctx)
	if err != nil {
		return err
	}
	allocs, err := e.ListAllocations(ctx)
	if err != nil {
		return err
	}
	return VerifyLedger(s, allocs)
}

// VerifyLedger checks the global invariants of a sale snapshot.
func VerifyLedger(s *domain.SaleState, allocs []*domain.Allocation) error {
	for i := range s.Stages {
		if _, err := RemainingCapacity(s, i); err != nil {
			return err
		}
	}

	var purchased, claimed uint64
	for _, a := range allocs {
		if a.Claimed > a.Purchased {
			return fmt.Errorf("%w: %s claimed %d of %d", ErrLedgerInvariant, a.Owner, a.Claimed, a.Purchased)
		}
		purchased += a.Purchased
		claimed += a.Claimed
	}
	if sold := s.TotalSold(); sold != purchased || sold != s.TotalPurchased {
		return fmt.Errorf("%w: stages sold %d, allocations %d, recorded %d", ErrLedgerInvariant, sold, purchased, s.TotalPurchased)
	}
	if claimed != s.TotalClaimed {
		return fmt.Errorf("%w: allocations claimed %d, recorded %d", ErrLedgerInvariant, claimed, s.TotalClaimed)
	}
	if s.TotalWithdrawn > s.TotalPaid || s.CustodyBalance != s.TotalPaid-s.TotalWithdrawn {
		return fmt.Errorf("%w: custody %d != paid %d - withdrawn %d", ErrLedgerInvariant, s.CustodyBalance, s.TotalPaid, s.TotalWithdrawn)
	}
	if s.UnsoldWithdrawn > s.TotalCapacity()-purchased {
		return fmt.Errorf("%w: unsold withdrawn %d above unsold supply", ErrLedgerInvariant, s.UnsoldWithdrawn)
	}
	return nil
}
