// Package api exposes a presale engine over HTTP and streams its events
// over websockets.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"token-presale/internal/domain"
	"token-presale/internal/observability"
	"token-presale/internal/presale"
)

// Engine is the subset of the presale engine served over HTTP.
type Engine interface {
	GetSaleState(ctx context.Context) (*domain.SaleState, error)
	GetAllocation(ctx context.Context, owner string) (*domain.Allocation, error)
	ListAllocations(ctx context.Context) ([]*domain.Allocation, error)
	Events(ctx context.Context) ([]*domain.SaleEvent, error)
	Phase(ctx context.Context) (presale.Phase, error)
	Quote(ctx context.Context, payment uint64) (*presale.Quote, error)
	CheckInvariants(ctx context.Context) error

	Buy(ctx context.Context, buyer string, payment uint64) (*presale.BuyResult, error)
	Claim(ctx context.Context, owner string) (*presale.ClaimResult, error)

	Pause(ctx context.Context, caller string) error
	Resume(ctx context.Context, caller string) error
	SetWindow(ctx context.Context, caller string, start, end int64) error
	WithdrawFunds(ctx context.Context, caller string, amount uint64) error
	WithdrawUnsoldTokens(ctx context.Context, caller string, amount uint64) error
	AdvanceStage(ctx context.Context, caller string, index int) error
}

// Funder credits base units to an account. Only local custody backends
// provide one; when set, POST /dev/fund is mounted.
type Funder interface {
	Fund(account string, amount uint64) error
}

// Config captures the dependencies of the server.
type Config struct {
	Engine Engine
	Hub    *Hub
	Funder Funder
	Logger *log.Logger
}

// Server serves the sale API.
type Server struct {
	engine  Engine
	hub     *Hub
	funder  Funder
	logger  *log.Logger
	started time.Time

	router http.Handler
}

// New builds the router.
func New(cfg Config) *Server {
	s := &Server{
		engine:  cfg.Engine,
		hub:     cfg.Hub,
		funder:  cfg.Funder,
		logger:  cfg.Logger,
		started: time.Now(),
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler())
	if s.hub != nil {
		r.Handle("/events", s.hub)
	}

	r.Route("/sale", func(sale chi.Router) {
		sale.Get("/", s.handleGetSale)
		sale.Get("/quote", s.handleQuote)
		sale.Get("/allocations", s.handleListAllocations)
		sale.Get("/allocations/{owner}", s.handleGetAllocation)
		sale.Get("/events", s.handleListEvents)
		sale.Get("/invariants", s.handleInvariants)
		sale.Post("/buy", s.handleBuy)
		sale.Post("/claim", s.handleClaim)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Post("/pause", s.handlePause)
		admin.Post("/resume", s.handleResume)
		admin.Post("/window", s.handleSetWindow)
		admin.Post("/withdraw-funds", s.handleWithdrawFunds)
		admin.Post("/withdraw-unsold", s.handleWithdrawUnsold)
		admin.Post("/stage", s.handleAdvanceStage)
		admin.Get("/unsold", s.handleUnsold)
	})

	if s.funder != nil {
		r.Post("/dev/fund", s.handleFund)
	}
	return r
}

type healthResponse struct {
	Status      string        `json:"status"`
	Phase       presale.Phase `json:"phase"`
	Uptime      string        `json:"uptime"`
	Subscribers int           `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	phase, err := s.engine.Phase(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := healthResponse{
		Status: "ok",
		Phase:  phase,
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Clients()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetSaleState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	phase, err := s.engine.Phase(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSaleView(st, phase))
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := s.engine.Quote(r.Context(), amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.GetAllocation(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAllocationView(a))
}

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := s.engine.ListAllocations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]allocationView, len(allocs))
	for i, a := range allocs {
		items[i] = newAllocationView(a)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.Events(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]EventView, len(events))
	for i, e := range events {
		items[i] = NewEventView(e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleInvariants(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.CheckInvariants(r.Context()); err != nil {
		s.logger.Printf("invariant check failed: %v", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type buyRequest struct {
	Buyer  string `json:"buyer"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.Buy(r.Context(), req.Buyer, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type claimRequest struct {
	Buyer string `json:"buyer"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.Claim(r.Context(), req.Buyer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type windowRequest struct {
	Caller    string `json:"caller"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
}

type amountRequest struct {
	Caller string `json:"caller"`
	Amount uint64 `json:"amount"`
}

type stageRequest struct {
	Caller string `json:"caller"`
	Index  int    `json:"index"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.Pause(r.Context(), req.Caller))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.Resume(r.Context(), req.Caller))
}

func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.SetWindow(r.Context(), req.Caller, req.StartTime, req.EndTime))
}

func (s *Server) handleWithdrawFunds(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.WithdrawFunds(r.Context(), req.Caller, req.Amount))
}

func (s *Server) handleWithdrawUnsold(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.WithdrawUnsoldTokens(r.Context(), req.Caller, req.Amount))
}

func (s *Server) handleAdvanceStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.respondState(w, r, s.engine.AdvanceStage(r.Context(), req.Caller, req.Index))
}

func (s *Server) handleUnsold(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetSaleState(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"available": presale.UnsoldAvailable(st)})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req buyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.funder.Fund(req.Buyer, req.Amount); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buyer": req.Buyer, "funded": req.Amount})
}

// respondState answers an admin call with the resulting sale state.
func (s *Server) respondState(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	s.handleGetSale(w, r)
}

func parseAmount(raw string) (uint64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: amount is required", errBadRequest)
	}
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", errBadRequest, raw, err)
	}
	return amount, nil
}
