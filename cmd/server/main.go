// Package main runs the presale service:
// - HTTP API and websocket event stream
// - sale event archive (ClickHouse or in-memory)
// - scheduled ledger audits and status reports
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"token-presale/internal/address"
	"token-presale/internal/api"
	"token-presale/internal/config"
	"token-presale/internal/custody"
	"token-presale/internal/domain"
	"token-presale/internal/presale"
	"token-presale/internal/reporting"
	"token-presale/internal/storage"
	chstore "token-presale/internal/storage/clickhouse"
	"token-presale/internal/storage/memory"
	"token-presale/internal/storage/migrations"
	pgstore "token-presale/internal/storage/postgres"
)

// Server holds all components of the service.
type Server struct {
	listenAddr     string
	outputDir      string
	auditInterval  time.Duration
	reportInterval time.Duration

	stores *saleStores
	engine *presale.Engine
	hub    *api.Hub
	bank   *custody.Bank
	logger *log.Logger
}

// saleStores holds the storage implementations.
type saleStores struct {
	sales   storage.SaleStore
	archive storage.SaleEventStore
	log     storage.SaleEventStore // authoritative event log, nil in memory mode
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen", envOr("PRESALE_LISTEN", ":8080"), "HTTP listen address")
	saleConfig := flag.String("config", os.Getenv("PRESALE_CONFIG"), "Sale definition TOML file")
	programID := flag.String("program-id", os.Getenv("PRESALE_PROGRAM_ID"), "Program ID (defaults to the one in --config)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	wsOrigins := flag.String("ws-origins", os.Getenv("PRESALE_WS_ORIGINS"), "Comma-separated origins allowed on the event stream (empty allows any)")
	outputDir := flag.String("output-dir", "output", "Output directory for reports")
	auditInterval := flag.Duration("audit-interval", 5*time.Minute, "Ledger audit interval")
	reportInterval := flag.Duration("report-interval", time.Hour, "Report generation interval (0 disables)")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	var sale *config.Sale
	if *saleConfig != "" {
		var err error
		sale, err = config.Load(*saleConfig)
		if err != nil {
			logger.Fatalf("Failed to load sale config: %v", err)
		}
		if *programID == "" {
			*programID = sale.ProgramID
		}
	}
	if *programID == "" {
		logger.Fatal("--program-id is required when --config does not provide one")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		listenAddr:     *listenAddr,
		outputDir:      *outputDir,
		auditInterval:  *auditInterval,
		reportInterval: *reportInterval,
		stores:         stores,
		hub:            api.NewHub(log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lshortfile), splitList(*wsOrigins)...),
		logger:         logger,
	}
	defer server.hub.Close()

	if err := server.setupEngine(ctx, *programID, sale); err != nil {
		logger.Fatalf("Failed to set up engine: %v", err)
	}

	err = server.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the sale store and the event archive.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*saleStores, func(), error) {
	if useMemory {
		stores := &saleStores{
			sales:   memory.NewSaleStore(),
			archive: memory.NewSaleEventStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	stores := &saleStores{
		sales:   pgstore.NewSaleStore(pool),
		archive: chstore.NewSaleEventStore(chConn),
		log:     pgstore.NewSaleEventStore(pool),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// setupEngine wires custody and publishers, then initializes the sale from
// its definition unless it already exists.
func (s *Server) setupEngine(ctx context.Context, programID string, sale *config.Sale) error {
	var params *presale.Params
	if sale != nil {
		p, err := sale.Params()
		if err != nil {
			return err
		}
		params = &p
	}

	bank, err := s.openBank(ctx, programID, params)
	if err != nil {
		return err
	}
	s.bank = bank

	archive := storage.NewArchive("archive", s.stores.archive)
	engine, err := presale.NewEngine(presale.Options{
		ProgramID:  programID,
		Store:      s.stores.sales,
		Treasury:   s.bank,
		Minter:     s.bank,
		Publishers: []presale.Publisher{archive, s.hub},
		Logger:     log.New(os.Stdout, "[presale] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		return err
	}
	s.engine = engine

	// Events committed while the archive was unreachable are copied over.
	if s.stores.log != nil {
		copied, err := archive.Backfill(ctx, s.stores.log, engine.SaleID())
		if err != nil {
			return fmt.Errorf("backfill archive: %w", err)
		}
		if copied > 0 {
			s.logger.Printf("Backfilled %d events into the archive", copied)
		}
	}

	if params == nil {
		return nil
	}
	_, err = engine.Initialize(ctx, *params)
	if errors.Is(err, presale.ErrAlreadyInitialized) {
		s.logger.Printf("Sale %s already initialized, keeping stored state", engine.SaleID())
		return nil
	}
	return err
}

// openBank creates the in-process custody ledger. Its mint cap is the ladder
// supply. A sale already in the store seeds the bank with the custody it
// holds and the tokens already minted out of it, so payouts keep working
// across restarts.
func (s *Server) openBank(ctx context.Context, programID string, params *presale.Params) (*custody.Bank, error) {
	program, err := address.ParsePubkey(programID)
	if err != nil {
		return nil, fmt.Errorf("program id: %w", err)
	}
	addrs, err := address.DeriveSaleAddresses(program)
	if err != nil {
		return nil, err
	}

	st, err := s.stores.sales.GetSale(ctx, addrs.Sale.String())
	switch {
	case err == nil:
		minted := st.TotalClaimed + st.UnsoldWithdrawn
		if minted < st.TotalClaimed {
			return nil, fmt.Errorf("sale %s: minted total overflows", addrs.Sale)
		}
		bank, err := custody.RestoreBank(st.TotalCapacity(), st.CustodyBalance, minted)
		if err != nil {
			return nil, fmt.Errorf("restore custody: %w", err)
		}
		s.logger.Printf("Restored custody for sale %s: %d base units held, %d tokens minted",
			addrs.Sale, st.CustodyBalance, minted)
		return bank, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("load sale: %w", err)
	case params == nil:
		return nil, fmt.Errorf("sale %s is not initialized and no --config was given", addrs.Sale)
	}
	pending := &domain.SaleState{Stages: params.Stages}
	return custody.NewBank(pending.TotalCapacity()), nil
}

// Run serves HTTP and runs the schedulers until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Printf("Starting presale server for sale %s on %s", s.engine.SaleID(), s.listenAddr)

	srv := &http.Server{
		Addr: s.listenAddr,
		Handler: api.New(api.Config{
			Engine: s.engine,
			Hub:    s.hub,
			Funder: s.bank,
			Logger: log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lshortfile),
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Println("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.runAuditScheduler(gctx)
	})
	if s.reportInterval > 0 {
		g.Go(func() error {
			return s.runReportScheduler(gctx)
		})
	}

	return g.Wait()
}

// runAuditScheduler checks the ledger invariants on schedule.
func (s *Server) runAuditScheduler(ctx context.Context) error {
	ticker := time.NewTicker(s.auditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := s.engine.CheckInvariants(ctx)
			switch {
			case err == nil, errors.Is(err, presale.ErrNotInitialized):
			case errors.Is(err, presale.ErrLedgerInvariant):
				s.logger.Printf("LEDGER AUDIT FAILED: %v", err)
			default:
				s.logger.Printf("Ledger audit error: %v", err)
			}
		}
	}
}

// runReportScheduler writes the sale report on schedule.
func (s *Server) runReportScheduler(ctx context.Context) error {
	s.logger.Printf("Starting report scheduler (interval: %v)...", s.reportInterval)

	ticker := time.NewTicker(s.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.writeReport(ctx); err != nil {
				s.logger.Printf("Report failed: %v", err)
			}
		}
	}
}

func (s *Server) writeReport(ctx context.Context) error {
	report, err := reporting.NewGenerator(s.stores.sales, s.engine.SaleID()).
		WithArchive(s.stores.archive).
		Generate(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.outputDir, "SALE_REPORT.md")
	if err := os.WriteFile(path, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	s.logger.Printf("Report written to %s (phase %s)", path, report.Phase)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, strings.TrimSpace(value))
		}
	}
}
