package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"solana-pool-watch/internal/domain"
	"solana-pool-watch/internal/monitor"
	"solana-pool-watch/internal/observability"
	"solana-pool-watch/internal/sink"
	chsink "solana-pool-watch/internal/sink/clickhouse"
	"solana-pool-watch/internal/sink/migrations"
	pgsink "solana-pool-watch/internal/sink/postgres"
	"solana-pool-watch/internal/solana"
)

// DEX program aliases mapped to program IDs.
var dexAliases = map[string]string{
	"raydium": "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8",
	"pumpfun": "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P",
	"orca":    "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
	// Add more as needed
}

func main() {
	// Parse flags
	wsEndpoint := flag.String("ws-endpoint", "", "Solana WebSocket endpoint")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Solana RPC HTTP endpoint")
	outPath := flag.String("out", "records.jsonl", "Output JSONL file path (empty to disable)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (optional second sink)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (optional second sink)")
	dex := flag.String("dex", "", "Comma-separated DEX aliases (raydium, pumpfun, orca), monitored without a pool filter")
	commitment := flag.String("commitment", "confirmed", "Commitment level for venues created via --dex")
	maxResolves := flag.Int("max-resolves", monitor.DefaultMaxConcurrentResolves, "Maximum concurrent transaction resolutions")
	shutdownGrace := flag.Duration("shutdown-grace", monitor.DefaultShutdownGrace, "Time allowed for in-flight work to flush on shutdown")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	var venues []domain.VenueConfig
	flag.Func("venue", "Venue definition: id=<tag>,program=<id>,pools=<addr|addr>[,commitment=<level>] (repeatable)", func(s string) error {
		v, err := parseVenue(s)
		if err != nil {
			return err
		}
		venues = append(venues, v)
		return nil
	})

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lshortfile)

	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}

	// Venues from DEX aliases stream everything the program touches.
	for _, alias := range splitList(*dex) {
		programID, ok := dexAliases[strings.ToLower(alias)]
		if !ok {
			logger.Fatalf("Unknown DEX alias %q", alias)
		}
		venues = append(venues, domain.VenueConfig{
			VenueID:    strings.ToLower(alias),
			Program:    programID,
			Commitment: domain.Commitment(*commitment),
		})
	}

	if len(venues) == 0 {
		logger.Fatal("No venues specified. Use --venue or --dex")
	}

	seen := make(map[string]bool, len(venues))
	for _, v := range venues {
		if seen[v.VenueID] {
			logger.Fatalf("Duplicate venue id %q", v.VenueID)
		}
		seen[v.VenueID] = true

		if err := v.Validate(); err != nil {
			logger.Fatalf("Invalid venue config: %v", err)
		}
		for _, pool := range v.SuspiciousPools() {
			logger.Printf("WARNING: venue %s pool %s is on the ed25519 curve; looks like a wallet, not a pool account", v.VenueID, pool)
		}
		logger.Printf("Monitoring venue %s: program %s, %d pools, commitment %s", v.VenueID, v.Program, len(v.Pools), v.Commitment)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, runConfig{
		wsEndpoint:    *wsEndpoint,
		rpcEndpoint:   *rpcEndpoint,
		outPath:       *outPath,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		metricsAddr:   *metricsAddr,
		maxResolves:   *maxResolves,
		shutdownGrace: *shutdownGrace,
		venues:        venues,
	})

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type runConfig struct {
	wsEndpoint    string
	rpcEndpoint   string
	outPath       string
	postgresDSN   string
	clickhouseDSN string
	metricsAddr   string
	maxResolves   int
	shutdownGrace time.Duration
	venues        []domain.VenueConfig
}

func run(ctx context.Context, logger *log.Logger, cfg runConfig) error {
	out, cleanup, err := buildSink(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(cfg.rpcEndpoint)
	resolver := monitor.NewResolver(monitor.ResolverOptions{
		RPC:    rpc,
		Logger: logger,
	})

	notifs := make(chan domain.RawNotification, 1024)

	// Each venue gets its own transport so one flaky subscription never
	// stalls reads for the others.
	workers := make([]*monitor.Worker, 0, len(cfg.venues))
	for _, venue := range cfg.venues {
		workers = append(workers, monitor.NewWorker(monitor.WorkerOptions{
			Venue:  venue,
			Client: solana.NewWSTransport(cfg.wsEndpoint, nil),
			Out:    notifs,
			Logger: logger,
		}))
	}

	if cfg.metricsAddr != "" {
		startMetricsServer(logger, cfg.metricsAddr, workers)
	}

	coord := monitor.NewCoordinator(monitor.CoordinatorOptions{
		Venues:        cfg.venues,
		Resolver:      resolver,
		Sink:          out,
		MaxResolves:   cfg.maxResolves,
		ShutdownGrace: cfg.shutdownGrace,
		Logger:        logger,
	})

	// Workers feed the shared channel; the channel closes once every
	// worker has stopped so the coordinator can drain and return.
	workerErrs := make(chan error, len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *monitor.Worker) {
			defer wg.Done()
			workerErrs <- w.Run(ctx)
		}(w)
	}
	go func() {
		wg.Wait()
		close(notifs)
	}()

	logger.Println("Starting live monitoring...")
	runErr := coord.Run(ctx, notifs)

	wg.Wait()
	close(workerErrs)
	failed := 0
	for err := range workerErrs {
		if err != nil && err != context.Canceled {
			failed++
		}
	}
	if failed == len(workers) && ctx.Err() == nil {
		return fmt.Errorf("all %d venue workers failed permanently", len(workers))
	}
	return runErr
}

// buildSink assembles the configured output destinations into one sink.
// The JSONL file is the default; PostgreSQL and ClickHouse attach as
// additional destinations when a DSN is given.
func buildSink(ctx context.Context, logger *log.Logger, cfg runConfig) (sink.Sink, func(), error) {
	var sinks []sink.Sink
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.outPath != "" {
		jsonl, err := sink.NewJSONLSink(cfg.outPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open output file: %w", err)
		}
		sinks = append(sinks, jsonl)
		closers = append(closers, func() {
			if err := jsonl.Close(); err != nil {
				logger.Printf("close jsonl sink: %v", err)
			}
		})
		logger.Printf("Writing records to %s", cfg.outPath)
	}

	if cfg.postgresDSN != "" {
		pool, err := pgsink.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			cleanup()
			return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
		}
		sinks = append(sinks, pgsink.NewRecordStore(pool))
		closers = append(closers, pool.Close)
		logger.Println("Writing records to PostgreSQL")
	}

	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		sinks = append(sinks, chsink.NewRecordStore(conn))
		closers = append(closers, func() {
			if err := conn.Close(); err != nil {
				logger.Printf("close clickhouse connection: %v", err)
			}
		})
		logger.Println("Writing records to ClickHouse")
	}

	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("no sink configured: set --out, --postgres-dsn or --clickhouse-dsn")
	}
	return sink.NewMultiSink(sinks...), cleanup, nil
}

// startMetricsServer serves Prometheus metrics and a JSON health snapshot
// of every venue worker.
func startMetricsServer(logger *log.Logger, addr string, workers []*monitor.Worker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snapshot := make([]monitor.WorkerHealth, 0, len(workers))
		allFailed := len(workers) > 0
		for _, worker := range workers {
			h := worker.Health()
			snapshot = append(snapshot, h)
			if h.State != monitor.StateFailed.String() {
				allFailed = false
			}
		}
		w.Header().Set("Content-Type", "application/json")
		if allFailed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			logger.Printf("encode health snapshot: %v", err)
		}
	})

	go func() {
		logger.Printf("Starting metrics server on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			logger.Printf("Metrics server error: %v", err)
		}
	}()
}

// parseVenue parses one --venue flag value, e.g.
// "id=raydium,program=675kPX...,pools=58oQ...|7XaW...,commitment=confirmed".
// An explicit venue must name at least one pool; use --dex for unfiltered
// program-wide monitoring.
func parseVenue(s string) (domain.VenueConfig, error) {
	v := domain.VenueConfig{Commitment: domain.CommitmentConfirmed}
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return v, fmt.Errorf("venue: malformed field %q, want key=value", part)
		}
		switch key {
		case "id":
			v.VenueID = value
		case "program":
			if alias, ok := dexAliases[strings.ToLower(value)]; ok {
				value = alias
			}
			v.Program = value
		case "pools":
			v.Pools = splitPools(value)
		case "commitment":
			v.Commitment = domain.Commitment(value)
		default:
			return v, fmt.Errorf("venue: unknown field %q", key)
		}
	}
	if len(v.Pools) == 0 {
		return v, fmt.Errorf("venue %s: explicit venues require pools=<addr|addr>; use --dex to monitor a whole program", v.VenueID)
	}
	return v, nil
}

func splitPools(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "|") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
