package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postmint/config"
	"postmint/core/events"
	"postmint/core/pipeline"
	"postmint/core/pricing"
	"postmint/native/mintescrow"
	"postmint/native/proof"
	"postmint/native/royalty"
	"postmint/observability"
	"postmint/observability/logging"
	"postmint/registry"
	"postmint/state"
	"postmint/storage"
)

// Fixed module accounts. Escrowed deposits and undistributed royalties sit
// in the vault; penalties and the system share accrue to the treasury.
var (
	vaultAddress    = moduleAddress(0x01)
	treasuryAddress = moduleAddress(0x02)
	ownerAddress    = moduleAddress(0x10)
)

func moduleAddress(tag byte) [20]byte {
	var addr [20]byte
	addr[0] = 0xF0
	addr[19] = tag
	return addr
}

// escrowEventRecorder feeds engine events into the escrow Prometheus
// collectors.
type escrowEventRecorder struct {
	metrics *observability.EscrowMetrics
}

func (r escrowEventRecorder) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	r.metrics.RecordEvent(evt.EventType())
	if evt.EventType() == events.TypeCancelledMint {
		r.metrics.RecordRefund()
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "postmintd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to postmintd configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("POSTMINT_ENV"))
	logger := logging.Setup("postmintd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	minDeposit, err := cfg.MinDeposit()
	if err != nil {
		return err
	}
	pricePerPoint, err := cfg.PricePerPoint()
	if err != nil {
		return err
	}
	storageReserve, err := cfg.StorageReserve()
	if err != nil {
		return err
	}
	table := pricing.CostTable{}
	if path := strings.TrimSpace(cfg.Pricing.CostTablePath); path != "" {
		table, err = pricing.LoadCostTable(path)
		if err != nil {
			return err
		}
	}
	pricer, err := pricing.NewEngine(minDeposit, pricePerPoint, pricing.Denominator, table)
	if err != nil {
		return err
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "postmint"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	manager := state.NewManager(db)

	recorder := escrowEventRecorder{metrics: observability.Escrow()}

	royalties := royalty.NewEngine(ownerAddress)
	royalties.SetEmitter(recorder)
	royalties.SetState(manager)
	royalties.SetVault(vaultAddress)
	royalties.SetStorageReserve(storageReserve)

	escrow := mintescrow.NewEngine(pricer, cfg.LockTime.Duration)
	escrow.SetEmitter(recorder)
	escrow.SetState(manager)
	escrow.SetRoyaltyLedger(royalties)
	escrow.SetVault(vaultAddress)
	escrow.SetTreasury(treasuryAddress)
	escrow.SetStorageReserve(storageReserve)

	verifierCfg := proof.NewConfigStore(ownerAddress, proof.VerifierConfig{
		RemoteVerifier:   cfg.Verifier.RemoteVerifier,
		TrustedPublicKey: cfg.Verifier.TrustedPublicKey,
		NFTRegistry:      cfg.Registry.Contract,
	})
	var verifier proof.Verifier
	switch cfg.Verifier.Strategy {
	case "bridge":
		bridge, err := proof.DialBridge(cfg.Verifier.BridgeEndpoint)
		if err != nil {
			return err
		}
		defer bridge.Close()
		verifier = proof.NewBridgeVerifier(bridge, verifierCfg, cfg.Verifier.BridgeTimeout.Duration)
	case "signature":
		verifier = proof.NewSignatureVerifier(verifierCfg)
	default:
		return fmt.Errorf("unknown verifier strategy %q", cfg.Verifier.Strategy)
	}

	attachedDeposit, err := cfg.AttachedDeposit()
	if err != nil {
		return err
	}
	minter, err := registry.NewClient(cfg.Registry.Endpoint, cfg.Registry.Contract, attachedDeposit, cfg.Registry.GasBudget)
	if err != nil {
		return err
	}

	orchestrator := pipeline.NewOrchestrator(verifier, escrow, minter,
		pipeline.WithLogger(logging.Component(logger, "pipeline")),
	)

	handler := newHandler(escrow, orchestrator, royalties, logging.Component(logger, "http"))

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Mount("/v1", handler.Routes())

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin listener started", "addr", cfg.ListenAddress, "strategy", cfg.Verifier.Strategy)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("admin listener: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
