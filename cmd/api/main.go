package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"verida.org/internal/audit"
	"verida.org/internal/auth"
	"verida.org/internal/community"
	"verida.org/internal/config"
	"verida.org/internal/contract"
	"verida.org/internal/donation"
	"verida.org/internal/escrow"
	"verida.org/internal/events"
	"verida.org/internal/httpapi"
	"verida.org/internal/ledger"
	"verida.org/internal/mirror"
	"verida.org/internal/obs"
	"verida.org/internal/proofs"
	"verida.org/internal/state"
	"verida.org/internal/sweeper"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("verida-api: %v", err)
	}
	log.Println("Stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	backend, ready, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	store, closeMirror, err := openMirror(cfg)
	if err != nil {
		return err
	}
	defer closeMirror()

	publisher, closeEvents := openEvents(cfg)
	defer closeEvents()

	stream := events.NewStream()
	host := contract.NewHost(backend,
		contract.WithAuthorizer(auth.CallerAuthorizer{}),
		contract.WithPublisher(events.Fanout{stream, store, publisher}),
		contract.WithObserver(audit.ContractCalls),
		contract.WithObserver(escrow.CountCustody),
	)

	registry := community.New(host)
	donations := donation.New(host)
	vault := escrow.New(host, ledger.Book{})

	if admin := cfg.BootstrapAdmin; admin != "" {
		bootstrap(ctx, contract.Principal(admin), registry, donations, vault)
	}

	issuer, err := auth.NewIssuer(cfg.AuthSecret)
	if err != nil {
		return err
	}

	var proofSvc *proofs.Service
	if pc := cfg.Proofs(); pc.Enabled() {
		proofSvc = proofs.New(pc)
	}

	api := httpapi.New(httpapi.Deps{
		Registry:     registry,
		Donations:    donations,
		Vault:        vault,
		Assets:       ledger.NewCustody(backend),
		Issuer:       issuer,
		Mirror:       store,
		Proofs:       proofSvc,
		Stream:       stream,
		Ready:        ready,
		Version:      version,
		DevTokens:    cfg.DevTokens,
		TokenTTL:     cfg.TokenTTL,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORSOrigins:  cfg.AllowedOrigins(),
	})

	sw := sweeper.New(store, vault, sweeper.WithBatch(cfg.SweepBatch))
	if err := sw.Start(cfg.SweepSchedule); err != nil {
		return err
	}
	defer func() { <-sw.Stop().Done() }()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	health := httpapi.NewHealthServer(ready)
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obs.Info("http listening", map[string]any{"addr": srv.Addr, "version": version, "backend": cfg.StateBackend})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		obs.Info("grpc listening", map[string]any{"addr": cfg.GRPCAddr})
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx, 10*time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		obs.Info("shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config) (state.Backend, httpapi.ReadyProbe, error) {
	switch cfg.StateBackend {
	case config.BackendPostgres:
		pg, err := state.OpenPostgres(cfg.PGDSN)
		if err != nil {
			return nil, httpapi.ReadyProbe{}, err
		}
		return pg, httpapi.ReadyProbe{DB: pg.DB()}, nil
	case config.BackendRedis:
		rd, err := state.OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, httpapi.ReadyProbe{}, err
		}
		return rd, httpapi.ReadyProbe{Cache: rd}, nil
	default:
		obs.Warn("using in-memory contract state; data is lost on restart", nil)
		return state.NewMemory(), httpapi.ReadyProbe{}, nil
	}
}

func openMirror(cfg config.Config) (mirror.Store, func(), error) {
	dsn := cfg.MirrorDatabase()
	if dsn == "" {
		return mirror.NewMemory(), func() {}, nil
	}
	pg, err := mirror.OpenPostgres(dsn)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, nil
}

func openEvents(cfg config.Config) (contract.Publisher, func()) {
	if cfg.RabbitMQURL == "" {
		return events.Fallback{}, func() {}
	}
	producer, err := events.NewProducer(cfg.RabbitMQURL, cfg.EventsExchange)
	if err != nil {
		obs.Warn("rabbitmq unavailable; contract events will only be logged", map[string]any{"error": err.Error()})
		return events.Fallback{}, func() {}
	}
	return producer, producer.Close
}

// bootstrap initializes every contract with admin. Contracts that already
// have an admin are left alone.
func bootstrap(ctx context.Context, admin contract.Principal, contracts ...interface {
	Initialize(context.Context, contract.Principal) error
}) {
	actx := auth.ContextWithUser(ctx, string(admin), []string{auth.RoleAdmin})
	for _, c := range contracts {
		err := c.Initialize(actx, admin)
		if err != nil && !errors.Is(err, contract.ErrAlreadyInitialized) {
			obs.Error("bootstrap admin failed", map[string]any{"admin": string(admin), "error": err.Error()})
		}
	}
}
