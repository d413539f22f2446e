package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-market-sync.git/internal/config"
	"github.com/ariefcatur/go-market-sync.git/internal/feed"
	"github.com/ariefcatur/go-market-sync.git/internal/httpx"
	"github.com/ariefcatur/go-market-sync.git/internal/ledger"
	"github.com/ariefcatur/go-market-sync.git/internal/machine"
	"github.com/ariefcatur/go-market-sync.git/internal/optimistic"
	"github.com/ariefcatur/go-market-sync.git/internal/postgres"
	"github.com/ariefcatur/go-market-sync.git/internal/presence"
	"github.com/ariefcatur/go-market-sync.git/internal/redisx"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
	syncx "github.com/ariefcatur/go-market-sync.git/internal/sync"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	st := &store.Postgres{DB: db}
	sm := machine.New(st)
	esc := ledger.NewEscrow(st)

	// change feed -> hub
	src := feed.NewKafkaSource(cfg.KafkaBrokers, cfg.FeedGroup, cfg.FeedTopic).
		WithDedup(rdb, cfg.ServiceName)
	hub := syncx.NewHub(src, syncx.StoreBaseliner(st, cfg.ServiceName), syncx.Config{
		BackoffBase:  cfg.BackoffBase,
		BackoffCap:   cfg.BackoffCap,
		RetryCeiling: cfg.RetryCeiling,
	})

	ctrl := optimistic.NewController(st, sm, hub, cfg.UserID, cfg.ConfirmTimeout)
	hub.SetEchoHook(ctrl.OnEcho)

	// ops HTTP surface
	router := httpx.NewRouter()
	sh := &httpx.StatsHandler{Escrow: esc, Loyalty: &ledger.Loyalty{Store: st}, Redis: rdb}
	sh.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})
	if cfg.UserID != "" {
		hb := &presence.Heartbeat{Redis: rdb, Store: st, UserID: cfg.UserID, Interval: cfg.HeartbeatEvery}
		g.Go(func() error { return hb.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("exit: %v", err)
	}
	log.Println("shutting down...")
}
