package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/store"
	"github.com/ariefcatur/go-storefront/internal/store/memory"
)

func fatal(msg string, err error) {
	obs.Logger.Error(msg, slog.String(obs.KeyError, err.Error()))
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	obs.InitLogger(cfg.LogLevel, cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var st store.Store
	switch cfg.Store {
	case "memory":
		st = memory.New()
		obs.Logger.Warn("using in-memory store; data is lost on exit")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.PGMaxConns)})
		if err != nil {
			fatal("db connect", err)
		}
		defer db.Close()
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				fatal("db migrate", err)
			}
		}
		st = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := &redisx.ProductCache{Redis: rdb, TTL: cfg.ProductCacheTTL}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024)
	prod.Start(ctx)

	policy := pricing.DefaultPolicy()
	policy.CharmOnUpdate = cfg.PriceCharmOnUpdate

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Catalog: &catalog.Service{Store: st, Cache: cache, Policy: policy},
		Cart:    &cart.Service{Store: st},
		Orders: &orders.Service{
			Store:       st,
			Cache:       cache,
			Producer:    prod,
			ServiceName: cfg.ServiceName,
			EmptyCart:   orders.ParseEmptyCartPolicy(cfg.EmptyCartPolicy),
		},
		Idem: &redisx.Idempotency{Redis: rdb},
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		obs.Logger.Info("http listening", slog.String("addr", cfg.HTTPAddr), slog.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("listen", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	obs.Logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		obs.Logger.Warn("http shutdown", slog.String(obs.KeyError, err.Error()))
	}
	prod.Close() // flush queued events, then close the writer
	prod.WaitClosed()
	cancel()
}
