package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-inventory"
	obs.InitLogger(cfg.LogLevel, service)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: product.stock.depleted
	depleted := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockDepleted, 1024)
	depleted.Start(ctx)

	svc := &inventory.Service{
		Dedup:       &redisx.Dedup{Redis: rdb, Service: service},
		Cache:       &redisx.ProductCache{Redis: rdb, TTL: cfg.ProductCacheTTL},
		Depleted:    depleted,
		ServiceName: service,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.InventoryGroup, orders.TopicOrderPlaced, cfg.InventoryWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		obs.Logger.Info("inventory consumer started", slog.String("group", cfg.InventoryGroup),
			slog.String("topic", orders.TopicOrderPlaced), slog.Int("workers", cfg.InventoryWorkers))
		if err := cons.Start(ctx, svc.HandleOrderPlaced); err != nil {
			obs.Logger.Error("consumer exit", slog.String(obs.KeyError, err.Error()))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	obs.Logger.Info("shutting down consumer")
	cancel()
	<-done
	depleted.Close()
	depleted.WaitClosed()
}
