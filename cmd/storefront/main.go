package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/storefront/gateway"
	"github.com/example/storefront/pkg/cart"
	"github.com/example/storefront/pkg/checkout"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/discovery"
	"github.com/example/storefront/pkg/events"
	grpcserver "github.com/example/storefront/pkg/grpc"
	"github.com/example/storefront/pkg/logging"
	"github.com/example/storefront/pkg/money"
	"github.com/example/storefront/pkg/offer"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/repository"
	"github.com/example/storefront/pkg/serial"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Storefront stopped with error", zap.Error(err))
	}
	logger.Info("Storefront stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting storefront",
		zap.String("name", cfg.Server.Name),
		zap.String("grpc", cfg.Server.Addr()),
		zap.String("http", cfg.Gateway.Addr()))

	policy, err := pricingPolicy(cfg.Pricing)
	if err != nil {
		return err
	}

	mongoRepo, err := repository.NewMongoRepository(ctx, &cfg.MongoDB)
	if err != nil {
		return err
	}
	defer mongoRepo.Close(context.Background())
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		return err
	}

	serializer := serial.NewSerializer(logger)
	defer serializer.Close()
	go serializer.RunSweeper(ctx, cfg.Locking.IdleSweep, cfg.Locking.ActorIdle)

	var (
		locker    serial.Locker = serializer
		cartCache cart.Cache
	)
	checks := map[string]grpcserver.Checker{"mongodb": mongoRepo}
	if cfg.Redis.Enabled {
		redisRepo := repository.NewRedisRepository(&cfg.Redis)
		defer redisRepo.Close()
		if err := redisRepo.Ping(ctx); err != nil {
			logger.Warn("Redis connection failed", zap.Error(err))
		} else {
			logger.Info("Redis connected successfully")
		}
		cartCache = redisRepo
		checks["redis"] = redisRepo
		if cfg.Locking.Distributed {
			locker = serial.Chain{serializer, redisRepo.Locker(cfg.Locking.LockTTL, cfg.Locking.RetryInterval)}
		}
	}

	sinks := []events.Sink{mongoRepo.AuditSink()}
	if cfg.MySQL.Enabled {
		ledger, err := repository.NewLedgerRepository(&cfg.MySQL)
		if err != nil {
			return err
		}
		defer ledger.Close()
		sinks = append(sinks, ledger)
	}
	if cfg.AMQP.Enabled {
		publisher, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	sink := events.NewFanout(logger, sinks...)

	offers := offer.NewService(mongoRepo, logger)
	carts := cart.NewService(cart.Deps{
		Store:   mongoRepo,
		Catalog: mongoRepo,
		Offers:  offers,
		Cache:   cartCache,
		Locker:  locker,
		Policy:  policy,
		Logger:  logger,
	})
	orders := order.NewService(order.Deps{
		Store:     mongoRepo,
		Inventory: mongoRepo,
		Events:    sink,
		Locker:    locker,
		Logger:    logger,
	})
	co := checkout.NewService(checkout.Deps{
		Carts:     carts,
		Catalog:   mongoRepo,
		Offers:    mongoRepo,
		Orders:    mongoRepo,
		Inventory: mongoRepo,
		Sequence:  mongoRepo,
		Events:    sink,
		Logger:    logger,
	})

	readiness := make(map[string]func(context.Context) error, len(checks))
	for name, check := range checks {
		readiness[name] = check.Ping
	}
	gw := gateway.NewGateway(cfg, logger, gateway.Services{
		Carts:    carts,
		Checkout: co,
		Orders:   orders,
		Offers:   offers,
		Checks:   readiness,
	})
	health := grpcserver.NewHealthServer(&cfg.Server, logger, checks)
	go health.RunProbes(ctx, 15*time.Second)

	serverErr := make(chan error, 2)
	go func() { serverErr <- gw.Start() }()
	go func() { serverErr <- health.Start() }()

	if cfg.Etcd.Enabled {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
		if err != nil {
			return err
		}
		defer sd.Close()

		instance := &discovery.ServiceInstance{
			Name: cfg.Server.Name,
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		}
		if err := sd.Register(ctx, instance); err != nil {
			return err
		}
		logger.Info("Service registered in etcd", zap.String("name", instance.Name), zap.String("address", instance.Addr()))
		defer func() {
			if err := sd.Deregister(context.Background(), instance); err != nil {
				logger.Error("Failed to deregister service", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	health.Stop()
	if err := gw.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Gateway shutdown failed", zap.Error(err))
	}
	return nil
}

func pricingPolicy(cfg config.PricingConfig) (cart.PricingPolicy, error) {
	policy := cart.DefaultPolicy()
	if cfg.TaxRate != "" {
		rate, err := money.Parse(cfg.TaxRate)
		if err != nil {
			return policy, fmt.Errorf("pricing.tax_rate: %w", err)
		}
		if rate.IsNegative() {
			return policy, errors.New("pricing.tax_rate must not be negative")
		}
		policy.TaxRate = rate
	}
	if cfg.Shipping != "" {
		shipping, err := money.Parse(cfg.Shipping)
		if err != nil {
			return policy, fmt.Errorf("pricing.shipping: %w", err)
		}
		if shipping.IsNegative() {
			return policy, errors.New("pricing.shipping must not be negative")
		}
		policy.Shipping = shipping
	}
	if cfg.CartTTL > 0 {
		policy.TTL = cfg.CartTTL
	}
	return policy, nil
}
