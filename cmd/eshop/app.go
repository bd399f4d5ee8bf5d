package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/eshop/gateway"
	"github.com/example/eshop/pkg/auth"
	"github.com/example/eshop/pkg/config"
	"github.com/example/eshop/pkg/discovery"
	"github.com/example/eshop/pkg/events"
	"github.com/example/eshop/pkg/grpc"
	"github.com/example/eshop/pkg/metrics"
	"github.com/example/eshop/pkg/orders"
	"github.com/example/eshop/pkg/repository"
	"github.com/example/eshop/pkg/storage"
)

// app owns every long-lived connection of the process.
type app struct {
	config    *config.Config
	logger    *zap.Logger
	mongo     *repository.MongoRepository
	redis     *repository.RedisRepository
	publisher *events.Publisher
	orders    *orders.Manager
	gateway   *gateway.Gateway
	health    *grpc.HealthServer
	discovery *discovery.ServiceDiscovery
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{config: cfg, logger: logger}

	mongo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	a.mongo = mongo

	ictx, cancel := context.WithTimeout(ctx, cfg.MongoDB.ConnectTimeout)
	defer cancel()
	if err := mongo.EnsureIndexes(ictx); err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	var users orders.UserDirectory = mongo
	var userCache gateway.UserCache
	if cfg.Redis.Addr != "" {
		a.redis = repository.NewRedisRepository(&cfg.Redis)
		if err := a.redis.Ping(ctx); err != nil {
			logger.Warn("Redis connection failed, user names are read from mongodb", zap.Error(err))
		} else {
			logger.Info("Redis connected successfully")
		}
		users = repository.NewCachedUserDirectory(a.redis, mongo, logger.Named("user-cache"))
		userCache = a.redis
	}

	a.publisher = events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if !a.publisher.Enabled() {
		logger.Info("No kafka brokers configured, order events are disabled")
	}

	images, uploadsDir, err := newImageStore(ctx, &cfg.Storage)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	a.orders = orders.NewManager(mongo, logger.Named("orders"),
		orders.WithPublisher(a.publisher),
		orders.WithAuditLogger(mongo),
		orders.WithUserDirectory(users),
	)

	a.gateway = gateway.NewGateway(cfg, logger.Named("gateway"), gateway.Dependencies{
		Orders:     a.orders,
		Products:   mongo,
		Categories: mongo,
		Users:      mongo,
		Audit:      mongo,
		UserCache:  userCache,
		Images:     images,
		UploadsDir: uploadsDir,
		Tokens:     auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL),
		Metrics:    metrics.NewServerMetrics("api"),
		Health:     mongo.Ping,
	})
	a.gateway.SetupRoutes()

	a.health = grpc.NewHealthServer(&cfg.GRPC, cfg.Server.Name, logger.Named("grpc"))

	if len(cfg.Etcd.Endpoints) > 0 {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger.Named("discovery"))
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.discovery = sd
	}

	return a, nil
}

// newImageStore picks the upload backend. The returned directory is non-empty
// only when files must be served by the gateway itself.
func newImageStore(ctx context.Context, cfg *config.StorageConfig) (storage.Store, string, error) {
	switch cfg.Driver {
	case "minio":
		s, err := storage.NewMinioStore(ctx, &cfg.Minio)
		if err != nil {
			return nil, "", err
		}
		return s, "", nil
	default:
		s, err := storage.NewDiskStore(cfg.Dir)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}

func (a *app) instance() *discovery.ServiceInstance {
	return &discovery.ServiceInstance{
		Name: a.config.Server.Name,
		Host: a.config.Gateway.Host,
		Port: a.config.Gateway.Port,
	}
}

// run serves HTTP and gRPC until ctx is cancelled or a server fails.
func (a *app) run(ctx context.Context) error {
	serverErr := make(chan error, 2)
	go func() {
		if err := a.gateway.Start(); err != nil {
			serverErr <- err
		}
	}()
	go func() {
		if err := a.health.Start(); err != nil {
			serverErr <- fmt.Errorf("grpc health server stopped: %w", err)
		}
	}()
	go a.health.Watch(ctx, a.mongo, 10*time.Second)

	if a.discovery != nil {
		if err := a.discovery.Register(ctx, a.instance()); err != nil {
			return err
		}
		a.logger.Info("Service registered in etcd",
			zap.String("name", a.config.Server.Name),
			zap.String("address", a.instance().Addr()))
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
		return nil
	case err := <-serverErr:
		return err
	}
}

// shutdown deregisters first so no new traffic is routed here, then drains.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	if a.discovery != nil {
		if err := a.discovery.Deregister(ctx, a.instance()); err != nil {
			a.logger.Error("Failed to deregister service", zap.Error(err))
		}
	}

	if err := a.gateway.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Gateway shutdown failed", zap.Error(err))
	}
	a.health.Stop()
	if err := a.orders.Drain(ctx); err != nil {
		a.logger.Warn("Audit writes still pending at shutdown", zap.Error(err))
	}
	a.close(ctx)
}

func (a *app) close(ctx context.Context) {
	if a.discovery != nil {
		if err := a.discovery.Close(); err != nil {
			a.logger.Warn("Failed to close etcd client", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("Failed to close kafka writer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Close(ctx); err != nil {
			a.logger.Warn("Failed to close mongodb", zap.Error(err))
		}
	}
}
