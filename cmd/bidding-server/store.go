package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/gommon/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bidding/internal/campaign"
	"bidding/internal/config"
)

// openStore connects the configured campaign backend. The returned func
// releases its connections.
func openStore(ctx context.Context, cfg config.Server, logger *log.Logger) (campaign.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
		}

		logger.Infof("Created redis client for %s", cfg.RedisAddr)

		return campaign.NewRedisStore(client), func() { client.Close() }, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to mongo: %w", err)
		}

		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warnf("disconnecting mongo: %v", err)
			}
		}

		store, err := campaign.NewMongoStore(ctx, client.Database(cfg.MongoDatabase))
		if err != nil {
			closeFn()
			return nil, nil, err
		}

		logger.Infof("Connected to mongo database %s", cfg.MongoDatabase)

		return store, closeFn, nil

	default:
		logger.Info("Using in-memory campaign store")
		return campaign.NewMemoryStore(), func() {}, nil
	}
}
