package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/knikodemQ/Appointment-Booking-System/internal/config"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store/dynamo"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store/filestore"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store/postgres"
	"github.com/knikodemQ/Appointment-Booking-System/internal/store/redisstore"
)

// openStorage connects the configured backend. The returned func releases it.
func openStorage(ctx context.Context, cfg config.Config, fs afero.Fs, log *slog.Logger) (store.Repository, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			SlowQuery:       cfg.DBSlowQuery,
			Logger:          log,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("database connection failed", args...)
			return nil, nil, err
		}
		return postgres.NewRepo(db), func() error { return postgres.Close(db, log) }, nil

	case config.BackendFile:
		log.Info("using data file", slog.String("path", cfg.FilePath))
		return filestore.New(fs, cfg.FilePath), noop, nil

	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.DynamoEndpoint)
			}
		})
		log.Info("using dynamodb", slog.String("table", cfg.DynamoTable), slog.String("region", cfg.DynamoRegion))
		return dynamo.New(client, cfg.DynamoTable, log), noop, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("using redis", slog.String("addr", cfg.RedisAddr), slog.String("prefix", cfg.RedisPrefix))
		return redisstore.New(client, cfg.RedisPrefix, log), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
