package main

import (
	"context"
	"fmt"
	"time"

	"github.com/EcoCycle/PickupDesk/config"
	"github.com/EcoCycle/PickupDesk/internal/broker/kafka"
	"github.com/EcoCycle/PickupDesk/internal/cache/rediscache"
	"github.com/EcoCycle/PickupDesk/internal/services/sweeper"
	"github.com/EcoCycle/PickupDesk/internal/storage/pgrequests"
)

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo sweeper.Repository, closeFn func(), err error)
	newProducer func(cfg *config.Config) sweeper.Producer
	newCache    func(cfg *config.Config) sweeper.Cache
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (sweeper.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgrequests.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newCache: func(cfg *config.Config) sweeper.Cache {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.New(redisAddr)
		},
	}
}

func RunPickupWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.RequestUpdatedTopicName
	if topic == "" {
		topic = "request.updated"
	}

	sweepInterval := time.Duration(cfg.PickupDesk.WorkerSweepIntervalSeconds) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	batchSize := cfg.PickupDesk.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.PickupDesk.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	cache := f.newCache(cfg)

	s := sweeper.New(repo, producer, cache, topic).
		WithSettings(sweepInterval, batchSize, concurrency)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: cfg.PickupDesk.WorkerHTTPAddr,
			sweeper:  s,
			cfg:      cfg,
		})
	}()

	sweepErr := make(chan error, 1)
	go func() {
		sweepErr <- s.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-sweepErr:
		return err
	case err := <-httpErr:
		return err
	}
}
