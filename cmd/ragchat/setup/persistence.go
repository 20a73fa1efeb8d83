package setup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/ragchat/cmd/ragchat/sqlitepath"
	"github.com/papercomputeco/ragchat/pkg/eventstream"
	"github.com/papercomputeco/ragchat/pkg/eventstream/kafka"
	"github.com/papercomputeco/ragchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ragchat/pkg/storage"
	"github.com/papercomputeco/ragchat/pkg/storage/inmemory"
	"github.com/papercomputeco/ragchat/pkg/storage/postgres"
	"github.com/papercomputeco/ragchat/pkg/storage/sqlite"
	"github.com/papercomputeco/ragchat/pkg/worker"
)

// OpenStorage opens the transcript store selected by s.StorageDriver.
func OpenStorage(ctx context.Context, s *Settings, logger *zap.Logger) (storage.Driver, error) {
	switch s.StorageDriver {
	case "memory":
		logger.Debug("using in-memory storage")
		return inmemory.NewDriver(), nil

	case "sqlite", "":
		path, err := sqlitepath.ResolveSQLitePath(s.SQLitePath, s.ConfigDir)
		if err != nil {
			return nil, fmt.Errorf("resolving sqlite path: %w", err)
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Debug("using SQLite storage", zap.String("path", path))
		return driver, nil

	case "postgres":
		if s.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, s.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL storer: %w", err)
		}
		logger.Debug("using PostgreSQL storage")
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.StorageDriver)
	}
}

// OpenPublisher creates the turn event publisher selected by s.Publisher.
func OpenPublisher(s *Settings, logger *zap.Logger) (eventstream.Publisher, error) {
	switch s.Publisher {
	case "none", "":
		return nop.NewPublisher(), nil

	case "kafka":
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: s.Brokers,
			Topic:   s.Topic,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Debug("publishing turn events to kafka",
			zap.Strings("brokers", s.Brokers),
			zap.String("topic", s.Topic),
		)
		return pub, nil

	default:
		return nil, fmt.Errorf("unknown publisher %q", s.Publisher)
	}
}

// Persistence stores finished exchanges and publishes their events in the
// background.
type Persistence struct {
	Driver    storage.Driver
	Publisher eventstream.Publisher
	Pool      *worker.Pool

	logger *zap.Logger
}

// OpenPersistence opens storage and the publisher and starts a worker pool
// over them.
func OpenPersistence(ctx context.Context, s *Settings, logger *zap.Logger) (*Persistence, error) {
	driver, err := OpenStorage(ctx, s, logger)
	if err != nil {
		return nil, err
	}

	pub, err := OpenPublisher(s, logger)
	if err != nil {
		driver.Close()
		return nil, err
	}

	pool, err := worker.NewPool(&worker.Config{
		Driver:    driver,
		Publisher: pub,
		Logger:    logger,
	})
	if err != nil {
		pub.Close()
		driver.Close()
		return nil, err
	}

	return &Persistence{
		Driver:    driver,
		Publisher: pub,
		Pool:      pool,
		logger:    logger,
	}, nil
}

// Close drains the worker pool, then closes the publisher and storage.
func (p *Persistence) Close() error {
	p.Pool.Close()

	var errs []error
	if err := p.Publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing publisher: %w", err))
	}
	if err := p.Driver.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing storage: %w", err))
	}
	return errors.Join(errs...)
}
