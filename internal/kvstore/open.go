package kvstore

import (
	"context"
	"fmt"

	"github.com/digkill/imagestudio/internal/config"
	"github.com/digkill/imagestudio/internal/database"
)

// Open builds the backend selected by cfg.StorageBackend. The returned close
// function releases any database handle and is never nil.
func Open(ctx context.Context, cfg config.Config) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageBackend {
	case config.BackendMemory:
		return NewMemoryStore(), noop, nil
	case config.BackendFile:
		store, err := NewFileStore(cfg.FileStorageDir)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case config.BackendSQLite:
		return openSQL(ctx, database.DialectSQLite, cfg.SQLitePath)
	case config.BackendMySQL:
		return openSQL(ctx, database.DialectMySQL, cfg.MySQLDSN)
	case config.BackendS3:
		store, err := NewS3Store(S3Config{
			Endpoint:     cfg.S3Endpoint,
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Bucket:       cfg.S3Bucket,
			UsePathStyle: cfg.S3UsePathStyle,
			Prefix:       cfg.S3StatePrefix,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

func openSQL(ctx context.Context, dialect database.Dialect, dsn string) (Store, func() error, error) {
	noop := func() error { return nil }

	db, err := database.Connect(ctx, dialect, dsn)
	if err != nil {
		return nil, noop, fmt.Errorf("database connect: %w", err)
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, noop, fmt.Errorf("database migrate: %w", err)
	}
	store, err := NewSQLStore(db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	return store, db.Close, nil
}
