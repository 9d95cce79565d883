package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/imagestudio/internal/database"
)

// SQLStore keeps values in the kv_entries table of a MySQL or SQLite database.
type SQLStore struct {
	db     *sql.DB
	upsert string
}

func NewSQLStore(db *sql.DB, dialect database.Dialect) (*SQLStore, error) {
	var upsert string
	switch dialect {
	case database.DialectMySQL:
		upsert = `
INSERT INTO kv_entries (entry_key, entry_value) VALUES (?, ?)
ON DUPLICATE KEY UPDATE entry_value = VALUES(entry_value), updated_at = NOW()`
	case database.DialectSQLite:
		upsert = `
INSERT INTO kv_entries (entry_key, entry_value) VALUES (?, ?)
ON CONFLICT(entry_key) DO UPDATE SET entry_value = excluded.entry_value, updated_at = CURRENT_TIMESTAMP`
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	return &SQLStore{db: db, upsert: upsert}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	const query = `SELECT entry_value FROM kv_entries WHERE entry_key = ?`
	var value string
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsert, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	const query = `DELETE FROM kv_entries WHERE entry_key = ?`
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}
