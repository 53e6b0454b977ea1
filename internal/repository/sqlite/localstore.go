package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/repository"
)

// compile-time check that *DB implements repository.LocalStore
var _ repository.LocalStore = (*DB)(nil)

// LoadValue returns the raw value stored under owner/key.
func (db *DB) LoadValue(ctx context.Context, owner, key string) ([]byte, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM local_store WHERE owner = ? AND key = ?`,
		owner, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(key, owner)
		}
		return nil, fmt.Errorf("sqlite: loading %s for %s: %w", key, owner, err)
	}
	return value, nil
}

// SaveValue overwrites owner/key.
func (db *DB) SaveValue(ctx context.Context, owner, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO local_store (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		owner, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving %s for %s: %w", key, owner, err)
	}
	return nil
}

// UpdateValue runs fn inside a transaction. Returning a nil slice from fn
// deletes the key.
func (db *DB) UpdateValue(ctx context.Context, owner, key string, fn func(current []byte) ([]byte, error)) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning update of %s for %s: %w", key, owner, err)
	}
	defer tx.Rollback()

	var current []byte
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM local_store WHERE owner = ? AND key = ?`,
		owner, key,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: reading %s for %s: %w", key, owner, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM local_store WHERE owner = ? AND key = ?`, owner, key)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO local_store (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (owner, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			owner, key, next, time.Now().UTC(),
		)
	}
	if err != nil {
		return fmt.Errorf("sqlite: writing %s for %s: %w", key, owner, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing %s for %s: %w", key, owner, err)
	}
	return nil
}

// DeleteValues removes the given keys for owner. Missing keys are ignored.
func (db *DB) DeleteValues(ctx context.Context, owner string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	args = append(args, owner)
	for _, k := range keys {
		args = append(args, k)
	}

	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM local_store WHERE owner = ? AND key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %v for %s: %w", keys, owner, err)
	}
	return nil
}
