package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/repository"
)

// compile-time check that *DB implements repository.DocumentStore
var _ repository.DocumentStore = (*DB)(nil)

// GetDocument returns one document with its id merged in.
func (db *DB) GetDocument(ctx context.Context, collection, id string) (repository.Document, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(collection, id)
		}
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", collection, id, err)
	}

	doc, err := decodeDocument(id, data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// ListDocuments returns the documents of a collection.
//
// Equality filters are pushed down into SQL with json_extract; ordering and
// limits are applied in Go by repository.ApplyQuery, because stored
// timestamps are RFC 3339 strings whose text order is not their time order.
func (db *DB) ListDocuments(ctx context.Context, collection string, q repository.Query) ([]repository.Document, error) {
	var sb strings.Builder
	args := []any{collection}

	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	for _, f := range q.Where {
		if !validFieldName(f.Field) {
			return nil, fmt.Errorf("sqlite: listing %s: invalid filter field %q", collection, f.Field)
		}
		sb.WriteString(` AND json_extract(data, '$.` + f.Field + `') = ?`)
		args = append(args, f.Value)
	}
	sb.WriteString(` ORDER BY created_at, id`)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s: %w", collection, err)
	}
	// Rows MUST be closed, otherwise the single pooled connection stays busy.
	defer rows.Close()

	var docs []repository.Document
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s row: %w", collection, err)
		}
		doc, err := decodeDocument(id, data)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s/%s: %w", collection, id, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s rows: %w", collection, err)
	}

	return repository.ApplyQuery(docs, q), nil
}

// AddDocument stores data under a fresh xid and returns the id.
func (db *DB) AddDocument(ctx context.Context, collection string, data repository.Document) (string, error) {
	id := xid.New().String()

	doc, err := repository.MergeFields(nil, data)
	if err != nil {
		return "", fmt.Errorf("sqlite: adding to %s: %w", collection, err)
	}
	delete(doc, "id")

	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding %s document: %w", collection, err)
	}

	now := time.Now().UTC()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(encoded), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: adding to %s: %w", collection, err)
	}
	return id, nil
}

// MergeDocument is a read-modify-write inside one transaction, so two
// concurrent merges into the same document cannot lose each other's fields.
func (db *DB) MergeDocument(ctx context.Context, collection, id string, data repository.Document) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning merge of %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback()

	var existing repository.Document
	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = repository.Document{}
	case err != nil:
		return fmt.Errorf("sqlite: reading %s/%s for merge: %w", collection, id, err)
	default:
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return fmt.Errorf("sqlite: decoding %s/%s: %w", collection, id, err)
		}
	}

	merged, err := repository.MergeFields(existing, data)
	if err != nil {
		return fmt.Errorf("sqlite: merging %s/%s: %w", collection, id, err)
	}
	delete(merged, "id")

	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s/%s: %w", collection, id, err)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(encoded), now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: writing %s/%s: %w", collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing merge of %s/%s: %w", collection, id, err)
	}
	return nil
}

func decodeDocument(id, data string) (repository.Document, error) {
	var doc repository.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if doc == nil {
		doc = repository.Document{}
	}
	doc["id"] = id
	return doc, nil
}

// validFieldName keeps filter fields to plain identifiers, since they are
// spliced into the json_extract path.
func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
