package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/rakshak/internal/apperror"
	"github.com/sakif/rakshak/internal/model"
	"github.com/sakif/rakshak/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const accountColumns = `id, email, password_hash, display_name, github_id, avatar_url, disabled, created_at, updated_at`

// CreateAccount inserts a new email/password account.
// Returns apperror.ErrConflict if the email is already taken.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = xid.New().String()
	}
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		account.GitHubID,
		account.AvatarURL,
		account.Disabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", account.Email)
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", account.Email, err)
	}
	return nil
}

// GetAccountByID retrieves an account by its internal ID.
func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE id = ?`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return account, nil
}

// GetAccountByEmail looks an account up by email, case-insensitively.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE email = ?`, email)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email %s: %w", email, err)
	}
	return account, nil
}

// UpsertGitHubAccount inserts or refreshes an account keyed by GitHub ID.
//
// An existing account keeps its internal ID; only the profile fields GitHub
// owns (email, avatar, display name) are refreshed. account is updated in
// place with the stored ID and timestamps.
func (db *DB) UpsertGitHubAccount(ctx context.Context, account *model.Account) error {
	if account.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting github account: missing github id")
	}

	var existingID string
	var createdAt time.Time
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE github_id = ?`, *account.GitHubID,
	).Scan(&existingID, &createdAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *account.GitHubID, err)
	}

	now := time.Now().UTC()
	if existingID != "" {
		account.ID = existingID
		account.CreatedAt = createdAt
		account.UpdatedAt = now
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET email = ?, display_name = ?, avatar_url = ?, updated_at = ?
			 WHERE id = ?`,
			account.Email,
			account.DisplayName,
			account.AvatarURL,
			account.UpdatedAt,
			account.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", account.Email)
			}
			return fmt.Errorf("sqlite: updating user %s: %w", account.ID, err)
		}
		return nil
	}

	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.DisplayName,
		*account.GitHubID,
		account.AvatarURL,
		account.Disabled,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", account.Email)
		}
		return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", *account.GitHubID, err)
	}
	return nil
}

// UpdateDisplayName sets the display name shown in the UI.
func (db *DB) UpdateDisplayName(ctx context.Context, id, name string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating display name for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var githubID sql.NullInt64
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.DisplayName,
		&githubID,
		&a.AvatarURL,
		&a.Disabled,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		a.GitHubID = &id
	}
	return &a, nil
}

// isUniqueViolation matches SQLite's constraint error text. The driver's
// typed error lives in an internal package, so the message is all we get.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
