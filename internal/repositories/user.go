package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/spindle/internal/models"
)

// UserRepository persists [models.UserProfile] rows.
//
// The profile is the only upsertable entity: identity never changes, all
// other columns are overwritten on every run.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts the profile or overwrites its mutable fields when the
// user_id already exists.
func (r *UserRepository) Upsert(ctx context.Context, tx *sql.Tx, profile models.UserProfile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO users (user_id, display_name, email, country, followers, account_type, etl_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			country = excluded.country,
			followers = excluded.followers,
			account_type = excluded.account_type,
			etl_timestamp = excluded.etl_timestamp
	`

	_, err := tx.ExecContext(ctx, query,
		profile.UserID,
		profile.DisplayName,
		profile.Email,
		profile.Country,
		profile.Followers,
		profile.AccountType,
		profile.ETLTimestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// Get retrieves a profile by user ID.
func (r *UserRepository) Get(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT user_id, display_name, email, country, followers, account_type, etl_timestamp
		FROM users
		WHERE user_id = ?
	`

	var profile models.UserProfile
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.Email,
		&profile.Country,
		&profile.Followers,
		&profile.AccountType,
		&profile.ETLTimestamp,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &profile, nil
}

// First returns the user ID of the earliest-loaded profile, or an error
// wrapping [sql.ErrNoRows] when the table is empty.
func (r *UserRepository) First(ctx context.Context) (string, error) {
	var userID string
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id FROM users ORDER BY etl_timestamp ASC LIMIT 1").Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	return userID, nil
}

// Exists reports whether a profile row exists for the given user ID.
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE user_id = ?)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}
