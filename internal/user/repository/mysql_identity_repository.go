package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/database"
	"github.com/allisson/gridgate/internal/user/domain"

	apperrors "github.com/allisson/gridgate/internal/errors"
)

// MySQLIdentityRepository persists identity URI to profile mappings for MySQL
type MySQLIdentityRepository struct {
	db *sql.DB
}

// NewMySQLIdentityRepository creates a new MySQLIdentityRepository
func NewMySQLIdentityRepository(db *sql.DB) *MySQLIdentityRepository {
	return &MySQLIdentityRepository{
		db: db,
	}
}

// GetProfileID retrieves the profile mapped to an identity URI
func (r *MySQLIdentityRepository) GetProfileID(ctx context.Context, identity string) (uuid.UUID, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT profile_id FROM identity_map WHERE identity = ?`

	var profileID uuid.UUID
	err := querier.QueryRowContext(ctx, query, identity).Scan(&profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, domain.ErrIdentityNotMapped
		}
		return uuid.Nil, apperrors.Wrap(err, "failed to get identity mapping")
	}

	return profileID, nil
}

// Map records the mapping from an identity URI to a profile. Re-mapping the
// same identity overwrites the previous profile reference.
func (r *MySQLIdentityRepository) Map(ctx context.Context, identity string, profileID uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO identity_map (identity, profile_id, created_at)
			  VALUES (?, ?, NOW())
			  ON DUPLICATE KEY UPDATE profile_id = VALUES(profile_id)`

	_, err := querier.ExecContext(ctx, query, identity, profileID)
	if err != nil {
		return apperrors.Wrap(err, "failed to map identity")
	}
	return nil
}
