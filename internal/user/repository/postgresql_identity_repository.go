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

// PostgreSQLIdentityRepository persists identity URI to profile mappings for
// PostgreSQL
type PostgreSQLIdentityRepository struct {
	db *sql.DB
}

// NewPostgreSQLIdentityRepository creates a new PostgreSQLIdentityRepository
func NewPostgreSQLIdentityRepository(db *sql.DB) *PostgreSQLIdentityRepository {
	return &PostgreSQLIdentityRepository{
		db: db,
	}
}

// GetProfileID retrieves the profile mapped to an identity URI
func (r *PostgreSQLIdentityRepository) GetProfileID(ctx context.Context, identity string) (uuid.UUID, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT profile_id FROM identity_map WHERE identity = $1`

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
func (r *PostgreSQLIdentityRepository) Map(ctx context.Context, identity string, profileID uuid.UUID) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO identity_map (identity, profile_id, created_at)
			  VALUES ($1, $2, NOW())
			  ON CONFLICT (identity) DO UPDATE SET profile_id = EXCLUDED.profile_id`

	_, err := querier.ExecContext(ctx, query, identity, profileID)
	if err != nil {
		return apperrors.Wrap(err, "failed to map identity")
	}
	return nil
}
