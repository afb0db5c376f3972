// Package repository provides data persistence implementations for profile
// entities.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/database"
	"github.com/allisson/gridgate/internal/user/domain"

	apperrors "github.com/allisson/gridgate/internal/errors"
)

// PostgreSQLProfileRepository handles profile persistence for PostgreSQL
type PostgreSQLProfileRepository struct {
	db *sql.DB
}

// NewPostgreSQLProfileRepository creates a new PostgreSQLProfileRepository
func NewPostgreSQLProfileRepository(db *sql.DB) *PostgreSQLProfileRepository {
	return &PostgreSQLProfileRepository{
		db: db,
	}
}

// Create inserts a new profile
func (r *PostgreSQLProfileRepository) Create(ctx context.Context, profile *domain.UserProfile) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO profiles (id, first_name, sur_name, email, password_hash, home_region_x, home_region_y, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query,
		profile.ID, profile.FirstName, profile.SurName, profile.Email, profile.PasswordHash,
		profile.HomeRegionX, profile.HomeRegionY,
	)
	if err != nil {
		if isPostgreSQLUniqueViolation(err) {
			return domain.ErrProfileNameTaken
		}
		return apperrors.Wrap(err, "failed to create profile")
	}
	return nil
}

// GetByID retrieves a profile by ID, including its current agent session
func (r *PostgreSQLProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT p.id, p.first_name, p.sur_name, p.email, p.password_hash,
			         p.home_region_x, p.home_region_y, p.last_login, p.created_at, p.updated_at,
			         s.session_id, s.secure_session_id, s.online, s.login_time, s.logout_time
			  FROM profiles p
			  LEFT JOIN agent_sessions s ON s.profile_id = p.id
			  WHERE p.id = $1`

	return scanProfile(querier.QueryRowContext(ctx, query, id), "failed to get profile by id")
}

// GetByName retrieves a profile by grid name
func (r *PostgreSQLProfileRepository) GetByName(ctx context.Context, firstName, surName string) (*domain.UserProfile, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT p.id, p.first_name, p.sur_name, p.email, p.password_hash,
			         p.home_region_x, p.home_region_y, p.last_login, p.created_at, p.updated_at,
			         s.session_id, s.secure_session_id, s.online, s.login_time, s.logout_time
			  FROM profiles p
			  LEFT JOIN agent_sessions s ON s.profile_id = p.id
			  WHERE p.first_name = $1 AND p.sur_name = $2`

	return scanProfile(querier.QueryRowContext(ctx, query, firstName, surName), "failed to get profile by name")
}

// SaveAgentSession upserts the agent session for a profile and stamps the
// profile's last login on session creation
func (r *PostgreSQLProfileRepository) SaveAgentSession(ctx context.Context, profileID uuid.UUID, session *domain.AgentSession) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO agent_sessions (profile_id, session_id, secure_session_id, online, login_time, logout_time)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (profile_id) DO UPDATE SET
			    session_id = EXCLUDED.session_id,
			    secure_session_id = EXCLUDED.secure_session_id,
			    online = EXCLUDED.online,
			    login_time = EXCLUDED.login_time,
			    logout_time = EXCLUDED.logout_time`

	_, err := querier.ExecContext(ctx, query,
		profileID, session.SessionID, session.SecureSessionID, session.Online, session.LoginTime, session.LogoutTime,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to save agent session")
	}

	if session.Online {
		if _, err := querier.ExecContext(ctx, `UPDATE profiles SET last_login = $1, updated_at = NOW() WHERE id = $2`,
			session.LoginTime, profileID); err != nil {
			return apperrors.Wrap(err, "failed to stamp last login")
		}
	}

	return nil
}

// Friends retrieves the friend list owned by a profile
func (r *PostgreSQLProfileRepository) Friends(ctx context.Context, profileID uuid.UUID) ([]*domain.Friend, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT friend_id, owner_perms, friend_perms FROM friends WHERE owner_id = $1 ORDER BY friend_id`

	rows, err := querier.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get friend list")
	}
	defer rows.Close()

	var friends []*domain.Friend
	for rows.Next() {
		var friend domain.Friend
		if err := rows.Scan(&friend.FriendID, &friend.OwnerPerms, &friend.FriendPerms); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan friend row")
		}
		friends = append(friends, &friend)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate friend rows")
	}

	return friends, nil
}

// scanProfile scans one profile row with its optional agent session columns
func scanProfile(row *sql.Row, wrapMsg string) (*domain.UserProfile, error) {
	var profile domain.UserProfile
	var lastLogin sql.NullTime
	var sessionID, secureSessionID sql.Null[uuid.UUID]
	var online sql.NullBool
	var loginTime, logoutTime sql.NullTime

	err := row.Scan(
		&profile.ID, &profile.FirstName, &profile.SurName, &profile.Email, &profile.PasswordHash,
		&profile.HomeRegionX, &profile.HomeRegionY, &lastLogin, &profile.CreatedAt, &profile.UpdatedAt,
		&sessionID, &secureSessionID, &online, &loginTime, &logoutTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, apperrors.Wrap(err, wrapMsg)
	}

	if lastLogin.Valid {
		profile.LastLogin = lastLogin.Time
	}
	if sessionID.Valid {
		profile.CurrentAgent = &domain.AgentSession{
			SessionID:       sessionID.V,
			SecureSessionID: secureSessionID.V,
			Online:          online.Bool,
			LoginTime:       loginTime.Time,
			LogoutTime:      logoutTime.Time,
		}
	}

	return &profile, nil
}

// isPostgreSQLUniqueViolation checks if the error is a PostgreSQL unique constraint violation
func isPostgreSQLUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// PostgreSQL: "duplicate key value violates unique constraint" or "pq: duplicate key"
	return strings.Contains(errMsg, "duplicate key") || strings.Contains(errMsg, "unique constraint")
}
