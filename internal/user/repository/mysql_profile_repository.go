package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/database"
	"github.com/allisson/gridgate/internal/user/domain"

	apperrors "github.com/allisson/gridgate/internal/errors"
)

// MySQLProfileRepository handles profile persistence for MySQL
type MySQLProfileRepository struct {
	db *sql.DB
}

// NewMySQLProfileRepository creates a new MySQLProfileRepository
func NewMySQLProfileRepository(db *sql.DB) *MySQLProfileRepository {
	return &MySQLProfileRepository{
		db: db,
	}
}

// Create inserts a new profile
func (r *MySQLProfileRepository) Create(ctx context.Context, profile *domain.UserProfile) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO profiles (id, first_name, sur_name, email, password_hash, home_region_x, home_region_y, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`

	_, err := querier.ExecContext(ctx, query,
		profile.ID, profile.FirstName, profile.SurName, profile.Email, profile.PasswordHash,
		profile.HomeRegionX, profile.HomeRegionY,
	)
	if err != nil {
		if isMySQLDuplicateEntry(err) {
			return domain.ErrProfileNameTaken
		}
		return apperrors.Wrap(err, "failed to create profile")
	}
	return nil
}

// GetByID retrieves a profile by ID, including its current agent session
func (r *MySQLProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserProfile, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT p.id, p.first_name, p.sur_name, p.email, p.password_hash,
			         p.home_region_x, p.home_region_y, p.last_login, p.created_at, p.updated_at,
			         s.session_id, s.secure_session_id, s.online, s.login_time, s.logout_time
			  FROM profiles p
			  LEFT JOIN agent_sessions s ON s.profile_id = p.id
			  WHERE p.id = ?`

	return scanProfile(querier.QueryRowContext(ctx, query, id), "failed to get profile by id")
}

// GetByName retrieves a profile by grid name
func (r *MySQLProfileRepository) GetByName(ctx context.Context, firstName, surName string) (*domain.UserProfile, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT p.id, p.first_name, p.sur_name, p.email, p.password_hash,
			         p.home_region_x, p.home_region_y, p.last_login, p.created_at, p.updated_at,
			         s.session_id, s.secure_session_id, s.online, s.login_time, s.logout_time
			  FROM profiles p
			  LEFT JOIN agent_sessions s ON s.profile_id = p.id
			  WHERE p.first_name = ? AND p.sur_name = ?`

	return scanProfile(querier.QueryRowContext(ctx, query, firstName, surName), "failed to get profile by name")
}

// SaveAgentSession upserts the agent session for a profile and stamps the
// profile's last login on session creation
func (r *MySQLProfileRepository) SaveAgentSession(ctx context.Context, profileID uuid.UUID, session *domain.AgentSession) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO agent_sessions (profile_id, session_id, secure_session_id, online, login_time, logout_time)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE
			    session_id = VALUES(session_id),
			    secure_session_id = VALUES(secure_session_id),
			    online = VALUES(online),
			    login_time = VALUES(login_time),
			    logout_time = VALUES(logout_time)`

	_, err := querier.ExecContext(ctx, query,
		profileID, session.SessionID, session.SecureSessionID, session.Online, session.LoginTime, session.LogoutTime,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to save agent session")
	}

	if session.Online {
		if _, err := querier.ExecContext(ctx, `UPDATE profiles SET last_login = ?, updated_at = NOW() WHERE id = ?`,
			session.LoginTime, profileID); err != nil {
			return apperrors.Wrap(err, "failed to stamp last login")
		}
	}

	return nil
}

// Friends retrieves the friend list owned by a profile
func (r *MySQLProfileRepository) Friends(ctx context.Context, profileID uuid.UUID) ([]*domain.Friend, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT friend_id, owner_perms, friend_perms FROM friends WHERE owner_id = ? ORDER BY friend_id`

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

// isMySQLDuplicateEntry checks if the error is a MySQL duplicate entry violation
func isMySQLDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	// MySQL: "Error 1062: Duplicate entry"
	return strings.Contains(errMsg, "duplicate entry") || strings.Contains(errMsg, "error 1062")
}
