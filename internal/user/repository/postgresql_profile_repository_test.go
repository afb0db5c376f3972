package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/gridgate/internal/user/domain"
)

func newMockDB(t *testing.T) (*PostgreSQLProfileRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgreSQLProfileRepository(db), mock
}

func profileColumns() []string {
	return []string{
		"id", "first_name", "sur_name", "email", "password_hash",
		"home_region_x", "home_region_y", "last_login", "created_at", "updated_at",
		"session_id", "secure_session_id", "online", "login_time", "logout_time",
	}
}

func TestPostgreSQLProfileRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profile := &domain.UserProfile{
			ID:        uuid.Must(uuid.NewV7()),
			FirstName: "John Doe",
			SurName:   "@id.example.com",
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
			WithArgs(profile.ID, profile.FirstName, profile.SurName, "", "", uint32(0), uint32(0)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), profile)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_NameTaken", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profile := &domain.UserProfile{ID: uuid.Must(uuid.NewV7()), FirstName: "John Doe", SurName: "@id.example.com"}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO profiles")).
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "profiles_name_key"`))

		err := repo.Create(context.Background(), profile)

		assert.ErrorIs(t, err, domain.ErrProfileNameTaken)
	})
}

func TestPostgreSQLProfileRepository_GetByID(t *testing.T) {
	now := time.Now().UTC()

	t.Run("Success_WithSession", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profileID := uuid.Must(uuid.NewV7())
		sessionID := uuid.Must(uuid.NewV7())
		secureSessionID := uuid.Must(uuid.NewV7())

		rows := sqlmock.NewRows(profileColumns()).AddRow(
			profileID, "John Doe", "@id.example.com", "", "",
			uint32(1000), uint32(1000), now, now, now,
			sessionID, secureSessionID, true, now, nil,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles p")).
			WithArgs(profileID).
			WillReturnRows(rows)

		profile, err := repo.GetByID(context.Background(), profileID)

		require.NoError(t, err)
		assert.Equal(t, profileID, profile.ID)
		require.NotNil(t, profile.CurrentAgent)
		assert.Equal(t, sessionID, profile.CurrentAgent.SessionID)
		assert.True(t, profile.CurrentAgent.Online)
	})

	t.Run("Success_WithoutSession", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profileID := uuid.Must(uuid.NewV7())

		rows := sqlmock.NewRows(profileColumns()).AddRow(
			profileID, "John Doe", "@id.example.com", "", "",
			uint32(1000), uint32(1000), nil, now, now,
			nil, nil, nil, nil, nil,
		)
		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles p")).
			WithArgs(profileID).
			WillReturnRows(rows)

		profile, err := repo.GetByID(context.Background(), profileID)

		require.NoError(t, err)
		assert.Nil(t, profile.CurrentAgent)
		assert.True(t, profile.LastLogin.IsZero())
	})

	t.Run("Error_NotFound", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profileID := uuid.Must(uuid.NewV7())

		mock.ExpectQuery(regexp.QuoteMeta("FROM profiles p")).
			WithArgs(profileID).
			WillReturnRows(sqlmock.NewRows(profileColumns()))

		_, err := repo.GetByID(context.Background(), profileID)

		assert.ErrorIs(t, err, domain.ErrProfileNotFound)
	})
}

func TestPostgreSQLProfileRepository_GetByName(t *testing.T) {
	repo, mock := newMockDB(t)
	profileID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	rows := sqlmock.NewRows(profileColumns()).AddRow(
		profileID, "John Doe", "@id.example.com", "", "",
		uint32(1000), uint32(1000), nil, now, now,
		nil, nil, nil, nil, nil,
	)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE p.first_name = $1 AND p.sur_name = $2")).
		WithArgs("John Doe", "@id.example.com").
		WillReturnRows(rows)

	profile, err := repo.GetByName(context.Background(), "John Doe", "@id.example.com")

	require.NoError(t, err)
	assert.Equal(t, profileID, profile.ID)
}

func TestPostgreSQLProfileRepository_SaveAgentSession(t *testing.T) {
	t.Run("Success_OnlineStampsLastLogin", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profileID := uuid.Must(uuid.NewV7())
		session := &domain.AgentSession{
			SessionID:       uuid.Must(uuid.NewV7()),
			SecureSessionID: uuid.Must(uuid.NewV7()),
			Online:          true,
			LoginTime:       time.Now().UTC(),
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_sessions")).
			WithArgs(profileID, session.SessionID, session.SecureSessionID, true, session.LoginTime, session.LogoutTime).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE profiles SET last_login")).
			WithArgs(session.LoginTime, profileID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveAgentSession(context.Background(), profileID, session)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Success_OfflineSkipsLastLogin", func(t *testing.T) {
		repo, mock := newMockDB(t)
		profileID := uuid.Must(uuid.NewV7())
		session := &domain.AgentSession{
			SessionID:       uuid.Must(uuid.NewV7()),
			SecureSessionID: uuid.Must(uuid.NewV7()),
			Online:          false,
			LogoutTime:      time.Now().UTC(),
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO agent_sessions")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveAgentSession(context.Background(), profileID, session)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgreSQLProfileRepository_Friends(t *testing.T) {
	repo, mock := newMockDB(t)
	profileID := uuid.Must(uuid.NewV7())
	friendID := uuid.Must(uuid.NewV7())

	rows := sqlmock.NewRows([]string{"friend_id", "owner_perms", "friend_perms"}).
		AddRow(friendID, int32(1), int32(2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM friends WHERE owner_id = $1")).
		WithArgs(profileID).
		WillReturnRows(rows)

	friends, err := repo.Friends(context.Background(), profileID)

	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, friendID, friends[0].FriendID)
	assert.Equal(t, int32(1), friends[0].OwnerPerms)
	assert.Equal(t, int32(2), friends[0].FriendPerms)
}

func TestPostgreSQLIdentityRepository(t *testing.T) {
	newIdentityRepo := func(t *testing.T) (*PostgreSQLIdentityRepository, sqlmock.Sqlmock) {
		t.Helper()
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewPostgreSQLIdentityRepository(db), mock
	}

	t.Run("Success_GetProfileID", func(t *testing.T) {
		repo, mock := newIdentityRepo(t)
		profileID := uuid.Must(uuid.NewV7())

		mock.ExpectQuery(regexp.QuoteMeta("SELECT profile_id FROM identity_map")).
			WithArgs("https://id.example.com/jdoe").
			WillReturnRows(sqlmock.NewRows([]string{"profile_id"}).AddRow(profileID))

		got, err := repo.GetProfileID(context.Background(), "https://id.example.com/jdoe")

		require.NoError(t, err)
		assert.Equal(t, profileID, got)
	})

	t.Run("Error_NotMapped", func(t *testing.T) {
		repo, mock := newIdentityRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT profile_id FROM identity_map")).
			WithArgs("https://id.example.com/unknown").
			WillReturnRows(sqlmock.NewRows([]string{"profile_id"}))

		_, err := repo.GetProfileID(context.Background(), "https://id.example.com/unknown")

		assert.ErrorIs(t, err, domain.ErrIdentityNotMapped)
	})

	t.Run("Success_Map", func(t *testing.T) {
		repo, mock := newIdentityRepo(t)
		profileID := uuid.Must(uuid.NewV7())

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO identity_map")).
			WithArgs("https://id.example.com/jdoe", profileID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Map(context.Background(), "https://id.example.com/jdoe", profileID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
