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

	"github.com/allisson/gridgate/internal/outbox/domain"
)

func newMockOutboxRepo(t *testing.T) (*PostgreSQLOutboxEventRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgreSQLOutboxEventRepository(db), mock
}

func outboxColumns() []string {
	return []string{
		"id", "event_type", "payload", "status", "retries",
		"last_error", "processed_at", "created_at", "updated_at",
	}
}

func TestPostgreSQLOutboxEventRepository_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock := newMockOutboxRepo(t)
		event := &domain.OutboxEvent{
			ID:        uuid.Must(uuid.NewV7()),
			EventType: domain.EventTypePresenceLogin,
			Payload:   `{"profile_id":"x"}`,
			Status:    domain.OutboxEventStatusPending,
		}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
			WithArgs(event.ID, event.EventType, event.Payload, event.Status, 0, nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), event)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Error_Insert", func(t *testing.T) {
		repo, mock := newMockOutboxRepo(t)
		event := &domain.OutboxEvent{ID: uuid.Must(uuid.NewV7())}

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
			WillReturnError(errors.New("connection reset"))

		err := repo.Create(context.Background(), event)

		assert.Error(t, err)
	})
}

func TestPostgreSQLOutboxEventRepository_GetPendingEvents(t *testing.T) {
	now := time.Now().UTC()

	t.Run("Success", func(t *testing.T) {
		repo, mock := newMockOutboxRepo(t)
		id1 := uuid.Must(uuid.NewV7())
		id2 := uuid.Must(uuid.NewV7())

		rows := sqlmock.NewRows(outboxColumns()).
			AddRow(id1, domain.EventTypePresenceLogin, `{}`, domain.OutboxEventStatusPending, 0, nil, nil, now, now).
			AddRow(id2, domain.EventTypePresenceLogout, `{}`, domain.OutboxEventStatusPending, 1, nil, nil, now, now)
		mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
			WithArgs(domain.OutboxEventStatusPending, 10).
			WillReturnRows(rows)

		events, err := repo.GetPendingEvents(context.Background(), 10)

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, id1, events[0].ID)
		assert.Equal(t, domain.EventTypePresenceLogin, events[0].EventType)
		assert.Equal(t, 1, events[1].Retries)
	})

	t.Run("Success_Empty", func(t *testing.T) {
		repo, mock := newMockOutboxRepo(t)

		mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
			WithArgs(domain.OutboxEventStatusPending, 10).
			WillReturnRows(sqlmock.NewRows(outboxColumns()))

		events, err := repo.GetPendingEvents(context.Background(), 10)

		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestPostgreSQLOutboxEventRepository_Update(t *testing.T) {
	repo, mock := newMockOutboxRepo(t)
	now := time.Now().UTC()
	event := &domain.OutboxEvent{
		ID:          uuid.Must(uuid.NewV7()),
		EventType:   domain.EventTypePresenceLogin,
		Payload:     `{}`,
		Status:      domain.OutboxEventStatusProcessed,
		ProcessedAt: &now,
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs(event.EventType, event.Payload, event.Status, 0, nil, sqlmock.AnyArg(), event.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), event)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
