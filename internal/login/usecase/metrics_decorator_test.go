package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/gridgate/internal/login/domain"
	"github.com/allisson/gridgate/internal/metrics"
)

// mockBusinessMetrics is a mock implementation of metrics.BusinessMetrics for testing.
type mockBusinessMetrics struct {
	mock.Mock
}

func (m *mockBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	m.Called(ctx, domain, operation, status)
}

func (m *mockBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	m.Called(ctx, domain, operation, duration, status)
}

func (m *mockBusinessMetrics) RecordCacheLookup(ctx context.Context, cache string, hit bool) {
	m.Called(ctx, cache, hit)
}

var _ metrics.BusinessMetrics = (*mockBusinessMetrics)(nil)

// mockInnerUseCase is a mock implementation of UseCase for decorator tests.
type mockInnerUseCase struct {
	mock.Mock
}

func (m *mockInnerUseCase) StartLogin(ctx context.Context, input StartLoginInput) (*Outcome, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Outcome), args.Error(1)
}

func (m *mockInnerUseCase) ResumeAuthorization(ctx context.Context, token, verifier string) (*Outcome, error) {
	args := m.Called(ctx, token, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Outcome), args.Error(1)
}

func (m *mockInnerUseCase) ClaimSession(ctx context.Context, sessionID uuid.UUID) (*domain.PendingSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingSession), args.Error(1)
}

func (m *mockInnerUseCase) CookieIdentity(token string) (*domain.AuthCookie, bool) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.AuthCookie), args.Bool(1)
}

// TestNewUseCaseWithMetrics tests the metrics decorator constructor.
func TestNewUseCaseWithMetrics(t *testing.T) {
	t.Parallel()

	decorator := NewUseCaseWithMetrics(&mockInnerUseCase{}, &mockBusinessMetrics{})

	assert.NotNil(t, decorator)
	assert.Implements(t, (*UseCase)(nil), decorator)
}

// TestMetricsDecorator_StartLogin tests the StartLogin method with metrics.
func TestMetricsDecorator_StartLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		input := StartLoginInput{AuthMethod: "password"}
		expected := &Outcome{}

		inner.On("StartLogin", ctx, input).Return(expected, nil).Once()
		mockMetrics.On("RecordOperation", ctx, "login", "start_login", "success").Return().Once()
		mockMetrics.On("RecordDuration", ctx, "login", "start_login", mock.AnythingOfType("time.Duration"), "success").
			Return().
			Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		outcome, err := decorator.StartLogin(ctx, input)

		require.NoError(t, err)
		assert.Same(t, expected, outcome)
		inner.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		input := StartLoginInput{AuthMethod: "openid"}

		inner.On("StartLogin", ctx, input).Return(nil, domain.ErrIdentityNotAuthorized).Once()
		mockMetrics.On("RecordOperation", ctx, "login", "start_login", "error").Return().Once()
		mockMetrics.On("RecordDuration", ctx, "login", "start_login", mock.AnythingOfType("time.Duration"), "error").
			Return().
			Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		outcome, err := decorator.StartLogin(ctx, input)

		assert.ErrorIs(t, err, domain.ErrIdentityNotAuthorized)
		assert.Nil(t, outcome)
		mockMetrics.AssertExpectations(t)
	})
}

// TestMetricsDecorator_ClaimSession tests the ClaimSession method with metrics.
func TestMetricsDecorator_ClaimSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("Success_RecordsSuccessMetrics", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		sessionID := uuid.Must(uuid.NewV7())
		expected := &domain.PendingSession{}

		inner.On("ClaimSession", ctx, sessionID).Return(expected, nil).Once()
		mockMetrics.On("RecordOperation", ctx, "login", "claim_session", "success").Return().Once()
		mockMetrics.On("RecordDuration", ctx, "login", "claim_session", mock.AnythingOfType("time.Duration"), "success").
			Return().
			Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		session, err := decorator.ClaimSession(ctx, sessionID)

		require.NoError(t, err)
		assert.Same(t, expected, session)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Error_RecordsErrorMetrics", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		sessionID := uuid.Must(uuid.NewV7())

		inner.On("ClaimSession", ctx, sessionID).Return(nil, domain.ErrSessionNotFound).Once()
		mockMetrics.On("RecordOperation", ctx, "login", "claim_session", "error").Return().Once()
		mockMetrics.On("RecordDuration", ctx, "login", "claim_session", mock.AnythingOfType("time.Duration"), "error").
			Return().
			Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		session, err := decorator.ClaimSession(ctx, sessionID)

		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
		assert.Nil(t, session)
		mockMetrics.AssertExpectations(t)
	})
}

// TestMetricsDecorator_ResumeAuthorization tests the ResumeAuthorization method with metrics.
func TestMetricsDecorator_ResumeAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	inner := &mockInnerUseCase{}
	mockMetrics := &mockBusinessMetrics{}

	expected := &Outcome{}

	inner.On("ResumeAuthorization", ctx, "token", "verifier").Return(expected, nil).Once()
	mockMetrics.On("RecordOperation", ctx, "login", "resume_authorization", "success").Return().Once()
	mockMetrics.On("RecordDuration", ctx, "login", "resume_authorization", mock.AnythingOfType("time.Duration"), "success").
		Return().
		Once()

	decorator := NewUseCaseWithMetrics(inner, mockMetrics)
	outcome, err := decorator.ResumeAuthorization(ctx, "token", "verifier")

	require.NoError(t, err)
	assert.Same(t, expected, outcome)
	mockMetrics.AssertExpectations(t)
}

// TestMetricsDecorator_CookieIdentity tests cookie lookups are recorded as cache lookups.
func TestMetricsDecorator_CookieIdentity(t *testing.T) {
	t.Parallel()

	t.Run("Hit", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		cookie := &domain.AuthCookie{}
		inner.On("CookieIdentity", "valid-token").Return(cookie, true).Once()
		mockMetrics.On("RecordCacheLookup", mock.Anything, "auth_cookies", true).Return().Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		got, ok := decorator.CookieIdentity("valid-token")

		assert.True(t, ok)
		assert.Same(t, cookie, got)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("Miss", func(t *testing.T) {
		t.Parallel()
		inner := &mockInnerUseCase{}
		mockMetrics := &mockBusinessMetrics{}

		inner.On("CookieIdentity", "stale-token").Return(nil, false).Once()
		mockMetrics.On("RecordCacheLookup", mock.Anything, "auth_cookies", false).Return().Once()

		decorator := NewUseCaseWithMetrics(inner, mockMetrics)
		got, ok := decorator.CookieIdentity("stale-token")

		assert.False(t, ok)
		assert.Nil(t, got)
		mockMetrics.AssertExpectations(t)
	})
}
