package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/login/domain"
	"github.com/allisson/gridgate/internal/metrics"
)

// loginUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type loginUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewUseCaseWithMetrics wraps a login UseCase with metrics recording.
func NewUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &loginUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// StartLogin records metrics for login negotiation starts.
func (l *loginUseCaseWithMetrics) StartLogin(ctx context.Context, input StartLoginInput) (*Outcome, error) {
	start := time.Now()
	outcome, err := l.next.StartLogin(ctx, input)

	status := "success"
	if err != nil {
		status = "error"
	}

	l.metrics.RecordOperation(ctx, "login", "start_login", status)
	l.metrics.RecordDuration(ctx, "login", "start_login", time.Since(start), status)

	return outcome, err
}

// ResumeAuthorization records metrics for delegated-authorization resumes.
func (l *loginUseCaseWithMetrics) ResumeAuthorization(ctx context.Context, token, verifier string) (*Outcome, error) {
	start := time.Now()
	outcome, err := l.next.ResumeAuthorization(ctx, token, verifier)

	status := "success"
	if err != nil {
		status = "error"
	}

	l.metrics.RecordOperation(ctx, "login", "resume_authorization", status)
	l.metrics.RecordDuration(ctx, "login", "resume_authorization", time.Since(start), status)

	return outcome, err
}

// ClaimSession records metrics for session claims.
func (l *loginUseCaseWithMetrics) ClaimSession(ctx context.Context, sessionID uuid.UUID) (*domain.PendingSession, error) {
	start := time.Now()
	session, err := l.next.ClaimSession(ctx, sessionID)

	status := "success"
	if err != nil {
		status = "error"
	}

	l.metrics.RecordOperation(ctx, "login", "claim_session", status)
	l.metrics.RecordDuration(ctx, "login", "claim_session", time.Since(start), status)

	return session, err
}

// CookieIdentity records auth-cookie registry lookups as cache hits/misses.
func (l *loginUseCaseWithMetrics) CookieIdentity(token string) (*domain.AuthCookie, bool) {
	cookie, ok := l.next.CookieIdentity(token)
	l.metrics.RecordCacheLookup(context.Background(), "auth_cookies", ok)
	return cookie, ok
}
