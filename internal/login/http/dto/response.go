package dto

import (
	loginusecase "github.com/allisson/gridgate/internal/login/usecase"
)

// LoginCompleteResponse tells the viewer where to claim its session.
type LoginCompleteResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	// ClaimURL is the legacy login endpoint the viewer must POST its
	// login_to_simulator call to.
	ClaimURL string `json:"claim_url"`
}

// MapOutcomeToCompleteResponse maps a completed negotiation outcome.
func MapOutcomeToCompleteResponse(outcome *loginusecase.Outcome) LoginCompleteResponse {
	return LoginCompleteResponse{
		Status:    "complete",
		SessionID: outcome.Session.SessionID.String(),
		ClaimURL:  outcome.ClaimURL.String(),
	}
}
