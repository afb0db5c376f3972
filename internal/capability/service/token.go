package service

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/allisson/gridgate/internal/registry"
)

// RequestToken is an issued but not yet exchanged authorization token.
type RequestToken struct {
	Token  string
	Secret string
}

// TokenManager stores request tokens issued during delegated authorization.
// Tokens are single use: a successful Take removes the token, so a replayed
// callback fails the lookup. Unexchanged tokens expire with the pending
// authorization TTL.
type TokenManager struct {
	tokens *registry.Registry[string, RequestToken]
}

// NewTokenManager creates a manager whose tokens live for ttl.
func NewTokenManager(ttl time.Duration) *TokenManager {
	return &TokenManager{tokens: registry.New[string, RequestToken](ttl)}
}

// Store records a request token returned by a remote service.
func (m *TokenManager) Store(token RequestToken) {
	m.tokens.Put(token.Token, token)
}

// Take removes and returns the request token, enforcing single use.
func (m *TokenManager) Take(token string) (RequestToken, bool) {
	return m.tokens.Take(token)
}

// newNonce returns a random hex nonce for signed requests.
func newNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic("failed to read random nonce: " + err.Error())
	}
	return hex.EncodeToString(b)
}
