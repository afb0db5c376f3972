package domain

import (
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseIdentity(t *testing.T, raw string) *url.URL {
	t.Helper()
	identity, err := url.Parse(raw)
	require.NoError(t, err)
	return identity
}

func TestProfileIDForIdentity(t *testing.T) {
	identity := parseIdentity(t, "https://id.example.com/jdoe")

	first := ProfileIDForIdentity(identity)
	second := ProfileIDForIdentity(identity)
	other := ProfileIDForIdentity(parseIdentity(t, "https://id.example.com/other"))

	assert.Equal(t, first, second, "derivation must be deterministic")
	assert.NotEqual(t, first, other)
	assert.NotEqual(t, uuid.Nil, first)
}

func TestGridNameForIdentity(t *testing.T) {
	t.Run("with provider names", func(t *testing.T) {
		firstName, surName := GridNameForIdentity(parseIdentity(t, "https://id.example.com/jdoe"), "John", "Doe")
		assert.Equal(t, "John Doe", firstName)
		assert.Equal(t, "@id.example.com", surName)
	})

	t.Run("without provider names", func(t *testing.T) {
		firstName, surName := GridNameForIdentity(parseIdentity(t, "https://id.example.com/u"), "", "")
		assert.Equal(t, "https://id.example.com/u", firstName)
		assert.Equal(t, "@id.example.com", surName)
	})

	t.Run("long identity is shortened", func(t *testing.T) {
		identity := parseIdentity(t, "https://identityprovider.example.com/users/someone-with-a-long-name")
		firstName, _ := GridNameForIdentity(identity, "", "")
		assert.Len(t, firstName, 32)
		assert.Contains(t, firstName, "...")
	})
}

func TestUserProfile_Online(t *testing.T) {
	profile := &UserProfile{}
	assert.False(t, profile.Online())

	profile.CurrentAgent = &AgentSession{Online: false}
	assert.False(t, profile.Online())

	profile.CurrentAgent.Online = true
	assert.True(t, profile.Online())
}

func TestUserProfile_Name(t *testing.T) {
	profile := &UserProfile{FirstName: "John Doe", SurName: "@id.example.com"}
	assert.Equal(t, "John Doe @id.example.com", profile.Name())
}
