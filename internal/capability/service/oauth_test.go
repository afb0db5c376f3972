package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	discoverydomain "github.com/allisson/gridgate/internal/discovery/domain"
)

func newAuthorizationService(t *testing.T, accessHandler http.HandlerFunc) (*httptest.Server, *discoverydomain.Service) {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("oauth_signature"))
		assert.NotEmpty(t, r.PostForm.Get("oauth_nonce"))
		assert.Equal(t, "HMAC-SHA1", r.PostForm.Get("oauth_signature_method"))
		assert.Equal(t, "gridgate", r.PostForm.Get("oauth_consumer_key"))
		assert.Equal(t,
			"http://gridgate.dev/caps/get_asset,http://gridgate.dev/caps/create_asset",
			r.PostForm.Get("cb_capabilities"),
		)

		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=req-token&oauth_token_secret=req-secret"))
	})
	mux.HandleFunc("/oauth/access_token", accessHandler)

	svc := &discoverydomain.Service{
		RequestTokenURL: mustURL(t, server.URL+"/oauth/request_token"),
		AuthorizeURL:    mustURL(t, server.URL+"/oauth/authorize"),
		AccessTokenURL:  mustURL(t, server.URL+"/oauth/access_token"),
	}
	return server, svc
}

func newTestClient() (*AuthorizationClient, *TokenManager) {
	tokens := NewTokenManager(time.Minute)
	client := NewAuthorizationClient(&http.Client{Timeout: 5 * time.Second}, "gridgate", "consumer-secret", tokens, testLogger())
	return client, tokens
}

func TestAuthorizationClient_BeginAuthorization(t *testing.T) {
	_, svc := newAuthorizationService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client, tokens := newTestClient()

	redirect, token, err := client.BeginAuthorization(
		context.Background(),
		svc,
		mustURL(t, "https://login.example.com/login/oauth_callback"),
		[]string{"http://gridgate.dev/caps/get_asset", "http://gridgate.dev/caps/create_asset"},
	)
	require.NoError(t, err)
	assert.Equal(t, "req-token", token)
	assert.Equal(t, svc.AuthorizeURL.Path, redirect.Path)
	assert.Equal(t, "req-token", redirect.Query().Get("oauth_token"))

	stored, ok := tokens.Take("req-token")
	require.True(t, ok)
	assert.Equal(t, "req-secret", stored.Secret)
}

func TestAuthorizationClient_CompleteAuthorization(t *testing.T) {
	capabilities := url.Values{}
	capabilities.Set("oauth_token", "acc-token")
	capabilities.Set("oauth_token_secret", "acc-secret")
	capabilities.Set("http://gridgate.dev/caps/get_asset", "https://assets.example.com/caps/abc123")
	capabilities.Set("http://gridgate.dev/caps/create_asset", "https://assets.example.com/caps/def456")
	capabilities.Set("not-a-url", "https://assets.example.com/caps/ignored")

	_, svc := newAuthorizationService(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "req-token", r.PostForm.Get("oauth_token"))
		assert.Equal(t, "verifier-1", r.PostForm.Get("oauth_verifier"))
		assert.NotEmpty(t, r.PostForm.Get("oauth_signature"))

		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte(capabilities.Encode()))
	})

	client, _ := newTestClient()

	_, token, err := client.BeginAuthorization(
		context.Background(),
		svc,
		mustURL(t, "https://login.example.com/login/oauth_callback"),
		[]string{"http://gridgate.dev/caps/get_asset", "http://gridgate.dev/caps/create_asset"},
	)
	require.NoError(t, err)

	granted, err := client.CompleteAuthorization(context.Background(), svc, token, "verifier-1")
	require.NoError(t, err)
	require.Len(t, granted, 2)
	assert.Equal(t, "https://assets.example.com/caps/abc123", granted["http://gridgate.dev/caps/get_asset"].String())
	assert.NotContains(t, granted, "not-a-url")
}

func TestAuthorizationClient_TokenIsSingleUse(t *testing.T) {
	_, svc := newAuthorizationService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		_, _ = w.Write([]byte("oauth_token=acc-token&oauth_token_secret=acc-secret"))
	})

	client, _ := newTestClient()

	_, token, err := client.BeginAuthorization(
		context.Background(),
		svc,
		mustURL(t, "https://login.example.com/login/oauth_callback"),
		[]string{"http://gridgate.dev/caps/get_asset"},
	)
	require.NoError(t, err)

	_, err = client.CompleteAuthorization(context.Background(), svc, token, "verifier-1")
	require.NoError(t, err)

	_, err = client.CompleteAuthorization(context.Background(), svc, token, "verifier-1")
	assert.ErrorIs(t, err, ErrUnknownRequestToken)
}

func TestAuthorizationClient_UnknownToken(t *testing.T) {
	_, svc := newAuthorizationService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient()

	_, err := client.CompleteAuthorization(context.Background(), svc, "never-issued", "")
	assert.ErrorIs(t, err, ErrUnknownRequestToken)
}

func TestAuthorizationClient_ExpiredTokenBehavesAsUnknown(t *testing.T) {
	_, svc := newAuthorizationService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tokens := NewTokenManager(time.Nanosecond)
	client := NewAuthorizationClient(&http.Client{Timeout: 5 * time.Second}, "gridgate", "consumer-secret", tokens, testLogger())

	_, token, err := client.BeginAuthorization(
		context.Background(),
		svc,
		mustURL(t, "https://login.example.com/login/oauth_callback"),
		[]string{"http://gridgate.dev/caps/get_asset"},
	)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = client.CompleteAuthorization(context.Background(), svc, token, "")
	assert.ErrorIs(t, err, ErrUnknownRequestToken)
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "abcXYZ019-._~", percentEncode("abcXYZ019-._~"))
	assert.Equal(t, "a%20b", percentEncode("a b"))
	assert.Equal(t, "http%3A%2F%2Fexample.com%2F%3Fa%3D1", percentEncode("http://example.com/?a=1"))
	assert.Equal(t, "%0A", percentEncode("\n"))
}
