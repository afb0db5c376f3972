package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/allisson/gridgate/internal/capability/domain"
	discoverydomain "github.com/allisson/gridgate/internal/discovery/domain"
	"github.com/allisson/gridgate/internal/errors"
)

const (
	signatureMethod = "HMAC-SHA1"
	protocolVersion = "1.0"

	// capabilityListParam carries the comma-joined capability identifiers a
	// request token is being asked to cover.
	capabilityListParam = "cb_capabilities"
)

// Authorization errors.
var (
	// ErrUnknownRequestToken indicates a callback carried a token that was never
	// issued, already exchanged, or has expired.
	ErrUnknownRequestToken = errors.Wrap(errors.ErrUnauthorized, "unknown or already used request token")
)

// AuthorizationClient drives the three-legged handshake against an untrusted
// service: obtain a request token bound to the wanted capabilities, send the
// viewer to the remote authorize endpoint, then exchange the authorized token
// for capability grants.
type AuthorizationClient struct {
	client         *http.Client
	consumerKey    string
	consumerSecret string
	tokens         *TokenManager
	logger         *slog.Logger
	now            func() time.Time
}

// NewAuthorizationClient creates a client signing requests with the given
// consumer credentials.
func NewAuthorizationClient(client *http.Client, consumerKey, consumerSecret string, tokens *TokenManager, logger *slog.Logger) *AuthorizationClient {
	return &AuthorizationClient{
		client:         client,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		tokens:         tokens,
		logger:         logger,
		now:            time.Now,
	}
}

// BeginAuthorization obtains a request token covering capabilities and returns
// the authorize redirect the viewer must follow, plus the issued token so the
// caller can key its suspended state on it.
func (c *AuthorizationClient) BeginAuthorization(ctx context.Context, svc *discoverydomain.Service, callback *url.URL, capabilities []string) (*url.URL, string, error) {
	params := url.Values{}
	params.Set("oauth_callback", callback.String())
	params.Set(capabilityListParam, strings.Join(capabilities, ","))

	response, err := c.post(ctx, svc.RequestTokenURL, params, "")
	if err != nil {
		return nil, "", errors.Wrap(err, "request token fetch failed")
	}

	token := response.Get("oauth_token")
	secret := response.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return nil, "", errors.Wrapf(errors.ErrUnavailable, "request token response from %s is missing token fields", svc.RequestTokenURL)
	}

	c.tokens.Store(RequestToken{Token: token, Secret: secret})

	redirect := *svc.AuthorizeURL
	query := redirect.Query()
	query.Set("oauth_token", token)
	redirect.RawQuery = query.Encode()

	return &redirect, token, nil
}

// CompleteAuthorization exchanges an authorized request token for capability
// grants. The grants ride along as extra access-token response parameters:
// every non-protocol parameter whose key and value both parse as absolute URLs
// is a capability grant. The request token is consumed even when the exchange
// fails.
func (c *AuthorizationClient) CompleteAuthorization(ctx context.Context, svc *discoverydomain.Service, token, verifier string) (domain.CapabilityMap, error) {
	requestToken, ok := c.tokens.Take(token)
	if !ok {
		return nil, ErrUnknownRequestToken
	}

	params := url.Values{}
	params.Set("oauth_token", requestToken.Token)
	if verifier != "" {
		params.Set("oauth_verifier", verifier)
	}

	response, err := c.post(ctx, svc.AccessTokenURL, params, requestToken.Secret)
	if err != nil {
		return nil, errors.Wrap(err, "access token exchange failed")
	}

	granted := make(domain.CapabilityMap)
	for key, values := range response {
		if strings.HasPrefix(key, "oauth_") || len(values) == 0 {
			continue
		}
		identifier, err := url.Parse(key)
		if err != nil || !identifier.IsAbs() {
			continue
		}
		capURL, err := url.Parse(values[0])
		if err != nil || !capURL.IsAbs() {
			c.logger.Warn("authorization response granted a non-absolute URL",
				slog.String("identifier", key),
				slog.String("capability", values[0]),
			)
			continue
		}
		granted.Grant(key, capURL)
	}

	return granted, nil
}

// post sends a signed form-encoded request and parses the form-encoded reply.
func (c *AuthorizationClient) post(ctx context.Context, endpoint *url.URL, params url.Values, tokenSecret string) (url.Values, error) {
	params.Set("oauth_consumer_key", c.consumerKey)
	params.Set("oauth_nonce", newNonce())
	params.Set("oauth_signature_method", signatureMethod)
	params.Set("oauth_timestamp", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("oauth_version", protocolVersion)
	params.Set("oauth_signature", c.sign(http.MethodPost, endpoint, params, tokenSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrUnavailable, "token endpoint %s returned status %d", endpoint, resp.StatusCode)
	}

	response, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed token response: "+err.Error())
	}

	return response, nil
}

// sign computes the HMAC-SHA1 signature over the canonical base string.
func (c *AuthorizationClient) sign(method string, endpoint *url.URL, params url.Values, tokenSecret string) string {
	base := method + "&" + percentEncode(baseURL(endpoint)) + "&" + percentEncode(normalizeParams(params))
	key := percentEncode(c.consumerSecret) + "&" + percentEncode(tokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// baseURL strips the query and fragment from endpoint for signing.
func baseURL(endpoint *url.URL) string {
	u := *endpoint
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// normalizeParams percent-encodes and sorts all parameters into the canonical
// signing form.
func normalizeParams(params url.Values) string {
	pairs := make([]string, 0, len(params))
	for key, values := range params {
		if key == "oauth_signature" {
			continue
		}
		for _, value := range values {
			pairs = append(pairs, percentEncode(key)+"="+percentEncode(value))
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// percentEncode applies strict RFC 3986 encoding, which differs from
// url.QueryEscape in its handling of spaces and reserved characters.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '-', ch == '.', ch == '_', ch == '~':
			b.WriteByte(ch)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", ch))
		}
	}
	return b.String()
}
