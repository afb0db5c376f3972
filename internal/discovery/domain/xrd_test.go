package domain

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

const sampleDescriptor = `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Subject>https://assets.example.com/</Subject>
  <Type>http://gridgate.dev/services/assets</Type>
  <Link>
    <Rel>http://gridgate.dev/rel/seed-capability</Rel>
    <URI priority="10">https://assets.example.com/caps/seed-backup</URI>
    <URI priority="5">https://assets.example.com/caps/seed</URI>
  </Link>
  <Link>
    <Rel>http://gridgate.dev/rel/oauth/request-token</Rel>
    <URI>https://assets.example.com/oauth/request_token</URI>
  </Link>
</XRD>`

func TestParseXRD(t *testing.T) {
	doc, err := ParseXRD(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "https://assets.example.com/", doc.Subject)
	assert.True(t, doc.SupportsType("http://gridgate.dev/services/assets"))
	assert.False(t, doc.SupportsType("http://gridgate.dev/services/filesystem"))
}

func TestParseXRD_Malformed(t *testing.T) {
	_, err := ParseXRD(strings.NewReader("<XRD><Subject>broken"))
	assert.Error(t, err)
}

func TestEndpointFor_LowestPriorityWins(t *testing.T) {
	doc, err := ParseXRD(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	endpoint := doc.EndpointFor(RelationSeedCapability)
	require.NotNil(t, endpoint)
	assert.Equal(t, "https://assets.example.com/caps/seed", endpoint.String())
}

func TestEndpointFor_UnprioritizedOnlyWithoutPrioritized(t *testing.T) {
	descriptor := `<XRD>
  <Link>
    <Rel>http://gridgate.dev/rel/oauth/authorize</Rel>
    <URI>https://svc.example.com/fallback</URI>
    <URI priority="100">https://svc.example.com/ranked</URI>
  </Link>
  <Link>
    <Rel>http://gridgate.dev/rel/oauth/access-token</Rel>
    <URI>https://svc.example.com/only</URI>
  </Link>
</XRD>`
	doc, err := ParseXRD(strings.NewReader(descriptor))
	require.NoError(t, err)

	// A prioritized candidate beats an unprioritized one regardless of order.
	ranked := doc.EndpointFor(RelationAuthorize)
	require.NotNil(t, ranked)
	assert.Equal(t, "https://svc.example.com/ranked", ranked.String())

	only := doc.EndpointFor(RelationAccessToken)
	require.NotNil(t, only)
	assert.Equal(t, "https://svc.example.com/only", only.String())
}

func TestEndpointFor_SkipsRelativeURIs(t *testing.T) {
	descriptor := `<XRD>
  <Link>
    <Rel>http://gridgate.dev/rel/seed-capability</Rel>
    <URI priority="1">/relative/path</URI>
    <URI priority="2">https://svc.example.com/absolute</URI>
  </Link>
</XRD>`
	doc, err := ParseXRD(strings.NewReader(descriptor))
	require.NoError(t, err)

	endpoint := doc.EndpointFor(RelationSeedCapability)
	require.NotNil(t, endpoint)
	assert.Equal(t, "https://svc.example.com/absolute", endpoint.String())
}

func TestEndpointFor_AbsentRelation(t *testing.T) {
	doc, err := ParseXRD(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	assert.Nil(t, doc.EndpointFor(RelationAccessToken))
}

func TestService_Shapes(t *testing.T) {
	seed := mustParseURL(t, "https://svc.example.com/caps/seed")
	request := mustParseURL(t, "https://svc.example.com/oauth/request_token")
	authorize := mustParseURL(t, "https://svc.example.com/oauth/authorize")
	access := mustParseURL(t, "https://svc.example.com/oauth/access_token")

	trusted := &Service{SeedCapability: seed}
	assert.True(t, trusted.Trusted())
	assert.True(t, trusted.Valid())

	untrusted := &Service{RequestTokenURL: request, AuthorizeURL: authorize, AccessTokenURL: access}
	assert.False(t, untrusted.Trusted())
	assert.True(t, untrusted.HasAuthorizationEndpoints())
	assert.True(t, untrusted.Valid())

	partial := &Service{RequestTokenURL: request, AuthorizeURL: authorize}
	assert.False(t, partial.Valid())
}
