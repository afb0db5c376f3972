// Package service implements capability acquisition: trusted seed-capability
// fetches and the delegated-authorization token exchange.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/allisson/gridgate/internal/capability/domain"
	"github.com/allisson/gridgate/internal/errors"
)

// TrustedFetcher requests capability grants from a pre-trusted seed capability.
type TrustedFetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewTrustedFetcher creates a fetcher. The client timeout bounds the whole
// seed request.
func NewTrustedFetcher(client *http.Client, logger *slog.Logger) *TrustedFetcher {
	return &TrustedFetcher{client: client, logger: logger}
}

// Fetch posts a capability request to seedCapability and returns the granted
// capabilities. The fetch is best effort: a partial grant is returned as-is
// and a failed request returns an empty map with the error, leaving the caller
// to decide whether the shortfall is fatal.
func (f *TrustedFetcher) Fetch(ctx context.Context, seedCapability *url.URL, identity *url.URL, capabilities []string) (domain.CapabilityMap, error) {
	granted := make(domain.CapabilityMap, len(capabilities))

	message := domain.RequestCapabilitiesMessage{
		Identity:     identity.String(),
		Capabilities: capabilities,
	}
	body, err := json.Marshal(message)
	if err != nil {
		return granted, errors.Wrap(err, "failed to encode capability request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, seedCapability.String(), bytes.NewReader(body))
	if err != nil {
		return granted, errors.Wrap(err, "failed to build capability request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return granted, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return granted, errors.Wrapf(errors.ErrUnavailable, "seed capability returned status %d", resp.StatusCode)
	}

	var reply domain.RequestCapabilitiesReplyMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return granted, errors.Wrap(errors.ErrInvalidInput, "malformed seed capability reply: "+err.Error())
	}

	for identifier, capability := range reply.Capabilities {
		capURL, err := url.Parse(capability)
		if err != nil || !capURL.IsAbs() {
			f.logger.Warn("seed capability granted a non-absolute URL",
				slog.String("identifier", identifier),
				slog.String("capability", capability),
			)
			continue
		}
		granted.Grant(identifier, capURL)
	}

	return granted, nil
}
