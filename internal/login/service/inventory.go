// Package service implements the collaborators of the session claim: the
// inventory skeleton fetch, the region handoff, and the assembly of the
// legacy login response.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/allisson/gridgate/internal/errors"
	"github.com/allisson/gridgate/internal/login/domain"
)

// SkeletonFetcher retrieves the inventory folder hierarchy for an identity.
type SkeletonFetcher interface {
	Skeleton(ctx context.Context, capability *url.URL, identity *url.URL) (*domain.InventorySkeleton, error)
}

// SkeletonClient fetches inventory skeletons through the negotiated
// get_filesystem_skeleton capability.
type SkeletonClient struct {
	client *http.Client
}

// NewSkeletonClient creates a skeleton client.
func NewSkeletonClient(client *http.Client) *SkeletonClient {
	return &SkeletonClient{client: client}
}

type skeletonRequest struct {
	Identity string `json:"identity"`
}

// Skeleton posts a skeleton request to the capability and decodes the folder
// hierarchy.
func (c *SkeletonClient) Skeleton(ctx context.Context, capability *url.URL, identity *url.URL) (*domain.InventorySkeleton, error) {
	body, err := json.Marshal(skeletonRequest{Identity: identity.String()})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode skeleton request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, capability.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build skeleton request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrUnavailable, "skeleton capability returned status %d", resp.StatusCode)
	}

	var skeleton domain.InventorySkeleton
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&skeleton); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed skeleton reply: "+err.Error())
	}

	return &skeleton, nil
}
