package service

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/errors"
	"github.com/allisson/gridgate/internal/login/domain"
	"github.com/allisson/gridgate/internal/xmlrpc"
)

// expectUserMethod is the simulator endpoint that prepares an incoming agent.
const expectUserMethod = "expect_user"

// EnableClientInput carries everything the destination simulator needs to
// accept the agent.
type EnableClientInput struct {
	Identity        *url.URL
	AgentID         uuid.UUID
	SessionID       uuid.UUID
	SecureSessionID uuid.UUID
	FirstName       string
	SurName         string
	CircuitCode     int
	StartLocation   string
	// Capabilities is the negotiated capability map, forwarded so the region
	// can reach the grid services on the agent's behalf.
	Capabilities map[string]*url.URL
}

// EnableClientReply is the simulator's answer to a successful handoff.
type EnableClientReply struct {
	SeedCapability *url.URL
	SimIP          string
	SimPort        int
	RegionX        int
	RegionY        int
	LookAt         string
}

// RegionClient hands a claimed session to the destination simulator.
type RegionClient interface {
	EnableClient(ctx context.Context, input EnableClientInput) (*EnableClientReply, error)
}

// XMLRPCRegionClient performs the handoff with a single expect_user call.
type XMLRPCRegionClient struct {
	client   *http.Client
	endpoint *url.URL
	logger   *slog.Logger
}

// NewXMLRPCRegionClient creates a region client for the given simulator
// endpoint.
func NewXMLRPCRegionClient(client *http.Client, endpoint *url.URL, logger *slog.Logger) *XMLRPCRegionClient {
	return &XMLRPCRegionClient{client: client, endpoint: endpoint, logger: logger}
}

// EnableClient posts the expect_user call and parses the region's reply. Any
// transport failure, fault, or refusal surfaces as ErrRegionUnavailable.
func (c *XMLRPCRegionClient) EnableClient(ctx context.Context, input EnableClientInput) (*EnableClientReply, error) {
	capabilities := xmlrpc.Struct{}
	for identifier, capURL := range input.Capabilities {
		capabilities[identifier] = capURL.String()
	}

	params := xmlrpc.Struct{
		"identity":          input.Identity.String(),
		"agent_id":          input.AgentID.String(),
		"session_id":        input.SessionID.String(),
		"secure_session_id": input.SecureSessionID.String(),
		"first_name":        input.FirstName,
		"last_name":         input.SurName,
		"circuit_code":      input.CircuitCode,
		"start_location":    input.StartLocation,
		"capabilities":      capabilities,
	}

	var body bytes.Buffer
	if err := xmlrpc.EncodeCall(&body, expectUserMethod, params); err != nil {
		return nil, errors.Wrap(err, "failed to encode handoff call")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), &body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build handoff request")
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("region handoff call failed", slog.Any("error", err))
		return nil, errors.Wrap(domain.ErrRegionUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(domain.ErrRegionUnavailable, "region returned status %d", resp.StatusCode)
	}

	value, err := xmlrpc.DecodeResponse(resp.Body)
	if err != nil {
		return nil, errors.Wrap(domain.ErrRegionUnavailable, err.Error())
	}

	reply, ok := value.(xmlrpc.Struct)
	if !ok {
		return nil, errors.Wrap(domain.ErrRegionUnavailable, "malformed handoff reply")
	}
	if reply.String("success", "false") != "true" {
		return nil, errors.Wrapf(domain.ErrRegionUnavailable, "region refused the agent: %s", reply.String("message", "no reason given"))
	}

	seed, err := url.Parse(reply.String("seed_capability", ""))
	if err != nil || !seed.IsAbs() {
		return nil, errors.Wrap(domain.ErrRegionUnavailable, "region reply carried no seed capability")
	}

	simPort, _ := reply["sim_port"].(int)
	regionX, _ := reply["region_x"].(int)
	regionY, _ := reply["region_y"].(int)

	return &EnableClientReply{
		SeedCapability: seed,
		SimIP:          reply.String("sim_ip", ""),
		SimPort:        simPort,
		RegionX:        regionX,
		RegionY:        regionY,
		LookAt:         reply.String("look_at", "[r0,r1,r0]"),
	}, nil
}

