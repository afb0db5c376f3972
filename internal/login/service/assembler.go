package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/gridgate/internal/errors"
	"github.com/allisson/gridgate/internal/login/domain"
	userdomain "github.com/allisson/gridgate/internal/user/domain"
	"github.com/allisson/gridgate/internal/xmlrpc"
)

// FriendLister supplies the friend list included in the login response.
type FriendLister interface {
	Friends(ctx context.Context, profileID uuid.UUID) ([]*userdomain.Friend, error)
}

// FilesystemSkeletonCap is the capability identifier the assembler uses to
// fetch the inventory skeleton at claim time.
const FilesystemSkeletonCap = "http://gridgate.dev/caps/filesystem/get_filesystem_skeleton"

// Assembler turns a claimed pending session into the legacy login response:
// fetch the inventory skeleton, hand the agent to the destination region, and
// flatten everything into the response struct the viewer expects.
type Assembler struct {
	inventory SkeletonFetcher
	region    RegionClient
	friends   FriendLister
	logger    *slog.Logger

	// allowLoginWithoutInventory tolerates a failed skeleton fetch instead of
	// failing the claim.
	allowLoginWithoutInventory bool
	welcomeMessage             string

	// circuitCode is swappable for deterministic tests.
	circuitCode func() int32
	now         func() time.Time
}

// NewAssembler creates a login response assembler.
func NewAssembler(
	inventory SkeletonFetcher,
	region RegionClient,
	friends FriendLister,
	allowLoginWithoutInventory bool,
	welcomeMessage string,
	logger *slog.Logger,
) *Assembler {
	return &Assembler{
		inventory:                  inventory,
		region:                     region,
		friends:                    friends,
		logger:                     logger,
		allowLoginWithoutInventory: allowLoginWithoutInventory,
		welcomeMessage:             welcomeMessage,
		circuitCode:                rand.Int32,
		now:                        time.Now,
	}
}

// BuildResponse assembles the success response for a claimed session.
// startLocation overrides the location captured at negotiation time when the
// claim call carries one. A failed inventory fetch returns
// ErrInventoryUnavailable unless logins without inventory are allowed; a
// failed handoff returns ErrRegionUnavailable.
func (a *Assembler) BuildResponse(ctx context.Context, session *domain.PendingSession, startLocation string) (xmlrpc.Struct, error) {
	profile := session.Profile
	if startLocation == "" {
		startLocation = session.StartLocation
	}

	skeleton := a.fetchSkeleton(ctx, session)
	if skeleton == nil && !a.allowLoginWithoutInventory {
		return nil, domain.ErrInventoryUnavailable
	}

	circuitCode := int(a.circuitCode())
	reply, err := a.region.EnableClient(ctx, EnableClientInput{
		Identity:        session.Identity,
		AgentID:         profile.ID,
		SessionID:       session.SessionID,
		SecureSessionID: session.SecureSessionID,
		FirstName:       profile.FirstName,
		SurName:         profile.SurName,
		CircuitCode:     circuitCode,
		StartLocation:   startLocation,
		Capabilities:    session.Capabilities,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrRegionUnavailable) {
			err = errors.Wrap(domain.ErrRegionUnavailable, err.Error())
		}
		return nil, err
	}

	response := xmlrpc.Struct{
		"login":               "true",
		"reason":              "",
		"message":             a.welcomeMessage,
		"first_name":          profile.FirstName,
		"last_name":           profile.SurName,
		"agent_id":            profile.ID.String(),
		"session_id":          session.SessionID.String(),
		"secure_session_id":   session.SecureSessionID.String(),
		"circuit_code":        circuitCode,
		"seconds_since_epoch": int(a.now().Unix()),
		"agent_access":        "M",
		"start_location":      startLocation,
		"seed_capability":     reply.SeedCapability.String(),
		"sim_ip":              reply.SimIP,
		"sim_port":            reply.SimPort,
		"region_x":            reply.RegionX,
		"region_y":            reply.RegionY,
		"look_at":             reply.LookAt,
		"home":                homeString(profile.HomeRegionX, profile.HomeRegionY),
		"inventory-lib-root":  xmlrpc.Array{xmlrpc.Struct{"folder_id": domain.InventoryLibraryRoot}},
		"inventory-lib-owner": domain.InventoryLibraryOwner,
		"inventory-skel-lib":  xmlrpc.Array{},
		"buddy-list":          a.buddyList(ctx, session),
	}

	if skeleton != nil {
		response["inventory-root"] = xmlrpc.Array{xmlrpc.Struct{"folder_id": skeleton.RootFolderID.String()}}
		response["inventory-skeleton"] = skeletonArray(skeleton)
	} else {
		response["inventory-root"] = xmlrpc.Array{}
		response["inventory-skeleton"] = xmlrpc.Array{}
	}

	return response, nil
}

// fetchSkeleton fetches the inventory skeleton through the negotiated
// capability. A missing capability or failed fetch returns nil; the caller
// decides whether that is fatal.
func (a *Assembler) fetchSkeleton(ctx context.Context, session *domain.PendingSession) *domain.InventorySkeleton {
	capability, ok := session.Capabilities[FilesystemSkeletonCap]
	if !ok {
		a.logger.Warn("session has no inventory skeleton capability",
			slog.String("agent_id", session.Profile.ID.String()),
		)
		return nil
	}

	skeleton, err := a.inventory.Skeleton(ctx, capability, session.Identity)
	if err != nil {
		a.logger.Warn("inventory skeleton fetch failed",
			slog.String("agent_id", session.Profile.ID.String()),
			slog.Any("error", err),
		)
		return nil
	}
	return skeleton
}

// buddyList converts the profile's friends into response entries. Friend
// lookup failures degrade to an empty list.
func (a *Assembler) buddyList(ctx context.Context, session *domain.PendingSession) xmlrpc.Array {
	friends, err := a.friends.Friends(ctx, session.Profile.ID)
	if err != nil {
		a.logger.Warn("friend list lookup failed",
			slog.String("agent_id", session.Profile.ID.String()),
			slog.Any("error", err),
		)
		return xmlrpc.Array{}
	}

	buddies := make(xmlrpc.Array, 0, len(friends))
	for _, friend := range friends {
		buddies = append(buddies, xmlrpc.Struct{
			"buddy_id":           friend.FriendID.String(),
			"buddy_rights_has":   int(friend.OwnerPerms),
			"buddy_rights_given": int(friend.FriendPerms),
		})
	}
	return buddies
}

func skeletonArray(skeleton *domain.InventorySkeleton) xmlrpc.Array {
	folders := make(xmlrpc.Array, 0, len(skeleton.Folders))
	for _, folder := range skeleton.Folders {
		folders = append(folders, xmlrpc.Struct{
			"folder_id":    folder.FolderID.String(),
			"parent_id":    folder.ParentID.String(),
			"name":         folder.Name,
			"type_default": folder.TypeDefault,
			"version":      folder.Version,
		})
	}
	return folders
}

// homeString renders the home location in the viewer's expected format.
func homeString(homeX, homeY uint32) string {
	return fmt.Sprintf(
		"{'region_handle':[r%d,r%d], 'position':[r128,r128,r70], 'look_at':[r0,r1,r0]}",
		homeX*256, homeY*256,
	)
}

// FailureResponseFor maps a claim error onto the legacy failure shape the
// viewer understands.
func FailureResponseFor(err error) xmlrpc.Struct {
	switch {
	case errors.Is(err, domain.ErrInventoryUnavailable):
		return failureResponse("key",
			"The inventory service is not responding. Please notify your login region operator.")
	case errors.Is(err, domain.ErrRegionUnavailable):
		return failureResponse("key",
			"The region you are attempting to log into is not responding. Please select another region and try again.")
	default:
		return LoginFailedResponse()
	}
}

// LoginFailedResponse is the generic authentication failure shape.
func LoginFailedResponse() xmlrpc.Struct {
	return failureResponse("key",
		"Could not authenticate your avatar. Please check your username and password, and check the grid if problems persist.")
}

func failureResponse(reason, message string) xmlrpc.Struct {
	return xmlrpc.Struct{
		"reason":  reason,
		"message": message,
		"login":   "false",
	}
}
