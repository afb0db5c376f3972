// Package domain defines the login negotiation model: the well-known grid
// services, their required capabilities, and the state carried across a
// suspended negotiation.
package domain

import (
	"net/url"
	"sort"

	capabilitydomain "github.com/allisson/gridgate/internal/capability/domain"
)

// Well-known grid service types.
const (
	ServiceTypeAssets     = "http://gridgate.dev/services/assets"
	ServiceTypeFilesystem = "http://gridgate.dev/services/filesystem"
)

// Capabilities a login must obtain from the asset service.
var AssetRequiredCaps = []string{
	"http://gridgate.dev/caps/assets/create_asset",
	"http://gridgate.dev/caps/assets/get_asset",
	"http://gridgate.dev/caps/assets/get_asset_metadata",
}

// Capabilities a login must obtain from the filesystem service.
var FilesystemRequiredCaps = []string{
	"http://gridgate.dev/caps/filesystem/create_filesystem",
	"http://gridgate.dev/caps/filesystem/create_object",
	"http://gridgate.dev/caps/filesystem/delete_object",
	"http://gridgate.dev/caps/filesystem/get_active_gestures",
	"http://gridgate.dev/caps/filesystem/get_filesystem_skeleton",
	"http://gridgate.dev/caps/filesystem/get_folder_contents",
	"http://gridgate.dev/caps/filesystem/get_folder_for_type",
	"http://gridgate.dev/caps/filesystem/get_object",
	"http://gridgate.dev/caps/filesystem/get_root_folder",
	"http://gridgate.dev/caps/filesystem/purge_folder",
}

// ServiceRequirements maps service types to the capabilities a login still
// needs from each. A nil capability URL marks an unmet requirement. Iteration
// must always go through ServiceTypes so the negotiation order is stable
// across runs.
type ServiceRequirements map[string]capabilitydomain.CapabilityMap

// NewServiceRequirements builds the full requirement set for a fresh login.
func NewServiceRequirements() ServiceRequirements {
	requirements := ServiceRequirements{
		ServiceTypeAssets:     make(capabilitydomain.CapabilityMap, len(AssetRequiredCaps)),
		ServiceTypeFilesystem: make(capabilitydomain.CapabilityMap, len(FilesystemRequiredCaps)),
	}
	for _, identifier := range AssetRequiredCaps {
		requirements[ServiceTypeAssets][identifier] = nil
	}
	for _, identifier := range FilesystemRequiredCaps {
		requirements[ServiceTypeFilesystem][identifier] = nil
	}
	return requirements
}

// ServiceTypes returns the service types in sorted order.
func (r ServiceRequirements) ServiceTypes() []string {
	types := make([]string, 0, len(r))
	for serviceType := range r {
		types = append(types, serviceType)
	}
	sort.Strings(types)
	return types
}

// NextUnfulfilled returns the first service type, in sorted order, that still
// has an unmet capability requirement.
func (r ServiceRequirements) NextUnfulfilled() (string, bool) {
	for _, serviceType := range r.ServiceTypes() {
		if !r[serviceType].Fulfilled() {
			return serviceType, true
		}
	}
	return "", false
}

// Fulfilled reports whether every capability of every service is granted.
func (r ServiceRequirements) Fulfilled() bool {
	_, unfulfilled := r.NextUnfulfilled()
	return !unfulfilled
}

// SortedIdentifiers returns the capability identifiers for serviceType in
// sorted order, for deterministic outbound requests.
func (r ServiceRequirements) SortedIdentifiers(serviceType string) []string {
	caps := r[serviceType]
	identifiers := make([]string, 0, len(caps))
	for identifier := range caps {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)
	return identifiers
}

// Merge records the granted capabilities for serviceType. Grants for
// identifiers that were never required are ignored.
func (r ServiceRequirements) Merge(serviceType string, granted capabilitydomain.CapabilityMap) {
	caps, ok := r[serviceType]
	if !ok {
		return
	}
	for identifier, capURL := range granted {
		if _, required := caps[identifier]; required {
			caps.Grant(identifier, capURL)
		}
	}
}

// CapabilityURLs flattens all granted capabilities into identifier → URL, used
// for the region handoff.
func (r ServiceRequirements) CapabilityURLs() map[string]*url.URL {
	flattened := make(map[string]*url.URL)
	for _, caps := range r {
		for identifier, capURL := range caps {
			if capURL != nil {
				flattened[identifier] = capURL
			}
		}
	}
	return flattened
}
