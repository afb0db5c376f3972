// Package domain defines the capability-grant wire messages and the capability
// map carried through login negotiation.
package domain

import (
	"net/url"

	validation "github.com/jellydator/validation"

	appValidation "github.com/allisson/gridgate/internal/validation"
)

// CapabilityMap maps capability identifier URIs to granted capability URLs.
// A nil entry means the capability was requested but not yet granted.
type CapabilityMap map[string]*url.URL

// Grant records a granted capability URL for identifier. Only absolute URLs
// are accepted; anything else is ignored.
func (m CapabilityMap) Grant(identifier string, capability *url.URL) {
	if capability == nil || !capability.IsAbs() {
		return
	}
	m[identifier] = capability
}

// Fulfilled reports whether every requested capability has a granted URL.
func (m CapabilityMap) Fulfilled() bool {
	for _, capability := range m {
		if capability == nil {
			return false
		}
	}
	return true
}

// Missing returns the identifiers still lacking a granted URL.
func (m CapabilityMap) Missing() []string {
	var missing []string
	for identifier, capability := range m {
		if capability == nil {
			missing = append(missing, identifier)
		}
	}
	return missing
}

// RequestCapabilitiesMessage is the JSON body posted to a seed capability.
type RequestCapabilitiesMessage struct {
	Identity     string   `json:"identity"`
	Capabilities []string `json:"capabilities"`
}

// Validate implements validation for RequestCapabilitiesMessage.
func (m RequestCapabilitiesMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Identity, validation.Required, appValidation.AbsoluteURL),
		validation.Field(&m.Capabilities, validation.Required),
	)
}

// RequestCapabilitiesReplyMessage is the JSON reply from a seed capability:
// requested identifier URIs mapped to granted capability URLs. Identifiers the
// remote service could not grant are simply absent.
type RequestCapabilitiesReplyMessage struct {
	Capabilities map[string]string `json:"capabilities"`
}
