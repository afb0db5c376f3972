package domain

import (
	"encoding/xml"
	"io"
	"net/url"

	"github.com/allisson/gridgate/internal/errors"
)

// XRDContentType is the canonical media type of a descriptor document.
const XRDContentType = "application/xrd+xml"

// XRDDocument is a parsed resource descriptor: the service types the remote
// endpoint supports plus its typed, prioritized links.
type XRDDocument struct {
	XMLName xml.Name  `xml:"XRD"`
	Subject string    `xml:"Subject"`
	Types   []string  `xml:"Type"`
	Links   []XRDLink `xml:"Link"`
}

// XRDLink is one typed link: a relation URI, an optional media type, and one or
// more candidate target URIs carrying an optional numeric priority.
type XRDLink struct {
	Relation  string   `xml:"Rel"`
	MediaType string   `xml:"MediaType"`
	URIs      []XRDURI `xml:"URI"`
}

// XRDURI is one candidate target. Priority is negative when unset.
type XRDURI struct {
	PriorityAttr *int   `xml:"priority,attr"`
	Value        string `xml:",chardata"`
}

// Priority returns the candidate priority, or -1 when unprioritized.
func (u XRDURI) Priority() int {
	if u.PriorityAttr == nil {
		return -1
	}
	return *u.PriorityAttr
}

// ParseXRD decodes a descriptor document from r.
func ParseXRD(r io.Reader) (*XRDDocument, error) {
	var doc XRDDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "malformed descriptor document: "+err.Error())
	}
	return &doc, nil
}

// SupportsType reports whether the document declares the given service type.
func (d *XRDDocument) SupportsType(serviceType string) bool {
	for _, t := range d.Types {
		if t == serviceType {
			return true
		}
	}
	return false
}

// EndpointFor returns the best candidate URL for the given relation, selecting
// by ascending numeric priority. An unprioritized candidate is chosen only when
// no prioritized candidate exists. Returns nil when the relation is absent or
// no candidate parses as an absolute URL.
func (d *XRDDocument) EndpointFor(relation string) *url.URL {
	var best *url.URL
	bestPriority := int(^uint(0) >> 1)

	for _, link := range d.Links {
		if link.Relation != relation {
			continue
		}
		for _, candidate := range link.URIs {
			u, err := url.Parse(candidate.Value)
			if err != nil || !u.IsAbs() {
				continue
			}
			p := candidate.Priority()
			if p >= 0 && p < bestPriority {
				best = u
				bestPriority = p
			}
			if best == nil && p < 0 {
				best = u
			}
		}
	}

	return best
}
