// Package service implements descriptor discovery and caching for remote
// grid services.
package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/allisson/gridgate/internal/discovery/domain"
	"github.com/allisson/gridgate/internal/errors"
)

const discoveryAccept = "text/html,application/xhtml+xml,application/xrd+xml,application/xml,text/xml"

var describedByLinkPattern = regexp.MustCompile(`^.*<(.*?)>.*$`)

// Resolver fetches and parses service descriptor documents. Given a service
// location it either reads a descriptor directly or walks the discovery chain:
// Link response header, HTML head link tag, then the well-known host-meta
// sibling path. All fetches are bounded by the client timeout, a redirect cap
// and a body size cap so a malicious or broken remote service cannot exhaust
// local resources.
type Resolver struct {
	client       *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewResolver creates a resolver with fixed fetch bounds.
func NewResolver(client *http.Client, maxBodyBytes int64, logger *slog.Logger) *Resolver {
	return &Resolver{
		client:       client,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// NewDiscoveryClient builds the bounded HTTP client used for discovery fetches.
func NewDiscoveryClient(timeout time.Duration, maxRedirects int) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// fetchResult carries one bounded fetch: the body, the lowercased content type
// and the Link response headers used by the discovery chain.
type fetchResult struct {
	body        []byte
	contentType string
	linkHeaders []string
}

// Resolve fetches the descriptor for location and validates it against the
// expected service type. Failure is reported as domain.ErrServiceNotFound (or a
// wrap of it); the caller decides fallback behavior.
func (r *Resolver) Resolve(ctx context.Context, location *url.URL, serviceType string, allowOverride bool) (*domain.Service, error) {
	res, err := r.fetch(ctx, location, discoveryAccept)
	if err != nil {
		r.logger.Error("discovery fetch failed",
			slog.String("location", location.String()),
			slog.Any("error", err),
		)
		return nil, domain.ErrServiceNotFound
	}

	descriptorURL := location
	descriptorBody := res.body

	if !isXRDDocument(res.contentType, res.body) {
		descriptorURL = findDescriptorURL(location, res)
		if descriptorURL == nil {
			r.logger.Error("no descriptor link found", slog.String("location", location.String()))
			return nil, domain.ErrServiceNotFound
		}

		descriptorRes, err := r.fetch(ctx, descriptorURL, domain.XRDContentType+",application/xml,text/xml")
		if err != nil || !isXRDDocument(descriptorRes.contentType, descriptorRes.body) {
			r.logger.Error("descriptor fetch failed",
				slog.String("descriptor_url", descriptorURL.String()),
				slog.Any("error", err),
			)
			return nil, domain.ErrServiceNotFound
		}
		descriptorBody = descriptorRes.body
	}

	return r.descriptorToService(descriptorURL, descriptorBody, serviceType, allowOverride)
}

// findDescriptorURL walks the discovery chain for a non-descriptor response.
func findDescriptorURL(location *url.URL, res *fetchResult) *url.URL {
	// 1. Link response header: Link: <...>; rel="describedby"
	if u := descriptorURLFromLinkHeader(res.linkHeaders); u != nil {
		return u
	}

	// 2. HTML head: <link rel="describedby" href="...">
	if strings.Contains(res.contentType, "html") {
		if u := descriptorURLFromHTML(res.body); u != nil {
			return u
		}
	}

	// 3. Well-known sibling path.
	hostMeta := *location
	hostMeta.Path = "/host-meta"
	hostMeta.RawQuery = ""
	return &hostMeta
}

// fetch retrieves a document within the configured bounds.
func (r *Resolver) fetch(ctx context.Context, location *url.URL, accept string) (*fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build discovery request")
	}
	req.Header.Set("Accept", accept)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrUnavailable, "unexpected status %d from %s", resp.StatusCode, location)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes+1))
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnavailable, err.Error())
	}
	if int64(len(body)) > r.maxBodyBytes {
		return nil, errors.Wrap(errors.ErrInvalidInput, "discovery document exceeds size limit")
	}

	return &fetchResult{
		body:        body,
		contentType: strings.ToLower(resp.Header.Get("Content-Type")),
		linkHeaders: resp.Header.Values("Link"),
	}, nil
}

// descriptorToService parses and validates a descriptor document.
func (r *Resolver) descriptorToService(descriptorURL *url.URL, body []byte, serviceType string, allowOverride bool) (*domain.Service, error) {
	doc, err := domain.ParseXRD(bytes.NewReader(body))
	if err != nil {
		r.logger.Error("descriptor parse failed",
			slog.String("descriptor_url", descriptorURL.String()),
			slog.Any("error", err),
		)
		return nil, domain.ErrServiceNotFound
	}

	if !doc.SupportsType(serviceType) {
		r.logger.Error("descriptor does not provide requested service type",
			slog.String("descriptor_url", descriptorURL.String()),
			slog.String("service_type", serviceType),
		)
		return nil, domain.ErrWrongServiceType
	}

	svc := &domain.Service{
		Location:        descriptorURL,
		SeedCapability:  doc.EndpointFor(domain.RelationSeedCapability),
		RequestTokenURL: doc.EndpointFor(domain.RelationRequestToken),
		AuthorizeURL:    doc.EndpointFor(domain.RelationAuthorize),
		AccessTokenURL:  doc.EndpointFor(domain.RelationAccessToken),
		AllowOverride:   allowOverride,
	}

	if !svc.Valid() {
		r.logger.Error("descriptor declares an incomplete endpoint set",
			slog.String("descriptor_url", descriptorURL.String()),
		)
		return nil, domain.ErrServiceNotFound
	}

	return svc, nil
}

// descriptorURLFromLinkHeader extracts the first describedby target from Link
// response headers.
func descriptorURLFromLinkHeader(links []string) *url.URL {
	for _, link := range links {
		if !strings.Contains(link, `rel="describedby"`) {
			continue
		}
		target := describedByLinkPattern.ReplaceAllString(link, "$1")
		if u, err := url.Parse(target); err == nil && u.IsAbs() {
			return u
		}
	}
	return nil
}

// descriptorURLFromHTML scans an HTML document head for a describedby link tag.
func descriptorURLFromHTML(body []byte) *url.URL {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var found *url.URL
	doc.Find("head link").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		if !strings.EqualFold(rel, "describedby") {
			return true
		}
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		if u, err := url.Parse(href); err == nil && u.IsAbs() {
			found = u
			return false
		}
		return true
	})
	return found
}

// isXRDDocument reports whether the fetched content is a descriptor document,
// either by content type or by sniffing the root element.
func isXRDDocument(contentType string, body []byte) bool {
	if contentType == "" {
		return false
	}
	if strings.HasPrefix(contentType, domain.XRDContentType) {
		return true
	}
	if strings.Contains(contentType, "xml") {
		if doc, err := domain.ParseXRD(bytes.NewReader(body)); err == nil && doc.XMLName.Local == "XRD" {
			return true
		}
	}
	return false
}
