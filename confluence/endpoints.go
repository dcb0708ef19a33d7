package confluence

import (
	"fmt"
	"net/url"

	"github.com/google/go-querystring/query"
)

// spacesEndpoint returns the (v1) endpoint to list spaces:
// GET /rest/api/space?limit=250
func (a *API) spacesEndpoint(opts SpacesQuery) (*url.URL, error) {
	ep, err := a.resolveEndpoint("/rest/api/space")
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}
	return withQuery(ep, opts)
}

// spaceByIDEndpoint returns the (v1) endpoint for one space:
// GET /rest/api/space/{spaceId}
func (a *API) spaceByIDEndpoint(spaceID string) (*url.URL, error) {
	if spaceID == "" {
		return nil, fmt.Errorf("confluence: please provide a space id")
	}
	return a.resolveEndpoint("/rest/api/space/" + url.PathEscape(spaceID))
}

// spaceContentPagesEndpoint returns the (v1) endpoint listing pages of a
// space: GET /rest/api/space/{spaceKey}/content/page?limit=250&expand=...
func (a *API) spaceContentPagesEndpoint(spaceKey string, opts PageListQuery) (*url.URL, error) {
	if spaceKey == "" {
		return nil, fmt.Errorf("confluence: please provide a space key")
	}
	ep, err := a.resolveEndpoint(fmt.Sprintf("/rest/api/space/%s/content/page", url.PathEscape(spaceKey)))
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}
	return withQuery(ep, opts)
}

// contentEndpoint returns the (v1) endpoint for one content item:
// GET /rest/api/content/{pageId}?expand=...
func (a *API) contentEndpoint(pageID string, opts ContentQuery) (*url.URL, error) {
	if pageID == "" {
		return nil, fmt.Errorf("confluence: please provide a page id")
	}
	ep, err := a.resolveEndpoint("/rest/api/content/" + url.PathEscape(pageID))
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}
	return withQuery(ep, opts)
}

// contentLabelsEndpoint returns the (v1) endpoint listing a page's labels:
// GET /rest/api/content/{pageId}/label
func (a *API) contentLabelsEndpoint(pageID string) (*url.URL, error) {
	if pageID == "" {
		return nil, fmt.Errorf("confluence: please provide a page id")
	}
	return a.resolveEndpoint(fmt.Sprintf("/rest/api/content/%s/label", url.PathEscape(pageID)))
}

// childAttachmentsEndpoint returns the (v1) endpoint listing a page's
// attachments: GET /rest/api/content/{pageId}/child/attachment?limit=250
func (a *API) childAttachmentsEndpoint(pageID string, opts ChildrenQuery) (*url.URL, error) {
	if pageID == "" {
		return nil, fmt.Errorf("confluence: please provide a page id")
	}
	ep, err := a.resolveEndpoint(fmt.Sprintf("/rest/api/content/%s/child/attachment", url.PathEscape(pageID)))
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}
	return withQuery(ep, opts)
}

// childPagesEndpoint returns the (v1) endpoint listing a page's direct
// children: GET /rest/api/content/{pageId}/child/page?limit=250
func (a *API) childPagesEndpoint(pageID string, opts ChildrenQuery) (*url.URL, error) {
	if pageID == "" {
		return nil, fmt.Errorf("confluence: please provide a page id")
	}
	ep, err := a.resolveEndpoint(fmt.Sprintf("/rest/api/content/%s/child/page", url.PathEscape(pageID)))
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't resolve endpoint: %w", err)
	}
	return withQuery(ep, opts)
}

// resolveLink resolves a server-provided link (e.g. _links.next, which comes
// back relative like "/rest/api/space?limit=250&start=250") against the base.
func (a *API) resolveLink(link string) (*url.URL, error) {
	ref, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("confluence: failed to parse _links ref: %w", err)
	}
	return a.BaseURL.ResolveReference(ref), nil
}

// Do a bit of error checking on endpoint format, and return it relative to the base URL.
func (a *API) resolveEndpoint(endpoint string) (*url.URL, error) {
	ref, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("confluence: failed to parse endpoint ref: %w", err)
	}
	return a.BaseURL.ResolveReference(ref), nil
}

func withQuery(ep *url.URL, opts any) (*url.URL, error) {
	v, err := query.Values(opts)
	if err != nil {
		return nil, fmt.Errorf("confluence: couldn't encode query params: %w", err)
	}
	ep.RawQuery = v.Encode()
	return ep, nil
}
