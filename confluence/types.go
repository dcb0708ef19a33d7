package confluence

import (
	"encoding/json"
	"strings"
)

// Space is one entry from the v1 space list.  The numeric id arrives as a
// JSON number; HomepageID is derived from the _expandable homepage link.
type Space struct {
	ID          json.Number `json:"id,omitempty"`
	Key         string      `json:"key,omitempty"`
	Name        string      `json:"name,omitempty"`
	Type        string      `json:"type,omitempty"`
	Description string      `json:"-"`

	Expandable struct {
		Homepage    string `json:"homepage"`
		Description string `json:"description"`
	} `json:"_expandable"`
}

// HomepageID extracts the homepage content id from the expandable link
// ("/rest/api/content/123456"), or returns "" if the space has none.
func (s Space) HomepageID() string {
	link := s.Expandable.Homepage
	if link == "" {
		return ""
	}
	parts := strings.Split(link, "/")
	return parts[len(parts)-1]
}

// Page is a v1 content item.  Which fields are populated depends on the
// expand parameter of the request that produced it.
type Page struct {
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"` // current, archived, trashed

	// Ancestors is ordered root-first; the last element is the immediate
	// parent.  Only present with expand=ancestors.
	Ancestors []Page `json:"ancestors,omitempty"`

	// Space is only present with expand=space.
	Space *Space `json:"space,omitempty"`

	// Body is only present with expand=body.export_view.
	Body *Body `json:"body,omitempty"`

	Links Links `json:"_links"`
}

// ParentID returns the id of the nearest ancestor, or "" for a root page.
func (p Page) ParentID() string {
	if len(p.Ancestors) == 0 {
		return ""
	}
	return p.Ancestors[len(p.Ancestors)-1].ID
}

// Body holds the server-rendered representations of a page.
type Body struct {
	ExportView *Storage `json:"export_view,omitempty"`
}

// Storage is one rendered representation of a page body.
type Storage struct {
	Representation string `json:"representation"`
	Value          string `json:"value"`
}

// Label is one entry from the content label listing.
type Label struct {
	Prefix string `json:"prefix,omitempty"`
	Name   string `json:"name"`
}

// Attachment is one entry from the child attachment listing.
type Attachment struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
	Links Links  `json:"_links"`
}

// Links carries the _links object that v1 hangs off most resources.  Which
// fields are set depends on the resource.
type Links struct {
	Base     string `json:"base,omitempty"`
	WebUI    string `json:"webui,omitempty"`
	Download string `json:"download,omitempty"`
	Next     string `json:"next,omitempty"`
}
