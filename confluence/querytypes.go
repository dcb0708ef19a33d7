package confluence

// SpacesQuery defines the query parameters for the v1 space list:
// GET /rest/api/space
type SpacesQuery struct {
	Limit int    `url:"limit,omitempty"` // page limit; the server defaults to 25, we ask for 250
	Start int    `url:"start,omitempty"`
	Type  string `url:"type,omitempty"` // "global" or "personal"
}

// PageListQuery defines the query parameters for the v1 space content list:
// GET /rest/api/space/{spaceKey}/content/page
type PageListQuery struct {
	Limit  int    `url:"limit,omitempty"`
	Expand string `url:"expand,omitempty"` // e.g. "ancestors,space"
}

// ContentQuery defines the query parameters for a single v1 content fetch:
// GET /rest/api/content/{pageId}
type ContentQuery struct {
	Expand string `url:"expand,omitempty"` // e.g. "body.export_view", "children.attachment"
}

// ChildrenQuery defines the query parameters for v1 child listings:
// GET /rest/api/content/{pageId}/child/{page,attachment}
type ChildrenQuery struct {
	Limit int `url:"limit,omitempty"`
}
