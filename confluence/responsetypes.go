package confluence

// spaceListResponse is the envelope of GET /rest/api/space.
type spaceListResponse struct {
	Results []Space `json:"results"`
	Links   Links   `json:"_links"`
}

// pageListResponse is the common shape of v1 paginated content listings.
type pageListResponse struct {
	Results []Page `json:"results"`
	Links   Links  `json:"_links"`
}

// spaceContentResponse is the envelope of
// GET /rest/api/space/{key}/content/page -- the page list nests under "page".
type spaceContentResponse struct {
	Page pageListResponse `json:"page"`
}

// labelListResponse is the envelope of GET /rest/api/content/{id}/label.
type labelListResponse struct {
	Results []Label `json:"results"`
}

// attachmentListResponse is the envelope of
// GET /rest/api/content/{id}/child/attachment.
type attachmentListResponse struct {
	Results []Attachment `json:"results"`
	Links   Links        `json:"_links"`
}

// attachmentChildrenResponse is the envelope of
// GET /rest/api/content/{id}?expand=children.attachment.
type attachmentChildrenResponse struct {
	Children struct {
		Attachment attachmentListResponse `json:"attachment"`
	} `json:"children"`
}
