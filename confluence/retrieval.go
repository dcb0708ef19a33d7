package confluence

import (
	"context"
	"fmt"
	"net/http"
)

// pageSize is the limit we request from every paginated v1 endpoint.
const pageSize = 250

// ProbeAuth checks the credential with a cheap space listing before any
// export work starts.  Anything but a 200 is treated as an auth failure.
func (api *API) ProbeAuth(ctx context.Context) error {
	ep, err := api.spacesEndpoint(SpacesQuery{Limit: 1})
	if err != nil {
		return err
	}

	resp, err := api.Get(ctx, ep)
	if err != nil {
		return fmt.Errorf("confluence: auth probe failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{
			StatusCode:  resp.StatusCode,
			Status:      resp.Status,
			URL:         ep.String(),
			ContentType: resp.ContentType(),
			Preview:     bodyPreview(resp.Body),
		}
	}
	return nil
}

// ListAllSpaces fetches the full space list, following _links.next until the
// server stops providing one.  Server-provided order is preserved.  Personal
// spaces are filtered server-side unless asked for.
func (api *API) ListAllSpaces(ctx context.Context, includePersonal bool) ([]Space, error) {
	q := SpacesQuery{Limit: pageSize}
	if !includePersonal {
		q.Type = "global"
	}
	ep, err := api.spacesEndpoint(q)
	if err != nil {
		return nil, err
	}

	var spaces []Space
	for {
		var page spaceListResponse
		if err := api.requestJSON(ctx, ep, &page); err != nil {
			return nil, fmt.Errorf("confluence: couldn't list spaces: %w", err)
		}
		spaces = append(spaces, page.Results...)

		if page.Links.Next == "" {
			return spaces, nil
		}
		if ep, err = api.resolveLink(page.Links.Next); err != nil {
			return nil, err
		}
	}
}

// GetSpace fetches one space by id or key.
func (api *API) GetSpace(ctx context.Context, spaceID string) (*Space, error) {
	ep, err := api.spaceByIDEndpoint(spaceID)
	if err != nil {
		return nil, err
	}

	var space Space
	if err := api.requestJSON(ctx, ep, &space); err != nil {
		return nil, fmt.Errorf("confluence: couldn't get space %s: %w", spaceID, err)
	}
	return &space, nil
}

// ListPagesInSpace fetches every page of a space with ancestors and space
// expanded, following the nested page._links.next for pagination.
func (api *API) ListPagesInSpace(ctx context.Context, spaceKey string) ([]Page, error) {
	ep, err := api.spaceContentPagesEndpoint(spaceKey, PageListQuery{
		Limit:  pageSize,
		Expand: "ancestors,space",
	})
	if err != nil {
		return nil, err
	}

	var envelope spaceContentResponse
	if err := api.requestJSON(ctx, ep, &envelope); err != nil {
		return nil, fmt.Errorf("confluence: couldn't list pages in space %s: %w", spaceKey, err)
	}

	pages := envelope.Page.Results
	next := envelope.Page.Links.Next
	for next != "" {
		ep, err := api.resolveLink(next)
		if err != nil {
			return nil, err
		}

		// follow-up pages come back with the list at the top level
		var page pageListResponse
		if err := api.requestJSON(ctx, ep, &page); err != nil {
			return nil, fmt.Errorf("confluence: couldn't follow page list in space %s: %w", spaceKey, err)
		}
		pages = append(pages, page.Results...)
		next = page.Links.Next
	}

	return pages, nil
}

// GetBodyExportView fetches a page with its server-rendered export_view HTML.
func (api *API) GetBodyExportView(ctx context.Context, pageID string) (*Page, error) {
	ep, err := api.contentEndpoint(pageID, ContentQuery{Expand: "body.export_view"})
	if err != nil {
		return nil, err
	}

	var page Page
	if err := api.requestJSON(ctx, ep, &page); err != nil {
		return nil, fmt.Errorf("confluence: couldn't get export view of %s: %w", pageID, err)
	}
	return &page, nil
}

// GetContent fetches a page's basic metadata (title, status, ancestors).
func (api *API) GetContent(ctx context.Context, pageID string) (*Page, error) {
	ep, err := api.contentEndpoint(pageID, ContentQuery{Expand: "ancestors"})
	if err != nil {
		return nil, err
	}

	var page Page
	if err := api.requestJSON(ctx, ep, &page); err != nil {
		return nil, fmt.Errorf("confluence: couldn't get content %s: %w", pageID, err)
	}
	return &page, nil
}

// GetPageParent resolves a page's immediate parent id: the last element of
// the ancestor chain, or "" for a root page.  Absence of a parent is not an
// error.
func (api *API) GetPageParent(ctx context.Context, pageID string) (string, error) {
	page, err := api.GetContent(ctx, pageID)
	if err != nil {
		return "", err
	}
	return page.ParentID(), nil
}

// GetPageLabels fetches the label names attached to a page.
func (api *API) GetPageLabels(ctx context.Context, pageID string) ([]string, error) {
	ep, err := api.contentLabelsEndpoint(pageID)
	if err != nil {
		return nil, err
	}

	var list labelListResponse
	if err := api.requestJSON(ctx, ep, &list); err != nil {
		return nil, fmt.Errorf("confluence: couldn't get labels of %s: %w", pageID, err)
	}

	names := make([]string, 0, len(list.Results))
	for _, l := range list.Results {
		names = append(names, l.Name)
	}
	return names, nil
}

// ListChildPages fetches a page's direct children.
func (api *API) ListChildPages(ctx context.Context, pageID string) ([]Page, error) {
	ep, err := api.childPagesEndpoint(pageID, ChildrenQuery{Limit: pageSize})
	if err != nil {
		return nil, err
	}

	var children []Page
	for {
		var page pageListResponse
		if err := api.requestJSON(ctx, ep, &page); err != nil {
			return nil, fmt.Errorf("confluence: couldn't list children of %s: %w", pageID, err)
		}
		children = append(children, page.Results...)

		if page.Links.Next == "" {
			return children, nil
		}
		if ep, err = api.resolveLink(page.Links.Next); err != nil {
			return nil, err
		}
	}
}

// ListPageAttachments fetches a page's attachment list via the child
// attachment endpoint, following pagination.
func (api *API) ListPageAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	ep, err := api.childAttachmentsEndpoint(pageID, ChildrenQuery{Limit: pageSize})
	if err != nil {
		return nil, err
	}

	var attachments []Attachment
	for {
		var page attachmentListResponse
		if err := api.requestJSON(ctx, ep, &page); err != nil {
			return nil, fmt.Errorf("confluence: couldn't list attachments of %s: %w", pageID, err)
		}
		attachments = append(attachments, page.Results...)

		if page.Links.Next == "" {
			return attachments, nil
		}
		if ep, err = api.resolveLink(page.Links.Next); err != nil {
			return nil, err
		}
	}
}

// GetAttachmentsExpanded fetches a page's attachments through the
// children.attachment expansion.  The expansion only returns the first batch;
// pages with very many attachments should use ListPageAttachments.
func (api *API) GetAttachmentsExpanded(ctx context.Context, pageID string) ([]Attachment, error) {
	ep, err := api.contentEndpoint(pageID, ContentQuery{Expand: "children.attachment"})
	if err != nil {
		return nil, err
	}

	var envelope attachmentChildrenResponse
	if err := api.requestJSON(ctx, ep, &envelope); err != nil {
		return nil, fmt.Errorf("confluence: couldn't get attachments of %s: %w", pageID, err)
	}
	return envelope.Children.Attachment.Results, nil
}

// FindAttachmentByFilename searches a page's attachments for an exact title
// match and returns its absolute download URL, or "" if the page has no such
// attachment.  Not finding the file is not an error.
func (api *API) FindAttachmentByFilename(ctx context.Context, pageID string, filename string) (string, error) {
	attachments, err := api.ListPageAttachments(ctx, pageID)
	if err != nil {
		return "", err
	}

	for _, att := range attachments {
		if att.Title == filename && att.Links.Download != "" {
			u, err := api.resolveLink(att.Links.Download)
			if err != nil {
				return "", err
			}
			return u.String(), nil
		}
	}
	return "", nil
}
