package export

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/offprint/confluence-export/confluence"
)

const (
	attachmentURLMarker   = "/download/attachments/"
	embeddedPageURLMarker = "/download/attachments/embedded-page/"
)

// Downloader resolves attachment and embedded-image URLs to file contents.
// Confluence URLs rot: attachments get re-homed, export_view links point at
// pages that have since moved, and the server happily answers a broken link
// with a 200 login page.  So a direct fetch is backed by API searches on the
// current page and on the page named in the URL itself.
type Downloader struct {
	API *confluence.API

	Logger   *log.Logger
	loggerMu sync.Mutex
}

// DownloadWithFallback fetches url, falling back to attachment-search
// strategies when the direct fetch doesn't produce a usable file.  The
// returned diagnostic names the strategy that succeeded, or what failed; ok
// is false only when every strategy has been exhausted.
func (d *Downloader) DownloadWithFallback(ctx context.Context, url string, filename string, pageID string, useAuth bool) ([]byte, string, bool) {
	// Strategy 1: the URL as given.
	resp, err := d.API.GetRaw(ctx, url, useAuth)
	if err == nil && IsValidDownload(resp) {
		return resp.Body, "downloaded from original URL", true
	}

	reason := describeFailure(resp, err)
	d.logf("WARNING: failed to download %s: %s\n  URL: %s", filename, reason, url)

	// Only Confluence attachment URLs have an API fallback.
	if !strings.Contains(url, attachmentURLMarker) {
		return nil, "not a Confluence attachment URL", false
	}

	// Strategy 2: search the current page's attachments.
	if body, ok := d.fetchViaSearch(ctx, pageID, filename, useAuth); ok {
		d.logf("  Downloaded %s via API from current page", filename)
		return body, "downloaded via API from current page", true
	}
	d.logf("  Attachment %q not found on current page %s", filename, pageID)

	// Strategy 3: the URL embeds the page the attachment actually lives on.
	// Embedded-page URLs carry a space/title instead of an id, so there's
	// nothing to extract from those.
	if sourceID := pageIDFromAttachmentURL(url); sourceID != "" && sourceID != pageID {
		d.logf("  Trying API fallback on source page %s...", sourceID)
		if body, ok := d.fetchViaSearch(ctx, sourceID, filename, useAuth); ok {
			d.logf("  Downloaded %s via API from source page %s", filename, sourceID)
			return body, fmt.Sprintf("downloaded via API from source page %s", sourceID), true
		}
	}

	return nil, "all fallback strategies failed", false
}

// fetchViaSearch looks filename up in a page's attachment list and fetches
// the resolved download link.
func (d *Downloader) fetchViaSearch(ctx context.Context, pageID string, filename string, useAuth bool) ([]byte, bool) {
	downloadURL, err := d.API.FindAttachmentByFilename(ctx, pageID, filename)
	if err != nil {
		d.logf("  Error searching for attachment on page %s: %v", pageID, err)
		return nil, false
	}
	if downloadURL == "" {
		return nil, false
	}

	resp, err := d.API.GetRaw(ctx, downloadURL, useAuth)
	if err != nil || !IsValidDownload(resp) {
		return nil, false
	}
	return resp.Body, true
}

// IsValidDownload reports whether a response is a real file: status 200,
// non-empty, and not an HTML login/error page masquerading as success.  The
// check sniffs the body prefix as well as Content-Type because Confluence
// serves error pages with all sorts of headers.
func IsValidDownload(resp *confluence.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusOK || len(resp.Body) == 0 {
		return false
	}
	if strings.Contains(resp.ContentType(), "html") {
		return false
	}
	if bytes.HasPrefix(resp.Body, []byte("<!DOCTYPE")) || bytes.HasPrefix(resp.Body, []byte("<html")) {
		return false
	}
	return true
}

// pageIDFromAttachmentURL extracts the page id from a
// ".../download/attachments/{id}/file" URL, or "" when the URL doesn't carry
// one (embedded-page shape, or a non-numeric segment).
func pageIDFromAttachmentURL(url string) string {
	if strings.Contains(url, embeddedPageURLMarker) {
		return ""
	}

	_, rest, found := strings.Cut(url, attachmentURLMarker)
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" || strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return ""
	}
	return id
}

func describeFailure(resp *confluence.Response, err error) string {
	if err != nil {
		return fmt.Sprintf("request failed: %v", err)
	}
	reason := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if strings.Contains(resp.ContentType(), "html") ||
		bytes.HasPrefix(resp.Body, []byte("<!DOCTYPE")) ||
		bytes.HasPrefix(resp.Body, []byte("<html")) {
		reason += ", returned HTML instead of file"
	}
	return reason
}

func (d *Downloader) logf(format string, args ...any) {
	if d.Logger == nil {
		return
	}
	d.loggerMu.Lock()
	defer d.loggerMu.Unlock()
	d.Logger.Printf(format, args...)
}
