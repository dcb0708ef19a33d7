package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/PuerkitoBio/goquery"
	"github.com/offprint/confluence-export/confluence"
)

// maxEmbedWidth clamps embedded images in the exported HTML.
const maxEmbedWidth = 600

var illegalFilenameChars = regexp.MustCompile(`[^\w_.\- ]+`)

// ScrubFilename maps an attachment or image name to a safe local filename.
func ScrubFilename(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ":", "-")
	return illegalFilenameChars.ReplaceAllString(name, "_")
}

// Rewriter rewrites a page's export_view HTML for offline use: embedded
// images, external embeds and emoticons are downloaded into the shared
// _images/ tree and their references repointed at relative paths.
//
// A Rewriter is shared by every export worker; the emoticon cache and the
// check-then-fetch against files on disk may race, which at worst downloads
// a file twice.  Writes go through write-then-rename so a concurrent reader
// never sees a torn file.
type Rewriter struct {
	API        *confluence.API
	Downloader *Downloader
	Layout     Layout

	Logger   *log.Logger
	loggerMu sync.Mutex

	emoticonsOnce sync.Map // emoticon filename -> struct{}
}

// RewritePage applies the offline transforms to pageHTML and returns the
// rewritten fragment.  relPrefix is the "../.." run from the page's folder
// back to the asset root.
func (rw *Rewriter) RewritePage(ctx context.Context, pageHTML string, pageID string, relPrefix string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("export: couldn't parse page %s HTML: %w", pageID, err)
	}

	// expand-control chrome makes no sense offline
	doc.Find("div.expand-control").Remove()
	doc.Find("pre.syntaxhighlighter-pre").RemoveClass("syntaxhighlighter-pre")

	rw.rewriteExternalEmbeds(ctx, doc, pageID, relPrefix)
	rw.rewriteEmbeddedImages(ctx, doc, pageID, relPrefix)
	rw.rewriteEmoticons(ctx, doc, relPrefix)

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("export: couldn't serialise page %s HTML: %w", pageID, err)
	}
	return body, nil
}

// rewriteExternalEmbeds handles images hosted outside Confluence.  They're
// fetched anonymously (auth headers confuse third-party hosts) and renamed
// with a per-page counter so different pages embedding same-named files
// don't collide.
func (rw *Rewriter) rewriteExternalEmbeds(ctx context.Context, doc *goquery.Document, pageID string, relPrefix string) {
	counter := 0
	doc.Find("img.confluence-embedded-image.confluence-external-resource").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}

		localName := ScrubFilename(fmt.Sprintf("%s-%d-%s", pageID, counter, urlFilename(src)))
		localPath := filepath.Join(rw.Layout.AttachmentsDir(), localName)
		relative := path.Join(relPrefix+AttachmentsDirName, localName)

		data, ok := rw.ensureDownloaded(ctx, localPath, src, localName, pageID, false)
		if !ok {
			rw.logf("WARNING: skipping embed %s. url: %s", localPath, src)
			return
		}

		rw.clampImage(img, data)
		img.SetAttr("onclick", fmt.Sprintf("window.open(%q)", relative))
		img.SetAttr("src", relative)
		img.SetAttr("data-image-src", relative)
		counter++
	})
}

// rewriteEmbeddedImages handles Confluence-hosted embedded images, going
// through the fallback resolver since export_view loves stale download
// links.
func (rw *Rewriter) rewriteEmbeddedImages(ctx context.Context, doc *goquery.Document, pageID string, relPrefix string) {
	doc.Find("img.confluence-embedded-image").Each(func(_ int, img *goquery.Selection) {
		if img.HasClass("confluence-external-resource") {
			// already handled
			return
		}

		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		src = rw.absoluteURL(src)

		localName := ScrubFilename(urlFilename(src))
		localPath := filepath.Join(rw.Layout.AttachmentsDir(), localName)
		relative := path.Join(relPrefix+AttachmentsDirName, localName)

		data, ok := rw.ensureDownloaded(ctx, localPath, src, localName, pageID, true)
		if !ok {
			rw.logf("WARNING: skipping embed %s. url: %s", localPath, src)
		} else {
			rw.clampImage(img, data)
			img.SetAttr("onclick", fmt.Sprintf("window.open(%q)", relative))
			img.SetAttr("data-image-src", relative)
		}

		// repoint even a failed download; a broken relative link beats a
		// link into the authenticated wiki
		img.SetAttr("src", relative)
	})
}

// rewriteEmoticons caches each emoticon once per run.
func (rw *Rewriter) rewriteEmoticons(ctx context.Context, doc *goquery.Document, relPrefix string) {
	doc.Find("img.emoticon, img.expand-control-image").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}

		name := urlFilename(src)
		localName := ScrubFilename(name)
		relative := path.Join(relPrefix+EmoticonsDirName, localName)

		if _, alreadySeen := rw.emoticonsOnce.LoadOrStore(localName, struct{}{}); !alreadySeen {
			localPath := filepath.Join(rw.Layout.EmoticonsDir(), localName)
			if _, ok := rw.ensureDownloaded(ctx, localPath, rw.absoluteURL(src), localName, "", true); !ok {
				rw.logf("WARNING: skipping emoticon %s. url: %s", localPath, src)
			}
		}

		img.SetAttr("src", relative)
	})
}

// FetchAttachments downloads every attachment of a page into _images/ and
// returns their local filenames for the attachment footer.  Already-present
// files are kept (identical content, so concurrent exporters are
// idempotent).
func (rw *Rewriter) FetchAttachments(ctx context.Context, pageID string) ([]string, error) {
	attachments, err := rw.API.GetAttachmentsExpanded(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("export: couldn't list attachments of page %s: %w", pageID, err)
	}

	names := make([]string, 0, len(attachments))
	for _, att := range attachments {
		localName := ScrubFilename(unescape(att.Title))
		names = append(names, localName)

		if att.Links.Download == "" {
			continue
		}
		localPath := filepath.Join(rw.Layout.AttachmentsDir(), localName)
		if _, err := os.Stat(localPath); err == nil {
			continue
		}

		downloadURL := rw.absoluteURL(att.Links.Download)
		rw.logf("Downloading: %s", localName)
		if _, ok := rw.ensureDownloaded(ctx, localPath, downloadURL, att.Title, pageID, true); !ok {
			rw.logf("WARNING: skipping attachment %s. url: %s", localPath, downloadURL)
		}
	}

	return names, nil
}

// ensureDownloaded returns the contents at localPath, downloading through
// the fallback resolver if the file isn't on disk yet.
func (rw *Rewriter) ensureDownloaded(ctx context.Context, localPath string, url string, filename string, pageID string, useAuth bool) ([]byte, bool) {
	if data, err := os.ReadFile(localPath); err == nil {
		return data, true
	}

	data, _, ok := rw.Downloader.DownloadWithFallback(ctx, url, filename, pageID, useAuth)
	if !ok {
		return nil, false
	}

	if err := writeFileAtomic(localPath, data); err != nil {
		rw.logf("WARNING: couldn't store %s: %v", localPath, err)
		return nil, false
	}
	return data, true
}

// clampImage bounds the rendered width of an embedded image at
// maxEmbedWidth, keeping smaller images at natural size.  Undecodable data
// is left unstyled.
func (rw *Rewriter) clampImage(img *goquery.Selection, data []byte) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return
	}

	width := cfg.Width
	if width > maxEmbedWidth {
		width = maxEmbedWidth
	}
	img.SetAttr("width", fmt.Sprintf("%d", width))
	img.SetAttr("height", "auto")
}

// absoluteURL resolves export_view's relative links against the instance
// base.
func (rw *Rewriter) absoluteURL(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	if u.IsAbs() {
		return src
	}
	return rw.API.BaseURL.ResolveReference(u).String()
}

// urlFilename extracts the trailing filename of a URL, dropping any query.
func urlFilename(rawURL string) string {
	name := rawURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	return unescape(name)
}

func unescape(s string) string {
	if unescaped, err := url.QueryUnescape(s); err == nil {
		return unescaped
	}
	return s
}

func (rw *Rewriter) logf(format string, args ...any) {
	if rw.Logger == nil {
		return
	}
	rw.loggerMu.Lock()
	defer rw.loggerMu.Unlock()
	rw.Logger.Printf(format, args...)
}
