package export

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/offprint/confluence-export/confluence"
	"github.com/offprint/confluence-export/convert"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/semaphore"
)

// Exporter walks a materialised page collection and writes one HTML (and
// optionally converted) file per page.  Pages are exported concurrently
// under a weighted semaphore; the pool is deliberately smaller than the
// fetch pool since every page fans out into conversion subprocesses and
// filesystem writes.
//
// Failures are per-page: a page that can't be exported is recorded in the
// report and its siblings carry on.
type Exporter struct {
	API       *confluence.API
	Layout    Layout
	Rewriter  *Rewriter
	Converter convert.Converter

	// ContentRoot is the directory the PathMap is relative to, i.e. the
	// root page's own folder.
	ContentRoot string

	Workers int

	// KeepHTML retains the assembled HTML file even when a converter runs.
	KeepHTML bool

	Logger   *log.Logger
	loggerMu sync.Mutex
}

// Report sums up an export pass.  Failures lists pages that produced no
// output; the run as a whole still counts as successful.
type Report struct {
	Exported int
	Failures []PageFailure
}

// PageFailure names one page that couldn't be exported, and why.
type PageFailure struct {
	PageID string `yaml:"page_id"`
	Title  string `yaml:"title"`
	Reason string `yaml:"reason"`
}

// ExportPages exports every record concurrently.  The page tree must be
// fully materialised and paths must be the final PathMap; running this
// concurrently with a tree fetch is not supported.
func (ex *Exporter) ExportPages(ctx context.Context, records []PageRecord, paths PathMap) (*Report, error) {
	workers := int64(ex.Workers)
	if workers < 1 {
		workers = 1
	}

	sem := semaphore.NewWeighted(workers)

	progress := mpb.New(mpb.WithWidth(64))
	bar := progress.AddBar(int64(len(records)),
		mpb.PrependDecorators(
			decor.Name("pages:", decor.WC{C: decor.DindentRight | decor.DextraSpace}),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("(%d/%d) "),
			decor.NewPercentage("%d"),
		),
	)

	var (
		wg        sync.WaitGroup
		reportMu  sync.Mutex
		report    Report
		manifests []ManifestPage
	)

	for _, record := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			// cancelled mid-run; in-flight pages finish, the rest don't start
			break
		}

		wg.Add(1)
		go func(record PageRecord) {
			defer wg.Done()
			defer sem.Release(1)
			defer bar.Increment()

			entry, err := ex.exportOne(ctx, record, paths)

			reportMu.Lock()
			defer reportMu.Unlock()
			if err != nil {
				ex.logf("Export of page %s (%s) failed: %v", record.ID, record.Title, err)
				report.Failures = append(report.Failures, PageFailure{
					PageID: record.ID,
					Title:  record.Title,
					Reason: err.Error(),
				})
				return
			}
			report.Exported++
			manifests = append(manifests, entry)
		}(record)
	}

	wg.Wait()
	if ctx.Err() != nil {
		// cancelled runs leave the bar short of its total
		bar.Abort(false)
	}
	progress.Wait()

	if err := ctx.Err(); err != nil {
		return &report, fmt.Errorf("export: cancelled: %w", err)
	}

	if err := ex.writeManifest(manifests, report.Failures); err != nil {
		ex.logf("WARNING: couldn't write export manifest: %v", err)
	}

	return &report, nil
}

func (ex *Exporter) exportOne(ctx context.Context, record PageRecord, paths PathMap) (ManifestPage, error) {
	outdir := ex.ContentRoot
	if rel := paths[record.ID]; rel != "" {
		outdir = filepath.Join(ex.ContentRoot, rel)
	}
	if err := os.MkdirAll(outdir, 0o755); err != nil {
		return ManifestPage{}, fmt.Errorf("export: couldn't create page folder: %w", err)
	}

	relPrefix, err := ex.Layout.RelPrefix(outdir)
	if err != nil {
		return ManifestPage{}, err
	}

	// Metadata degrades gracefully: a page with no readable labels or
	// parent still exports.
	labels, err := ex.API.GetPageLabels(ctx, record.ID)
	if err != nil {
		ex.logf("Couldn't fetch labels of page %s, continuing without: %v", record.ID, err)
		labels = nil
	}

	parentID, err := ex.API.GetPageParent(ctx, record.ID)
	if err != nil {
		ex.logf("Couldn't fetch parent of page %s, using tree linkage: %v", record.ID, err)
		parentID = record.ParentID
	}

	attachments, err := ex.Rewriter.FetchAttachments(ctx, record.ID)
	if err != nil {
		ex.logf("Couldn't fetch attachments of page %s, continuing without: %v", record.ID, err)
		attachments = nil
	}

	rewritten, err := ex.Rewriter.RewritePage(ctx, record.ExportHTML(), record.ID, relPrefix)
	if err != nil {
		return ManifestPage{}, err
	}

	fullHTML := ex.assembleHTML(record, rewritten, labels, parentID, attachments, relPrefix)

	baseName := SanitizeTitle(record.Title)
	htmlPath := filepath.Join(outdir, baseName+".html")
	if err := writeFileAtomic(htmlPath, []byte(fullHTML)); err != nil {
		return ManifestPage{}, err
	}

	entry := ManifestPage{
		ID:       record.ID,
		Title:    record.Title,
		Path:     paths[record.ID],
		ParentID: parentID,
		Labels:   labels,
	}

	if ex.Converter == nil {
		return entry, nil
	}

	converted, err := ex.Converter.Convert(ctx, []byte(fullHTML))
	if err != nil {
		// conversion failures skip the converted file; the HTML survives
		ex.logf("There was an issue converting page %s (%s): %v", record.ID, record.Title, err)
		return entry, nil
	}

	header := ex.Converter.Header(convert.PageMeta{
		Title:    record.Title,
		PageID:   record.ID,
		ParentID: parentID,
		Labels:   labels,
		PageType: "common",
	})

	outPath := filepath.Join(outdir, baseName+ex.Converter.Ext())
	if err := writeFileAtomic(outPath, append([]byte(header), converted...)); err != nil {
		return ManifestPage{}, err
	}

	if !ex.KeepHTML {
		if err := os.Remove(htmlPath); err != nil {
			ex.logf("WARNING: couldn't remove intermediate HTML %s: %v", htmlPath, err)
		}
	}

	return entry, nil
}

// assembleHTML wraps the rewritten body in the offline page chrome: a head
// with stylesheet and metadata, the title block with a link back to the
// original, and the attachment footer.
func (ex *Exporter) assembleHTML(record PageRecord, body string, labels []string, parentID string, attachments []string, relPrefix string) string {
	var b strings.Builder

	title := html.EscapeString(record.Title)

	b.WriteString("<html>\n<head>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", title)
	fmt.Fprintf(&b, "<link rel=\"stylesheet\" href=\"%s%s/%s\" type=\"text/css\" />\n", relPrefix, StylesDirName, stylesheetName)
	b.WriteString("<meta name=\"generator\" content=\"confluence-export\" />\n")
	b.WriteString("<meta http-equiv=\"Content-Type\" content=\"text/html; charset=UTF-8\">\n")
	fmt.Fprintf(&b, "<meta name=\"ConfluencePageLabels\" content=\"%s\">\n", html.EscapeString(strings.Join(labels, ", ")))
	fmt.Fprintf(&b, "<meta name=\"ConfluencePageID\" content=\"%s\">\n", record.ID)
	fmt.Fprintf(&b, "<meta name=\"ConfluencePageParent\" content=\"%s\">\n", parentID)
	b.WriteString("</head>\n<body>\n")
	fmt.Fprintf(&b, "<h2>%s</h2>\n", title)

	if originalURL := ex.originalURL(record); originalURL != "" {
		fmt.Fprintf(&b, "<p>Original URL: <a href=\"%s\"> %s</a><hr>\n", originalURL, title)
	}

	b.WriteString(body)

	if len(attachments) > 0 {
		b.WriteString("<h2>Attachments</h2><ol>")
		for _, attachment := range attachments {
			href := path.Join(relPrefix+AttachmentsDirName, attachment)
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>", href, html.EscapeString(attachment))
		}
		b.WriteString("</ol></br>")
	}

	b.WriteString("</body>\n</html>")
	return b.String()
}

func (ex *Exporter) originalURL(record PageRecord) string {
	if record.Body == nil {
		return ""
	}
	links := record.Body.Links
	if links.WebUI == "" {
		return ""
	}
	base := links.Base
	if base == "" {
		base = ex.API.BaseURL.String()
	}
	return base + links.WebUI
}

func (ex *Exporter) logf(format string, args ...any) {
	if ex.Logger == nil {
		return
	}
	ex.loggerMu.Lock()
	defer ex.loggerMu.Unlock()
	ex.Logger.Printf(format, args...)
}
