package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/offprint/confluence-export/confluence"
	"github.com/offprint/confluence-export/convert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// stubConverter converts to a trivial text format, failing on demand so
// tests can exercise per-page isolation.
type stubConverter struct {
	failOn string
}

func (c stubConverter) Convert(ctx context.Context, html []byte) ([]byte, error) {
	if c.failOn != "" && strings.Contains(string(html), c.failOn) {
		return nil, errors.New("converter exploded")
	}
	return []byte("converted body\n"), nil
}

func (c stubConverter) Header(meta convert.PageMeta) string {
	return fmt.Sprintf("id: %s parent: %s labels: %s\n\n", meta.PageID, meta.ParentID, strings.Join(meta.Labels, ","))
}

func (c stubConverter) Ext() string { return ".txt" }

// metadataServer answers the label, parent and attachment lookups exportOne
// performs per page.
func metadataServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/label"):
			fmt.Fprint(w, `{"results": [{"prefix": "global", "name": "docs"}]}`)

		case r.URL.Query().Get("expand") == "children.attachment":
			fmt.Fprint(w, `{"children": {"attachment": {"results": []}}}`)

		case strings.HasPrefix(r.URL.Path, "/rest/api/content/"):
			id := strings.TrimPrefix(r.URL.Path, "/rest/api/content/")
			if id == "1" {
				fmt.Fprintf(w, `{"id": %q, "title": "Page %s"}`, id, id)
			} else {
				fmt.Fprintf(w, `{"id": %q, "title": "Page %s", "ancestors": [{"id": "1"}]}`, id, id)
			}

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func testExporter(t *testing.T, srv *httptest.Server, converter convert.Converter, keepHTML bool) *Exporter {
	t.Helper()

	api := testAPI(t, srv)
	layout := Layout{BaseDir: t.TempDir()}
	require.NoError(t, layout.MkOutdirs())

	return &Exporter{
		API:    api,
		Layout: layout,
		Rewriter: &Rewriter{
			API:        api,
			Downloader: &Downloader{API: api},
			Layout:     layout,
		},
		Converter:   converter,
		ContentRoot: layout.BaseDir,
		Workers:     2,
		KeepHTML:    keepHTML,
	}
}

func pageRecord(id, title, parentID, body string) PageRecord {
	return PageRecord{
		ID:       id,
		Title:    title,
		ParentID: parentID,
		Body: &confluence.Page{
			ID:    id,
			Title: title,
			Body: &confluence.Body{
				ExportView: &confluence.Storage{Representation: "export_view", Value: body},
			},
		},
	}
}

func TestExportPagesWritesTree(t *testing.T) {
	srv := metadataServer(t)
	defer srv.Close()

	ex := testExporter(t, srv, stubConverter{}, false)

	records := []PageRecord{
		pageRecord("1", "Root Page", "", "<p>root</p>"),
		pageRecord("2", "Child: One", "1", "<p>child</p>"),
	}
	paths := BuildPaths(records)

	report, err := ex.ExportPages(context.Background(), records, paths)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Exported)
	assert.Empty(t, report.Failures)

	// root page lands in the base dir, the child in its own folder
	rootOut := filepath.Join(ex.Layout.BaseDir, "Root_Page.txt")
	childOut := filepath.Join(ex.Layout.BaseDir, "2-Child-_One", "Child-_One.txt")

	content, err := os.ReadFile(rootOut)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "id: 1 parent:  labels: docs\n"), "converter header is prepended")
	assert.Contains(t, string(content), "converted body")

	_, err = os.ReadFile(childOut)
	require.NoError(t, err)

	// intermediate HTML is removed when not requested
	_, err = os.Stat(filepath.Join(ex.Layout.BaseDir, "Root_Page.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestExportPagesKeepsHTML(t *testing.T) {
	srv := metadataServer(t)
	defer srv.Close()

	ex := testExporter(t, srv, stubConverter{}, true)

	records := []PageRecord{pageRecord("1", "Root", "", "<p>root</p>")}
	_, err := ex.ExportPages(context.Background(), records, BuildPaths(records))
	require.NoError(t, err)

	html, err := os.ReadFile(filepath.Join(ex.Layout.BaseDir, "Root.html"))
	require.NoError(t, err)

	page := string(html)
	assert.Contains(t, page, `<meta name="ConfluencePageID" content="1">`)
	assert.Contains(t, page, `<meta name="ConfluencePageLabels" content="docs">`)
	assert.Contains(t, page, `<meta name="ConfluencePageParent" content="">`)
	assert.Contains(t, page, `href="_static/confluence.css"`)
	assert.Contains(t, page, "<h2>Root</h2>")
	assert.Contains(t, page, "<p>root</p>")
}

func TestExportPagesHTMLOnly(t *testing.T) {
	srv := metadataServer(t)
	defer srv.Close()

	// no converter: HTML is the product and survives
	ex := testExporter(t, srv, nil, false)

	records := []PageRecord{pageRecord("1", "Root", "", "<p>root</p>")}
	report, err := ex.ExportPages(context.Background(), records, BuildPaths(records))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Exported)

	_, err = os.Stat(filepath.Join(ex.Layout.BaseDir, "Root.html"))
	assert.NoError(t, err)
}

func TestExportPagesConversionFailureKeepsHTML(t *testing.T) {
	srv := metadataServer(t)
	defer srv.Close()

	ex := testExporter(t, srv, stubConverter{failOn: "boom-marker"}, false)

	records := []PageRecord{
		pageRecord("1", "Good", "", "<p>fine</p>"),
		pageRecord("2", "Bad", "1", "<p>boom-marker</p>"),
	}
	report, err := ex.ExportPages(context.Background(), records, BuildPaths(records))
	require.NoError(t, err)

	// a conversion failure isn't an export failure; the page keeps its HTML
	assert.Equal(t, 2, report.Exported)
	assert.Empty(t, report.Failures)

	_, err = os.Stat(filepath.Join(ex.Layout.BaseDir, "Good.txt"))
	assert.NoError(t, err)

	badDir := filepath.Join(ex.Layout.BaseDir, "2-Bad")
	_, err = os.Stat(filepath.Join(badDir, "Bad.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(badDir, "Bad.html"))
	assert.NoError(t, err)
}

func TestExportPagesWritesManifest(t *testing.T) {
	srv := metadataServer(t)
	defer srv.Close()

	ex := testExporter(t, srv, stubConverter{}, false)

	records := []PageRecord{
		pageRecord("2", "Beta", "1", "<p>b</p>"),
		pageRecord("1", "Alpha", "", "<p>a</p>"),
	}
	_, err := ex.ExportPages(context.Background(), records, BuildPaths(records))
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(ex.Layout.BaseDir, "export-manifest.yaml"))
	require.NoError(t, err)

	var manifest Manifest
	require.NoError(t, yaml.Unmarshal(raw, &manifest))

	require.Len(t, manifest.Pages, 2)
	assert.Equal(t, "1", manifest.Pages[0].ID, "manifest entries are sorted by id")
	assert.Equal(t, "2", manifest.Pages[1].ID)
	assert.Equal(t, "1", manifest.Pages[1].ParentID)
	assert.Equal(t, []string{"docs"}, manifest.Pages[1].Labels)
	assert.Empty(t, manifest.Failures)
}
