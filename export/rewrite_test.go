package export

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// a 1x1 GIF, just enough for image.DecodeConfig
var tinyGIF = []byte{'G', 'I', 'F', '8', '9', 'a', 1, 0, 1, 0, 0, 0, 0}

func TestScrubFilename(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"simple.png", "simple.png"},
		{"with space.png", "with_space.png"},
		{"time: 12.png", "time-_12.png"},
		{"weird%$chars!.png", "weird_chars_.png"},
		{"under_score-dash.ok", "under_score-dash.ok"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ScrubFilename(c.name), "name %q", c.name)
	}
}

func newTestRewriter(t *testing.T, srv *httptest.Server) *Rewriter {
	t.Helper()

	api := testAPI(t, srv)
	layout := Layout{BaseDir: t.TempDir()}
	require.NoError(t, layout.MkOutdirs())

	return &Rewriter{
		API:        api,
		Downloader: &Downloader{API: api},
		Layout:     layout,
	}
}

func TestRewritePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download/attachments/5/pic.gif", "/ext/logo.gif", "/images/icons/emoticons/smile.gif":
			w.Header().Set("Content-Type", "image/gif")
			w.Write(tinyGIF)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rw := newTestRewriter(t, srv)

	pageHTML := fmt.Sprintf(`
		<div class="expand-control">Click here to expand...</div>
		<pre class="syntaxhighlighter-pre">code</pre>
		<img class="confluence-embedded-image" src="/download/attachments/5/pic.gif">
		<img class="confluence-embedded-image confluence-external-resource" src="%s/ext/logo.gif">
		<img class="emoticon" src="/images/icons/emoticons/smile.gif">
	`, srv.URL)

	out, err := rw.RewritePage(context.Background(), pageHTML, "5", "")
	require.NoError(t, err)

	assert.NotContains(t, out, "expand-control", "expand chrome is stripped")
	assert.NotContains(t, out, "syntaxhighlighter-pre")
	assert.Contains(t, out, `src="_images/pic.gif"`)
	assert.Contains(t, out, `src="_images/5-0-logo.gif"`, "external embeds get a per-page prefix")
	assert.Contains(t, out, `src="_images/smile.gif"`)
	assert.Contains(t, out, `width="1"`, "natural size below the clamp is kept")

	for _, name := range []string{"pic.gif", "5-0-logo.gif", "smile.gif"} {
		_, err := os.Stat(filepath.Join(rw.Layout.AttachmentsDir(), name))
		assert.NoError(t, err, "downloaded file %s", name)
	}
}

func TestRewritePageRelPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write(tinyGIF)
	}))
	defer srv.Close()

	rw := newTestRewriter(t, srv)

	out, err := rw.RewritePage(context.Background(),
		`<img class="confluence-embedded-image" src="/download/attachments/5/pic.gif">`,
		"5", "../../")
	require.NoError(t, err)
	assert.Contains(t, out, `src="../../_images/pic.gif"`)
}

func TestRewritePageBrokenEmbedStillRepointed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rw := newTestRewriter(t, srv)

	out, err := rw.RewritePage(context.Background(),
		`<img class="confluence-embedded-image" src="/nowhere/gone.gif">`,
		"5", "")
	require.NoError(t, err)
	// a broken relative link beats a link into the authenticated wiki
	assert.Contains(t, out, `src="_images/gone.gif"`)
}

func TestFetchAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest/api/content/5":
			assert.Equal(t, "children.attachment", r.URL.Query().Get("expand"))
			io.WriteString(w, `{"children": {"attachment": {"results": [
				{"id": "a1", "title": "report final.pdf", "_links": {"download": "/download/attachments/5/report%20final.pdf"}},
				{"id": "a2", "title": "data.csv", "_links": {"download": "/download/attachments/5/data.csv"}}
			]}}}`)
		case "/download/attachments/5/report final.pdf", "/download/attachments/5/data.csv":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("file-contents"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rw := newTestRewriter(t, srv)

	names, err := rw.FetchAttachments(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, []string{"report_final.pdf", "data.csv"}, names)

	for _, name := range names {
		_, err := os.Stat(filepath.Join(rw.Layout.AttachmentsDir(), name))
		assert.NoError(t, err, "attachment %s on disk", name)
	}
}

func TestLayoutRelPrefix(t *testing.T) {
	layout := Layout{BaseDir: "/tmp/export"}

	prefix, err := layout.RelPrefix("/tmp/export")
	require.NoError(t, err)
	assert.Equal(t, "", prefix)

	prefix, err = layout.RelPrefix("/tmp/export/1-Root/2-Child")
	require.NoError(t, err)
	assert.Equal(t, "../../", prefix)
}
