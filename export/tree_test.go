package export

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/offprint/confluence-export/confluence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPI(t *testing.T, srv *httptest.Server) *confluence.API {
	t.Helper()

	api, err := confluence.NewAPI("example", confluence.BearerToken{Token: "pat"})
	require.NoError(t, err)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	api.BaseURL = base
	api.Client = srv.Client()
	api.Sleep = func(time.Duration) {} // no jitter in tests
	return api
}

// treeServer serves a fixed page tree: body fetches and child listings.
func treeServer(t *testing.T, children map[string][]string, broken map[string]bool) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// /rest/api/content/{id} or /rest/api/content/{id}/child/page
		require.GreaterOrEqual(t, len(parts), 4)
		id := parts[3]

		if strings.HasSuffix(r.URL.Path, "/child/page") {
			kids := make([]string, 0)
			for _, kid := range children[id] {
				kids = append(kids, fmt.Sprintf(`{"id": %q, "title": "Page %s"}`, kid, kid))
			}
			fmt.Fprintf(w, `{"results": [%s], "_links": {}}`, strings.Join(kids, ","))
			return
		}

		if broken[id] {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "no such content"}`)
			return
		}
		fmt.Fprintf(w, `{
			"id": %q, "title": "Page %s",
			"body": {"export_view": {"representation": "export_view", "value": "<p>body %s</p>"}}
		}`, id, id, id)
	}))
}

func TestFetchTree(t *testing.T) {
	srv := treeServer(t, map[string][]string{
		"1": {"2", "3"},
		"2": {"4"},
	}, nil)
	defer srv.Close()

	fetcher := &TreeFetcher{API: testAPI(t, srv), Workers: 4}

	records, err := fetcher.FetchTree(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	byID := map[string]PageRecord{}
	rootCount := 0
	for _, r := range records {
		byID[r.ID] = r
		if r.ParentID == "" {
			rootCount++
		}
	}

	assert.Equal(t, 1, rootCount, "exactly one record has no parent")
	assert.Equal(t, 0, byID["1"].Level)
	assert.Equal(t, "1", byID["2"].ParentID)
	assert.Equal(t, 1, byID["2"].Level)
	assert.Equal(t, "1", byID["3"].ParentID)
	assert.Equal(t, "2", byID["4"].ParentID)
	assert.Equal(t, 2, byID["4"].Level)
	assert.Equal(t, "<p>body 4</p>", byID["4"].ExportHTML())
}

func TestFetchTreeSingleNode(t *testing.T) {
	srv := treeServer(t, nil, nil)
	defer srv.Close()

	fetcher := &TreeFetcher{API: testAPI(t, srv), Workers: 2}

	records, err := fetcher.FetchTree(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ID)
	assert.Equal(t, "", records[0].ParentID)
}

func TestFetchTreeDropsBrokenSubtree(t *testing.T) {
	// page 2 404s, so 2 and its child 4 contribute nothing; 1 and 3 survive
	srv := treeServer(t, map[string][]string{
		"1": {"2", "3"},
		"2": {"4"},
	}, map[string]bool{"2": true})
	defer srv.Close()

	fetcher := &TreeFetcher{API: testAPI(t, srv), Workers: 4}

	records, err := fetcher.FetchTree(context.Background(), "1")
	require.NoError(t, err)

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"1", "3"}, ids)
}

func TestFetchTreeManyChildrenDoesNotWedge(t *testing.T) {
	// fan-out far beyond the queue capacity of a single worker
	kids := make([]string, 0, 200)
	for i := 100; i < 300; i++ {
		kids = append(kids, fmt.Sprintf("%d", i))
	}
	srv := treeServer(t, map[string][]string{"1": kids}, nil)
	defer srv.Close()

	fetcher := &TreeFetcher{API: testAPI(t, srv), Workers: 1}

	records, err := fetcher.FetchTree(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, records, 201)
}
