package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		title string
		want  string
	}{
		{"Plain", "Plain"},
		{"Ops / Runbooks", "Ops_-_Runbooks"},
		{"Alerts, Paging", "Alerts_Paging"},
		{"Dev & Test", "Dev_And_Test"},
		{"HOWTO: deploy", "HOWTO-_deploy"},
		{"a b c", "a_b_c"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeTitle(c.title), "title %q", c.title)
	}
}

func TestFolderName(t *testing.T) {
	assert.Equal(t, "12345-My_Page", FolderName("12345", "My Page"))
}

func TestBuildPaths(t *testing.T) {
	records := []PageRecord{
		{ID: "1", Title: "Root", ParentID: ""},
		{ID: "2", Title: "Alpha", ParentID: "1"},
		{ID: "3", Title: "Beta", ParentID: "1"},
		{ID: "4", Title: "Deep", ParentID: "2"},
	}

	want := PathMap{
		"1": "",
		"2": "2-Alpha",
		"3": "3-Beta",
		"4": "2-Alpha/4-Deep",
	}

	assert.Equal(t, want, BuildPaths(records))

	// resolution is memoized bottom-up, so arrival order must not matter
	reversed := []PageRecord{records[3], records[2], records[1], records[0]}
	assert.Equal(t, want, BuildPaths(reversed))
}

func TestBuildPathsOrphanAnchorsAtRoot(t *testing.T) {
	records := []PageRecord{
		{ID: "1", Title: "Root", ParentID: ""},
		{ID: "9", Title: "Orphan", ParentID: "404"},
	}

	paths := BuildPaths(records)
	assert.Equal(t, "", paths["9"], "a record whose parent is missing anchors at the root")
}

func TestBuildPathsBreaksParentCycles(t *testing.T) {
	records := []PageRecord{
		{ID: "1", Title: "One", ParentID: "2"},
		{ID: "2", Title: "Two", ParentID: "1"},
	}

	paths := BuildPaths(records)
	// a cycle terminates instead of recursing forever; one of the two
	// anchors at the root and the other nests under it
	assert.Len(t, paths, 2)
	for id, p := range paths {
		if p == "" {
			continue
		}
		other := map[string]string{"1": "2", "2": "1"}[id]
		assert.Equal(t, "", paths[other])
	}
}
