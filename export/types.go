package export

import "github.com/offprint/confluence-export/confluence"

// PageRecord is one node of a materialised page tree.  Level is the depth
// from the traversal root (root = 0).  ParentID is assigned by the parent's
// traversal when it enqueues the child, never by the node itself; it stays
// "" only for the root.
type PageRecord struct {
	ID       string
	Title    string
	Body     *confluence.Page
	Level    int
	ParentID string
}

// ExportHTML returns the server-rendered export_view HTML of the record, or
// "" if the body fetch didn't include one.
func (r PageRecord) ExportHTML() string {
	if r.Body == nil || r.Body.Body == nil || r.Body.Body.ExportView == nil {
		return ""
	}
	return r.Body.Body.ExportView.Value
}

// PathMap maps page id to the page's relative folder path.  The traversal
// root maps to "".  Built once after the tree is fully materialised;
// read-only afterwards.
type PathMap map[string]string
