package export

import (
	"fmt"
	"path"
	"strings"
)

// titleSanitizer scrubs the characters that upset filesystems and Sphinx
// out of page titles before they become folder names.
var titleSanitizer = strings.NewReplacer(
	"/", "-",
	",", "",
	"&", "And",
	":", "-",
	" ", "_",
)

// SanitizeTitle maps a page title to its on-disk form.
func SanitizeTitle(title string) string {
	return titleSanitizer.Replace(title)
}

// FolderName is the per-page folder: "{id}-{sanitized title}".
func FolderName(id, title string) string {
	return fmt.Sprintf("%s-%s", id, SanitizeTitle(title))
}

// BuildPaths derives the relative folder path of every record from its
// parent chain.  Resolution is memoized and order-independent, so it doesn't
// matter that the record collection arrives in concurrency-determined order.
// It must only be called once the tree is fully materialised; records whose
// parent is missing from the collection are treated as roots.
func BuildPaths(records []PageRecord) PathMap {
	byID := make(map[string]PageRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	paths := make(PathMap, len(records))

	var resolve func(id string, seen map[string]bool) string
	resolve = func(id string, seen map[string]bool) string {
		if p, ok := paths[id]; ok {
			return p
		}

		record, ok := byID[id]
		if !ok || record.ParentID == "" || seen[id] {
			// traversal root, orphan, or a parent loop: anchor it here
			paths[id] = ""
			return ""
		}

		seen[id] = true
		parentPath := resolve(record.ParentID, seen)

		p := path.Join(parentPath, FolderName(record.ID, record.Title))
		paths[id] = p
		return p
	}

	for _, r := range records {
		resolve(r.ID, map[string]bool{})
	}

	return paths
}
