// Package convert turns rewritten page HTML into the requested text format.
// The converters are deliberately opaque to the export pipeline: they take
// HTML bytes and produce a document body, plus a metadata header the
// exporter prepends verbatim.
package convert

import (
	"context"
	"strings"
)

// PageMeta is the page metadata a converter renders into its header format.
type PageMeta struct {
	Title    string
	PageID   string
	ParentID string
	Labels   []string

	// PageType distinguishes page-properties report pages from common ones.
	PageType string
}

// Converter renders rewritten page HTML into one output format.
type Converter interface {
	// Convert renders the HTML into the target format.
	Convert(ctx context.Context, html []byte) ([]byte, error)

	// Header renders the metadata block prepended to the converted output.
	Header(meta PageMeta) string

	// Ext is the output file extension, including the dot.
	Ext() string
}

func labelList(labels []string) string {
	return strings.Join(labels, ", ")
}
