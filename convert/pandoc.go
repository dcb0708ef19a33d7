package convert

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Pandoc converts HTML to reStructuredText by shelling out to the pandoc
// binary.  The flags mirror what Sphinx imports most cleanly: standalone
// output, no line wrapping, and list-tables instead of grid tables.
type Pandoc struct {
	// Binary overrides the pandoc executable name; tests point this at a
	// stub.  Empty means "pandoc" from PATH.
	Binary string

	// Sphinx selects the field-list header consumed by the Sphinx
	// confluence metadata extension; otherwise a plain ".. meta::" block is
	// emitted.
	Sphinx bool

	// Tags appends a ".. tags::" directive listing the page labels.
	Tags bool
}

func (p Pandoc) Ext() string { return ".rst" }

func (p Pandoc) Convert(ctx context.Context, html []byte) ([]byte, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pandoc"
	}

	cmd := exec.CommandContext(ctx, binary,
		"--from=html",
		"--to=rst",
		"--standalone",
		"--wrap=none",
		"--list-tables",
	)

	var out, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(html)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("convert: pandoc failed: %w (stderr: %s)", err, stderr.String())
	}
	return out.Bytes(), nil
}

func (p Pandoc) Header(meta PageMeta) string {
	var b bytes.Buffer

	if p.Sphinx {
		fmt.Fprintf(&b, ":conf_pagetype: %s\n", meta.PageType)
		fmt.Fprintf(&b, ":conf_pageid: %s\n", meta.PageID)
		fmt.Fprintf(&b, ":conf_parent: %s\n", meta.ParentID)
		fmt.Fprintf(&b, ":conf_labels: %s\n", labelList(meta.Labels))
		fmt.Fprintf(&b, ":doc_title: %s\n", meta.Title)
	} else {
		fmt.Fprintf(&b, ".. meta::\n")
		fmt.Fprintf(&b, "    :confluencePageId: %s\n", meta.PageID)
		fmt.Fprintf(&b, "    :confluencePageLabels: %s\n", labelList(meta.Labels))
		fmt.Fprintf(&b, "    :confluencePageParent: %s\n", meta.ParentID)
	}

	if p.Tags && len(meta.Labels) > 0 {
		fmt.Fprintf(&b, "\n.. tags:: %s\n", labelList(meta.Labels))
	}

	b.WriteString("\n")
	return b.String()
}
