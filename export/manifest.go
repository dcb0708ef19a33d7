package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

const manifestName = "export-manifest.yaml"

// Manifest summarises an export run: every page written, where it landed
// relative to the export root, and anything that failed.  It's written next
// to the content so a later sync or Sphinx build can enumerate pages without
// rewalking the tree.
type Manifest struct {
	GeneratedAt time.Time      `yaml:"generated_at"`
	Site        string         `yaml:"site"`
	Pages       []ManifestPage `yaml:"pages"`
	Failures    []PageFailure  `yaml:"failures,omitempty"`
}

// ManifestPage is one exported page's entry in the manifest.
type ManifestPage struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title"`
	Path     string   `yaml:"path"`
	ParentID string   `yaml:"parent_id,omitempty"`
	Labels   []string `yaml:"labels,omitempty"`
}

func (ex *Exporter) writeManifest(pages []ManifestPage, failures []PageFailure) error {
	// workers finish in whatever order; sort so reruns diff cleanly
	slices.SortFunc(pages, func(a, b ManifestPage) int {
		return strings.Compare(a.ID, b.ID)
	})
	slices.SortFunc(failures, func(a, b PageFailure) int {
		return strings.Compare(a.PageID, b.PageID)
	})

	manifest := Manifest{
		GeneratedAt: time.Now().UTC(),
		Site:        ex.API.BaseURL.Host,
		Pages:       pages,
		Failures:    failures,
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("export: couldn't marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(ex.Layout.BaseDir, manifestName), data)
}
