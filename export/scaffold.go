package export

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// AttachmentsDirName holds downloaded attachments and embedded images.
	AttachmentsDirName = "_images"
	// EmoticonsDirName shares the image dir; Sphinx expects one image tree.
	EmoticonsDirName = "_images"
	// StylesDirName holds the bundled stylesheet.
	StylesDirName = "_static"

	stylesheetName = "confluence.css"
)

//go:embed static/confluence.css
var stylesheet []byte

// Layout anchors the shared asset directories of an export run.  With the
// sphinx-compatible convention BaseDir is the root of the whole export; in
// per-space mode each space folder gets its own Layout.
type Layout struct {
	BaseDir string
}

func (l Layout) AttachmentsDir() string { return filepath.Join(l.BaseDir, AttachmentsDirName) }
func (l Layout) EmoticonsDir() string   { return filepath.Join(l.BaseDir, EmoticonsDirName) }
func (l Layout) StylesDir() string      { return filepath.Join(l.BaseDir, StylesDirName) }

// MkOutdirs creates the base and asset directories and drops the bundled
// stylesheet into _static/.  Creation is create-if-absent, so concurrent
// exporters sharing a parent directory can race harmlessly.
func (l Layout) MkOutdirs() error {
	for _, dir := range []string{l.BaseDir, l.AttachmentsDir(), l.EmoticonsDir(), l.StylesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("export: couldn't create directory %s: %w", dir, err)
		}
	}

	stylesheetPath := filepath.Join(l.StylesDir(), stylesheetName)
	if _, err := os.Stat(stylesheetPath); os.IsNotExist(err) {
		if err := writeFileAtomic(stylesheetPath, stylesheet); err != nil {
			return fmt.Errorf("export: couldn't write stylesheet: %w", err)
		}
	}

	return nil
}

// RelPrefix computes the "../../" style prefix that takes a content
// directory back up to BaseDir, where the shared asset dirs live.  Returns
// "" when the content dir is BaseDir itself.
func (l Layout) RelPrefix(contentDir string) (string, error) {
	rel, err := filepath.Rel(contentDir, l.BaseDir)
	if err != nil {
		return "", fmt.Errorf("export: couldn't compute relative path from %s: %w", contentDir, err)
	}
	if rel == "." {
		return "", nil
	}
	return rel + "/", nil
}

// writeFileAtomic writes via a temp file and rename, so a half-written file
// is never visible to a concurrent reader under the final name.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("export: couldn't create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("export: couldn't write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("export: couldn't close %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("export: couldn't move %s into place: %w", path, err)
	}
	return nil
}
