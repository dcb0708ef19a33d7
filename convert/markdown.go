package convert

import (
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	mdplugin "github.com/JohannesKaufmann/html-to-markdown/plugin"
	"gopkg.in/yaml.v3"
)

// Markdown converts HTML to GitHub-flavoured Markdown, for users without a
// pandoc installation.  The header is YAML front matter.
type Markdown struct {
	// Domain anchors relative links in the source HTML; usually the
	// Confluence instance host.
	Domain string
}

func (m Markdown) Ext() string { return ".md" }

func (m Markdown) Convert(ctx context.Context, html []byte) ([]byte, error) {
	converter := md.NewConverter(m.Domain, true, nil)
	// Github flavoured Markdown knows about tables 👍
	converter.Use(mdplugin.GitHubFlavored())

	out, err := converter.ConvertString(string(html))
	if err != nil {
		return nil, fmt.Errorf("convert: markdown conversion failed: %w", err)
	}
	return []byte(out), nil
}

type markdownFrontMatter struct {
	Title    string   `yaml:"title"`
	PageID   string   `yaml:"confluence_page_id"`
	ParentID string   `yaml:"confluence_parent_id,omitempty"`
	Labels   []string `yaml:"labels,omitempty"`
	PageType string   `yaml:"page_type,omitempty"`
}

func (m Markdown) Header(meta PageMeta) string {
	front, err := yaml.Marshal(markdownFrontMatter{
		Title:    meta.Title,
		PageID:   meta.PageID,
		ParentID: meta.ParentID,
		Labels:   meta.Labels,
		PageType: meta.PageType,
	})
	if err != nil {
		// yaml.Marshal on a flat struct can't realistically fail; degrade
		// to an empty header rather than poisoning the page export.
		return ""
	}

	return fmt.Sprintf("---\n%s---\n\n", strings.TrimSpace(string(front))+"\n")
}
