package convert

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testMeta = PageMeta{
	Title:    "Runbook: Paging",
	PageID:   "12345",
	ParentID: "100",
	Labels:   []string{"oncall", "runbook"},
	PageType: "common",
}

func TestPandocHeaderMetaBlock(t *testing.T) {
	header := Pandoc{}.Header(testMeta)

	assert.Contains(t, header, ".. meta::\n")
	assert.Contains(t, header, ":confluencePageId: 12345\n")
	assert.Contains(t, header, ":confluencePageLabels: oncall, runbook\n")
	assert.Contains(t, header, ":confluencePageParent: 100\n")
	assert.NotContains(t, header, ":conf_pageid:")
	assert.NotContains(t, header, ".. tags::")
	assert.True(t, strings.HasSuffix(header, "\n\n"), "header is separated from the body")
}

func TestPandocHeaderSphinxFieldList(t *testing.T) {
	header := Pandoc{Sphinx: true}.Header(testMeta)

	assert.Contains(t, header, ":conf_pagetype: common\n")
	assert.Contains(t, header, ":conf_pageid: 12345\n")
	assert.Contains(t, header, ":conf_parent: 100\n")
	assert.Contains(t, header, ":conf_labels: oncall, runbook\n")
	assert.Contains(t, header, ":doc_title: Runbook: Paging\n")
	assert.NotContains(t, header, ".. meta::")
}

func TestPandocHeaderTags(t *testing.T) {
	header := Pandoc{Sphinx: true, Tags: true}.Header(testMeta)
	assert.Contains(t, header, ".. tags:: oncall, runbook\n")

	noLabels := testMeta
	noLabels.Labels = nil
	header = Pandoc{Sphinx: true, Tags: true}.Header(noLabels)
	assert.NotContains(t, header, ".. tags::", "no tags directive without labels")
}

func TestPandocExt(t *testing.T) {
	assert.Equal(t, ".rst", Pandoc{}.Ext())
}

func TestMarkdownConvert(t *testing.T) {
	out, err := Markdown{Domain: "https://example.atlassian.net"}.Convert(context.Background(),
		[]byte(`<h1>Title</h1><p>Some <strong>bold</strong> text.</p>`))
	require.NoError(t, err)

	md := string(out)
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
}

func TestMarkdownConvertTables(t *testing.T) {
	out, err := Markdown{}.Convert(context.Background(),
		[]byte(`<table><thead><tr><th>Name</th><th>Value</th></tr></thead><tbody><tr><td>a</td><td>1</td></tr></tbody></table>`))
	require.NoError(t, err)

	md := string(out)
	assert.Contains(t, md, "| Name | Value |")
	assert.Contains(t, md, "| a | 1 |")
}

func TestMarkdownHeaderFrontMatter(t *testing.T) {
	header := Markdown{}.Header(testMeta)

	require.True(t, strings.HasPrefix(header, "---\n"))
	body := strings.TrimPrefix(header, "---\n")
	yamlPart, _, found := strings.Cut(body, "---\n")
	require.True(t, found, "front matter is fenced")

	var parsed struct {
		Title    string   `yaml:"title"`
		PageID   string   `yaml:"confluence_page_id"`
		ParentID string   `yaml:"confluence_parent_id"`
		Labels   []string `yaml:"labels"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(yamlPart), &parsed))
	assert.Equal(t, "Runbook: Paging", parsed.Title)
	assert.Equal(t, "12345", parsed.PageID)
	assert.Equal(t, "100", parsed.ParentID)
	assert.Equal(t, []string{"oncall", "runbook"}, parsed.Labels)
}

func TestMarkdownExt(t *testing.T) {
	assert.Equal(t, ".md", Markdown{}.Ext())
}
