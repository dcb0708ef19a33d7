/*
Copyright © 2024 paul <paul@denknerd.org>
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/dnaeon/go-vcr.v3/cassette"
	"gopkg.in/dnaeon/go-vcr.v3/recorder"

	"github.com/offprint/confluence-export/confluence"
	"github.com/offprint/confluence-export/convert"
	"github.com/offprint/confluence-export/export"
)

var exportUsage = strings.TrimSpace(`
Export pages to a local folder hierarchy, either a single page and all its descendants, or every
page of a space.
`)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export Confluence content to local files",
	Long:  exportUsage,
}

var exportPageCmd = &cobra.Command{
	Use:   "page PAGE_ID",
	Short: "Export a page and all its descendants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		return runExportPage(ctx, args[0])
	},
}

var exportSpaceCmd = &cobra.Command{
	Use:   "space SPACE_KEY",
	Short: "Export every page of a space",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		return runExportSpace(ctx, args[0])
	},
}

var (
	Outdir        string
	Sphinx        bool
	Tags          bool
	KeepHTML      bool
	NoRST         bool
	Markdown      bool
	FetchWorkers  int
	ExportWorkers int
	WithVCR       bool
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportPageCmd)
	exportCmd.AddCommand(exportSpaceCmd)

	exportCmd.PersistentFlags().StringVarP(&Outdir, "outdir", "o", "confluence-export", "directory to write the export into")
	exportCmd.PersistentFlags().BoolVar(&Sphinx, "sphinx", false, "emit Sphinx-style field-list headers in RST output")
	exportCmd.PersistentFlags().BoolVar(&Tags, "tags", false, "append a '.. tags::' directive listing page labels")
	exportCmd.PersistentFlags().BoolVar(&KeepHTML, "html", false, "keep the intermediate HTML files")
	exportCmd.PersistentFlags().BoolVar(&NoRST, "no-rst", false, "skip conversion, HTML only")
	exportCmd.PersistentFlags().BoolVar(&Markdown, "markdown", false, "convert to Markdown instead of reStructuredText")
	exportCmd.PersistentFlags().IntVar(&FetchWorkers, "fetch-workers", 10, "concurrent page fetches")
	exportCmd.PersistentFlags().IntVar(&ExportWorkers, "export-workers", 5, "concurrent page exports")
	exportCmd.PersistentFlags().BoolVar(&WithVCR, "with-vcr", false, "use go-vcr to cache responses")
}

func runExportPage(ctx context.Context, rootPageID string) error {
	api, cleanup, err := setupAPI(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	root, err := api.GetContent(ctx, rootPageID)
	if err != nil {
		return fmt.Errorf("cmd: couldn't fetch root page %s: %w", rootPageID, err)
	}

	fetcher := &export.TreeFetcher{
		API:     api,
		Workers: FetchWorkers,
		Logger:  logger,
	}
	records, err := fetcher.FetchTree(ctx, rootPageID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("cmd: nothing to export under page %s", rootPageID)
	}
	logger.Printf("Fetched %d pages under %s.", len(records), root.Title)

	baseDir, err := exportBaseDir(export.FolderName(rootPageID, root.Title))
	if err != nil {
		return err
	}

	paths := export.BuildPaths(records)
	return runPipeline(ctx, api, logger, baseDir, records, paths)
}

func runExportSpace(ctx context.Context, spaceKey string) error {
	api, cleanup, err := setupAPI(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	space, err := resolveSpace(ctx, api, spaceKey)
	if err != nil {
		return err
	}
	if homepage := space.HomepageID(); homepage != "" {
		debugLog("Space %s homepage is page %s\n", space.Key, homepage)
	}

	pages, err := api.ListPagesInSpace(ctx, space.Key)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("cmd: space %s has no pages", space.Key)
	}
	logger.Printf("Found %d pages in space %s (%s).", len(pages), space.Key, space.Name)

	records, err := fetchSpaceBodies(ctx, api, logger, pages)
	if err != nil {
		return err
	}

	baseDir, err := exportBaseDir(export.FolderName(space.ID.String(), space.Name))
	if err != nil {
		return err
	}

	paths := export.BuildPaths(records)
	return runPipeline(ctx, api, logger, baseDir, records, paths)
}

// resolveSpace looks a space up by key, falling back to a case-insensitive
// match against the space list so "core" finds "CORE".
func resolveSpace(ctx context.Context, api *confluence.API, spaceKey string) (*confluence.Space, error) {
	space, err := api.GetSpace(ctx, spaceKey)
	if err == nil {
		return space, nil
	}

	spaces, listErr := api.ListAllSpaces(ctx, true)
	if listErr != nil {
		return nil, fmt.Errorf("cmd: couldn't fetch space %s: %w", spaceKey, err)
	}
	for _, s := range spaces {
		if strings.EqualFold(s.Key, spaceKey) {
			s := s
			return &s, nil
		}
	}
	return nil, fmt.Errorf("cmd: couldn't find space %s: %w", spaceKey, err)
}

// fetchSpaceBodies pulls the export_view body of every page in the space
// listing.  The listing already carries each page's ancestors, so levels and
// parent linkage come for free; pages whose parent lives outside the space
// anchor at the export root.
func fetchSpaceBodies(ctx context.Context, api *confluence.API, logger *log.Logger, pages []confluence.Page) ([]export.PageRecord, error) {
	records := make([]export.PageRecord, len(pages))

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(FetchWorkers)

	for i, page := range pages {
		i, page := i, page
		grp.Go(func() error {
			body, err := api.GetBodyExportView(gctx, page.ID)
			if err != nil {
				logger.Printf("Skipping page %s (%s): %v", page.ID, page.Title, err)
				return nil
			}
			records[i] = export.PageRecord{
				ID:       page.ID,
				Title:    body.Title,
				Body:     body,
				Level:    len(page.Ancestors),
				ParentID: page.ParentID(),
			}
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("cmd: space body fetch failed: %w", err)
	}

	kept := records[:0]
	for _, r := range records {
		if r.ID != "" {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

func runPipeline(ctx context.Context, api *confluence.API, logger *log.Logger, baseDir string, records []export.PageRecord, paths export.PathMap) error {
	layout := export.Layout{BaseDir: baseDir}
	if err := layout.MkOutdirs(); err != nil {
		return err
	}

	downloader := &export.Downloader{API: api, Logger: logger}
	rewriter := &export.Rewriter{
		API:        api,
		Downloader: downloader,
		Layout:     layout,
		Logger:     logger,
	}

	converter, keepHTML := pickConverter(api)

	exporter := &export.Exporter{
		API:         api,
		Layout:      layout,
		Rewriter:    rewriter,
		Converter:   converter,
		ContentRoot: baseDir,
		Workers:     ExportWorkers,
		KeepHTML:    keepHTML,
		Logger:      logger,
	}

	report, err := exporter.ExportPages(ctx, records, paths)
	if err != nil {
		return err
	}

	logger.Printf("Exported %d pages to %s.", report.Exported, baseDir)
	for _, failure := range report.Failures {
		logger.Printf("FAILED: %s (%s): %s", failure.PageID, failure.Title, failure.Reason)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("cmd: %d of %d pages failed to export", len(report.Failures), len(records))
	}
	return nil
}

// pickConverter maps the output flags to a converter.  With --no-rst the
// HTML is the product, so it's kept no matter what --html says.
func pickConverter(api *confluence.API) (convert.Converter, bool) {
	if NoRST {
		return nil, true
	}
	if Markdown {
		return convert.Markdown{Domain: api.BaseURL.String()}, KeepHTML
	}
	return convert.Pandoc{Sphinx: Sphinx, Tags: Tags}, KeepHTML
}

func exportBaseDir(rootFolder string) (string, error) {
	outdir, err := homedir.Expand(Outdir)
	if err != nil {
		return "", fmt.Errorf("cmd: couldn't expand homedir: %w", err)
	}
	return filepath.Join(outdir, rootFolder), nil
}

// setupAPI builds the authenticated API client, optionally behind a go-vcr
// recorder, and probes the credential before any real work.
func setupAPI(ctx context.Context) (*confluence.API, func(), error) {
	cred, err := buildCredential()
	if err != nil {
		return nil, nil, err
	}

	api, err := confluence.NewAPI(Site, cred)
	if err != nil {
		return nil, nil, fmt.Errorf("cmd: Confluence API creation failed: %w", err)
	}

	cleanup := func() {}
	if WithVCR {
		// set up VCR recordings.
		opts := &recorder.Options{
			CassetteName:       "fixtures/confluence-export",
			Mode:               recorder.ModeReplayWithNewEpisodes,
			SkipRequestLatency: true,
			RealTransport:      http.DefaultTransport,
		}
		r, err := recorder.NewWithOptions(opts)
		if err != nil {
			return nil, nil, fmt.Errorf("cmd: couldn't set up go-vcr recording: %w", err)
		}

		// Add a hook which removes Authorization headers from all requests
		hook := func(i *cassette.Interaction) error {
			delete(i.Request.Headers, "Authorization")
			return nil
		}
		r.AddHook(hook, recorder.AfterCaptureHook)
		r.SetReplayableInteractions(true)

		api.Client = r.GetDefaultClient()
		cleanup = func() { r.Stop() }
	}

	if err := api.ProbeAuth(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cmd: credential check against %s failed: %w", api.BaseURL, err)
	}
	debugLog("Authenticated against %s\n", api.BaseURL)

	return api, cleanup, nil
}
