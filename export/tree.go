package export

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/offprint/confluence-export/confluence"
	"github.com/offprint/confluence-export/internal/termfmt"
	"golang.org/x/sync/errgroup"
)

// TreeFetcher materialises a page and all its descendants into a flat record
// collection.  All nodes across the whole traversal share one bounded worker
// pool fed by a job queue; a node's children become follow-up jobs rather
// than a nested pool, so real concurrency never exceeds Workers.
type TreeFetcher struct {
	API     *confluence.API
	Workers int

	Logger   *log.Logger
	loggerMu sync.Mutex
}

type fetchJob struct {
	pageID   string
	level    int
	parentID string
}

// FetchTree walks the tree rooted at rootPageID and returns the records in
// concurrency-determined order.  Per-node fetch failures are logged and that
// subtree contributes nothing; only cancellation aborts the traversal.
func (f *TreeFetcher) FetchTree(ctx context.Context, rootPageID string) ([]PageRecord, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := f.Workers
	if workers < 1 {
		workers = 1
	}

	jobQueue := make(chan fetchJob, workers*64)
	results := make(chan PageRecord, workers*2)

	// Every queued-but-unprocessed job holds one unit; the worker that
	// drains the last unit closes the queue.
	inFlight := int32(1)
	jobQueue <- fetchJob{pageID: rootPageID, level: 0}

	grp, gctx := errgroup.WithContext(ctx)

	activeWorkers := int32(workers)
	for i := 0; i < workers; i++ {
		grp.Go(func() error {
			defer func() {
				// Last one out closes the shop.
				if atomic.AddInt32(&activeWorkers, -1) == 0 {
					close(results)
				}
			}()

			for {
				select {
				case job, ok := <-jobQueue:
					if !ok {
						return nil
					}

					record, children := f.fetchNode(gctx, job)

					for _, child := range children {
						atomic.AddInt32(&inFlight, 1)
						f.enqueue(gctx, jobQueue, fetchJob{
							pageID:   child.ID,
							level:    job.level + 1,
							parentID: job.pageID,
						})
					}

					if atomic.AddInt32(&inFlight, -1) == 0 {
						close(jobQueue)
					}

					if record != nil {
						select {
						case results <- *record:
						case <-gctx.Done():
							return context.Cause(gctx)
						}
					}

				case <-gctx.Done():
					return context.Cause(gctx)
				}
			}
		})
	}

	// Collect into a task-local slice; workers never share the accumulator.
	var records []PageRecord
	grp.Go(func() error {
		for record := range results {
			records = append(records, record)
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("export: tree fetch failed: %w", err)
	}

	return records, nil
}

// enqueue never blocks the calling worker: with dynamic fan-out, a full
// queue with every worker trying to push children would wedge the pool.
func (f *TreeFetcher) enqueue(ctx context.Context, queue chan<- fetchJob, job fetchJob) {
	select {
	case queue <- job:
	default:
		go func() {
			select {
			case queue <- job:
			case <-ctx.Done():
			}
		}()
	}
}

// fetchNode fetches one page and lists its children.  A failed self-fetch
// yields (nil, nil): the subtree is dropped but siblings are unaffected.  A
// failed child listing still yields the node's own record.
func (f *TreeFetcher) fetchNode(ctx context.Context, job fetchJob) (*PageRecord, []confluence.Page) {
	body, err := f.API.GetBodyExportView(ctx, job.pageID)
	if err != nil {
		if confluence.IsRateLimited(err) {
			f.logf("Rate limited fetching page %s even after retries; consider lowering --fetch-workers.", job.pageID)
		} else {
			f.logf("Skipping page %s and its children: %v", job.pageID, err)
		}
		return nil, nil
	}

	id := body.ID
	if id == "" {
		id = job.pageID
	}

	record := &PageRecord{
		ID:       id,
		Title:    body.Title,
		Body:     body,
		Level:    job.level,
		ParentID: job.parentID,
	}

	indent := strings.Repeat("  ", job.level)
	f.logf("%s├─ %v (ID: %s)", indent, termfmt.Bold().V(body.Title), id)

	children, err := f.API.ListChildPages(ctx, job.pageID)
	if err != nil {
		f.logf("Couldn't list children of page %s, keeping the page itself: %v", job.pageID, err)
		return record, nil
	}

	return record, children
}

func (f *TreeFetcher) logf(format string, args ...any) {
	if f.Logger == nil {
		return
	}
	f.loggerMu.Lock()
	defer f.loggerMu.Unlock()
	f.Logger.Printf(format, args...)
}
