package share

import (
	"context"
	"sync"

	"drivebridge/internal/drive"
	"drivebridge/internal/models"
)

const (
	// DefaultMaxWorkers bounds crawl parallelism when the caller does not.
	DefaultMaxWorkers = 25
	// DefaultOrder is the per-page sort key passed to every listing call.
	DefaultOrder = "user_ptime"

	// Small first fetch for fast initial results, large continuation
	// fetches to minimize round trips.
	firstPageLimit    = 1000
	continuationLimit = 7000
)

// Options configure a crawl. Zero values select the defaults; Order and Asc
// are passed through verbatim to every page request.
//
// OnDirectory, when set, is invoked once per directory discovered during the
// crawl with its id and share-relative path. It runs on the orchestrator
// goroutine, so it must be cheap; a slow observer slows the whole crawl.
type Options struct {
	Order       string
	Asc         int
	MaxWorkers  int
	OnDirectory func(dirID, path string)
}

// Crawler enumerates an entire shared directory tree through an endpoint
// pool, fanning page jobs out across a bounded worker pool.
type Crawler struct {
	pool       *Pool
	order      string
	asc        int
	maxWorkers int
	onDir      func(dirID, path string)
}

// NewCrawler builds a crawler over the given endpoint pool.
func NewCrawler(pool *Pool, opts Options) *Crawler {
	order := opts.Order
	if order == "" {
		order = DefaultOrder
	}
	workers := opts.MaxWorkers
	if workers < 1 {
		workers = DefaultMaxWorkers
	}
	return &Crawler{pool: pool, order: order, asc: opts.Asc, maxWorkers: workers, onDir: opts.OnDirectory}
}

// Stream is a lazy, single-pass, forward-only sequence of FileRecords.
// Records() closes when the crawl ends; Err() is valid afterwards and
// reports the first failure, if any. Close cancels outstanding work and
// releases the worker pool; it is safe to call at any point.
type Stream struct {
	records chan models.FileRecord
	cancel  context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// Records returns the record channel.
func (s *Stream) Records() <-chan models.FileRecord {
	return s.records
}

// Err reports the first error observed by the crawl. Only valid once
// Records() is closed.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the crawl: outstanding work is cancelled and the worker
// pool released. Records delivered before Close remain valid.
func (s *Stream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// fail records the first crawl error. Errors after a consumer Close are
// discarded, so abandoning a stream never reports a spurious cancellation.
func (s *Stream) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.err != nil {
		return
	}
	s.err = err
}

// execution pairs a task with the endpoint resolved for it at submit time.
type execution struct {
	task models.DirectoryTask
	ep   *Endpoint
}

// pageResult is one completed page job.
type pageResult struct {
	records []models.FileRecord
	tasks   []models.DirectoryTask
	err     error
}

// Crawl starts enumerating the share and returns its record stream.
// The crawl stops at the first failed page job: remaining work is cancelled,
// in-flight calls run to completion with their results discarded, and the
// error surfaces on Err(). No call is ever retried.
func (c *Crawler) Crawl(ctx context.Context, loc models.ShareLocator) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{records: make(chan models.FileRecord), cancel: cancel}
	go c.run(ctx, loc, s)
	return s
}

// run is the orchestrator control loop. It owns the backlog and the
// outstanding-task count and only ever blocks on task submission, the next
// completion, or the consumer; workers never touch shared crawl state.
func (c *Crawler) run(ctx context.Context, loc models.ShareLocator, s *Stream) {
	defer close(s.records)

	tasks := make(chan execution)
	results := make(chan pageResult)
	var wg sync.WaitGroup
	for i := 0; i < c.maxWorkers; i++ {
		wg.Add(1)
		go c.worker(ctx, loc, tasks, results, &wg)
	}

	root := models.DirectoryTask{DirID: loc.RootID}
	backlog := []execution{{task: root, ep: c.pool.Pick(0)}}
	pending := 0
	var crawlErr error

loop:
	for pending > 0 || len(backlog) > 0 {
		var submit chan execution
		var next execution
		if len(backlog) > 0 {
			submit = tasks
			next = backlog[0]
		}
		select {
		case <-ctx.Done():
			crawlErr = ctx.Err()
			break loop
		case submit <- next:
			backlog = backlog[1:]
			pending++
		case res := <-results:
			pending--
			if res.err != nil {
				crawlErr = res.err
				break loop
			}
			for _, rec := range res.records {
				select {
				case s.records <- rec:
				case <-ctx.Done():
					crawlErr = ctx.Err()
					break loop
				}
			}
			for _, t := range res.tasks {
				// Offset 0 means a newly discovered directory; continuation
				// tasks revisit one already reported.
				if t.Offset == 0 && c.onDir != nil {
					c.onDir(t.DirID, t.PathPrefix)
				}
				backlog = append(backlog, execution{task: t, ep: c.pool.Pick(t.Offset)})
			}
		}
	}

	s.fail(crawlErr)
	s.cancel()
	close(tasks)
	// Workers unblock on the cancelled context; stragglers finish their
	// network call and discard the result. Not waited on.
	go wg.Wait()
}

func (c *Crawler) worker(ctx context.Context, loc models.ShareLocator, tasks <-chan execution, results chan<- pageResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ex, ok := <-tasks:
			if !ok {
				return
			}
			res := c.runPage(ctx, loc, ex)
			select {
			case results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runPage executes exactly one paginated listing call and classifies the
// response into leaf records and successor tasks. A continuation task for
// the same directory is derived only while the first page's reported count
// exceeds the items fetched so far, which guarantees monotonic progress and
// no duplicate page fetches.
func (c *Crawler) runPage(ctx context.Context, loc models.ShareLocator, ex execution) pageResult {
	limit := firstPageLimit
	if ex.task.Offset != 0 {
		limit = continuationLimit
	}
	payload := drive.ListPayload{
		ShareCode:   loc.ShareCode,
		ReceiveCode: loc.ReceiveCode,
		CID:         ex.task.DirID,
		Limit:       limit,
		Offset:      ex.task.Offset,
		Order:       c.order,
		Asc:         c.asc,
	}

	resp, err := ex.ep.Call(ctx, payload)
	if err == nil {
		err = drive.CheckResponse(resp)
	}
	if err != nil {
		return pageResult{err: &CallError{Endpoint: ex.ep.Name, Base: ex.ep.Base, Payload: payload, Err: err}}
	}

	var records []models.FileRecord
	var successors []models.DirectoryTask
	for _, raw := range resp.Data.List {
		entry := drive.Normalize(raw)
		path := ex.task.PathPrefix + "/" + entry.Name
		if entry.IsDir {
			successors = append(successors, models.DirectoryTask{DirID: entry.ID, PathPrefix: path})
			continue
		}
		records = append(records, models.FileRecord{
			ID:          entry.ID,
			Name:        entry.Name,
			Path:        path,
			Size:        entry.Size,
			PickCode:    entry.PickCode,
			CreateTime:  entry.CreateTime,
			ModifyTime:  entry.ModifyTime,
			ShareCode:   loc.ShareCode,
			ReceiveCode: loc.ReceiveCode,
		})
	}

	fetched := len(resp.Data.List)
	if next := ex.task.Offset + fetched; next < resp.Data.Count && fetched > 0 {
		successors = append(successors, models.DirectoryTask{
			DirID:      ex.task.DirID,
			PathPrefix: ex.task.PathPrefix,
			Offset:     next,
		})
	}
	return pageResult{records: records, tasks: successors}
}
