package share

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"drivebridge/internal/drive"
	"drivebridge/internal/models"
)

// fakeProvider serves listing pages from an in-memory directory tree keyed
// by directory id. Responses honor limit and offset; pageCap (when > 0)
// bounds how many entries one response may carry regardless of limit.
type fakeProvider struct {
	mu      sync.Mutex
	tree    map[string][]drive.RawEntry
	pageCap int
	fail    map[string]error // dir id -> transport error to return
	reject  map[string]bool  // dir id -> respond state=false
	calls   []providerCall
}

type providerCall struct {
	endpoint string
	cid      string
	offset   int
	limit    int
}

func (f *fakeProvider) serve(endpoint string) CallFunc {
	return func(ctx context.Context, p drive.ListPayload) (*drive.ListResponse, error) {
		f.mu.Lock()
		f.calls = append(f.calls, providerCall{endpoint: endpoint, cid: p.CID, offset: p.Offset, limit: p.Limit})
		entries := f.tree[p.CID]
		failErr := f.fail[p.CID]
		rejected := f.reject[p.CID]
		f.mu.Unlock()

		if failErr != nil {
			return nil, failErr
		}
		if rejected {
			resp := &drive.ListResponse{State: false, Message: "share expired", Errno: 4100012}
			return resp, nil
		}

		start := p.Offset
		if start > len(entries) {
			start = len(entries)
		}
		end := start + p.Limit
		if f.pageCap > 0 && end > start+f.pageCap {
			end = start + f.pageCap
		}
		if end > len(entries) {
			end = len(entries)
		}

		resp := &drive.ListResponse{State: true}
		resp.Data.Count = len(entries)
		resp.Data.List = entries[start:end]
		return resp, nil
	}
}

func (f *fakeProvider) callLog() []providerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]providerCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func dirEntry(id, name string) drive.RawEntry {
	return drive.RawEntry{CategoryID: id, Name: name}
}

func fileEntry(id, name string, size int64) drive.RawEntry {
	return drive.RawEntry{FileID: id, Name: name, PickCode: "pc-" + id}
}

// newTestCrawler wires a crawler over the fake provider with three zero
// cooldown endpoints, so rotation is observable without slowing tests down.
func newTestCrawler(f *fakeProvider, opts Options) *Crawler {
	m1 := NewEndpoint("m1", "http://m1.test", 0, f.serve("m1"))
	m2 := NewEndpoint("m2", "http://m2.test", 0, f.serve("m2"))
	fb := NewEndpoint("fb", "http://fb.test", 0, f.serve("fb"))
	return NewCrawler(NewPool(m1, m2, fb), opts)
}

func collect(t *testing.T, s *Stream) []models.FileRecord {
	t.Helper()
	var out []models.FileRecord
	for rec := range s.Records() {
		out = append(out, rec)
	}
	return out
}

func TestCrawlEnumeratesTree(t *testing.T) {
	f := &fakeProvider{tree: map[string][]drive.RawEntry{
		"root": {
			fileEntry("f1", "f1.txt", 10),
			fileEntry("f2", "f2.mkv", 20),
			dirEntry("d1", "sub"),
		},
		"d1": {
			fileEntry("f3", "f3.srt", 5),
		},
	}}
	c := newTestCrawler(f, Options{})

	loc := models.ShareLocator{ShareCode: "sw3abc1xyz9", ReceiveCode: "a1b2", RootID: "root"}
	s := c.Crawl(context.Background(), loc)
	records := collect(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("unexpected crawl error: %v", err)
	}

	paths := make([]string, 0, len(records))
	for _, rec := range records {
		paths = append(paths, rec.Path)
		if rec.ShareCode != "sw3abc1xyz9" || rec.ReceiveCode != "a1b2" {
			t.Fatalf("record missing share context: %+v", rec)
		}
	}
	sort.Strings(paths)
	want := []string{"/f1.txt", "/f2.mkv", "/sub/f3.srt"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(paths), paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("unexpected paths: got %v, want %v", paths, want)
		}
	}
}

func TestCrawlNoDuplicates(t *testing.T) {
	tree := map[string][]drive.RawEntry{"root": {}}
	// Wide tree: 10 dirs with 30 files each plus 15 root files.
	for i := 0; i < 15; i++ {
		id := fmt.Sprintf("rf%d", i)
		tree["root"] = append(tree["root"], fileEntry(id, id+".bin", 1))
	}
	for d := 0; d < 10; d++ {
		dirID := fmt.Sprintf("d%d", d)
		tree["root"] = append(tree["root"], dirEntry(dirID, fmt.Sprintf("dir%d", d)))
		for i := 0; i < 30; i++ {
			id := fmt.Sprintf("%s-f%d", dirID, i)
			tree[dirID] = append(tree[dirID], fileEntry(id, id+".bin", 1))
		}
	}
	f := &fakeProvider{tree: tree}
	c := newTestCrawler(f, Options{MaxWorkers: 8})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	records := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected crawl error: %v", err)
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.ID] {
			t.Fatalf("duplicate record %s", rec.ID)
		}
		seen[rec.ID] = true
	}
	if len(records) != 15+10*30 {
		t.Fatalf("expected %d records, got %d", 15+10*30, len(records))
	}
}

func TestCrawlPagination(t *testing.T) {
	const total = 2500
	entries := make([]drive.RawEntry, 0, total)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("f%d", i)
		entries = append(entries, fileEntry(id, id+".bin", 1))
	}
	// The provider caps pages at 1000 entries, so the 2500-entry directory
	// takes pages at offsets 0, 1000 and 2000.
	f := &fakeProvider{tree: map[string][]drive.RawEntry{"root": entries}, pageCap: 1000}
	c := newTestCrawler(f, Options{})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	records := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected crawl error: %v", err)
	}
	if len(records) != total {
		t.Fatalf("expected %d records, got %d", total, len(records))
	}

	var offsets []int
	for _, call := range f.callLog() {
		offsets = append(offsets, call.offset)
		if call.offset > 0 {
			if call.endpoint != "fb" {
				t.Fatalf("continuation page served by %s, want fb", call.endpoint)
			}
			if call.limit != continuationLimit {
				t.Fatalf("continuation limit = %d, want %d", call.limit, continuationLimit)
			}
		} else if call.limit != firstPageLimit {
			t.Fatalf("first page limit = %d, want %d", call.limit, firstPageLimit)
		}
	}
	sort.Ints(offsets)
	want := []int{0, 1000, 2000}
	if len(offsets) != len(want) {
		t.Fatalf("unexpected page offsets: %v", offsets)
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Fatalf("unexpected page offsets: got %v, want %v", offsets, want)
		}
	}
}

func TestCrawlNameEscaping(t *testing.T) {
	f := &fakeProvider{tree: map[string][]drive.RawEntry{
		"root": {fileEntry("f1", "a/b", 1)},
	}}
	c := newTestCrawler(f, Options{})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	records := collect(t, s)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Name != "a|b" || records[0].Path != "/a|b" {
		t.Fatalf("unexpected name/path: %q %q", records[0].Name, records[0].Path)
	}
}

func TestCrawlEmptyShare(t *testing.T) {
	f := &fakeProvider{tree: map[string][]drive.RawEntry{"root": {}}}
	c := newTestCrawler(f, Options{})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	records := collect(t, s)
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected crawl error: %v", err)
	}
}

func TestCrawlFailFastProviderError(t *testing.T) {
	f := &fakeProvider{
		tree: map[string][]drive.RawEntry{
			"root": {dirEntry("d1", "sub"), fileEntry("f1", "f1.txt", 1)},
			"d1":   {fileEntry("f2", "f2.txt", 1)},
		},
		reject: map[string]bool{"d1": true},
	}
	c := newTestCrawler(f, Options{})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	collect(t, s)

	err := s.Err()
	if err == nil {
		t.Fatal("expected crawl error")
	}
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected *CallError, got %T: %v", err, err)
	}
	if callErr.Payload.CID != "d1" {
		t.Fatalf("unexpected failing payload: %+v", callErr.Payload)
	}
	var provErr *drive.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected wrapped *drive.ProviderError, got %v", err)
	}
	if provErr.Errno != 4100012 {
		t.Fatalf("unexpected errno: %d", provErr.Errno)
	}
}

func TestCrawlFailFastTransportError(t *testing.T) {
	f := &fakeProvider{
		tree: map[string][]drive.RawEntry{
			"root": {dirEntry("d1", "sub")},
		},
		fail: map[string]error{"d1": &drive.TransportError{URL: "http://m1.test/share/snap", StatusCode: 503, Err: errors.New("unexpected status 503")}},
	}
	c := newTestCrawler(f, Options{})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	collect(t, s)

	var transportErr *drive.TransportError
	if !errors.As(s.Err(), &transportErr) {
		t.Fatalf("expected wrapped *drive.TransportError, got %v", s.Err())
	}
}

func TestCrawlEarlyClose(t *testing.T) {
	tree := map[string][]drive.RawEntry{"root": {}}
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("f%d", i)
		tree["root"] = append(tree["root"], fileEntry(id, id+".bin", 1))
	}
	f := &fakeProvider{tree: tree}
	c := newTestCrawler(f, Options{MaxWorkers: 2})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	if _, ok := <-s.Records(); !ok {
		t.Fatal("expected at least one record before close")
	}
	s.Close()

	// The channel must close promptly once the crawl is abandoned.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-s.Records():
			if !ok {
				if err := s.Err(); err != nil {
					t.Fatalf("abandoned stream reported error: %v", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("records channel did not close after Close")
		}
	}
}

func TestCrawlParentContextCancel(t *testing.T) {
	f := &fakeProvider{tree: map[string][]drive.RawEntry{"root": {}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestCrawler(f, Options{})

	s := c.Crawl(ctx, models.ShareLocator{ShareCode: "sc", RootID: "root"})
	collect(t, s)

	if !errors.Is(s.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", s.Err())
	}
}

func TestCrawlReportsDirectoriesOnce(t *testing.T) {
	const total = 2500
	paged := make([]drive.RawEntry, 0, total)
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("f%d", i)
		paged = append(paged, fileEntry(id, id+".bin", 1))
	}
	f := &fakeProvider{
		tree: map[string][]drive.RawEntry{
			"root": {dirEntry("d1", "sub"), dirEntry("d2", "season 1")},
			"d1":   paged,
			"d2":   {fileEntry("g1", "e01.mkv", 1)},
		},
		pageCap: 1000,
	}
	discovered := make(map[string][]string)
	m1 := NewEndpoint("m1", "http://m1.test", 0, f.serve("m1"))
	m2 := NewEndpoint("m2", "http://m2.test", 0, f.serve("m2"))
	fb := NewEndpoint("fb", "http://fb.test", 0, f.serve("fb"))
	c := NewCrawler(NewPool(m1, m2, fb), Options{
		OnDirectory: func(dirID, path string) {
			discovered[dirID] = append(discovered[dirID], path)
		},
	})

	s := c.Crawl(context.Background(), models.ShareLocator{ShareCode: "sc", RootID: "root"})
	records := collect(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected crawl error: %v", err)
	}
	if len(records) != total+1 {
		t.Fatalf("expected %d records, got %d", total+1, len(records))
	}

	// One report per directory, even when its listing spans several pages.
	if len(discovered) != 2 {
		t.Fatalf("expected 2 directories, got %v", discovered)
	}
	if got := discovered["d1"]; len(got) != 1 || got[0] != "/sub" {
		t.Fatalf("unexpected reports for d1: %v", got)
	}
	if got := discovered["d2"]; len(got) != 1 || got[0] != "/season 1" {
		t.Fatalf("unexpected reports for d2: %v", got)
	}
}

func TestCrawlDefaultOptions(t *testing.T) {
	c := NewCrawler(nil, Options{})
	if c.order != DefaultOrder {
		t.Fatalf("order = %q, want %q", c.order, DefaultOrder)
	}
	if c.maxWorkers != DefaultMaxWorkers {
		t.Fatalf("maxWorkers = %d, want %d", c.maxWorkers, DefaultMaxWorkers)
	}

	c = NewCrawler(nil, Options{Order: "file_name", Asc: 1, MaxWorkers: 4})
	if c.order != "file_name" || c.asc != 1 || c.maxWorkers != 4 {
		t.Fatalf("unexpected options: %+v", c)
	}
}
