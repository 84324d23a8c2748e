package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/segmentio/kafka-go"

	"drivebridge/internal/models"
	"drivebridge/mocks"
)

func newWriterWithWriteCapture(t *testing.T) (*treeWriter, *bool) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	driver := mocks.NewMockDriverSessioner(ctrl)
	session := mocks.NewMockSessionRunner(ctrl)
	called := false

	driver.EXPECT().NewSession(gomock.Any(), gomock.Any()).Return(session).AnyTimes()
	session.EXPECT().Close(gomock.Any()).Return(nil).AnyTimes()
	session.EXPECT().ExecuteWrite(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, work neo4j.ManagedTransactionWork, _ ...func(*neo4j.TransactionConfig)) (any, error) {
			called = true
			return nil, nil
		},
	).AnyTimes()

	return &treeWriter{driver: driver}, &called
}

func resetTreeWriterMetrics() {
	atomic.StoreUint64(&treeWriterRecordsReceived, 0)
	atomic.StoreUint64(&treeWriterRecordsFailed, 0)
	atomic.StoreUint64(&treeWriterRecordsWritten, 0)
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/movie.mkv", "/"},
		{"/season 1/episode 1.mkv", "/season 1"},
		{"/a/b/c.srt", "/a/b"},
	}
	for _, tt := range tests {
		if got := parentPath(tt.path); got != tt.want {
			t.Errorf("parentPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestDirLinks(t *testing.T) {
	if got := dirLinks("/"); len(got) != 0 {
		t.Fatalf("expected no links for root, got %+v", got)
	}

	got := dirLinks("/a/b")
	want := []map[string]any{
		{"parent": "/", "child": "/a"},
		{"parent": "/a", "child": "/a/b"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected links: got %+v, want %+v", got, want)
	}
}

func TestBuildFileQuery(t *testing.T) {
	rec := models.FileRecord{
		ID:        "f1",
		Name:      "episode 1.mkv",
		Path:      "/season 1/episode 1.mkv",
		Size:      1 << 30,
		PickCode:  "pc1",
		ShareCode: "sw3abc1xyz9",
	}
	query, params := buildFileQuery(rec)

	if query == "" || !strings.Contains(query, "MERGE (f:File") {
		t.Fatalf("unexpected query: %s", query)
	}
	if !strings.Contains(query, "CONTAINS") {
		t.Fatalf("expected containment edges in query: %s", query)
	}
	if params["share_code"] != "sw3abc1xyz9" || params["path"] != "/season 1/episode 1.mkv" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params["parent"] != "/season 1" {
		t.Fatalf("unexpected parent: %v", params["parent"])
	}
	links, ok := params["links"].([]map[string]any)
	if !ok || len(links) != 1 {
		t.Fatalf("unexpected links: %+v", params["links"])
	}
	if links[0]["parent"] != "/" || links[0]["child"] != "/season 1" {
		t.Fatalf("unexpected link: %+v", links[0])
	}
}

func TestBuildFileQueryTopLevel(t *testing.T) {
	rec := models.FileRecord{
		ID:        "f1",
		Name:      "movie.mkv",
		Path:      "/movie.mkv",
		ShareCode: "sw3abc1xyz9",
	}
	_, params := buildFileQuery(rec)

	if params["parent"] != "/" {
		t.Fatalf("unexpected parent: %v", params["parent"])
	}
	links, ok := params["links"].([]map[string]any)
	if !ok || len(links) != 0 {
		t.Fatalf("expected no links for top-level file, got %+v", params["links"])
	}
}

func TestWriteRecord(t *testing.T) {
	writer, called := newWriterWithWriteCapture(t)
	payload, err := json.Marshal(models.FileRecord{
		ID:        "f1",
		Name:      "movie.mkv",
		Path:      "/movie.mkv",
		ShareCode: "sw3abc1xyz9",
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	if err := writer.writeRecord(context.Background(), payload); err != nil {
		t.Fatalf("write record error: %v", err)
	}
	if !*called {
		t.Fatal("expected execute write call")
	}
}

func TestWriteRecordSkipsEmptyPath(t *testing.T) {
	writer, called := newWriterWithWriteCapture(t)
	payload, err := json.Marshal(models.FileRecord{ID: "f1", ShareCode: "sw3abc1xyz9"})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	if err := writer.writeRecord(context.Background(), payload); err != nil {
		t.Fatalf("write record error: %v", err)
	}
	if *called {
		t.Fatal("expected no write call")
	}
}

func TestWriteRecordBadPayload(t *testing.T) {
	writer, called := newWriterWithWriteCapture(t)

	if err := writer.writeRecord(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if *called {
		t.Fatal("expected no write call")
	}
}

func TestHandleMetricsMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rec := httptest.NewRecorder()

	handleMetrics(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestHandleMetricsOK(t *testing.T) {
	resetTreeWriterMetrics()
	atomic.StoreUint64(&treeWriterRecordsReceived, 3)
	atomic.StoreUint64(&treeWriterRecordsFailed, 1)
	atomic.StoreUint64(&treeWriterRecordsWritten, 2)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	body := rec.Body.String()
	for _, line := range []string{
		"drivebridge_tree_writer_up 1",
		"drivebridge_tree_writer_records_received_total 3",
		"drivebridge_tree_writer_records_failed_total 1",
		"drivebridge_tree_writer_records_written_total 2",
	} {
		if !strings.Contains(body, line) {
			t.Fatalf("expected metrics to contain %q", line)
		}
	}
}

func TestConsumeRecordsCommitsOnSuccess(t *testing.T) {
	resetTreeWriterMetrics()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	reader := mocks.NewMockMessageReader(ctrl)
	writer, called := newWriterWithWriteCapture(t)

	payload, err := json.Marshal(models.FileRecord{
		ID:        "f1",
		Name:      "movie.mkv",
		Path:      "/movie.mkv",
		ShareCode: "sw3abc1xyz9",
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		reader.EXPECT().FetchMessage(gomock.Any()).Return(kafka.Message{Value: payload}, nil),
		reader.EXPECT().CommitMessages(gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, ...kafka.Message) error {
				cancel()
				return nil
			},
		),
		reader.EXPECT().FetchMessage(gomock.Any()).Return(kafka.Message{}, context.Canceled),
	)

	consumeRecords(ctx, reader, writer)

	if !*called {
		t.Fatal("expected write to be called")
	}
	if got := atomic.LoadUint64(&treeWriterRecordsWritten); got != 1 {
		t.Fatalf("expected records written to be 1, got %d", got)
	}
}
