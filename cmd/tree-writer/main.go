package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/segmentio/kafka-go"

	"drivebridge/common"
	"drivebridge/internal/graph"
	"drivebridge/internal/models"
	"drivebridge/internal/pipeline"
)

// treeWriter projects FileRecords into a directory-containment graph:
// (:Dir)-[:CONTAINS]->(:Dir|:File), one connected tree per share code.
type treeWriter struct {
	driver graph.DriverSessioner
}

var (
	// Counters for tree-writer throughput and failures exposed on /metrics.
	treeWriterRecordsReceived uint64
	treeWriterRecordsFailed   uint64
	treeWriterRecordsWritten  uint64
)

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) graph.SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	recordsTopic := common.GetEnv("KAFKA_RECORDS_TOPIC", "drivebridge.index.records")
	recordsGroup := common.GetEnv("KAFKA_RECORDS_GROUP", "drivebridge-tree-writer")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	neo4jURI := common.GetEnv("NEO4J_URI", "neo4j://localhost:7687")
	neo4jUser := common.GetEnv("NEO4J_USER", "neo4j")
	neo4jPassword := common.GetEnv("NEO4J_PASSWORD", "neo4j")

	driver, err := neo4j.NewDriverWithContext(neo4jURI, neo4j.BasicAuth(neo4jUser, neo4jPassword, ""))
	if err != nil {
		log.Fatalf("neo4j driver error: %v", err)
	}
	defer func() {
		if err := driver.Close(context.Background()); err != nil {
			log.Printf("neo4j close error: %v", err)
		}
	}()

	writer := &treeWriter{driver: &neo4jDriver{driver: driver}}

	recordsReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   recordsTopic,
		GroupID: recordsGroup,
	})
	defer func() {
		if err := recordsReader.Close(); err != nil {
			log.Printf("records reader close error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	consumeRecords(ctx, recordsReader, writer)
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", handleMetrics)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("metrics shutdown error: %v", err)
		}
	}()

	go func() {
		log.Printf("metrics listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	body := fmt.Sprintf(
		"drivebridge_tree_writer_up 1\n"+
			"drivebridge_tree_writer_records_received_total %d\n"+
			"drivebridge_tree_writer_records_failed_total %d\n"+
			"drivebridge_tree_writer_records_written_total %d\n",
		atomic.LoadUint64(&treeWriterRecordsReceived),
		atomic.LoadUint64(&treeWriterRecordsFailed),
		atomic.LoadUint64(&treeWriterRecordsWritten),
	)
	_, _ = w.Write([]byte(body))
}

func consumeRecords(ctx context.Context, reader pipeline.MessageReader, writer *treeWriter) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("records fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		atomic.AddUint64(&treeWriterRecordsReceived, 1)
		if err := writer.writeRecord(ctx, msg.Value); err != nil {
			atomic.AddUint64(&treeWriterRecordsFailed, 1)
			log.Printf("records write error: %v", err)
			continue
		}
		atomic.AddUint64(&treeWriterRecordsWritten, 1)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Printf("records commit error: %v", err)
		}
	}
}

func (w *treeWriter) writeRecord(ctx context.Context, payload []byte) error {
	var rec models.FileRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return err
	}
	if rec.Path == "" || rec.ShareCode == "" {
		return nil
	}

	query, params := buildFileQuery(rec)
	return graph.Write(ctx, w.driver, query, params)
}

// buildFileQuery merges the file node, its parent directory, and the whole
// directory chain from the share root down to the parent.
func buildFileQuery(rec models.FileRecord) (string, map[string]any) {
	parent := parentPath(rec.Path)

	query := "MERGE (f:File {share_code: $share_code, path: $path}) " +
		"SET f.file_id = $file_id, " +
		"f.name = $name, " +
		"f.size = $size, " +
		"f.pick_code = $pick_code, " +
		"f.modify_time = $modify_time " +
		"MERGE (parent:Dir {share_code: $share_code, path: $parent}) " +
		"MERGE (parent)-[:CONTAINS]->(f) " +
		"WITH f " +
		"UNWIND $links AS link " +
		"MERGE (p:Dir {share_code: $share_code, path: link.parent}) " +
		"MERGE (c:Dir {share_code: $share_code, path: link.child}) " +
		"MERGE (p)-[:CONTAINS]->(c)"

	params := map[string]any{
		"share_code":  rec.ShareCode,
		"path":        rec.Path,
		"parent":      parent,
		"file_id":     rec.ID,
		"name":        rec.Name,
		"size":        rec.Size,
		"pick_code":   rec.PickCode,
		"modify_time": rec.ModifyTime,
		"links":       dirLinks(parent),
	}
	return query, params
}

// parentPath returns the directory holding path; "/" for top-level entries.
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// dirLinks returns the parent→child pairs of the directory chain from the
// share root down to dir. Empty for top-level files.
func dirLinks(dir string) []map[string]any {
	if dir == "/" {
		return []map[string]any{}
	}
	segments := strings.Split(strings.TrimPrefix(dir, "/"), "/")
	links := make([]map[string]any, 0, len(segments))
	parent := "/"
	child := ""
	for _, seg := range segments {
		child = child + "/" + seg
		links = append(links, map[string]any{"parent": parent, "child": child})
		parent = child
	}
	return links
}
