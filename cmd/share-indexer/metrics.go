package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// Counters for indexer activity exposed on /metrics.
	// received: jobs pulled from Kafka; skipped: deduped; success/failed:
	// crawl outcome; records: FileRecords published to the records topic.
	indexerJobsReceived     uint64
	indexerJobsSkipped      uint64
	indexerJobsSuccess      uint64
	indexerJobsFailed       uint64
	indexerRecordsPublished uint64

	indexerInFlight int64 // gauge: crawls currently running (semaphore slots in use)

	// Histogram buckets for whole-crawl duration (seconds).
	// Buckets define upper bounds; the +Inf bucket is implicit.
	crawlLatencyBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}
	crawlLatencyCounts  = make([]uint64, len(crawlLatencyBuckets)+1)
	crawlLatencySumNs   uint64
	crawlLatencyCount   uint64

	// Commit coordinator observability.
	indexerCommitErrorsTotal  uint64 // counter: Kafka CommitMessages failures
	indexerCommitPendingTotal int64  // gauge: messages buffered awaiting commit
	commitLatencyBuckets      = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	commitLatencyCounts       = make([]uint64, len(commitLatencyBuckets)+1)
	commitLatencySumNs        uint64
	commitLatencyCount        uint64
)

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
		"drivebridge_indexer_up 1\n"+
			"drivebridge_indexer_jobs_received_total %d\n"+
			"drivebridge_indexer_jobs_skipped_total %d\n"+
			"drivebridge_indexer_jobs_success_total %d\n"+
			"drivebridge_indexer_jobs_failed_total %d\n"+
			"drivebridge_indexer_records_published_total %d\n"+
			"drivebridge_indexer_commit_errors_total %d\n"+
			"drivebridge_indexer_commit_pending_total %d\n"+
			"drivebridge_indexer_in_flight %d\n",
		atomic.LoadUint64(&indexerJobsReceived),
		atomic.LoadUint64(&indexerJobsSkipped),
		atomic.LoadUint64(&indexerJobsSuccess),
		atomic.LoadUint64(&indexerJobsFailed),
		atomic.LoadUint64(&indexerRecordsPublished),
		atomic.LoadUint64(&indexerCommitErrorsTotal),
		atomic.LoadInt64(&indexerCommitPendingTotal),
		atomic.LoadInt64(&indexerInFlight),
	)

	var crawlHist strings.Builder
	crawlHist.WriteString("# HELP drivebridge_indexer_crawl_latency_seconds Whole-crawl duration per index job.\n")
	crawlHist.WriteString("# TYPE drivebridge_indexer_crawl_latency_seconds histogram\n")
	appendHistogram(&crawlHist, "drivebridge_indexer_crawl_latency_seconds", crawlLatencyBuckets,
		crawlLatencyCounts, &crawlLatencySumNs, &crawlLatencyCount, "%.0f")

	var commitHist strings.Builder
	commitHist.WriteString("# HELP drivebridge_indexer_commit_latency_seconds Kafka commit latency.\n")
	commitHist.WriteString("# TYPE drivebridge_indexer_commit_latency_seconds histogram\n")
	appendHistogram(&commitHist, "drivebridge_indexer_commit_latency_seconds", commitLatencyBuckets,
		commitLatencyCounts, &commitLatencySumNs, &commitLatencyCount, "%.3f")

	_, _ = w.Write([]byte(body + crawlHist.String() + commitHist.String()))
}

// appendHistogram writes a Prometheus histogram (buckets, +Inf, sum, count)
// to sb. counts must have len(buckets)+1 elements; leFmt formats bucket
// bounds (e.g. "%.3f").
func appendHistogram(sb *strings.Builder, name string, buckets []float64, counts []uint64, sumNs, count *uint64, leFmt string) {
	var cumulative uint64
	for i, bound := range buckets {
		cumulative += atomic.LoadUint64(&counts[i])
		sb.WriteString(fmt.Sprintf("%s_bucket{le=\"%s\"} %d\n", name, fmt.Sprintf(leFmt, bound), cumulative))
	}
	cumulative += atomic.LoadUint64(&counts[len(buckets)])
	sb.WriteString(fmt.Sprintf("%s_bucket{le=\"+Inf\"} %d\n", name, cumulative))
	sumSeconds := float64(atomic.LoadUint64(sumNs)) / float64(time.Second)
	sb.WriteString(fmt.Sprintf("%s_sum %.6f\n", name, sumSeconds))
	sb.WriteString(fmt.Sprintf("%s_count %d\n", name, atomic.LoadUint64(count)))
}

func observeCrawlLatency(duration time.Duration) {
	observeLatency(duration, crawlLatencyBuckets, crawlLatencyCounts, &crawlLatencySumNs, &crawlLatencyCount)
}

func observeCommitLatency(duration time.Duration) {
	observeLatency(duration, commitLatencyBuckets, commitLatencyCounts, &commitLatencySumNs, &commitLatencyCount)
}

// observeLatency updates a manual Prometheus histogram.
func observeLatency(duration time.Duration, buckets []float64, counts []uint64, sumNs, count *uint64) {
	if duration <= 0 {
		return
	}
	seconds := duration.Seconds()
	bucketIndex := len(buckets)
	for i, bound := range buckets {
		if seconds <= bound {
			bucketIndex = i
			break
		}
	}
	atomic.AddUint64(&counts[bucketIndex], 1)
	atomic.AddUint64(sumNs, uint64(duration.Nanoseconds()))
	atomic.AddUint64(count, 1)
}
