package main

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"drivebridge/common"
	"drivebridge/internal/cache"
	"drivebridge/internal/drive"
	"drivebridge/internal/models"
	"drivebridge/internal/pipeline"
	"drivebridge/internal/share"
)

type messageReader = pipeline.MessageReader
type recordWriter = pipeline.MessageWriter

// crawlFunc starts a share crawl; injected so tests can run against stub
// endpoints.
type crawlFunc func(ctx context.Context, loc models.ShareLocator) *share.Stream

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Close() error
}

type redisStore struct {
	client *redis.Client
}

func newRedisStore(addr string) *redisStore {
	return &redisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (s *redisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// pickCodeSetter is the slice of cache.PickCodeCache the indexer needs.
type pickCodeSetter interface {
	Set(ctx context.Context, shareCode, path, pickCode string) error
}

type indexer struct {
	reader         messageReader
	store          dedupeStore
	recordsWriter  recordWriter
	dlqWriter      recordWriter
	status         cache.StatusStore
	pickCodes      pickCodeSetter
	crawl          crawlFunc
	ttl            time.Duration
	concurrentJobs int
	jobTimeout     time.Duration // per-job deadline so one stuck crawl can't hold a slot forever
	publishTimeout time.Duration // max time for the Kafka publish of one record batch
	commitCh       chan<- kafka.Message
	sem            chan struct{}
	wg             *sync.WaitGroup
}

// Listing HTTP timeouts so a single hung mirror request doesn't hold a crawl
// worker indefinitely. Total covers connect + headers + body.
const (
	listingConnectTimeout  = 10 * time.Second
	listingResponseTimeout = 25 * time.Second
	listingTotalTimeout    = 30 * time.Second
)

// buildHTTPClient returns the http.Client used for all listing calls, with
// explicit connect and response-header timeouts so hung requests release
// their crawl worker.
func buildHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: listingConnectTimeout}).DialContext,
			ResponseHeaderTimeout: listingResponseTimeout,
		},
		Timeout: listingTotalTimeout,
	}
}

func newIndexer(
	reader messageReader,
	store dedupeStore,
	recordsWriter recordWriter,
	dlqWriter recordWriter,
	status cache.StatusStore,
	pickCodes pickCodeSetter,
	crawl crawlFunc,
	ttl time.Duration,
	concurrentJobs int,
	jobTimeout time.Duration,
	publishTimeout time.Duration,
	commitCh chan<- kafka.Message,
	wg *sync.WaitGroup,
) *indexer {
	if concurrentJobs < 1 {
		concurrentJobs = 1
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Minute
	}
	if publishTimeout <= 0 {
		publishTimeout = 90 * time.Second
	}
	return &indexer{
		reader:         reader,
		store:          store,
		recordsWriter:  recordsWriter,
		dlqWriter:      dlqWriter,
		status:         status,
		pickCodes:      pickCodes,
		crawl:          crawl,
		ttl:            ttl,
		concurrentJobs: concurrentJobs,
		jobTimeout:     jobTimeout,
		publishTimeout: publishTimeout,
		commitCh:       commitCh,
		sem:            make(chan struct{}, concurrentJobs),
		wg:             wg,
	}
}

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	jobsTopic := common.GetEnv("KAFKA_JOBS_TOPIC", "drivebridge.index.jobs")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "drivebridge-indexer")
	recordsTopic := common.GetEnv("KAFKA_RECORDS_TOPIC", "drivebridge.index.records")
	dlqTopic := common.GetEnv("KAFKA_DLQ_TOPIC", "drivebridge.index.dlq")
	redisAddr := common.GetEnv("REDIS_ADDR", "localhost:6379")
	dedupeTTL := common.ParseDuration(common.GetEnv("DEDUPE_TTL", "24h"), 24*time.Hour)
	statusTTL := common.ParseDuration(common.GetEnv("STATUS_TTL", "24h"), 24*time.Hour)
	pickCodeTTL := common.ParseDuration(common.GetEnv("PICKCODE_TTL", "168h"), 168*time.Hour)
	idPathTTL := common.ParseDuration(common.GetEnv("IDPATH_TTL", "168h"), 168*time.Hour)
	concurrentJobs := common.ParseInt(common.GetEnv("CONCURRENT_JOBS", "2"), 2)
	jobTimeout := common.ParseDuration(common.GetEnv("JOB_TIMEOUT", "30m"), 30*time.Minute)
	publishTimeout := common.ParseDuration(common.GetEnv("PUBLISH_TIMEOUT", "90s"), 90*time.Second)
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9090")

	mirrorHTTP := common.GetEnv("MIRROR_HTTP_BASE", "http://pro.api.115.com")
	mirrorHTTPS := common.GetEnv("MIRROR_HTTPS_BASE", "https://proapi.115.com")
	fallbackBase := common.GetEnv("FALLBACK_BASE", "https://webapi.115.com")
	speedMode := common.ParseInt(common.GetEnv("SPEED_MODE", "3"), 3)
	maxWorkers := common.ParseInt(common.GetEnv("MAX_WORKERS", "25"), 25)
	order := common.GetEnv("ORDER", share.DefaultOrder)
	asc := common.ParseInt(common.GetEnv("ASC", "1"), 1)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   jobsTopic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("failed to close reader: %v", err)
		}
	}()

	dedupe := newRedisStore(redisAddr)
	defer func() {
		if err := dedupe.Close(); err != nil {
			log.Printf("failed to close dedupe store: %v", err)
		}
	}()

	statusStore := cache.NewRedisStatusStore(redisAddr, "index:status:", statusTTL)
	defer func() {
		if err := statusStore.Close(); err != nil {
			log.Printf("failed to close status store: %v", err)
		}
	}()

	pickCodes := cache.NewPickCodeCache(redisAddr, "index:pickcode:", pickCodeTTL)
	defer func() {
		if err := pickCodes.Close(); err != nil {
			log.Printf("failed to close pick code cache: %v", err)
		}
	}()

	idPaths := cache.NewIDPathCache(redisAddr, "index:idpath:", idPathTTL)
	defer func() {
		if err := idPaths.Close(); err != nil {
			log.Printf("failed to close id path cache: %v", err)
		}
	}()

	recordsWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  recordsTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := recordsWriter.Close(); err != nil {
			log.Printf("failed to close records writer: %v", err)
		}
	}()

	dlqWriter := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  dlqTopic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: false,
	}
	defer func() {
		if err := dlqWriter.Close(); err != nil {
			log.Printf("failed to close dlq writer: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr)
	}

	commitCh := make(chan kafka.Message, concurrentJobs*2)
	coordinator := newCommitCoordinator(reader, commitCh)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(ctx, &coordWg)

	listingClient := drive.NewClient(buildHTTPClient())
	m1, m2, fallback := share.SnapEndpoints(listingClient, mirrorHTTP, mirrorHTTPS, fallbackBase, speedMode)
	crawl := func(ctx context.Context, loc models.ShareLocator) *share.Stream {
		// Gates are shared across jobs; rotation starts fresh per crawl.
		pool := share.NewPool(m1, m2, fallback)
		crawler := share.NewCrawler(pool, share.Options{
			Order:      order,
			Asc:        asc,
			MaxWorkers: maxWorkers,
			OnDirectory: func(dirID, path string) {
				// Best effort: a miss here just costs a root-down walk later.
				if err := idPaths.SetPath(ctx, loc.ShareCode, dirID, path); err != nil {
					log.Printf("id path cache error dir=%s path=%s: %v", dirID, path, err)
				}
			},
		})
		return crawler.Crawl(ctx, loc)
	}

	log.Printf("indexer consuming topic=%s group=%s broker=%s concurrent_jobs=%d speed_mode=%d", jobsTopic, groupID, broker, concurrentJobs, speedMode)
	var wg sync.WaitGroup
	ix := newIndexer(
		reader,
		dedupe,
		recordsWriter,
		dlqWriter,
		statusStore,
		pickCodes,
		crawl,
		dedupeTTL,
		concurrentJobs,
		jobTimeout,
		publishTimeout,
		commitCh,
		&wg,
	)
	ix.run(ctx)
	wg.Wait()
	close(commitCh)
	coordWg.Wait()
}

// run consumes messages from the jobs topic, dispatches to crawl goroutines
// (bounded by semaphore), and routes commits through the coordinator.
func (ix *indexer) run(ctx context.Context) {
	for {
		msg, err := ix.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("fetch error: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := ix.dispatchMessage(ctx, msg); err != nil {
			log.Printf("message dispatch error: %v", err)
		}
	}
}

// dispatchMessage parses and dedupes synchronously; spawns a goroutine for
// the crawl+publish phase.
func (ix *indexer) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	var job models.IndexJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		log.Printf("invalid job payload: %v", err)
		ix.commitCh <- msg
		return nil
	}

	atomic.AddUint64(&indexerJobsReceived, 1)
	ok, err := ix.store.SetNX(ctx, dedupeKeyForJob(job), "1", ix.ttl)
	if err != nil {
		return err
	}
	if !ok {
		atomic.AddUint64(&indexerJobsSkipped, 1)
		log.Printf("duplicate job skipped session=%s share=%s", job.SessionID, job.ShareCode)
		ix.commitCh <- msg
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case ix.sem <- struct{}{}:
	}
	atomic.AddInt64(&indexerInFlight, 1)
	ix.wg.Add(1)
	go ix.processJobAsync(ctx, msg, job)
	return nil
}

// processJobAsync crawls the share, streams records to Kafka as they arrive,
// and signals the commit coordinator when done. A per-job timeout bounds the
// whole crawl; the commit is deferred so the partition advances even on
// panic or timeout.
func (ix *indexer) processJobAsync(ctx context.Context, msg kafka.Message, job models.IndexJob) {
	defer func() {
		atomic.AddInt64(&indexerInFlight, -1)
		<-ix.sem
		// Enqueue the commit before Done so shutdown's wg.Wait implies every
		// commit is already on the channel when it gets closed.
		ix.commitCh <- msg
		ix.wg.Done()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, ix.jobTimeout)
	defer cancel()

	log.Printf("received job session=%s share=%s root=%s partition=%d offset=%d", job.SessionID, job.ShareCode, job.RootID, msg.Partition, msg.Offset)
	ix.setStatus(jobCtx, job, "running")

	start := time.Now()
	err := ix.indexShare(jobCtx, job)
	observeCrawlLatency(time.Since(start))

	if err != nil {
		atomic.AddUint64(&indexerJobsFailed, 1)
		log.Printf("index error session=%s: %v", job.SessionID, err)
		ix.setStatus(jobCtx, job, "failed")
		if dlqErr := ix.publishDLQ(jobCtx, job, err); dlqErr != nil {
			log.Printf("dlq publish error: %v", dlqErr)
		}
		return
	}
	atomic.AddUint64(&indexerJobsSuccess, 1)
	ix.setStatus(jobCtx, job, "completed")
	log.Printf("index done session=%s share=%s elapsed=%s", job.SessionID, job.ShareCode, time.Since(start))
}

// indexShare runs the crawl and publishes every record as it is yielded.
// The first publish or crawl failure aborts the stream; records already
// published remain a valid prefix of the tree.
func (ix *indexer) indexShare(ctx context.Context, job models.IndexJob) error {
	loc := models.ShareLocator{
		ShareCode:   job.ShareCode,
		ReceiveCode: job.ReceiveCode,
		RootID:      job.RootID,
	}
	stream := ix.crawl(ctx, loc)
	defer stream.Close()

	for rec := range stream.Records() {
		if err := ix.publishRecord(ctx, job, rec); err != nil {
			return err
		}
		atomic.AddUint64(&indexerRecordsPublished, 1)
		if ix.pickCodes != nil && rec.PickCode != "" {
			// Best effort: a cache miss later just costs a re-crawl.
			if err := ix.pickCodes.Set(ctx, rec.ShareCode, rec.Path, rec.PickCode); err != nil {
				log.Printf("pick code cache error path=%s: %v", rec.Path, err)
			}
		}
	}
	return stream.Err()
}

func (ix *indexer) publishRecord(ctx context.Context, job models.IndexJob, rec models.FileRecord) error {
	if ix.recordsWriter == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(ctx, ix.publishTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return ix.recordsWriter.WriteMessages(publishCtx, msg)
}

func (ix *indexer) publishDLQ(ctx context.Context, job models.IndexJob, cause error) error {
	if ix.dlqWriter == nil {
		return nil
	}
	payload, err := json.Marshal(models.IndexFailure{
		SessionID: job.SessionID,
		ShareCode: job.ShareCode,
		RootID:    job.RootID,
		Error:     cause.Error(),
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	publishCtx, cancel := context.WithTimeout(ctx, ix.publishTimeout)
	defer cancel()
	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	return ix.dlqWriter.WriteMessages(publishCtx, msg)
}

func (ix *indexer) setStatus(ctx context.Context, job models.IndexJob, state string) {
	if ix.status == nil {
		return
	}
	err := ix.status.SetStatus(ctx, models.IndexStatus{
		SessionID: job.SessionID,
		ShareCode: job.ShareCode,
		Status:    state,
		CreatedAt: job.CreatedAt,
	})
	if err != nil {
		log.Printf("status update error session=%s state=%s: %v", job.SessionID, state, err)
	}
}

func dedupeKeyForJob(job models.IndexJob) string {
	root := job.RootID
	if root == "" {
		root = "0"
	}
	return "indexed:" + job.ShareCode + ":" + root
}
