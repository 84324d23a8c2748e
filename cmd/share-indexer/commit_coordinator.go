package main

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"drivebridge/internal/pipeline"
)

// commitCoordinator buffers completed messages per partition and commits in
// offset order, so a long crawl on one offset never lets a later offset be
// committed ahead of it.
type commitCoordinator struct {
	reader     pipeline.MessageReader          // Kafka reader used to commit offsets
	commitCh   <-chan kafka.Message            // receives completed messages from crawl goroutines
	nextOffset map[int]int64                   // per partition: next offset we expect to commit
	pending    map[int]map[int64]kafka.Message // per partition: buffered messages keyed by offset
	mu         sync.Mutex                      // protects nextOffset and pending
}

func newCommitCoordinator(reader pipeline.MessageReader, commitCh <-chan kafka.Message) *commitCoordinator {
	return &commitCoordinator{
		reader:     reader,
		commitCh:   commitCh,
		nextOffset: make(map[int]int64),
		pending:    make(map[int]map[int64]kafka.Message),
	}
}

// run receives completed messages, enqueues them, and drains contiguous
// offsets per partition. Exits on ctx cancellation or when commitCh closes;
// calls wg.Done() when finished.
func (c *commitCoordinator) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			c.flush(ctx)
			return
		case msg, ok := <-c.commitCh:
			if !ok {
				c.flush(ctx)
				return
			}
			c.enqueue(msg)
			c.drain(ctx, msg.Partition)
		}
	}
}

func (c *commitCoordinator) enqueue(msg kafka.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := msg.Partition
	off := msg.Offset
	if c.pending[p] == nil {
		c.pending[p] = make(map[int64]kafka.Message)
	}
	c.pending[p][off] = msg
	atomic.AddInt64(&indexerCommitPendingTotal, 1)
	if _, exists := c.nextOffset[p]; !exists {
		c.nextOffset[p] = off
	}
}

// commitNext commits the next contiguous message for the given partition.
// Caller must hold c.mu; the lock is released during CommitMessages
// (blocking I/O) and re-acquired before returning. On commit failure the
// message is re-queued and nextOffset stays put, so a later drain retries.
func (c *commitCoordinator) commitNext(ctx context.Context, partition int, logPrefix string) bool {
	next := c.nextOffset[partition]
	m, ok := c.pending[partition][next]
	if !ok {
		return false
	}
	delete(c.pending[partition], next)
	atomic.AddInt64(&indexerCommitPendingTotal, -1)
	c.mu.Unlock()
	start := time.Now()
	err := c.reader.CommitMessages(ctx, m)
	observeCommitLatency(time.Since(start))
	c.mu.Lock()
	if err != nil {
		atomic.AddUint64(&indexerCommitErrorsTotal, 1)
		log.Printf("%s partition=%d offset=%d: %v", logPrefix, partition, next, err)
		c.pending[partition][next] = m
		atomic.AddInt64(&indexerCommitPendingTotal, 1)
		return false // stop drain so we don't hammer a failing commit
	}
	c.nextOffset[partition] = next + 1
	return true
}

// drain commits all contiguous offsets for the given partition, stopping
// when the next expected offset is not yet buffered.
func (c *commitCoordinator) drain(ctx context.Context, partition int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.commitNext(ctx, partition, "commit error") {
	}
}

// flush commits any remaining buffered messages on shutdown.
func (c *commitCoordinator) flush(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p := range c.pending {
		for c.commitNext(ctx, p, "commit flush error") {
		}
	}
}
