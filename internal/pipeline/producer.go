package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"drivebridge/internal/models"
)

// JobProducer publishes IndexJob messages.
type JobProducer interface {
	WriteJob(ctx context.Context, job models.IndexJob) error
}

// Producer wraps a Kafka writer for publishing index jobs.
type Producer struct {
	writer MessageWriter
}

// NewProducer creates a Kafka producer for the given broker and topic.
func NewProducer(broker, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: false,
		},
	}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteJob publishes an IndexJob to Kafka, keyed by session so one share's
// pages stay on one partition.
func (p *Producer) WriteJob(ctx context.Context, job models.IndexJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(job.SessionID),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	return p.writer.WriteMessages(ctx, msg)
}
