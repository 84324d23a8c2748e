package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"drivebridge/common"
)

func main() {
	broker := common.GetEnv("KAFKA_BROKER", "localhost:9092")
	topics := []string{
		common.GetEnv("KAFKA_JOBS_TOPIC", "drivebridge.index.jobs"),
		common.GetEnv("KAFKA_RECORDS_TOPIC", "drivebridge.index.records"),
		common.GetEnv("KAFKA_DLQ_TOPIC", "drivebridge.index.dlq"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to Kafka at %s: %v\n", broker, err)
		os.Exit(1)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read metadata: %v\n", err)
		os.Exit(1)
	}

	counts := make(map[string]int)
	for _, p := range partitions {
		counts[p.Topic]++
	}

	fmt.Printf("connected to Kafka at %s (%d partitions)\n", broker, len(partitions))
	missing := 0
	for _, topic := range topics {
		if n := counts[topic]; n > 0 {
			fmt.Printf("topic %s: %d partitions\n", topic, n)
		} else {
			fmt.Fprintf(os.Stderr, "topic %s: missing\n", topic)
			missing++
		}
	}
	if missing > 0 {
		os.Exit(1)
	}
}
