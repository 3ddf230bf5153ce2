// Package queue is a Redis-backed work queue for merge job IDs. Job state
// stays in the in-process registry; the queue only orders and throttles the
// IDs so a bounded worker pool can drain them.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const QueueMergeJobs = "queue:merge_jobs"

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	return q.client.RPush(ctx, QueueMergeJobs, jobID).Err()
}

// Dequeue pops the next job ID, blocking up to timeout. An empty string with
// a nil error means the queue was empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	result, err := q.client.BLPop(ctx, timeout, QueueMergeJobs).Result()
	if err == redis.Nil {
		return "", nil // No job available
	}
	if err != nil {
		return "", fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return "", fmt.Errorf("unexpected redis response")
	}

	return result[1], nil
}

func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueMergeJobs).Result()
}
