// Package queue implements the durable FIFO job queue (C3): a single Redis
// list, producers LPUSH, workers BRPOP. No visibility timeout or
// redelivery — a job is handed to exactly one worker per dequeue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"caloriebot/internal/inline"
)

// QueueName is the constant list key estimation jobs are pushed onto.
const QueueName = "estimate_jobs"

// Queue is the Redis-backed FIFO described in spec §4.3.
type Queue struct {
	client redis.UniversalClient
}

// New builds a Queue from an existing Redis client.
func New(client redis.UniversalClient) *Queue {
	return &Queue{client: client}
}

// Enqueue assigns a job_id if unset, serializes job as JSON, and LPUSHes it
// onto the queue. Returns the assigned job_id.
func (q *Queue) Enqueue(ctx context.Context, job inline.EstimateJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, QueueName, payload).Err(); err != nil {
		return "", fmt.Errorf("queue: lpush: %w", err)
	}
	return job.JobID, nil
}

// Dequeue blocks up to timeout waiting for a job, popping from the tail so
// FIFO order is preserved against Enqueue's LPUSH. Returns (nil, nil) on
// timeout, which callers MUST treat as "no job available" rather than error.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*inline.EstimateJob, error) {
	res, err := q.client.BRPop(ctx, timeout, QueueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: brpop: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("queue: unexpected brpop reply shape: %v", res)
	}

	var job inline.EstimateJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}
	return &job, nil
}
