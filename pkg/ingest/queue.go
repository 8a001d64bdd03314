package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is one queued unit of ingestion work: one tip end-to-end.
type Job struct {
	JobID     string
	Input     RawTipInput
	EnqueuedAt time.Time
}

// Stats mirrors the §4.5 queue contract's stats() shape.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// WorkerFunc processes one Job. An error marks the job failed; it is never
// retried automatically by the queue (the pipeline's own per-stage retry
// contract in pkg/harness handles transient oracle failures upstream of
// this layer).
type WorkerFunc func(ctx context.Context, job Job) error

// Queue is the transport abstraction named in §4.5: either an in-process
// FIFO or an external durable queue, both behind this interface so callers
// never branch on backend.
type Queue interface {
	Enqueue(ctx context.Context, in RawTipInput) (jobID string, err error)
	Drain(ctx context.Context, worker WorkerFunc, concurrency int) error
	Stats(ctx context.Context) (Stats, error)
	// Close stops accepting new jobs; in-flight jobs run to completion.
	Close()
}

// MemoryQueue is an in-process, channel-backed FIFO for QUEUE_MODE=memory.
type MemoryQueue struct {
	ch        chan Job
	closeOnce sync.Once
	closed    chan struct{}

	waiting   atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	total     atomic.Int64
}

// NewMemoryQueue constructs a bounded in-process FIFO. capacity bounds how
// many jobs may wait before Enqueue blocks, giving the ingestion surface
// backpressure without a durable broker.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan Job, capacity), closed: make(chan struct{})}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, in RawTipInput) (string, error) {
	jobID := uuid.NewString()
	job := Job{JobID: jobID, Input: in, EnqueuedAt: time.Now().UTC()}
	select {
	case <-q.closed:
		return "", fmt.Errorf("ingest: queue is closed")
	default:
	}
	select {
	case q.ch <- job:
		q.waiting.Add(1)
		q.total.Add(1)
		return jobID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Drain runs worker across up to concurrency goroutines until the queue is
// closed and drained, or ctx is cancelled. This is the cooperative
// multi-task scheduling model of §5: one worker goroutine per in-flight
// tip, bounded by concurrency.
func (q *MemoryQueue) Drain(ctx context.Context, worker WorkerFunc, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case job, ok := <-q.ch:
					if !ok {
						return
					}
					q.waiting.Add(-1)
					q.active.Add(1)
					err := worker(ctx, job)
					q.active.Add(-1)
					if err != nil {
						q.failed.Add(1)
					} else {
						q.completed.Add(1)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Stats implements Queue.
func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	return Stats{
		Waiting:   int(q.waiting.Load()),
		Active:    int(q.active.Load()),
		Completed: int(q.completed.Load()),
		Failed:    int(q.failed.Load()),
		Total:     int(q.total.Load()),
	}, nil
}

// Close implements Queue: stops accepting new jobs by closing the channel
// once drained. Safe to call multiple times.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		close(q.ch)
	})
}

// RedisQueue is a durable FIFO for QUEUE_MODE=durable, backed by a Redis
// list. It gives the ingestion surface a queue that survives a process
// restart, matching the "external durable queue" option named in §4.5.
type RedisQueue struct {
	client *redis.Client
	key    string

	completed atomic.Int64
	failed    atomic.Int64
	total     atomic.Int64
}

// NewRedisQueue wires a durable queue under a single Redis list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "cybertip:ingest:queue"
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue implements Queue via RPUSH.
func (q *RedisQueue) Enqueue(ctx context.Context, in RawTipInput) (string, error) {
	jobID := uuid.NewString()
	job := Job{JobID: jobID, Input: in, EnqueuedAt: time.Now().UTC()}
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("ingest: marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return "", fmt.Errorf("ingest: enqueue: %w", err)
	}
	q.total.Add(1)
	return jobID, nil
}

// Drain pops jobs with BLPOP and dispatches across concurrency workers
// until ctx is cancelled.
func (q *RedisQueue) Drain(ctx context.Context, worker WorkerFunc, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for {
				result, err := q.client.BLPop(ctx, 5*time.Second, q.key).Result()
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					continue // timeout or transient redis error; keep polling
				}
				if len(result) < 2 {
					continue
				}
				var job Job
				if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
					q.failed.Add(1)
					continue
				}
				if err := worker(ctx, job); err != nil {
					q.failed.Add(1)
				} else {
					q.completed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// Stats implements Queue. Waiting is read live from the Redis list length;
// active is not tracked across processes and is reported as zero.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	waiting, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: stats LLEN: %w", err)
	}
	return Stats{
		Waiting:   int(waiting),
		Completed: int(q.completed.Load()),
		Failed:    int(q.failed.Load()),
		Total:     int(q.total.Load()),
	}, nil
}

// Close is a no-op for RedisQueue: the queue's durability is the point,
// so outstanding jobs remain for the next process to drain.
func (q *RedisQueue) Close() {}
