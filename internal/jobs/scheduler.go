package jobs

import (
	"context"
	"log"
	"time"

	"github.com/gendew/merge-video/internal/queue"
)

// Scheduler decides where a submitted job runs. Dispatch must not block the
// submitting request.
type Scheduler interface {
	Dispatch(jobID string)
}

// SpawnScheduler runs every job on its own goroutine immediately. This is
// the default; concurrency is then bounded only by the render limit inside
// the pipeline.
type SpawnScheduler struct {
	run func(jobID string)
}

func NewSpawnScheduler(run func(jobID string)) *SpawnScheduler {
	return &SpawnScheduler{run: run}
}

func (s *SpawnScheduler) Dispatch(jobID string) {
	go s.run(jobID)
}

// QueueScheduler pushes job IDs through Redis so a fixed worker pool drains
// them in order. If Redis is down at dispatch time the job falls back to an
// immediate goroutine instead of being lost.
type QueueScheduler struct {
	queue  *queue.Queue
	run    func(jobID string)
	logger *log.Logger
}

func NewQueueScheduler(q *queue.Queue, run func(jobID string), logger *log.Logger) *QueueScheduler {
	return &QueueScheduler{queue: q, run: run, logger: logger}
}

func (s *QueueScheduler) Dispatch(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, jobID); err != nil {
		s.logger.Printf("[Jobs] Enqueue failed for %s, running inline: %v", jobID, err)
		go s.run(jobID)
	}
}

// Start launches the worker pool; workers drain the queue until ctx ends.
func (s *QueueScheduler) Start(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	s.logger.Printf("[Jobs] Queue workers started (count=%d)", workers)
	for i := 0; i < workers; i++ {
		go s.worker(ctx)
	}
}

func (s *QueueScheduler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			jobID, err := s.queue.Dequeue(ctx, 5*time.Second)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Printf("[Jobs] Dequeue error: %v", err)
				continue
			}
			if jobID == "" {
				continue
			}
			s.run(jobID)
		}
	}
}
