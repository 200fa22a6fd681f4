// Package dispatch runs inbound work on a fixed set of shards keyed by chat
// id: one chat is handled strictly in arrival order, different chats run in
// parallel.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull  = errors.New("dispatch queue is full")
	ErrInvalidJob = errors.New("dispatch job requires chat id and run func")
)

const shardQueueSize = 64

type Job struct {
	ID        string
	ChatID    string
	Kind      string
	CreatedAt time.Time
	Run       func(context.Context) error
}

type Engine struct {
	shards    []chan Job
	logger    *slog.Logger
	startOnce sync.Once
}

func New(shards int, logger *slog.Logger) *Engine {
	if shards < 1 {
		shards = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	queues := make([]chan Job, shards)
	for index := range queues {
		queues[index] = make(chan Job, shardQueueSize)
	}
	return &Engine{
		shards: queues,
		logger: logger,
	}
}

func (e *Engine) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	e.startOnce.Do(func() {
		for index := range e.shards {
			workers.Add(1)
			go func(shard int) {
				defer workers.Done()
				e.worker(ctx, shard)
			}(index)
		}
	})

	<-ctx.Done()
	workers.Wait()
	return nil
}

func (e *Engine) Enqueue(job Job) (Job, error) {
	if job.ChatID == "" || job.Run == nil {
		return Job{}, ErrInvalidJob
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Kind == "" {
		job.Kind = "message"
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	shard := e.shardFor(job.ChatID)
	select {
	case e.shards[shard] <- job:
		e.logger.Debug("job queued", "job_id", job.ID, "chat_id", job.ChatID, "kind", job.Kind, "shard", shard)
		return job, nil
	default:
		e.logger.Warn("dispatch queue full", "chat_id", job.ChatID, "shard", shard)
		return Job{}, ErrQueueFull
	}
}

func (e *Engine) shardFor(chatID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(chatID))
	return int(hasher.Sum32() % uint32(len(e.shards)))
}

func (e *Engine) worker(ctx context.Context, shard int) {
	e.logger.Debug("dispatch worker started", "shard", shard)
	for {
		select {
		case <-ctx.Done():
			e.logger.Debug("dispatch worker stopped", "shard", shard)
			return
		case job := <-e.shards[shard]:
			e.process(ctx, job)
		}
	}
}

// process never lets a job failure escape: errors and panics are logged with
// the chat id and the shard keeps going.
func (e *Engine) process(ctx context.Context, job Job) {
	started := time.Now()
	err := safeRun(ctx, job)
	if err != nil {
		e.logger.Error("job failed", "job_id", job.ID, "chat_id", job.ChatID, "kind", job.Kind, "error", err)
		return
	}
	e.logger.Debug("job processed", "job_id", job.ID, "chat_id", job.ChatID, "kind", job.Kind, "elapsed_ms", time.Since(started).Milliseconds())
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v\n%s", recovered, debug.Stack())
		}
	}()
	return job.Run(ctx)
}
