package turnqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aldan/opschat/internal/metrics"
	"github.com/aldan/opschat/internal/tracing"
)

// Task is the unit of work a lane executes.
type Task func(ctx context.Context) (interface{}, error)

// turnRecord tracks one queued turn.
type turnRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	result     chan turnResult
}

type turnResult struct {
	value interface{}
	err   error
}

// laneState holds the queue for a single session.
type laneState struct {
	queue   []*turnRecord
	running bool
	mu      sync.Mutex
}

// Queue runs turns serialized per session lane.
type Queue struct {
	lanes   map[string]*laneState
	turnSeq int
	mu      sync.Mutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates an empty queue.
func New() *Queue {
	metrics.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run enqueues a task on the session's lane and blocks until it has
// executed or the queue shuts down. Tasks on the same lane run in the
// order Run was called; tasks on different lanes run concurrently.
func (q *Queue) Run(ctx context.Context, sessionID string, task Task) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"opschat.turnqueue",
		"turnqueue.run",
		attribute.String("session_id", sessionID),
	)
	defer span.End()

	q.mu.Lock()
	select {
	case <-q.ctx.Done():
		q.mu.Unlock()
		return nil, fmt.Errorf("turn queue is shut down")
	default:
	}

	q.turnSeq++
	turnID := fmt.Sprintf("%s-%d", sessionID, q.turnSeq)

	ls, ok := q.lanes[sessionID]
	if !ok {
		ls = &laneState{}
		q.lanes[sessionID] = ls
	}

	record := &turnRecord{
		id:         turnID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		result:     make(chan turnResult, 1),
	}

	// The append happens while q.mu is still held so reclaimLane cannot
	// remove a draining lane between the lookup and the enqueue. Lock
	// order is q.mu then ls.mu, same as reclaimLane.
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()
	q.mu.Unlock()

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Debug().
		Str("session_id", sessionID).
		Str("turn_id", turnID).
		Int("queue_size", queueSize).
		Msg("Turn enqueued")

	metrics.SetQueueSize(sessionID, queueSize)

	go q.processLane(sessionID, ls)

	result := <-record.result
	if result.err != nil {
		span.RecordError(result.err)
		span.SetStatus(codes.Error, result.err.Error())
	}
	return result.value, result.err
}

// processLane starts the next queued turn if the lane is idle.
func (q *Queue) processLane(sessionID string, ls *laneState) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.running || len(ls.queue) == 0 {
		return
	}

	record := ls.queue[0]
	ls.queue = ls.queue[1:]
	ls.running = true

	q.wg.Add(1)
	go q.executeTurn(sessionID, ls, record)
}

func (q *Queue) executeTurn(sessionID string, ls *laneState, record *turnRecord) {
	defer q.wg.Done()

	wait := time.Since(record.enqueuedAt)
	metrics.RecordQueueWait(sessionID, wait)

	runCtx, cancel := context.WithCancel(record.ctx)
	stopCancel := context.AfterFunc(q.ctx, cancel)
	defer func() {
		stopCancel()
		cancel()
	}()

	logger := tracing.LoggerFromContext(runCtx, log.Logger)
	start := time.Now()

	value, err := record.task(runCtx)

	duration := time.Since(start)

	ls.mu.Lock()
	ls.running = false
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- turnResult{value: value, err: err}
	close(record.result)

	if err != nil {
		logger.Error().
			Str("session_id", sessionID).
			Str("turn_id", record.id).
			Dur("duration", duration).
			Err(err).
			Msg("Turn failed")
	} else {
		logger.Debug().
			Str("session_id", sessionID).
			Str("turn_id", record.id).
			Dur("duration", duration).
			Msg("Turn completed")
	}

	metrics.SetQueueSize(sessionID, queueSize)

	if queueSize > 0 {
		go q.processLane(sessionID, ls)
		return
	}

	q.reclaimLane(sessionID, ls)
}

// reclaimLane removes a drained lane. The lane is kept if work arrived
// between the drain check and taking the locks.
func (q *Queue) reclaimLane(sessionID string, ls *laneState) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.running || len(ls.queue) > 0 {
		return
	}
	if current, ok := q.lanes[sessionID]; ok && current == ls {
		delete(q.lanes, sessionID)
	}
}

// QueueSize returns the number of queued (not yet running) turns for
// a session.
func (q *Queue) QueueSize(sessionID string) int {
	q.mu.Lock()
	ls, ok := q.lanes[sessionID]
	q.mu.Unlock()

	if !ok {
		return 0
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.queue)
}

// Lanes returns the number of sessions with work in flight.
func (q *Queue) Lanes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes)
}

// Close stops accepting work and waits for in-flight turns to finish.
func (q *Queue) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
