package engine

import (
	"context"
	"log/slog"
	"sync"
)

// Executor decides where a machine's dispatch jobs run.
//
// Execute may run job inline or hand it to another goroutine. The context
// passed to job is detached from the caller's cancellation: in-flight
// dispatch is never cancelled.
type Executor interface {
	Execute(ctx context.Context, job func(ctx context.Context))

	// Drain waits until every job executed before the call has finished.
	Drain(ctx context.Context) error
}

// CallingThread runs every job inline on the caller's goroutine. It does no
// locking; callers must serialize Send themselves.
type CallingThread struct{}

// Execute runs job immediately.
func (CallingThread) Execute(ctx context.Context, job func(ctx context.Context)) {
	job(ctx)
}

// Drain returns immediately; inline jobs are already finished.
func (CallingThread) Drain(context.Context) error { return nil }

// loopMarker tags contexts of jobs running on a specific queue goroutine.
type loopMarker struct{}

func withMarker(ctx context.Context, owner any) context.Context {
	return context.WithValue(ctx, loopMarker{}, owner)
}

func onGoroutineOf(ctx context.Context, owner any) bool {
	return ctx.Value(loopMarker{}) == owner
}

// runJob executes one queued job, logging instead of crashing the consumer
// if it panics.
func runJob(logger *slog.Logger, where string, job func()) {
	if err := protect(func() error { job(); return nil }); err != nil {
		logger.Error("dispatch job panicked", "executor", where, "err", err)
	}
}

// MainLoop is the single designated goroutine for main-thread work.
//
// Exactly one goroutine calls Run. Post enqueues and returns; Call hops onto
// the loop and waits, or runs inline when the caller is already on it.
type MainLoop struct {
	q      *workQueue
	logger *slog.Logger
}

// NewMainLoop creates a main loop. Call Run to start processing.
func NewMainLoop(logger *slog.Logger) *MainLoop {
	if logger == nil {
		logger = slog.Default()
	}
	return &MainLoop{q: newWorkQueue(), logger: logger}
}

// Run processes jobs until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine.
func (l *MainLoop) Run(ctx context.Context) error {
	l.logger.Debug("main loop starting")

	for {
		if job, ok := l.q.TryDequeue(); ok {
			runJob(l.logger, "main-loop", job)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("main loop stopping: context cancelled")
			l.q.Close()
			l.drain()
			return ctx.Err()
		case <-l.q.Wait():
			if l.q.Len() == 0 {
				select {
				case <-ctx.Done():
					l.q.Close()
					l.drain()
					return ctx.Err()
				default:
				}
				if l.isClosed() {
					l.logger.Debug("main loop stopping: closed")
					return nil
				}
			}
		}
	}
}

// drain runs jobs enqueued before the queue closed, so no Call is left
// waiting on a loop that has exited.
func (l *MainLoop) drain() {
	for {
		job, ok := l.q.TryDequeue()
		if !ok {
			return
		}
		runJob(l.logger, "main-loop", job)
	}
}

func (l *MainLoop) isClosed() bool {
	l.q.mu.Lock()
	defer l.q.mu.Unlock()
	return l.q.closed
}

// StartMainLoop runs a new loop on its own goroutine until ctx is cancelled
// or stop is called. stop waits for the queued backlog to finish.
func StartMainLoop(ctx context.Context, logger *slog.Logger) (loop *MainLoop, stop func()) {
	loop = NewMainLoop(logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	return loop, func() {
		loop.Stop()
		<-done
	}
}

// Stop closes the loop. Jobs already queued still run.
func (l *MainLoop) Stop() {
	l.q.Close()
}

// Post enqueues fn to run on the loop and returns immediately.
// Returns false if the loop is stopped.
func (l *MainLoop) Post(fn func()) bool {
	return l.q.Enqueue(fn)
}

// Execute posts job to the loop.
func (l *MainLoop) Execute(ctx context.Context, job func(ctx context.Context)) {
	ctx = withMarker(context.WithoutCancel(ctx), l)
	if !l.q.Enqueue(func() { job(ctx) }) {
		l.logger.Warn("main loop stopped, dropping dispatch job")
	}
}

// Call runs fn on the loop and waits for its result. When ctx already
// belongs to a loop job, fn runs inline.
func (l *MainLoop) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if onGoroutineOf(ctx, l) {
		return fn(ctx)
	}

	done := make(chan error, 1)
	loopCtx := withMarker(context.WithoutCancel(ctx), l)
	if !l.q.Enqueue(func() { done <- protect(func() error { return fn(loopCtx) }) }) {
		return ErrLoopStopped
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain waits until every job posted before the call has run.
func (l *MainLoop) Drain(ctx context.Context) error {
	if onGoroutineOf(ctx, l) {
		return nil
	}
	return l.Call(ctx, func(context.Context) error { return nil })
}

// WorkQueue is one shared dispatch queue: a FIFO drained by a single worker
// goroutine. Machines sharing a WorkQueue never dispatch concurrently.
type WorkQueue struct {
	id     int
	q      *workQueue
	logger *slog.Logger
	start  sync.Once
	done   chan struct{}
}

func newSharedWorkQueue(id int, logger *slog.Logger) *WorkQueue {
	return &WorkQueue{
		id:     id,
		q:      newWorkQueue(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// ID returns the queue id.
func (w *WorkQueue) ID() int { return w.id }

// Execute enqueues job, starting the worker on first use.
func (w *WorkQueue) Execute(ctx context.Context, job func(ctx context.Context)) {
	w.start.Do(func() { go w.work() })
	ctx = withMarker(context.WithoutCancel(ctx), w)
	if !w.q.Enqueue(func() { job(ctx) }) {
		w.logger.Warn("shared queue closed, dropping dispatch job", "queue", w.id)
	}
}

func (w *WorkQueue) work() {
	defer close(w.done)
	for {
		if job, ok := w.q.TryDequeue(); ok {
			runJob(w.logger, "shared-queue", job)
			continue
		}
		if _, open := <-w.q.Wait(); !open && w.q.Len() == 0 {
			return
		}
	}
}

// Drain waits until every job enqueued before the call has run.
func (w *WorkQueue) Drain(ctx context.Context) error {
	if onGoroutineOf(ctx, w) {
		return nil
	}
	barrier := make(chan struct{})
	w.start.Do(func() { go w.work() })
	if !w.q.Enqueue(func() { close(barrier) }) {
		return ErrLoopStopped
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs. The worker exits after the backlog drains.
func (w *WorkQueue) Close() {
	w.q.Close()
}

// SharedQueues is a registry of WorkQueues keyed by integer id.
type SharedQueues struct {
	mu     sync.Mutex
	queues map[int]*WorkQueue
	logger *slog.Logger
}

// NewSharedQueues creates an empty registry.
func NewSharedQueues(logger *slog.Logger) *SharedQueues {
	if logger == nil {
		logger = slog.Default()
	}
	return &SharedQueues{queues: make(map[int]*WorkQueue), logger: logger}
}

// Queue returns the queue with the given id, creating it on first use.
func (s *SharedQueues) Queue(id int) *WorkQueue {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[id]
	if !ok {
		q = newSharedWorkQueue(id, s.logger)
		s.queues[id] = q
	}
	return q
}

// Close closes every queue in the registry.
func (s *SharedQueues) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queues {
		q.Close()
	}
}

// DefaultSharedQueues is the process-wide registry used when a shared-queue
// machine is built without WithSharedQueues.
var DefaultSharedQueues = NewSharedQueues(nil)
