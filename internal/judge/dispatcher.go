package judge

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/metrics"
)

// Task is the handle of a dispatched ticket.
type Task struct {
	TicketID int64
	Judge    string

	done    chan struct{}
	outcome Outcome
	err     error
}

// Done is closed once the run has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome blocks until the run has finished and returns its result.
func (t *Task) Outcome() (Outcome, error) {
	<-t.done
	return t.outcome, t.err
}

// Wait is Outcome bounded by ctx.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return Outcome{TicketID: t.TicketID, Judge: t.Judge}, ctx.Err()
	}
}

// Dispatcher routes tickets to judges of the matching language. The judge set
// is fixed at construction.
type Dispatcher struct {
	judges map[domain.Language][]*Judge
	logger *zap.Logger
	pick   func(n int) int

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewDispatcher builds counts[lang] judges per language. A zero count leaves
// the language without capacity.
func NewDispatcher(counts map[domain.Language]int, deps Deps) (*Dispatcher, error) {
	if deps.Tickets == nil || deps.Tests == nil || deps.Sandbox == nil {
		return nil, errors.New("judge: tickets, tests and sandbox are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	judges := make(map[domain.Language][]*Judge, len(counts))
	for lang, n := range counts {
		if !lang.IsValid() {
			return nil, fmt.Errorf("judge: %w: %s", domain.ErrUnknownLanguage, lang)
		}
		if n < 0 {
			return nil, fmt.Errorf("judge: negative worker count %d for %s", n, lang)
		}
		bucket := make([]*Judge, n)
		for i := range bucket {
			bucket[i] = NewJudge(lang, i, deps)
		}
		judges[lang] = bucket
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		judges:  judges,
		logger:  deps.Logger,
		pick:    rand.IntN,
		baseCtx: ctx,
		cancel:  cancel,
	}, nil
}

// Capacity returns the number of judges per configured language.
func (d *Dispatcher) Capacity() map[domain.Language]int {
	out := make(map[domain.Language]int, len(d.judges))
	for lang, bucket := range d.judges {
		out[lang] = len(bucket)
	}
	return out
}

// Busy returns the number of judges executing right now, per language.
func (d *Dispatcher) Busy() map[domain.Language]int {
	out := make(map[domain.Language]int, len(d.judges))
	for lang, bucket := range d.judges {
		for _, j := range bucket {
			if j.Busy() {
				out[lang]++
			}
		}
	}
	return out
}

// InFlight returns the number of dispatched tasks that have not finished.
func (d *Dispatcher) InFlight() int64 { return d.inFlight.Load() }

// Dispatch hands ref to a random judge of its language and returns without
// waiting for the run. It fails synchronously with domain.ErrNoCapacity when no
// judge serves the language; no work is started in that case.
//
// The run inherits the values of ctx but not its cancellation, so a request
// context may end right after Dispatch returns. Shutdown cancels it.
func (d *Dispatcher) Dispatch(ctx context.Context, ref domain.TicketRef) (*Task, error) {
	bucket := d.judges[ref.Language]
	if len(bucket) == 0 {
		metrics.DispatchRejected.WithLabelValues(ref.Language.String(), "no_capacity").Inc()
		d.logger.Error("No judge for ticket language",
			zap.Int64("ticket_id", ref.ID),
			zap.String("language", ref.Language.String()),
		)
		return nil, fmt.Errorf("%w: %s", domain.ErrNoCapacity, ref.Language)
	}
	j := bucket[d.pick(len(bucket))]

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		metrics.DispatchRejected.WithLabelValues(ref.Language.String(), "shutdown").Inc()
		return nil, domain.ErrShuttingDown
	}
	d.wg.Add(1)
	d.mu.Unlock()

	task := &Task{TicketID: ref.ID, Judge: j.Name(), done: make(chan struct{})}
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(d.baseCtx, cancel)

	d.inFlight.Add(1)
	metrics.TasksInFlight.Inc()

	go func() {
		defer d.wg.Done()
		defer close(task.done)
		defer func() {
			stop()
			cancel()
			d.inFlight.Add(-1)
			metrics.TasksInFlight.Dec()
		}()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Dispatch task panic recovered",
					zap.Int64("ticket_id", ref.ID),
					zap.Any("panic", r),
				)
				task.err = fmt.Errorf("%w: panic: %v", domain.ErrInternal, r)
			}
		}()

		task.outcome, task.err = d.run(taskCtx, j, ref)
	}()

	d.logger.Debug("Ticket dispatched",
		zap.Int64("ticket_id", ref.ID),
		zap.String("judge", j.Name()),
	)
	return task, nil
}

func (d *Dispatcher) run(ctx context.Context, j *Judge, ref domain.TicketRef) (Outcome, error) {
	lang := ref.Language.String()

	start := time.Now()
	out, err := j.Execute(ctx, ref)
	metrics.ExecutionDuration.WithLabelValues(lang).Observe(time.Since(start).Seconds())
	metrics.ExecutionsTotal.WithLabelValues(lang, outcomeLabel(out, err)).Inc()
	return out, err
}

func outcomeLabel(out Outcome, err error) string {
	var mismatch *domain.MismatchedLanguageError
	switch {
	case err == nil && out.Duplicate:
		return "duplicate"
	case err == nil && out.Skipped:
		return "skipped"
	case err == nil:
		return "judged"
	case errors.Is(err, domain.ErrRunTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrExerciseNotFound):
		return "no_tests"
	case errors.As(err, &mismatch):
		return "mismatch"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

// Shutdown stops accepting tickets and waits for running tasks. If ctx ends
// first, the remaining tasks are cancelled and ctx.Err() is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("Dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		d.logger.Warn("Dispatcher shutdown deadline reached, cancelling tasks",
			zap.Int64("in_flight", d.InFlight()),
		)
		return ctx.Err()
	}
}
