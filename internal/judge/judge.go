// Package judge runs tickets on language-bound judges and routes tickets to them.
package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/archive"
	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/metrics"
	"github.com/Harsh-BH/alsit/internal/repository"
	"github.com/Harsh-BH/alsit/internal/retry"
	"github.com/Harsh-BH/alsit/internal/sandbox"
)

const releaseTimeout = 5 * time.Second

// Config holds the knobs shared by every judge.
type Config struct {
	// Image is the testing image. It doubles as the container name prefix.
	Image string
	Retry retry.Policy
	// RunTimeout bounds a single container run. Zero means no deadline.
	RunTimeout       time.Duration
	RemoveContainers bool
	// OutputLimit caps collected container output. Zero skips collection.
	OutputLimit int
}

// Deps are the collaborators a judge needs.
type Deps struct {
	Tickets repository.TicketService
	Tests   archive.TestStore
	Sandbox sandbox.Manager
	// Claims is optional. Without it a ticket is not guarded against duplicate runs.
	Claims repository.ClaimStore
	Config Config
	Logger *zap.Logger
}

// Outcome describes how a ticket run ended.
type Outcome struct {
	TicketID int64
	Judge    string
	// Skipped is set when the ticket no longer exists.
	Skipped bool
	// Duplicate is set when another run already held the ticket.
	Duplicate bool
	Exit      sandbox.ExitStatus
	Output    []byte
	Duration  time.Duration
}

// Judge executes tickets of one language, one at a time. Callers that find the
// judge busy wait on its gate; the order in which waiters get in is unspecified.
type Judge struct {
	lang  domain.Language
	index int
	name  string
	gate  chan struct{}

	tickets repository.TicketService
	tests   archive.TestStore
	sandbox sandbox.Manager
	claims  repository.ClaimStore
	cfg     Config
	logger  *zap.Logger
}

// NewJudge creates a judge bound to lang.
func NewJudge(lang domain.Language, index int, deps Deps) *Judge {
	name := fmt.Sprintf("%s-%d", lang, index)
	return &Judge{
		lang:    lang,
		index:   index,
		name:    name,
		gate:    make(chan struct{}, 1),
		tickets: deps.Tickets,
		tests:   deps.Tests,
		sandbox: deps.Sandbox,
		claims:  deps.Claims,
		cfg:     deps.Config,
		logger:  deps.Logger.With(zap.String("judge", name)),
	}
}

func (j *Judge) Language() domain.Language { return j.lang }
func (j *Judge) Name() string              { return j.name }

// Busy reports whether the judge is executing a ticket right now.
func (j *Judge) Busy() bool { return len(j.gate) > 0 }

func (j *Judge) acquire(ctx context.Context) error {
	select {
	case j.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Judge) release() { <-j.gate }

// Execute runs one ticket to completion. It holds the judge exclusively for the
// whole run and always gives it back, also when the run panics.
func (j *Judge) Execute(ctx context.Context, ref domain.TicketRef) (out Outcome, err error) {
	out = Outcome{TicketID: ref.ID, Judge: j.name}

	waitStart := time.Now()
	if err := j.acquire(ctx); err != nil {
		return out, err
	}
	defer j.release()
	metrics.GateWait.WithLabelValues(j.lang.String()).Observe(time.Since(waitStart).Seconds())

	metrics.JudgesBusy.WithLabelValues(j.lang.String()).Inc()
	defer metrics.JudgesBusy.WithLabelValues(j.lang.String()).Dec()

	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("Judge panic recovered",
				zap.Int64("ticket_id", ref.ID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("%w: panic: %v", domain.ErrInternal, r)
		}
	}()

	release, duplicate := j.claim(ctx, ref.ID)
	if duplicate {
		out.Duplicate = true
		return out, nil
	}
	defer release()

	return j.execute(ctx, ref, out)
}

// claim marks the ticket as running. It is called with the gate held, so a
// ticket queued behind another run holds no claim while it waits.
func (j *Judge) claim(ctx context.Context, ticketID int64) (release func(), duplicate bool) {
	noop := func() {}
	if j.claims == nil {
		return noop, false
	}

	ok, err := j.claims.Claim(ctx, ticketID)
	switch {
	case err != nil:
		j.logger.Warn("Claim store unavailable, running unguarded",
			zap.Int64("ticket_id", ticketID),
			zap.Error(err),
		)
		return noop, false
	case !ok:
		j.logger.Info("Ticket already being judged, skipping", zap.Int64("ticket_id", ticketID))
		return noop, true
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := j.claims.Release(ctx, ticketID); err != nil {
			j.logger.Warn("Failed to release ticket claim",
				zap.Int64("ticket_id", ticketID),
				zap.Error(err),
			)
		}
	}, false
}

func (j *Judge) execute(ctx context.Context, ref domain.TicketRef, out Outcome) (Outcome, error) {
	log := j.logger.With(zap.Int64("ticket_id", ref.ID))
	policy := j.cfg.Retry

	// Step 1: Fetch the submission
	sub, err := retry.DoValue(ctx, policy, log, "get_submission", func(ctx context.Context) (*domain.Submission, error) {
		s, err := j.tickets.GetSubmission(ctx, ref.ID)
		if errors.Is(err, domain.ErrTicketNotFound) || errors.Is(err, domain.ErrInternal) {
			return nil, retry.Permanent(err)
		}
		return s, err
	})
	if errors.Is(err, domain.ErrTicketNotFound) {
		log.Info("Ticket not found, skipping")
		out.Skipped = true
		return out, nil
	}
	if err != nil {
		log.Error("Failed to fetch submission", zap.Error(err))
		return out, fmt.Errorf("get submission: %w", err)
	}

	// Step 2: Routing check
	if sub.Language != j.lang {
		mismatch := &domain.MismatchedLanguageError{JudgeLang: j.lang, TicketLang: sub.Language}
		log.Error("Ticket routed to the wrong judge", zap.Error(mismatch))
		return out, mismatch
	}

	// Step 3: Package program and tests
	program, err := archive.BuildSourceArchive([]byte(sub.Content), sub.Language)
	if err != nil {
		log.Error("Failed to build program archive", zap.Error(err))
		return out, err
	}

	tests, err := retry.DoValue(ctx, policy, log, "load_tests", func(ctx context.Context) ([]byte, error) {
		data, err := j.tests.Load(ctx, sub.ExerciseID)
		if errors.Is(err, domain.ErrExerciseNotFound) {
			return nil, retry.Permanent(err)
		}
		return data, err
	})
	if err != nil {
		log.Error("Failed to load test archive", zap.Int64("exercise_id", sub.ExerciseID), zap.Error(err))
		return out, fmt.Errorf("load tests: %w", err)
	}
	if names, err := archive.TarEntries(tests); err == nil {
		log.Debug("Test archive loaded", zap.Int64("exercise_id", sub.ExerciseID), zap.Strings("entries", names))
	}

	// Step 4: Run the container and wait for it
	res, err := sandbox.Run(ctx, j.sandbox, policy, sandbox.RunSpec{
		Name:        sandbox.ContainerName(j.cfg.Image, ref.ID),
		Image:       j.cfg.Image,
		Language:    sub.Language,
		Program:     program,
		Tests:       tests,
		Timeout:     j.cfg.RunTimeout,
		RemoveAfter: j.cfg.RemoveContainers,
		OutputLimit: j.cfg.OutputLimit,
	}, log)
	if res != nil {
		out.Exit = res.Exit
		out.Output = res.Output
		out.Duration = res.Duration
	}
	if err != nil {
		log.Error("Container run failed", zap.Error(err))
		return out, err
	}

	// Step 5: Record the run
	err = retry.Do(ctx, policy, log, "mark_judged", func(ctx context.Context) error {
		err := j.tickets.MarkJudged(ctx, ref.ID)
		if errors.Is(err, domain.ErrTicketNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		log.Error("Failed to mark ticket judged", zap.Error(err))
		return out, fmt.Errorf("mark judged: %w", err)
	}

	log.Info("Ticket judged",
		zap.Int64("exit_code", out.Exit.Code),
		zap.Duration("run_time", out.Duration),
	)
	return out, nil
}
