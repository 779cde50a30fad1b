// Package sandbox drives the lifecycle of the containers that run submissions.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/retry"
)

const (
	// ProgramPath is where the submission archive is extracted.
	ProgramPath = "/program"
	// TestsPath is where the exercise test archive is extracted.
	TestsPath = "/tests"

	// LanguageEnv tells the testing image which toolchain to use.
	LanguageEnv = "TEST_LANGUAGE"
)

// Handle identifies a created container.
type Handle struct {
	ID   string
	Name string
}

// ExitStatus is what the runtime reports once a container stops.
type ExitStatus struct {
	Code  int64
	Error string
}

// Manager is the container runtime seen by the judges. Implementations must be
// safe for concurrent use.
type Manager interface {
	// RemoveIfExists force-removes a container by name. A missing container is not an error.
	RemoveIfExists(ctx context.Context, name string) error
	Create(ctx context.Context, name, image string, env []string) (Handle, error)
	Upload(ctx context.Context, h Handle, path string, archive []byte) error
	Start(ctx context.Context, h Handle) error
	// Await blocks until the container is no longer running or ctx is done.
	Await(ctx context.Context, h Handle) (ExitStatus, error)
	// Logs returns the combined output of a stopped container, capped at limit bytes.
	Logs(ctx context.Context, h Handle, limit int) ([]byte, error)
	Remove(ctx context.Context, h Handle) error
}

// RunSpec describes one sandboxed run.
type RunSpec struct {
	Name     string
	Image    string
	Language domain.Language
	Program  []byte
	Tests    []byte

	// Timeout bounds Await. Zero waits for as long as the container runs.
	Timeout time.Duration
	// RemoveAfter deletes the container once its output has been collected.
	RemoveAfter bool
	// OutputLimit caps collected output. Zero skips collection.
	OutputLimit int
}

// Result is what a finished run produced.
type Result struct {
	Handle   Handle
	Exit     ExitStatus
	Output   []byte
	Duration time.Duration
}

// ContainerName returns the container name used for a ticket.
func ContainerName(prefix string, ticketID int64) string {
	return fmt.Sprintf("%s%d", prefix, ticketID)
}

// Run executes the container sequence remove, create, upload program, upload
// tests, start and await. Every step is retried under policy; a step only
// begins after the previous one succeeded.
func Run(ctx context.Context, mgr Manager, policy retry.Policy, spec RunSpec, logger *zap.Logger) (*Result, error) {
	log := logger.With(zap.String("container", spec.Name))
	env := []string{LanguageEnv + "=" + spec.Language.String()}

	h, err := retry.DoValue(ctx, policy, log, "container_create", func(ctx context.Context) (Handle, error) {
		if err := mgr.RemoveIfExists(ctx, spec.Name); err != nil {
			log.Warn("Failed to remove stale container", zap.Error(err))
		}
		return mgr.Create(ctx, spec.Name, spec.Image, env)
	})
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	log.Debug("Container created", zap.String("container_id", h.ID))

	err = retry.Do(ctx, policy, log, "upload_program", func(ctx context.Context) error {
		return mgr.Upload(ctx, h, ProgramPath, spec.Program)
	})
	if err != nil {
		return nil, fmt.Errorf("upload program: %w", err)
	}

	err = retry.Do(ctx, policy, log, "upload_tests", func(ctx context.Context) error {
		return mgr.Upload(ctx, h, TestsPath, spec.Tests)
	})
	if err != nil {
		return nil, fmt.Errorf("upload tests: %w", err)
	}

	err = retry.Do(ctx, policy, log, "container_start", func(ctx context.Context) error {
		return mgr.Start(ctx, h)
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	start := time.Now()
	exit, err := await(ctx, mgr, policy, spec, h, log)
	res := &Result{Handle: h, Exit: exit, Duration: time.Since(start)}
	if err != nil {
		return res, err
	}

	if spec.OutputLimit > 0 {
		out, err := mgr.Logs(ctx, h, spec.OutputLimit)
		if err != nil {
			log.Warn("Failed to collect container output", zap.Error(err))
		}
		res.Output = out
	}

	if spec.RemoveAfter {
		if err := mgr.Remove(ctx, h); err != nil {
			log.Warn("Failed to remove finished container", zap.Error(err))
		}
	}
	return res, nil
}

func await(ctx context.Context, mgr Manager, policy retry.Policy, spec RunSpec, h Handle, log *zap.Logger) (ExitStatus, error) {
	awaitCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		awaitCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	exit, err := retry.DoValue(awaitCtx, policy, log, "container_await", func(ctx context.Context) (ExitStatus, error) {
		return mgr.Await(ctx, h)
	})
	if err == nil {
		return exit, nil
	}

	if ctx.Err() == nil && errors.Is(awaitCtx.Err(), context.DeadlineExceeded) {
		// The parent is still alive, so only the run deadline fired.
		if rmErr := mgr.Remove(ctx, h); rmErr != nil {
			log.Warn("Failed to remove timed out container", zap.Error(rmErr))
		}
		return exit, fmt.Errorf("%w after %s", domain.ErrRunTimeout, spec.Timeout)
	}
	return exit, fmt.Errorf("await container: %w", err)
}
