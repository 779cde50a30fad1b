package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

var fastPolicy = Policy{
	MaxAttempts:     4,
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
}

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterOneFailure(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_StopsAtCap(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected errFlaky, got %v", err)
	}
	if calls != fastPolicy.MaxAttempts {
		t.Errorf("expected %d calls, got %d", fastPolicy.MaxAttempts, calls)
	}
}

func TestDo_PermanentIsNotRetried(t *testing.T) {
	terminal := errors.New("terminal")
	calls := 0
	err := Do(context.Background(), fastPolicy, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return Permanent(terminal)
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SingleAttemptPolicy(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Policy{}, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	if calls != 1 {
		t.Errorf("expected 1 call with zero policy, got %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 100, InitialInterval: time.Millisecond}, zap.NewNop(), "test", func(ctx context.Context) error {
		calls++
		cancel()
		return errFlaky
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoValue_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fastPolicy, zap.NewNop(), "test", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %d", v)
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
