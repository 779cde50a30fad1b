package judge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/archive"
	"github.com/Harsh-BH/alsit/internal/domain"
	repomock "github.com/Harsh-BH/alsit/internal/repository/mock"
	"github.com/Harsh-BH/alsit/internal/retry"
	"github.com/Harsh-BH/alsit/internal/sandbox"
	sandboxmock "github.com/Harsh-BH/alsit/internal/sandbox/mock"
)

// ---- helpers ----

type fakeTests struct {
	mu     sync.Mutex
	calls  int
	LoadFn func(ctx context.Context, exerciseID int64) ([]byte, error)
}

func (f *fakeTests) Load(ctx context.Context, exerciseID int64) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.LoadFn != nil {
		return f.LoadFn(ctx, exerciseID)
	}
	return []byte("tests-archive"), nil
}

func (f *fakeTests) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	repo  *repomock.TicketRepository
	tests *fakeTests
	mgr   *sandboxmock.Manager
	deps  Deps
}

func newFixture() *fixture {
	f := &fixture{
		repo:  &repomock.TicketRepository{},
		tests: &fakeTests{},
		mgr:   &sandboxmock.Manager{},
	}
	f.deps = Deps{
		Tickets: f.repo,
		Tests:   f.tests,
		Sandbox: f.mgr,
		Config: Config{
			Image: "tester",
			Retry: retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		},
		Logger: zap.NewNop(),
	}
	return f
}

func (f *fixture) addTicket(id int64, lang domain.Language, content string) {
	f.repo.Put(&domain.Ticket{ID: id, Language: lang, Content: content, ExerciseID: 5, Status: domain.StatusCreated})
}

// ---- Judge.Execute ----

func TestExecute_RustEndToEnd(t *testing.T) {
	f := newFixture()
	f.addTicket(42, domain.LangRust, "fn main() {}")
	j := NewJudge(domain.LangRust, 0, f.deps)

	out, err := j.Execute(context.Background(), domain.TicketRef{ID: 42, Language: domain.LangRust})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Skipped || out.Judge != "Rust-0" || out.TicketID != 42 {
		t.Errorf("unexpected outcome %+v", out)
	}

	calls := f.mgr.Recorded()
	ops := f.mgr.Ops()
	want := []string{"remove_if_exists", "create", "upload", "upload", "start", "await"}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, ops)
		}
	}

	if calls[1].Name != "tester42" {
		t.Errorf("expected container name tester42, got %q", calls[1].Name)
	}
	if len(calls[1].Env) != 1 || calls[1].Env[0] != "TEST_LANGUAGE=Rust" {
		t.Errorf("unexpected env %v", calls[1].Env)
	}
	if calls[2].Path != "/program" || calls[3].Path != "/tests" {
		t.Errorf("expected /program then /tests, got %s then %s", calls[2].Path, calls[3].Path)
	}
	entries, err := archive.ReadEntries(calls[2].Upload)
	if err != nil || len(entries) != 1 || entries[0].Name != "main.rs" || string(entries[0].Content) != "fn main() {}" {
		t.Errorf("unexpected program archive: %+v, %v", entries, err)
	}
	if string(calls[3].Upload) != "tests-archive" {
		t.Errorf("unexpected tests archive %q", calls[3].Upload)
	}
	if f.mgr.Count("await") != 1 {
		t.Errorf("expected exactly one await, got %d", f.mgr.Count("await"))
	}

	if judged := f.repo.JudgedIDs(); len(judged) != 1 || judged[0] != 42 {
		t.Errorf("expected ticket 42 marked judged, got %v", judged)
	}
	if got, _ := f.repo.GetByID(context.Background(), 42); got.Status != domain.StatusTested {
		t.Errorf("expected status TESTED, got %s", got.Status)
	}
}

func TestExecute_TicketNotFound(t *testing.T) {
	f := newFixture()
	j := NewJudge(domain.LangC, 0, f.deps)

	out, err := j.Execute(context.Background(), domain.TicketRef{ID: 404, Language: domain.LangC})
	if err != nil {
		t.Fatalf("missing ticket must be skipped silently, got %v", err)
	}
	if !out.Skipped {
		t.Error("expected Skipped outcome")
	}
	if f.repo.SubmissionCalls() != 1 {
		t.Errorf("not-found must not be retried, got %d calls", f.repo.SubmissionCalls())
	}
	if len(f.mgr.Recorded()) != 0 {
		t.Errorf("expected no container calls, got %v", f.mgr.Ops())
	}
	if len(f.repo.JudgedIDs()) != 0 {
		t.Error("missing ticket must not be marked judged")
	}
}

func TestExecute_TransientFetchRetriedOnce(t *testing.T) {
	f := newFixture()
	calls := 0
	f.repo.GetSubmissionFn = func(ctx context.Context, id int64) (*domain.Submission, error) {
		calls++
		if calls == 1 {
			return nil, domain.ErrDatabaseUnavailable
		}
		return &domain.Submission{Content: "int main(){}", Language: domain.LangC, ExerciseID: 1}, nil
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	if _, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 fetch attempts, got %d", calls)
	}
	if f.mgr.Count("start") != 1 {
		t.Errorf("expected one container start, got %d", f.mgr.Count("start"))
	}
}

func TestExecute_FetchGivesUp(t *testing.T) {
	f := newFixture()
	f.repo.GetSubmissionFn = func(ctx context.Context, id int64) (*domain.Submission, error) {
		return nil, domain.ErrDatabaseUnavailable
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	if !errors.Is(err, domain.ErrDatabaseUnavailable) {
		t.Fatalf("expected ErrDatabaseUnavailable, got %v", err)
	}
	if f.repo.SubmissionCalls() != 3 {
		t.Errorf("expected 3 attempts, got %d", f.repo.SubmissionCalls())
	}
	if len(f.mgr.Recorded()) != 0 {
		t.Error("expected no container calls")
	}
}

func TestExecute_CorruptSubmissionNotRetried(t *testing.T) {
	f := newFixture()
	f.repo.GetSubmissionFn = func(ctx context.Context, id int64) (*domain.Submission, error) {
		return nil, fmt.Errorf("%w: postgres: ticket %d: unknown language", domain.ErrInternal, id)
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if f.repo.SubmissionCalls() != 1 {
		t.Errorf("expected a single fetch, got %d", f.repo.SubmissionCalls())
	}
	if len(f.mgr.Recorded()) != 0 {
		t.Error("expected no container calls")
	}
}

func TestExecute_MismatchedLanguage(t *testing.T) {
	f := newFixture()
	f.addTicket(9, domain.LangC, "int main(){}")
	j := NewJudge(domain.LangRust, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 9, Language: domain.LangRust})
	var mismatch *domain.MismatchedLanguageError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchedLanguageError, got %v", err)
	}
	if mismatch.JudgeLang != domain.LangRust || mismatch.TicketLang != domain.LangC {
		t.Errorf("unexpected languages in %v", mismatch)
	}
	if len(f.mgr.Recorded()) != 0 {
		t.Error("expected no container calls")
	}
}

func TestExecute_ExerciseNotFound(t *testing.T) {
	f := newFixture()
	f.addTicket(3, domain.LangCpp, "int main(){}")
	f.tests.LoadFn = func(ctx context.Context, exerciseID int64) ([]byte, error) {
		return nil, domain.ErrExerciseNotFound
	}
	j := NewJudge(domain.LangCpp, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 3, Language: domain.LangCpp})
	if !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound, got %v", err)
	}
	if f.tests.Calls() != 1 {
		t.Errorf("missing exercise must not be retried, got %d loads", f.tests.Calls())
	}
	if len(f.mgr.Recorded()) != 0 {
		t.Error("expected no container calls")
	}
}

func TestExecute_PanicReleasesGate(t *testing.T) {
	f := newFixture()
	f.addTicket(1, domain.LangC, "int main(){}")
	f.addTicket(2, domain.LangC, "int main(){}")
	panicked := false
	f.mgr.AwaitFn = func(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error) {
		if !panicked {
			panicked = true
			panic("runtime exploded")
		}
		return sandbox.ExitStatus{}, nil
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if j.Busy() {
		t.Fatal("gate still held after panic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := j.Execute(ctx, domain.TicketRef{ID: 2, Language: domain.LangC}); err != nil {
		t.Fatalf("second execution failed: %v", err)
	}
}

func TestExecute_GateRespectsContext(t *testing.T) {
	f := newFixture()
	f.addTicket(1, domain.LangC, "int main(){}")
	entered := make(chan struct{})
	unblock := make(chan struct{})
	f.mgr.AwaitFn = func(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error) {
		close(entered)
		<-unblock
		return sandbox.ExitStatus{}, nil
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	go j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := j.Execute(ctx, domain.TicketRef{ID: 2, Language: domain.LangC})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline while waiting on the gate, got %v", err)
	}
	close(unblock)
}

func TestExecute_RunTimeoutLeavesTicketUnjudged(t *testing.T) {
	f := newFixture()
	f.addTicket(1, domain.LangC, "int main(){}")
	f.deps.Config.RunTimeout = 20 * time.Millisecond
	f.mgr.AwaitFn = func(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error) {
		<-ctx.Done()
		return sandbox.ExitStatus{}, ctx.Err()
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	_, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	if !errors.Is(err, domain.ErrRunTimeout) {
		t.Fatalf("expected ErrRunTimeout, got %v", err)
	}
	if len(f.repo.JudgedIDs()) != 0 {
		t.Error("timed out ticket must not be marked judged")
	}
}

func TestExecute_CarriesExitAndOutput(t *testing.T) {
	f := newFixture()
	f.addTicket(1, domain.LangC, "int main(){}")
	f.deps.Config.OutputLimit = 1024
	f.mgr.AwaitFn = func(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error) {
		return sandbox.ExitStatus{Code: 1}, nil
	}
	f.mgr.LogsFn = func(ctx context.Context, h sandbox.Handle, limit int) ([]byte, error) {
		return []byte("2 of 3 tests passed"), nil
	}
	j := NewJudge(domain.LangC, 0, f.deps)

	out, err := j.Execute(context.Background(), domain.TicketRef{ID: 1, Language: domain.LangC})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Exit.Code != 1 || string(out.Output) != "2 of 3 tests passed" {
		t.Errorf("unexpected outcome %+v", out)
	}
}
