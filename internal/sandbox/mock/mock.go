package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/alsit/internal/sandbox"
)

var _ sandbox.Manager = (*Manager)(nil)

// Call is one recorded Manager invocation.
type Call struct {
	Op     string
	Name   string
	Path   string
	Image  string
	Env    []string
	Upload []byte
}

// Manager is a recording test double for sandbox.Manager. Without hooks every
// operation succeeds and Await reports exit code 0.
type Manager struct {
	mu sync.Mutex

	RemoveIfExistsFn func(ctx context.Context, name string) error
	CreateFn         func(ctx context.Context, name, image string, env []string) (sandbox.Handle, error)
	UploadFn         func(ctx context.Context, h sandbox.Handle, path string, archive []byte) error
	StartFn          func(ctx context.Context, h sandbox.Handle) error
	AwaitFn          func(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error)
	LogsFn           func(ctx context.Context, h sandbox.Handle, limit int) ([]byte, error)
	RemoveFn         func(ctx context.Context, h sandbox.Handle) error

	Calls []Call
}

func (m *Manager) record(c Call) {
	m.mu.Lock()
	m.Calls = append(m.Calls, c)
	m.mu.Unlock()
}

// Recorded returns a copy of the calls made so far.
func (m *Manager) Recorded() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// Ops returns the recorded operation names in order.
func (m *Manager) Ops() []string {
	calls := m.Recorded()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Count returns how many times op was called.
func (m *Manager) Count(op string) int {
	n := 0
	for _, c := range m.Recorded() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (m *Manager) RemoveIfExists(ctx context.Context, name string) error {
	m.record(Call{Op: "remove_if_exists", Name: name})
	if m.RemoveIfExistsFn != nil {
		return m.RemoveIfExistsFn(ctx, name)
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, name, image string, env []string) (sandbox.Handle, error) {
	m.record(Call{Op: "create", Name: name, Image: image, Env: env})
	if m.CreateFn != nil {
		return m.CreateFn(ctx, name, image, env)
	}
	return sandbox.Handle{ID: "id-" + name, Name: name}, nil
}

func (m *Manager) Upload(ctx context.Context, h sandbox.Handle, path string, archive []byte) error {
	m.record(Call{Op: "upload", Name: h.Name, Path: path, Upload: archive})
	if m.UploadFn != nil {
		return m.UploadFn(ctx, h, path, archive)
	}
	return nil
}

func (m *Manager) Start(ctx context.Context, h sandbox.Handle) error {
	m.record(Call{Op: "start", Name: h.Name})
	if m.StartFn != nil {
		return m.StartFn(ctx, h)
	}
	return nil
}

func (m *Manager) Await(ctx context.Context, h sandbox.Handle) (sandbox.ExitStatus, error) {
	m.record(Call{Op: "await", Name: h.Name})
	if m.AwaitFn != nil {
		return m.AwaitFn(ctx, h)
	}
	return sandbox.ExitStatus{}, nil
}

func (m *Manager) Logs(ctx context.Context, h sandbox.Handle, limit int) ([]byte, error) {
	m.record(Call{Op: "logs", Name: h.Name})
	if m.LogsFn != nil {
		return m.LogsFn(ctx, h, limit)
	}
	return nil, nil
}

func (m *Manager) Remove(ctx context.Context, h sandbox.Handle) error {
	m.record(Call{Op: "remove", Name: h.Name})
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, h)
	}
	return nil
}
