package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/repository"
)

// ---- TicketRepository mock ----

var _ repository.TicketRepository = (*TicketRepository)(nil)

// TicketRepository is a test double for repository.TicketRepository. Without
// hooks it behaves like an in-memory store keyed by ticket id.
type TicketRepository struct {
	mu      sync.Mutex
	tickets map[int64]*domain.Ticket

	CreateFn        func(ctx context.Context, t *domain.Ticket) error
	ExistsFn        func(ctx context.Context, id int64) (bool, error)
	GetByIDFn       func(ctx context.Context, id int64) (*domain.Ticket, error)
	GetSubmissionFn func(ctx context.Context, id int64) (*domain.Submission, error)
	MarkJudgedFn    func(ctx context.Context, id int64) error

	// Recorded calls for assertions.
	Created            []int64
	ExistsCalls        []int64
	SubmissionRequests []int64
	Judged             []int64
}

// Put stores a ticket directly, bypassing Create.
func (m *TicketRepository) Put(t *domain.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickets == nil {
		m.tickets = make(map[int64]*domain.Ticket)
	}
	cp := *t
	m.tickets[t.ID] = &cp
}

func (m *TicketRepository) Create(ctx context.Context, t *domain.Ticket) error {
	m.mu.Lock()
	m.Created = append(m.Created, t.ID)
	m.mu.Unlock()
	if m.CreateFn != nil {
		return m.CreateFn(ctx, t)
	}
	m.Put(t)
	return nil
}

func (m *TicketRepository) Exists(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	m.ExistsCalls = append(m.ExistsCalls, id)
	_, ok := m.tickets[id]
	m.mu.Unlock()
	if m.ExistsFn != nil {
		return m.ExistsFn(ctx, id)
	}
	return ok, nil
}

func (m *TicketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *TicketRepository) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	m.mu.Lock()
	m.SubmissionRequests = append(m.SubmissionRequests, id)
	t, ok := m.tickets[id]
	m.mu.Unlock()
	if m.GetSubmissionFn != nil {
		return m.GetSubmissionFn(ctx, id)
	}
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return &domain.Submission{Content: t.Content, Language: t.Language, ExerciseID: t.ExerciseID}, nil
}

func (m *TicketRepository) MarkJudged(ctx context.Context, id int64) error {
	m.mu.Lock()
	m.Judged = append(m.Judged, id)
	if t, ok := m.tickets[id]; ok && m.MarkJudgedFn == nil {
		t.Status = domain.StatusTested
	}
	m.mu.Unlock()
	if m.MarkJudgedFn != nil {
		return m.MarkJudgedFn(ctx, id)
	}
	return nil
}

// JudgedIDs returns a copy of the ids passed to MarkJudged.
func (m *TicketRepository) JudgedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.Judged...)
}

// SubmissionCalls returns how many times GetSubmission was called.
func (m *TicketRepository) SubmissionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SubmissionRequests)
}

// ---- ClaimStore mock ----

var _ repository.ClaimStore = (*ClaimStore)(nil)

// ClaimStore is a test double for repository.ClaimStore. Without hooks it
// grants each ticket to one holder at a time.
type ClaimStore struct {
	mu   sync.Mutex
	held map[int64]bool

	ClaimFn   func(ctx context.Context, ticketID int64) (bool, error)
	ReleaseFn func(ctx context.Context, ticketID int64) error

	ClaimCalls   []int64
	ReleaseCalls []int64
}

func (m *ClaimStore) Claim(ctx context.Context, ticketID int64) (bool, error) {
	m.mu.Lock()
	m.ClaimCalls = append(m.ClaimCalls, ticketID)
	if m.ClaimFn != nil {
		m.mu.Unlock()
		return m.ClaimFn(ctx, ticketID)
	}
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[int64]bool)
	}
	if m.held[ticketID] {
		return false, nil
	}
	m.held[ticketID] = true
	return true, nil
}

func (m *ClaimStore) Release(ctx context.Context, ticketID int64) error {
	m.mu.Lock()
	m.ReleaseCalls = append(m.ReleaseCalls, ticketID)
	delete(m.held, ticketID)
	m.mu.Unlock()
	if m.ReleaseFn != nil {
		return m.ReleaseFn(ctx, ticketID)
	}
	return nil
}

// Released returns a copy of the released ticket ids.
func (m *ClaimStore) Released() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ReleaseCalls...)
}

// Claimed returns a copy of the ticket ids passed to Claim.
func (m *ClaimStore) Claimed() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ClaimCalls...)
}
