package repository

import (
	"context"

	"github.com/Harsh-BH/alsit/internal/domain"
)

// TicketService is the ticket store as seen by the judges.
type TicketService interface {
	// GetSubmission returns what a judge needs to run a ticket.
	// Returns domain.ErrTicketNotFound for unknown ids; any other error is transient.
	GetSubmission(ctx context.Context, id int64) (*domain.Submission, error)

	// MarkJudged records that the ticket has been run.
	MarkJudged(ctx context.Context, id int64) error
}

// TicketRepository is the full ticket store used by the intake surface.
type TicketRepository interface {
	TicketService

	// Create inserts a new ticket. The caller picks the id.
	Create(ctx context.Context, ticket *domain.Ticket) error

	// Exists reports whether a ticket with the given id is stored.
	Exists(ctx context.Context, id int64) (bool, error)

	// GetByID returns the full ticket or domain.ErrTicketNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
}

// ClaimStore guards a ticket against running on two judges at once.
type ClaimStore interface {
	// Claim returns true if the caller now owns the ticket, false if another
	// run already holds it.
	Claim(ctx context.Context, ticketID int64) (bool, error)

	// Release gives the ticket back.
	Release(ctx context.Context, ticketID int64) error
}
