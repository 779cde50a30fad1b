package domain

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusCreated  TicketStatus = "CREATED"
	StatusCompiled TicketStatus = "COMPILED"
	StatusVerified TicketStatus = "VERIFIED"
	StatusTested   TicketStatus = "TESTED"
)

// IsTerminal returns true if the status represents a final state.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusTested
}

// Ticket is a persisted code submission.
type Ticket struct {
	ID         int64        `json:"ticket_id"`
	UserID     int64        `json:"user_id"`
	Language   Language     `json:"language"`
	Content    string       `json:"content"`
	ExerciseID int64        `json:"exercise_id"`
	Status     TicketStatus `json:"status"`
	ResultsID  *int64       `json:"results_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Ref returns the routing part of the ticket.
func (t *Ticket) Ref() TicketRef {
	return TicketRef{ID: t.ID, Language: t.Language}
}

// TicketRef is what the dispatcher needs to route a ticket.
type TicketRef struct {
	ID       int64    `json:"ticket_id"`
	Language Language `json:"language"`
}

// Submission is the part of a ticket a judge needs to run it.
type Submission struct {
	Content    string
	Language   Language
	ExerciseID int64
}

// SubmitRequest represents an incoming ticket from the API.
type SubmitRequest struct {
	UserID     int64  `json:"user_id"`
	Language   string `json:"language" binding:"required"`
	Content    string `json:"content" binding:"required"`
	ExerciseID int64  `json:"exercise_id" binding:"required"`
}

// SubmitResponse is returned after a ticket was accepted.
type SubmitResponse struct {
	TicketID int64        `json:"ticket_id"`
	Status   TicketStatus `json:"status"`
}

// LanguageInfo describes a supported language and the judges serving it.
type LanguageInfo struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Judges    int    `json:"judges"`
}
