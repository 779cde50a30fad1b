package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/repository"
)

// Ensure pgTicketRepo implements repository.TicketRepository.
var _ repository.TicketRepository = (*pgTicketRepo)(nil)

type pgTicketRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository creates a new PostgreSQL-backed ticket repository.
func NewPostgresTicketRepository(pool *pgxpool.Pool) repository.TicketRepository {
	return &pgTicketRepo{pool: pool}
}

func (r *pgTicketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	query := `
		INSERT INTO tickets (ticket_id, user_id, language, content, exercise_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Language.String(), t.Content,
		t.ExerciseID, t.Status, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: postgres: create ticket: %w", domain.ErrDatabaseUnavailable, err)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

func (r *pgTicketRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tickets WHERE ticket_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: postgres: check ticket id: %w", domain.ErrDatabaseUnavailable, err)
	}
	return exists, nil
}

func (r *pgTicketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `
		SELECT ticket_id, user_id, language, content, exercise_id, status,
		       results_id, created_at, updated_at
		FROM tickets
		WHERE ticket_id = $1`

	t := &domain.Ticket{}
	var lang string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.UserID, &lang, &t.Content, &t.ExerciseID, &t.Status,
		&t.ResultsID, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: get ticket by id: %w", domain.ErrDatabaseUnavailable, err)
	}
	if t.Language, err = storedLanguage(id, lang); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *pgTicketRepo) GetSubmission(ctx context.Context, id int64) (*domain.Submission, error) {
	query := `SELECT content, language, exercise_id FROM tickets WHERE ticket_id = $1`

	s := &domain.Submission{}
	var lang string
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.Content, &lang, &s.ExerciseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: get submission: %w", domain.ErrDatabaseUnavailable, err)
	}
	if s.Language, err = storedLanguage(id, lang); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *pgTicketRepo) MarkJudged(ctx context.Context, id int64) error {
	query := `UPDATE tickets SET status = $1, updated_at = $2 WHERE ticket_id = $3`
	tag, err := r.pool.Exec(ctx, query, domain.StatusTested, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: postgres: mark judged: %w", domain.ErrDatabaseUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketNotFound
	}
	return nil
}

// storedLanguage parses the language column. A value outside the known set is
// corrupt data, reported as domain.ErrInternal.
func storedLanguage(id int64, name string) (domain.Language, error) {
	lang, err := domain.ParseLanguage(name)
	if err != nil {
		return 0, fmt.Errorf("%w: postgres: ticket %d: %w", domain.ErrInternal, id, err)
	}
	return lang, nil
}
