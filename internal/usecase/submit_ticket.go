package usecase

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/judge"
	"github.com/Harsh-BH/alsit/internal/repository"
)

const (
	maxSourceCodeSize = 1 << 20 // 1 MB

	// maxIDProbes bounds the search for an unused ticket id.
	maxIDProbes = 16
)

// Dispatcher hands a stored ticket to a judge.
type Dispatcher interface {
	Dispatch(ctx context.Context, ref domain.TicketRef) (*judge.Task, error)
}

// SubmitTicketUsecase validates, stores and dispatches new tickets.
type SubmitTicketUsecase struct {
	repo       repository.TicketRepository
	dispatcher Dispatcher
	logger     *zap.Logger
	newID      func() int64
}

// NewSubmitTicketUsecase creates a new SubmitTicketUsecase.
func NewSubmitTicketUsecase(repo repository.TicketRepository, dispatcher Dispatcher, logger *zap.Logger) *SubmitTicketUsecase {
	return &SubmitTicketUsecase{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		newID:      randomTicketID,
	}
}

func randomTicketID() int64 {
	return rand.Int64N(math.MaxInt64) + 1
}

// Execute validates the submission, stores it as CREATED and dispatches it.
// When no judge can take the ticket it stays CREATED and domain.ErrNoCapacity
// is returned along with the stored ticket id.
func (uc *SubmitTicketUsecase) Execute(ctx context.Context, req *domain.SubmitRequest) (*domain.SubmitResponse, error) {
	lang, err := domain.ParseLanguage(req.Language)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, domain.ErrEmptySource
	}
	if len(req.Content) > maxSourceCodeSize {
		return nil, domain.ErrPayloadTooLarge
	}
	if req.ExerciseID <= 0 {
		return nil, domain.ErrInvalidExercise
	}

	id, err := uc.allocateID(ctx)
	if err != nil {
		uc.logger.Error("Failed to allocate ticket id", zap.Error(err))
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:         id,
		UserID:     req.UserID,
		Language:   lang,
		Content:    req.Content,
		ExerciseID: req.ExerciseID,
		Status:     domain.StatusCreated,
	}
	if err := uc.repo.Create(ctx, ticket); err != nil {
		uc.logger.Error("Failed to create ticket in database", zap.Error(err), zap.Int64("ticket_id", id))
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	resp := &domain.SubmitResponse{TicketID: id, Status: domain.StatusCreated}

	if _, err := uc.dispatcher.Dispatch(ctx, ticket.Ref()); err != nil {
		uc.logger.Warn("Ticket stored but not dispatched",
			zap.Int64("ticket_id", id),
			zap.String("language", lang.String()),
			zap.Error(err),
		)
		return resp, err
	}

	uc.logger.Info("Ticket submitted successfully",
		zap.Int64("ticket_id", id),
		zap.String("language", lang.String()),
		zap.Int64("exercise_id", req.ExerciseID),
	)
	return resp, nil
}

func (uc *SubmitTicketUsecase) allocateID(ctx context.Context) (int64, error) {
	for range maxIDProbes {
		id := uc.newID()
		taken, err := uc.repo.Exists(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("check ticket id: %w", err)
		}
		if !taken {
			return id, nil
		}
	}
	return 0, domain.ErrTicketIDExhausted
}
