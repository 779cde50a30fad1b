package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Harsh-BH/alsit/internal/domain"
	"github.com/Harsh-BH/alsit/internal/repository"
)

// GetTicketUsecase handles fetching ticket status.
type GetTicketUsecase struct {
	repo   repository.TicketRepository
	logger *zap.Logger
}

// NewGetTicketUsecase creates a new GetTicketUsecase.
func NewGetTicketUsecase(repo repository.TicketRepository, logger *zap.Logger) *GetTicketUsecase {
	return &GetTicketUsecase{
		repo:   repo,
		logger: logger,
	}
}

// Execute retrieves a ticket by its ID.
func (uc *GetTicketUsecase) Execute(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := uc.repo.GetByID(ctx, id)
	if errors.Is(err, domain.ErrTicketNotFound) {
		uc.logger.Debug("Ticket not found", zap.Int64("ticket_id", id))
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		uc.logger.Error("Failed to fetch ticket", zap.Int64("ticket_id", id), zap.Error(err))
		return nil, err
	}
	return ticket, nil
}
