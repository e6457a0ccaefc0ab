package event

import (
	"context"

	"go.uber.org/zap"
)

type Service interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventAsProcessed(ctx context.Context, eventID string) error
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger.Named("event.service")}
}

// IsEventProcessed is false for events without an id.
func (s *service) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	return s.repo.Exists(ctx, eventID)
}

func (s *service) MarkEventAsProcessed(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	created, err := s.repo.MarkAsProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if !created {
		s.logger.Debug("event was already marked processed", zap.String("event_id", eventID))
	}
	return nil
}
