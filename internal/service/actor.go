package service

import (
	"context"
	"errors"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/model"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/apperrors"
	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/repository"
)

// ActorService resolves API credentials to actors.
type ActorService struct {
	store RBACStore
}

func NewActorService(store RBACStore) *ActorService {
	return &ActorService{store: store}
}

// Authenticate maps an API key to its actor. Unknown keys and deactivated
// actors both fail with the same taxonomy type so the response does not leak
// which one it was.
func (s *ActorService) Authenticate(ctx context.Context, apiKey string) (*model.Actor, error) {
	if apiKey == "" {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "missing API key", nil)
	}
	actor, err := s.store.GetActorByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrAuthFailed, "invalid API key", nil)
		}
		return nil, apperrors.Wrap(err)
	}
	if !actor.Active {
		return nil, apperrors.New(apperrors.ErrAuthFailed, "actor is deactivated", nil)
	}
	return actor, nil
}

func (s *ActorService) Get(ctx context.Context, id string) (*model.Actor, error) {
	actor, err := s.store.GetActor(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("actor not found")
		}
		return nil, apperrors.Wrap(err)
	}
	return actor, nil
}
