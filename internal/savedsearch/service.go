package savedsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/altss/altss/internal/events"
	"github.com/altss/altss/internal/shared"
)

// RepositoryPort defines data access methods for saved searches.
type RepositoryPort interface {
	Insert(ctx context.Context, s SavedSearch) error
	ListByOwner(ctx context.Context, ownerID string) ([]SavedSearch, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// Auditor records user actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles saved search business logic.
type Service struct {
	repo     RepositoryPort
	audit    Auditor
	bus      events.Bus
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service instance. audit and bus may be nil.
func NewService(repo RepositoryPort, audit Auditor, bus events.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		audit:    audit,
		bus:      bus,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Save validates and stores a new saved search for owner.
func (s *Service) Save(ctx context.Context, ownerID string, in SaveInput) (SavedSearch, error) {
	in.Name = strings.TrimSpace(in.Name)
	if ownerID == "" {
		return SavedSearch{}, invalid("Sign in to save searches.")
	}
	if err := s.validate.Struct(in); err != nil {
		return SavedSearch{}, nameError(err)
	}
	if in.Filter.Empty() {
		return SavedSearch{}, invalid("Choose at least one firm type or enter a search.")
	}
	search := SavedSearch{
		ID:        uuid.New(),
		Name:      in.Name,
		OwnerID:   ownerID,
		Filter:    in.Filter.normalized(),
		CreatedAt: s.now(),
	}
	if err := s.repo.Insert(ctx, search); err != nil {
		if errors.Is(err, ErrLimit) {
			return SavedSearch{}, invalid(fmt.Sprintf("You can keep at most %d saved searches.", MaxPerOwner))
		}
		return SavedSearch{}, fmt.Errorf("insert saved search: %w", err)
	}
	s.record(ctx, ownerID, "saved_search.create", search.ID, map[string]any{"name": search.Name})
	s.publish(ctx, ownerID)
	return search, nil
}

// List returns owner's saved searches, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]SavedSearch, error) {
	if ownerID == "" {
		return nil, nil
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Remove deletes one of owner's saved searches.
func (s *Service) Remove(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" || id == uuid.Nil {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.record(ctx, ownerID, "saved_search.delete", id, nil)
	s.publish(ctx, ownerID)
	return nil
}

func nameError(err error) error {
	var fields validator.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 && fields[0].Tag() == "max" {
		return invalid(fmt.Sprintf("Name is too long. Use at most %s characters.", fields[0].Param()))
	}
	return invalid("Name is required.")
}

func (s *Service) record(ctx context.Context, ownerID, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: ownerID, Action: action, Entity: "saved_search", EntityID: id.String(), Meta: meta})
	if err != nil {
		s.logger.Warn("audit saved search", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, ownerID string) {
	if s.bus == nil {
		return
	}
	evt, err := events.NewEvent(events.TopicSavedSearchesUpdated, ownerID, nil)
	if err == nil {
		err = s.bus.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Warn("publish saved searches update", slog.Any("error", err))
	}
}
