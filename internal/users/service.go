package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/shared"
)

// AccountsAPI is the backend surface used for account administration.
type AccountsAPI interface {
	Accounts() *backend.ListFetcher[backend.Account]
	SetPlan(ctx context.Context, id, plan string) (backend.Account, error)
	SetStatus(ctx context.Context, id, status string) (backend.Account, error)
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles account administration.
type Service struct {
	api      AccountsAPI
	audit    Auditor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds Service instance. audit may be nil.
func NewService(api AccountsAPI, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, audit: audit, validate: validator.New(), logger: logger}
}

// ListUsers returns one page of accounts.
func (s *Service) ListUsers(ctx context.Context, q listview.Query) (listview.Result[backend.Account], error) {
	return s.api.Accounts().Fetch(ctx, q.Normalize())
}

// ChangePlan moves an account to another plan.
func (s *Service) ChangePlan(ctx context.Context, actorID, id string, in PlanInput) (backend.Account, error) {
	in.Plan = strings.TrimSpace(strings.ToLower(in.Plan))
	if err := s.validate.Struct(in); err != nil {
		return backend.Account{}, invalid("Choose a valid plan.")
	}
	acc, err := s.api.SetPlan(ctx, id, in.Plan)
	if err != nil {
		return backend.Account{}, fmt.Errorf("set plan: %w", err)
	}
	s.record(ctx, actorID, "account.plan", id, map[string]any{"plan": in.Plan})
	return acc, nil
}

// ChangeStatus approves, blocks or resets an account. Administrators cannot
// block themselves.
func (s *Service) ChangeStatus(ctx context.Context, actorID, id string, in StatusInput) (backend.Account, error) {
	in.Status = strings.TrimSpace(strings.ToLower(in.Status))
	if err := s.validate.Struct(in); err != nil {
		return backend.Account{}, invalid("Choose a valid status.")
	}
	if id == actorID && in.Status != backend.StatusApproved {
		return backend.Account{}, invalid("You cannot change your own access.")
	}
	acc, err := s.api.SetStatus(ctx, id, in.Status)
	if err != nil {
		return backend.Account{}, fmt.Errorf("set status: %w", err)
	}
	s.record(ctx, actorID, "account.status", id, map[string]any{"status": in.Status})
	return acc, nil
}

func (s *Service) record(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "account", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("audit account change", slog.String("action", action), slog.Any("error", err))
	}
}
