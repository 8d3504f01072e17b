package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/altss/altss/internal/backend"
	"github.com/altss/altss/internal/listview"
	"github.com/altss/altss/internal/shared"
)

// ErrValidation wraps FieldErrors.
var ErrValidation = errors.New("integration: validation failed")

// FieldErrors maps form field names to messages.
type FieldErrors map[string]string

func (e FieldErrors) Error() string { return "integration: invalid fields" }
func (e FieldErrors) Unwrap() error { return ErrValidation }

// CompanyAPI is the backend surface used by the tool.
type CompanyAPI interface {
	Companies() *backend.ListFetcher[backend.Company]
	Company(ctx context.Context, id string) (backend.Company, error)
	CreateCompany(ctx context.Context, in backend.Company) (backend.Company, error)
	UpdateCompany(ctx context.Context, id string, in backend.Company) (backend.Company, error)
	DeleteCompany(ctx context.Context, id string) error
}

// Auditor records company writes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service validates and forwards company writes.
type Service struct {
	api      CompanyAPI
	hooks    *Hooks
	audit    Auditor
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds a Service. hooks and audit may be nil.
func NewService(api CompanyAPI, hooks *Hooks, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	return &Service{api: api, hooks: hooks, audit: audit, validate: v, logger: logger}
}

// List returns one page of companies.
func (s *Service) List(ctx context.Context, q listview.Query) (listview.Result[backend.Company], error) {
	return s.api.Companies().Fetch(ctx, q.Normalize())
}

// Get loads one company.
func (s *Service) Get(ctx context.Context, id string) (backend.Company, error) {
	return s.api.Company(ctx, id)
}

// Create validates form and creates the company.
func (s *Service) Create(ctx context.Context, actorID string, form CompanyForm) (backend.Company, error) {
	in, err := s.check(form)
	if err != nil {
		return backend.Company{}, err
	}
	out, err := s.api.CreateCompany(ctx, in)
	if err != nil {
		return backend.Company{}, fmt.Errorf("create company: %w", err)
	}
	s.committed(ctx, actorID, "company.create", out.ID.String(), map[string]any{"name": out.Name})
	return out, nil
}

// Update validates form and replaces the company's fields.
func (s *Service) Update(ctx context.Context, actorID, id string, form CompanyForm) (backend.Company, error) {
	in, err := s.check(form)
	if err != nil {
		return backend.Company{}, err
	}
	out, err := s.api.UpdateCompany(ctx, id, in)
	if err != nil {
		return backend.Company{}, fmt.Errorf("update company: %w", err)
	}
	s.committed(ctx, actorID, "company.update", id, map[string]any{"name": out.Name})
	return out, nil
}

// Delete removes the company.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if err := s.api.DeleteCompany(ctx, id); err != nil {
		return fmt.Errorf("delete company: %w", err)
	}
	s.committed(ctx, actorID, "company.delete", id, nil)
	return nil
}

func (s *Service) check(form CompanyForm) (backend.Company, error) {
	in, err := form.Company()
	if err != nil {
		return backend.Company{}, FieldErrors{"aum": "Enter an amount such as 250M or 1.2B."}
	}
	if err := s.validate.Struct(in); err != nil {
		errs := FieldErrors{}
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = fieldMessage(fe)
			}
		}
		return backend.Company{}, errs
	}
	return in, nil
}

func (s *Service) committed(ctx context.Context, actorID, action, id string, meta map[string]any) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "company", EntityID: id, Meta: meta}); err != nil {
			s.logger.Warn("audit company write", slog.String("action", action), slog.Any("error", err))
		}
	}
	s.hooks.AfterWrite(ctx, Change{Action: action, CompanyID: id, ActorID: actorID})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "max":
		return "Must be at most " + fe.Param() + " characters."
	case "url":
		return "Enter a full URL starting with https://."
	case "gte":
		return "Must not be negative."
	}
	return "Invalid value."
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
