// Package users lets administrators approve, block and re-plan dashboard
// accounts.
package users

import (
	"errors"

	"github.com/altss/altss/internal/backend"
)

// ErrValidation marks a change rejected before it reached the backend.
var ErrValidation = errors.New("users: validation failed")

type validationError struct{ msg string }

func invalid(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string       { return "users: " + e.msg }
func (e *validationError) SafeMessage() string { return e.msg }
func (e *validationError) Unwrap() error       { return ErrValidation }

// PlanInput is the plan change form.
type PlanInput struct {
	Plan string `validate:"required,oneof=trial pro expired"`
}

// StatusInput is the status change form.
type StatusInput struct {
	Status string `validate:"required,oneof=pending approved blocked"`
}

// Plans lists the selectable plans.
var Plans = []string{backend.PlanTrial, backend.PlanPro, backend.PlanExpired}

// Statuses lists the selectable statuses.
var Statuses = []string{backend.StatusPending, backend.StatusApproved, backend.StatusBlocked}
