package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusLimitReached is the non-standard status the directory backend uses for
// exhausted enrichment quotas.
const StatusLimitReached = 455

var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("backend: not found")
	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("backend: unauthorized")
)

// LimitErrorType enumerates quota kinds reported with StatusLimitReached.
type LimitErrorType string

const (
	LimitPersonalEmail LimitErrorType = "personal_email_limit"
	LimitBusinessEmail LimitErrorType = "business_email_limit"
	LimitPersonalPhone LimitErrorType = "personal_phone_limit"
	LimitBusinessPhone LimitErrorType = "business_phone_limit"
)

// Valid reports whether t is a known limit type.
func (t LimitErrorType) Valid() bool {
	switch t {
	case LimitPersonalEmail, LimitBusinessEmail, LimitPersonalPhone, LimitBusinessPhone:
		return true
	}
	return false
}

// Label is a human readable name for the exhausted quota.
func (t LimitErrorType) Label() string {
	switch t {
	case LimitPersonalEmail:
		return "personal email"
	case LimitBusinessEmail:
		return "business email"
	case LimitPersonalPhone:
		return "personal phone"
	case LimitBusinessPhone:
		return "business phone"
	}
	return "enrichment"
}

// LimitError reports an exhausted trial quota.
type LimitError struct {
	Type    LimitErrorType `json:"type"`
	Message string         `json:"message"`
}

func (e *LimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend: %s limit reached: %s", e.Type.Label(), e.Message)
	}
	return fmt.Sprintf("backend: %s limit reached", e.Type.Label())
}

// SafeMessage is shown in the limit modal.
func (e *LimitError) SafeMessage() string {
	return fmt.Sprintf("You have reached your %s enrichment limit.", e.Type.Label())
}

// StatusError is an unexpected non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend: %s %s returned %d", e.Method, e.Path, e.Status)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// UserMessage turns a backend error into text safe to show to end users.
func UserMessage(err error) string {
	var limit *LimitError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &limit):
		return limit.SafeMessage()
	case errors.Is(err, ErrUnauthorized):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrNotFound):
		return "The requested record could not be found."
	}
	return "Failed to load data. Please try again."
}
