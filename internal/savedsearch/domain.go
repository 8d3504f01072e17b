// Package savedsearch stores named directory filters per user.
package savedsearch

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValidation indicates the search was rejected before persistence.
	ErrValidation = errors.New("savedsearch: validation failed")
	// ErrNotFound indicates no search with that id belongs to the user.
	ErrNotFound = errors.New("savedsearch: not found")
	// ErrLimit indicates the user already keeps MaxPerOwner searches.
	ErrLimit = errors.New("savedsearch: limit reached")
)

// MaxPerOwner caps the searches one user can keep.
const MaxPerOwner = 50

type validationError struct{ msg string }

func invalid(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string       { return "savedsearch: " + e.msg }
func (e *validationError) SafeMessage() string { return e.msg }
func (e *validationError) Unwrap() error       { return ErrValidation }

// Filter is the persisted filter criteria.
type Filter struct {
	FirmTypes   []string `json:"firm_types"`
	SearchQuery string   `json:"search_query"`
}

// Empty reports whether the filter carries no criteria.
func (f Filter) Empty() bool {
	return len(f.normalizedFirmTypes()) == 0 && strings.TrimSpace(f.SearchQuery) == ""
}

func (f Filter) normalized() Filter {
	return Filter{FirmTypes: f.normalizedFirmTypes(), SearchQuery: strings.TrimSpace(f.SearchQuery)}
}

func (f Filter) normalizedFirmTypes() []string {
	out := make([]string, 0, len(f.FirmTypes))
	seen := make(map[string]struct{}, len(f.FirmTypes))
	for _, ft := range f.FirmTypes {
		ft = strings.TrimSpace(ft)
		if ft == "" {
			continue
		}
		if _, ok := seen[ft]; ok {
			continue
		}
		seen[ft] = struct{}{}
		out = append(out, ft)
	}
	return out
}

// SavedSearch is a named filter owned by one user.
type SavedSearch struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	Filter    Filter    `json:"filter"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveInput captures the fields accepted when saving a search.
type SaveInput struct {
	Name   string `json:"name" validate:"required,max=120"`
	Filter Filter `json:"filter"`
}
