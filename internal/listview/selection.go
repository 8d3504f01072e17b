package listview

import (
	"sort"
	"strings"
	"sync"
)

// Scope selects which records a select-all toggle covers.
type Scope string

const (
	// ScopePage covers only the rows currently displayed. Several screens
	// rely on this as the default.
	ScopePage Scope = "page"
	// ScopeAllMatching covers every record matching the current query.
	ScopeAllMatching Scope = "all-matching"
)

// ParseScope maps user input onto a Scope, defaulting to ScopePage.
func ParseScope(raw string) Scope {
	if Scope(strings.TrimSpace(strings.ToLower(raw))) == ScopeAllMatching {
		return ScopeAllMatching
	}
	return ScopePage
}

// Selection is a set of selected row ids. Ids outside the current page are
// kept until explicitly cleared.
type Selection struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[string]struct{})}
}

// ToggleOne flips membership of id and reports whether it is now selected.
func (s *Selection) ToggleOne(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// ToggleAll clears the whole selection when every id in ids is already
// selected, otherwise selects all of ids.
func (s *Selection) ToggleAll(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) > 0 && s.containsAllLocked(ids) {
		s.ids = make(map[string]struct{})
		return
	}
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// AllSelected reports whether every id in ids is selected.
func (s *Selection) AllSelected(ids []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(ids) > 0 && s.containsAllLocked(ids)
}

// IsSelected reports membership of id.
func (s *Selection) IsSelected(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Clear empties the selection.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.ids = make(map[string]struct{})
	s.mu.Unlock()
}

// Len returns the number of selected ids.
func (s *Selection) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (s *Selection) containsAllLocked(ids []string) bool {
	for _, id := range ids {
		if _, ok := s.ids[strings.TrimSpace(id)]; !ok {
			return false
		}
	}
	return true
}
