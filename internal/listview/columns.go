package listview

import (
	"errors"
	"sync"
)

// ErrUnknownColumn is returned when resizing a column the table does not define.
var ErrUnknownColumn = errors.New("listview: unknown column")

// Column describes a table column and its default width percentage.
type Column struct {
	ID    string
	Label string
	Width float64
}

// ColumnSizes holds the width percentage of each column of one table. Widths
// are independent and are not required to sum to 100.
type ColumnSizes struct {
	mu      sync.RWMutex
	order   []string
	widths  map[string]float64
	columns map[string]Column
}

// NewColumnSizes seeds the store from the table's column defaults.
func NewColumnSizes(columns []Column) *ColumnSizes {
	cs := &ColumnSizes{
		order:   make([]string, 0, len(columns)),
		widths:  make(map[string]float64, len(columns)),
		columns: make(map[string]Column, len(columns)),
	}
	for _, c := range columns {
		if _, dup := cs.columns[c.ID]; dup {
			continue
		}
		cs.order = append(cs.order, c.ID)
		cs.widths[c.ID] = c.Width
		cs.columns[c.ID] = c
	}
	return cs
}

// Resize replaces the width of a single column.
func (cs *ColumnSizes) Resize(id string, width float64) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.columns[id]; !ok {
		return ErrUnknownColumn
	}
	cs.widths[id] = width
	return nil
}

// Width returns the current width of a column.
func (cs *ColumnSizes) Width(id string) (float64, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	w, ok := cs.widths[id]
	return w, ok
}

// Columns returns the columns in table order with their current widths.
func (cs *ColumnSizes) Columns() []Column {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]Column, 0, len(cs.order))
	for _, id := range cs.order {
		c := cs.columns[id]
		c.Width = cs.widths[id]
		out = append(out, c)
	}
	return out
}
