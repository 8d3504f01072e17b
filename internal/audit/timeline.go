package audit

import "time"

// TimelineFilters narrows the activity log.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit_logs record.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
}

// PagingInfo holds prev/next paging state.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// Result wraps one timeline page.
type Result struct {
	Rows   []TimelineRow
	Paging PagingInfo
}
