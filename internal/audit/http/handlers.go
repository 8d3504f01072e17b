package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/altss/altss/internal/audit"
	"github.com/altss/altss/internal/auth"
	"github.com/altss/altss/internal/rbac"
	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/internal/view"
)

const (
	dateLayout        = "2006-01-02"
	defaultPageSize   = 20
	maxPageSize       = 50
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
)

// TimelineService is the activity log contract.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the admin activity log.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	now       func() time.Time
}

// NewHandler builds the activity log handler.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, now: time.Now}
}

// Row is a timeline row prepared for display.
type Row struct {
	audit.TimelineRow
	Summary string
}

// ViewModel backs pages/admin/audit.html.
type ViewModel struct {
	From       string
	To         string
	Actor      string
	Entity     string
	Action     string
	Entities   []string
	Rows       []Row
	Paging     audit.PagingInfo
	PrevHref   string
	NextHref   string
	ExportHref string
	Error      string
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	vm := h.buildViewModel(filters)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		vm.Error = "The activity log could not be loaded. Please try again."
	}
	vm.Rows = make([]Row, 0, len(result.Rows))
	for _, row := range result.Rows {
		vm.Rows = append(vm.Rows, Row{TimelineRow: row, Summary: audit.MetaSummary(row.Meta)})
	}
	vm.Paging = result.Paging
	if result.Paging.PrevPage > 0 {
		vm.PrevHref = pageHref(r.URL.Query(), result.Paging.PrevPage)
	}
	if result.Paging.NextPage > 0 {
		vm.NextHref = pageHref(r.URL.Query(), result.Paging.NextPage)
	}
	h.render(w, r, vm)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activity-"+filters.To.Format("20060102")+".csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	query := r.URL.Query()
	now := h.now().UTC()
	toStr := strings.TrimSpace(query.Get("to"))
	if toStr == "" {
		toStr = now.Format(dateLayout)
	}
	toTime, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "to"}
	}
	fromStr := strings.TrimSpace(query.Get("from"))
	if fromStr == "" {
		fromStr = toTime.Add(-defaultDateRange).Format(dateLayout)
	}
	fromTime, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return audit.TimelineFilters{}, validationError{field: "from"}
	}
	if fromTime.After(toTime) || toTime.Sub(fromTime) > maxDateRangeHours*time.Hour {
		return audit.TimelineFilters{}, validationError{field: "range"}
	}

	page := 1
	if v := strings.TrimSpace(query.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		page = parsed
	}
	pageSize := defaultPageSize
	if v := strings.TrimSpace(query.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		pageSize = min(parsed, maxPageSize)
	}

	return audit.TimelineFilters{
		From:     fromTime,
		To:       toTime,
		Actor:    strings.TrimSpace(query.Get("actor")),
		Entity:   strings.TrimSpace(query.Get("entity")),
		Action:   strings.TrimSpace(query.Get("action")),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (h *Handler) buildViewModel(filters audit.TimelineFilters) ViewModel {
	vm := ViewModel{
		From:   filters.From.Format(dateLayout),
		To:     filters.To.Format(dateLayout),
		Actor:  filters.Actor,
		Entity: filters.Entity,
		Action: filters.Action,
		// Entities written by the dashboard's audit logger.
		Entities: []string{"account", "company", "saved_search"},
	}
	export := url.Values{"from": {vm.From}, "to": {vm.To}}
	for key, value := range map[string]string{"actor": vm.Actor, "entity": vm.Entity, "action": vm.Action} {
		if value != "" {
			export.Set(key, value)
		}
	}
	vm.ExportHref = "/admin/audit/export.csv?" + export.Encode()
	return vm
}

func pageHref(query url.Values, page int) string {
	next := url.Values{}
	for k, v := range query {
		next[k] = v
	}
	next.Set("page", strconv.Itoa(page))
	return "/admin/audit?" + next.Encode()
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, vm ViewModel) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Activity log",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        auth.ViewUser(r.Context()),
		Data:        vm,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "pages/admin/audit.html", data); err != nil {
		h.logger.Error("render audit timeline", slog.Any("error", err))
	}
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		http.Error(w, "invalid "+v.field, http.StatusBadRequest)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
