package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/altss/altss/internal/shared"
	"github.com/altss/altss/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *UserInfo
	Data        any
}

// UserInfo is the signed-in user shown in the navigation.
type UserInfo struct {
	Email string
	Role  string
}

var (
	printer = message.NewPrinter(language.English)
	titler  = cases.Title(language.English)
)

// FormatNumber renders n with thousands separators.
func FormatNumber(n int) string {
	return printer.Sprintf("%d", n)
}

// FormatAmount renders a currency amount without decimals.
func FormatAmount(v float64) string {
	return printer.Sprintf("$%.0f", v)
}

// Humanize turns snake_case identifiers into title-cased labels.
func Humanize(s string) string {
	return titler.String(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"formatNumber": FormatNumber,
		"formatAmount": FormatAmount,
		"humanize":     Humanize,
		"join":         strings.Join,
		"add":          func(a, b int) int { return a + b },
		"contains": func(list []string, v string) bool {
			for _, item := range list {
				if item == v {
					return true
				}
			}
			return false
		},
		// withParam returns query with key replaced by value.
		"withParam": func(query url.Values, key string, value any) string {
			next := url.Values{}
			for k, vs := range query {
				next[k] = append([]string(nil), vs...)
			}
			next.Set(key, fmt.Sprint(value))
			return "?" + next.Encode()
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates,
		"templates/layouts/*.html",
		"templates/partials/*.html",
		"templates/pages/*.html",
		"templates/pages/*/*.html",
	)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderString executes a template into a string, used for PDF exports.
func (e *Engine) RenderString(name string, data TemplateData) (string, error) {
	if e == nil {
		return "", fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
