package view

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "Personal Email Limit", Humanize("personal_email_limit"))
	assert.Equal(t, "Single Family Office", Humanize("single family office"))
}

func TestRenderSetsContentType(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, engine.Render(rec, "pages/auth/limited.html", TemplateData{Title: "Access limited"}))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Access limited")
}
