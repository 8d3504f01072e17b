package app

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altss/altss/internal/shared"
)

func testStack(t *testing.T) (Middlewares, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "altss_session", "secret", time.Hour, false)
	stack := MiddlewareStack(MiddlewareConfig{
		Logger:         slog.New(slog.DiscardHandler),
		Config:         &Config{AppRequestTimeout: time.Second, RateLimit: 100},
		SessionManager: sessions,
		CSRFManager:    shared.NewCSRFManager("csrf"),
	})
	return stack, sessions
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	stack, _ := testStack(t)
	r := chi.NewRouter()
	r.Use(stack.Base...)
	r.Use(stack.Request...)
	r.Post("/form", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	r.Get("/page", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/form", strings.NewReader("a=b")))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Set-Cookie"))
}

func TestBaseStackAllowsWebsocketUpgrade(t *testing.T) {
	stack, _ := testStack(t)
	r := chi.NewRouter()
	r.Use(stack.Base...)
	upgrader := websocket.Upgrader{}
	r.Get("/live/echo", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		kind, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		_ = ws.WriteMessage(kind, msg)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/live/echo", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(msg))
}
