package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/polylearn/internal/model"
	"github.com/hitoshi/polylearn/internal/session"
)

// TestMiddlewareChain_LogsAuthenticatedUser は
// ログ→セッションの順に組んだチェーンでユーザーIDとリクエストIDがログに出ることを検証する。
func TestMiddlewareChain_LogsAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	authn := &mockAuthenticator{
		authenticateFn: func(string) (*session.Payload, error) {
			return &session.Payload{UserID: "user-chain-test"}, nil
		},
	}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(chimw.RequestID)
	r.Use(NewLoggingMiddleware(logger))
	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(authn))
		r.Get("/api/v1/user/profile", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/user/profile", nil)
	req.Header.Set("Authorization", "Bearer ok")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	if entry["user_id"] != "user-chain-test" {
		t.Errorf("user_id = %v, want %q", entry["user_id"], "user-chain-test")
	}
	if id, _ := entry["request_id"].(string); id == "" {
		t.Error("expected request_id in log entry")
	}
}

// TestMiddlewareChain_NoToken_Returns401 は
// トークンがない場合に401が返されることを検証する。
func TestMiddlewareChain_NoToken_Returns401(t *testing.T) {
	r := chi.NewRouter()
	r.Use(NewSessionMiddleware(&mockAuthenticator{}))
	r.Put("/api/v1/user/profile", func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodPut, "/api/v1/user/profile", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

// TestRecoveryMiddleware_PanicReturnsUnifiedError はpanicが統一フォーマットの500になることを検証する。
func TestRecoveryMiddleware_PanicReturnsUnifiedError(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}

type recordingCollector struct {
	statuses []int
}

func (c *recordingCollector) RecordAuthOutcome(string, string)  {}
func (c *recordingCollector) RecordUserCreated()                {}
func (c *recordingCollector) RecordDuplicateAbsorbed()          {}
func (c *recordingCollector) RecordStreakDays(int)              {}
func (c *recordingCollector) RecordVerifyLatency(time.Duration) {}
func (c *recordingCollector) RecordHTTPStatus(code int) {
	c.statuses = append(c.statuses, code)
}

// TestMetricsMiddleware_RecordsStatus はレスポンスのステータスコードが記録されることを検証する。
func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	col := &recordingCollector{}

	handler := NewMetricsMiddleware(col)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	implicit := NewMetricsMiddleware(col)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	implicit.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(col.statuses) != 2 || col.statuses[0] != http.StatusNotFound || col.statuses[1] != http.StatusOK {
		t.Errorf("statuses = %v, want [404 200]", col.statuses)
	}
}
