package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	waLog "go.mau.fi/whatsmeow/util/log"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestTokenAuthSources(t *testing.T) {
	guarded := TokenAuth("segredo")(okHandler())

	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  int
	}{
		{"sem credencial", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bearer errado", func(r *http.Request) { r.Header.Set("Authorization", "Bearer outro") }, http.StatusForbidden},
		{"bearer certo", func(r *http.Request) { r.Header.Set("Authorization", "Bearer segredo") }, http.StatusOK},
		{"header apikey", func(r *http.Request) { r.Header.Set("apikey", "segredo") }, http.StatusOK},
		{"token na query", func(r *http.Request) { r.URL.RawQuery = "token=segredo" }, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		tc.setup(req)
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rec.Code)
		}
	}
}

func TestCORSSetsHeadersAndAnswersPreflight(t *testing.T) {
	called := false
	handler := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if !called {
		t.Fatalf("get should reach the handler")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing cors origin header")
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PATCH") {
		t.Fatalf("allow-methods missing patch: %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	called = false
	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight should answer 204, got %d", rec.Code)
	}
	if called {
		t.Fatalf("preflight should not reach the handler")
	}
}

// lineLogger guarda as linhas do access log para inspeção.
type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) Errorf(msg string, args ...any) { l.store(msg, args...) }
func (l *lineLogger) Warnf(msg string, args ...any)  { l.store(msg, args...) }
func (l *lineLogger) Infof(msg string, args ...any)  { l.store(msg, args...) }
func (l *lineLogger) Debugf(msg string, args ...any) { l.store(msg, args...) }
func (l *lineLogger) Sub(module string) waLog.Logger { return l }

func (l *lineLogger) store(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(msg, args...))
}

func TestLoggingRecordsStatus(t *testing.T) {
	log := &lineLogger{}
	handler := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/bule", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.lines) != 1 {
		t.Fatalf("expected one access line, got %d", len(log.lines))
	}
	if !strings.Contains(log.lines[0], "GET /bule 418") {
		t.Fatalf("unexpected access line: %q", log.lines[0])
	}
}

func TestLoggingDefaultsToOK(t *testing.T) {
	log := &lineLogger{}
	handler := Logging(log)(okHandlerNoStatus())

	req := httptest.NewRequest(http.MethodGet, "/quieto", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.lines) != 1 || !strings.Contains(log.lines[0], "GET /quieto 200") {
		t.Fatalf("unexpected access line: %v", log.lines)
	}
}

// okHandlerNoStatus escreve sem chamar WriteHeader explicitamente.
func okHandlerNoStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestStatusRecorderHijackWithoutSupport(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := rec.Hijack(); err != http.ErrNotSupported {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}
