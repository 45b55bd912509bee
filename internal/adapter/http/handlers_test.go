package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	rhttp "github.com/Strob0t/recall/internal/adapter/http"
	"github.com/Strob0t/recall/internal/adapter/memory"
	"github.com/Strob0t/recall/internal/domain"
	"github.com/Strob0t/recall/internal/resilience"
	"github.com/Strob0t/recall/internal/service"
)

type testEnv struct {
	router  chi.Router
	kv      *memory.Store
	fetches int
	fetchFn func(ctx context.Context, url string) (string, error)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{kv: memory.New()}
	env.fetchFn = func(_ context.Context, u string) (string, error) {
		return "page " + u, nil
	}

	tracker := service.NewTracker(env.kv, log)
	values, err := service.NewValueStore(ctx, env.kv, tracker)
	if err != nil {
		t.Fatal(err)
	}
	pages := service.NewRequestCache(env.kv, func(ctx context.Context, u string) (string, error) {
		env.fetches++
		return env.fetchFn(ctx, u)
	}, log)

	h := &rhttp.Handlers{
		Tracker: tracker,
		Values:  values,
		Pages:   pages,
		Backend: "memory",
		Breaker: resilience.NewBreaker(3, time.Minute),
	}
	r := chi.NewRouter()
	rhttp.MountRoutes(r, h)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) store(t *testing.T, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/values", strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("store %s: expected 201, got %d: %s", body, rec.Code, rec.Body.String())
	}
	var resp struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp.Key
}

func TestStoreAndGetValue(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		as    string
		check func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name: "text raw",
			body: `{"value":"hello"}`,
			as:   "raw",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if rec.Body.String() != "hello" {
					t.Errorf("expected hello, got %q", rec.Body.String())
				}
				if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
					t.Errorf("unexpected content type %q", ct)
				}
			},
		},
		{
			name: "empty text",
			body: `{"value":""}`,
			as:   "text",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assertJSONValue(t, rec, "")
			},
		},
		{
			name: "text as text",
			body: `{"value":"hello"}`,
			as:   "text",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assertJSONValue(t, rec, "hello")
			},
		},
		{
			name: "int",
			body: `{"value":42}`,
			as:   "int",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assertJSONValue(t, rec, float64(42))
			},
		},
		{
			name: "float",
			body: `{"value":3.5}`,
			as:   "float",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assertJSONValue(t, rec, 3.5)
			},
		},
		{
			name: "base64 bytes",
			body: `{"value":"AAEC","encoding":"base64"}`,
			as:   "",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				if !bytes.Equal(rec.Body.Bytes(), []byte{0, 1, 2}) {
					t.Errorf("expected raw bytes 00 01 02, got %x", rec.Body.Bytes())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := env.store(t, tt.body)
			path := "/api/v1/values/" + key
			if tt.as != "" {
				path += "?as=" + tt.as
			}
			rec := env.do(t, http.MethodGet, path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			tt.check(t, rec)
		})
	}
}

func assertJSONValue(t *testing.T, rec *httptest.ResponseRecorder, want any) {
	t.Helper()
	var resp struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Value != want {
		t.Errorf("expected %v, got %v", want, resp.Value)
	}
}

func TestStoreValue_Invalid(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{}`,
		`{"value":null}`,
		`{"value":true}`,
		`{"value":[1]}`,
		`{"value":"!!","encoding":"base64"}`,
		`{"value":"x","encoding":"rot13"}`,
		`{"value":1,"encoding":"base64"}`,
		`not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/values", strings.NewReader(body))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestGetValue_NotFound(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/values/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetValue_Unconvertible(t *testing.T) {
	env := newTestEnv(t)
	key := env.store(t, `{"value":"abc"}`)

	rec := env.do(t, http.MethodGet, "/api/v1/values/"+key+"?as=int", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/values/"+key+"?as=yaml", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCallHistoryAndReplay(t *testing.T) {
	env := newTestEnv(t)
	k1 := env.store(t, `{"value":"a"}`)
	k2 := env.store(t, `{"value":42}`)

	rec := env.do(t, http.MethodGet, "/api/v1/calls/ValueStore.Store/replay", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := fmt.Sprintf("ValueStore.Store was called 2 times:\n"+
		"ValueStore.Store(*('a',)) -> %s\n"+
		"ValueStore.Store(*(42,)) -> %s\n", k1, k2)
	if rec.Body.String() != want {
		t.Fatalf("replay mismatch\nwant:\n%s\ngot:\n%s", want, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/calls/ValueStore.Store", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var hist struct {
		Identity string `json:"identity"`
		Count    int64  `json:"count"`
		Calls    []struct {
			Input  string `json:"input"`
			Output string `json:"output"`
		} `json:"calls"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatal(err)
	}
	if hist.Count != 2 || len(hist.Calls) != 2 || hist.Calls[1].Output != k2 {
		t.Fatalf("unexpected history %+v", hist)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/calls", nil)
	var ids []string
	_ = json.NewDecoder(rec.Body).Decode(&ids)
	if len(ids) != 1 || ids[0] != "ValueStore.Store" {
		t.Fatalf("unexpected identities %v", ids)
	}
}

func TestCallHistory_UnknownIdentity(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/api/v1/calls/Nope", "/api/v1/calls/Nope/replay"} {
		if rec := env.do(t, http.MethodGet, p, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", p, rec.Code)
		}
	}
}

func TestPages_Memoized(t *testing.T) {
	env := newTestEnv(t)
	q := "?url=" + url.QueryEscape("http://x/y")

	for range 2 {
		rec := env.do(t, http.MethodGet, "/api/v1/pages"+q, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Body.String() != "page http://x/y" {
			t.Fatalf("unexpected body %q", rec.Body.String())
		}
	}
	if env.fetches != 1 {
		t.Fatalf("expected 1 fetch, got %d", env.fetches)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/pages/requests"+q, nil)
	var resp struct {
		URL      string `json:"url"`
		Requests int64  `json:"requests"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.URL != "http://x/y" || resp.Requests != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestPages_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"upstream", errors.New("connection refused"), http.StatusBadGateway},
		{"breaker open", resilience.ErrCircuitOpen, http.StatusServiceUnavailable},
		{"bad url", fmt.Errorf("%w: url must be absolute http(s)", domain.ErrValidation), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.fetchFn = func(context.Context, string) (string, error) { return "", tt.err }

			rec := env.do(t, http.MethodGet, "/api/v1/pages?url=x", nil)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPages_MissingURL(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/api/v1/pages", "/api/v1/pages/requests", "/api/v1/pages?url=" + strings.Repeat("a", 2001)} {
		if rec := env.do(t, http.MethodGet, p, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", p[:min(len(p), 40)], rec.Code)
		}
	}
}

func TestPages_Middleware(t *testing.T) {
	env := newTestEnv(t)
	r := chi.NewRouter()
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	rhttp.MountRoutes(r, &rhttp.Handlers{Pages: service.NewRequestCache(env.kv, env.fetchFn, nil)}, blocked)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pages?url=http://x", http.NoBody))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected page middleware to apply, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pages/requests?url=http://x", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected counter route to bypass page middleware, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Backend string `json:"backend"`
		Breaker string `json:"breaker"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Backend != "memory" || resp.Breaker != "closed" {
		t.Fatalf("unexpected health %+v", resp)
	}
}

func TestHealth_StoreDown(t *testing.T) {
	r := chi.NewRouter()
	rhttp.MountRoutes(r, &rhttp.Handlers{
		Backend: "redis",
		Ping:    func(context.Context) error { return errors.New("dial tcp: refused") },
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
