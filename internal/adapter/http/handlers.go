package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Strob0t/recall/internal/domain"
	"github.com/Strob0t/recall/internal/domain/call"
	"github.com/Strob0t/recall/internal/resilience"
	"github.com/Strob0t/recall/internal/service"
)

// Handlers holds the services the HTTP surface exposes.
type Handlers struct {
	Tracker *service.Tracker
	Values  *service.ValueStore
	Pages   *service.RequestCache
	Backend string
	// Optional: health reports the fetch breaker state and pings the store.
	Breaker *resilience.Breaker
	Ping    func(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

type storeValueRequest struct {
	Value    json.RawMessage `json:"value"`
	Encoding string          `json:"encoding,omitempty"` // "text" (default) | "base64"
}

type storeValueResponse struct {
	Key string `json:"key"`
}

type valueResponse struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// StoreValue handles POST /api/v1/values.
func (h *Handlers) StoreValue(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[storeValueRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	v, err := decodeValue(req)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}

	key, err := h.Values.Store(r.Context(), v)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, storeValueResponse{Key: key})
}

// decodeValue maps a JSON value onto the types the value store accepts:
// strings stay text (or bytes with base64 encoding), integral numbers become
// int64 and other numbers float64.
func decodeValue(req storeValueRequest) (any, error) {
	if len(req.Value) == 0 {
		return nil, fmt.Errorf("%w: value is required", domain.ErrValidation)
	}

	dec := json.NewDecoder(strings.NewReader(string(req.Value)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: invalid value", domain.ErrValidation)
	}

	switch x := raw.(type) {
	case string:
		switch req.Encoding {
		case "", "text":
			return x, nil
		case "base64":
			b, err := base64.StdEncoding.DecodeString(x)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid base64", domain.ErrValidation)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("%w: unknown encoding %q", domain.ErrValidation, req.Encoding)
		}
	case json.Number:
		if req.Encoding != "" {
			return nil, fmt.Errorf("%w: encoding applies to strings only", domain.ErrValidation)
		}
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: number out of range", domain.ErrValidation)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: value must be a string or a number", domain.ErrValidation)
	}
}

// GetValue handles GET /api/v1/values/{key}?as=raw|text|int|float.
func (h *Handlers) GetValue(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	ctx := r.Context()

	raw, err := h.Values.Get(ctx, key)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if raw == nil {
		writeError(w, http.StatusNotFound, "value not found")
		return
	}

	var v any
	switch as := r.URL.Query().Get("as"); as {
	case "", "raw":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		return
	case "text":
		v, err = service.AsText(raw)
	case "int":
		v, err = service.AsInt(raw)
	case "float":
		v, err = service.AsFloat(raw)
	default:
		writeError(w, http.StatusBadRequest, "as must be one of raw, text, int, float")
		return
	}
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, valueResponse{Key: key, Value: v})
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// ListCalls handles GET /api/v1/calls.
func (h *Handlers) ListCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Identities())
}

// GetCallHistory handles GET /api/v1/calls/{identity}.
func (h *Handlers) GetCallHistory(w http.ResponseWriter, r *http.Request) {
	b, ok := h.Tracker.Binding(call.Identity(urlParam(r, "identity")))
	if !ok {
		writeError(w, http.StatusNotFound, "operation not tracked")
		return
	}
	hist, err := service.History(r.Context(), b)
	if err != nil {
		writeDomainError(w, err, "operation not tracked")
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

// ReplayCalls handles GET /api/v1/calls/{identity}/replay.
func (h *Handlers) ReplayCalls(w http.ResponseWriter, r *http.Request) {
	b, ok := h.Tracker.Binding(call.Identity(urlParam(r, "identity")))
	if !ok {
		writeError(w, http.StatusNotFound, "operation not tracked")
		return
	}
	var sb strings.Builder
	if err := service.Replay(r.Context(), &sb, b); err != nil {
		writeDomainError(w, err, "operation not tracked")
		return
	}
	writeText(w, http.StatusOK, sb.String())
}

// ---------------------------------------------------------------------------
// Pages
// ---------------------------------------------------------------------------

type requestsResponse struct {
	URL      string `json:"url"`
	Requests int64  `json:"requests"`
}

// GetPage handles GET /api/v1/pages?url=.
func (h *Handlers) GetPage(w http.ResponseWriter, r *http.Request) {
	u, ok := requireQuery(w, r, "url")
	if !ok {
		return
	}
	body, err := h.Pages.Fetch(r.Context(), u)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeText(w, http.StatusOK, body)
}

// GetPageRequests handles GET /api/v1/pages/requests?url=.
func (h *Handlers) GetPageRequests(w http.ResponseWriter, r *http.Request) {
	u, ok := requireQuery(w, r, "url")
	if !ok {
		return
	}
	n, err := h.Pages.Requests(r.Context(), u)
	if err != nil {
		writeDomainError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, requestsResponse{URL: u, Requests: n})
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Breaker string `json:"breaker,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Backend: h.Backend}
	if h.Breaker != nil {
		resp.Breaker = h.Breaker.State().String()
	}
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Error = "store unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
