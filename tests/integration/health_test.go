//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	eachBackend(t, func(t *testing.T, b *backend) {
		resp := get(t, b.server.URL+"/health")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var body struct {
			Status  string `json:"status"`
			Backend string `json:"backend"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Status != "ok" || body.Backend != b.name {
			t.Fatalf("unexpected health %+v", body)
		}
	})
}

func TestAPIVersion(t *testing.T) {
	eachBackend(t, func(t *testing.T, b *backend) {
		resp := get(t, b.server.URL+"/api/v1/")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var body struct {
			Version string `json:"version"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Version == "" {
			t.Fatal("expected non-empty version")
		}
	})
}
