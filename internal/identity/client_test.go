package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestDisplayNameResolved(t *testing.T) {
	c := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/names/resolve" {
			http.NotFound(w, r)
			return
		}
		name := r.URL.Query().Get("name")
		_ = json.NewEncoder(w).Encode(map[string]string{"displayName": "resolved-" + name})
	})

	got := c.DisplayName(context.Background(), "alice")
	if got != "resolved-alice" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestDisplayNameFallbackOnServerError(t *testing.T) {
	c := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if got := c.DisplayName(context.Background(), "alice"); got != "alice" {
		t.Fatalf("expected fallback to requested name, got %q", got)
	}
}

func TestDisplayNameFallbackOnEmptyResponse(t *testing.T) {
	c := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"displayName": "  "})
	})

	if got := c.DisplayName(context.Background(), "alice"); got != "alice" {
		t.Fatalf("expected fallback to requested name, got %q", got)
	}
}

func TestDisplayNameAnonymousPlaceholder(t *testing.T) {
	c := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if got := c.DisplayName(context.Background(), "   "); got != anonymousName {
		t.Fatalf("expected anonymous placeholder, got %q", got)
	}
}
