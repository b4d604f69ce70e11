package practicum

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "hwbot/pkg/logx"
)

func TestClientFetchSendsAuthAndCursor(t *testing.T) {
	t.Parallel()

	var gotAuth, gotFrom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFrom = r.URL.Query().Get("from_date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"homeworks": [], "current_date": 1000}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Token: "secret", Endpoint: srv.URL}, logx.Nop())
	body, err := c.Fetch(context.Background(), 1234)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if gotAuth != "OAuth secret" {
		t.Fatalf("Authorization = %q, want %q", gotAuth, "OAuth secret")
	}
	if gotFrom != "1234" {
		t.Fatalf("from_date = %q, want %q", gotFrom, "1234")
	}
	if _, err := ValidateResponse(body, true); err != nil {
		t.Fatalf("response failed validation: %v", err)
	}
	if cur, ok := CurrentDate(body); !ok || cur != 1000 {
		t.Fatalf("current_date = %d (ok=%v), want 1000", cur, ok)
	}
}

func TestClientFetchNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Token: "t", Endpoint: srv.URL}, logx.Nop())
	_, err := c.Fetch(context.Background(), 0)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Fetch error = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("StatusCode = %d, want %d", te.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestClientFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	// Grab an address that refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{Token: "t", Endpoint: addr, Timeout: time.Second}, logx.Nop())
	_, err := c.Fetch(context.Background(), 0)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Fetch error = %v, want *TransportError", err)
	}
	if te.StatusCode != 0 {
		t.Fatalf("StatusCode = %d, want 0 for network failure", te.StatusCode)
	}
}

func TestClientFetchBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"homeworks": [`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Token: "t", Endpoint: srv.URL}, logx.Nop())
	_, err := c.Fetch(context.Background(), 0)
	if err == nil {
		t.Fatal("expected decode error")
	}
	var te *TransportError
	if errors.As(err, &te) {
		t.Fatalf("decode failure should not be a TransportError, got %v", err)
	}
}
