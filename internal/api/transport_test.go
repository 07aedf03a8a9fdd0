package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestHTTPTransport_AppliesInterceptors(t *testing.T) {
	var gotAuth, gotAccept, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotToken = r.URL.Query().Get("fmetoken")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewTokenRegistry(NewRequestConfig())
	if err := reg.SetToken(srv.URL, "tok"); err != nil {
		t.Fatal(err)
	}
	tr := NewHTTPTransport(reg.Config())
	tr.SetRetryConfig(fastRetryConfig())

	req := &Request{Method: http.MethodPost, URL: srv.URL + "/fmedatastreaming/r/w", ResponseType: ResponseBlob, QueryAuth: true}
	resp, err := tr.Do(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if gotAuth != "fmetoken token=tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotAccept != "*/*" {
		t.Errorf("Accept = %q, want */* for blob", gotAccept)
	}
	if gotToken != "tok" {
		t.Errorf("fmetoken = %q", gotToken)
	}
	if req.Header != nil || req.Query != nil {
		t.Error("Do must not modify the caller's request")
	}
}

func TestHTTPTransport_Retries(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		first     int
		wantCalls int32
		wantFinal int
	}{
		{"GET 503 retried", http.MethodGet, http.StatusServiceUnavailable, 2, http.StatusOK},
		{"GET 429 retried", http.MethodGet, http.StatusTooManyRequests, 2, http.StatusOK},
		{"POST 503 not retried", http.MethodPost, http.StatusServiceUnavailable, 1, http.StatusServiceUnavailable},
		{"GET 404 not retried", http.MethodGet, http.StatusNotFound, 1, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Header().Set("Retry-After", "0")
					w.WriteHeader(tt.first)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(nil)
			tr.SetRetryConfig(fastRetryConfig())
			resp, err := tr.Do(context.Background(), &Request{Method: tt.method, URL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			if resp.Status != tt.wantFinal {
				t.Errorf("status = %d, want %d", resp.Status, tt.wantFinal)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestHTTPTransport_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	rc := fastRetryConfig()
	rc.Max5xxRetries = 0
	rc.CircuitBreakerThreshold = 2
	tr.SetRetryConfig(rc)

	for i := 0; i < 2; i++ {
		resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if resp.Status != http.StatusBadGateway {
			t.Fatalf("call %d: status %d", i, resp.Status)
		}
	}
	if tr.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", tr.BreakerState())
	}

	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL})
	if !IsCode(err, CodeCircuitOpen) {
		t.Fatalf("expected CIRCUIT_OPEN, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("open circuit should not reach the server, calls = %d", calls.Load())
	}
}

func TestHTTPTransport_ClientErrorsKeepCircuitClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	rc := fastRetryConfig()
	rc.CircuitBreakerThreshold = 1
	tr.SetRetryConfig(rc)
	for i := 0; i < 3; i++ {
		if _, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if tr.BreakerState() != gobreaker.StateClosed {
		t.Errorf("4xx responses should not trip the breaker, state %v", tr.BreakerState())
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	tr.SetRetryConfig(fastRetryConfig())
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL, Timeout: 20 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPTransport_ErrorsRedactToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL + "/fmedatadownload/Samples/ws.fmw?token=secret-value"
	srv.Close()

	tr := NewHTTPTransport(nil)
	tr.SetRetryConfig(fastRetryConfig())
	_, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: target})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("token leaked into error: %v", err)
	}
	if !strings.Contains(err.Error(), "token=REDACTED") {
		t.Errorf("expected redacted URL in error, got %v", err)
	}
}

func TestHTTPTransport_RequestTimeoutReplacesClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	tr.SetRetryConfig(fastRetryConfig())
	tr.HTTP.Timeout = 50 * time.Millisecond

	resp, err := tr.Do(context.Background(), &Request{Method: http.MethodGet, URL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("request timeout should replace the client timeout, got %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if tr.HTTP.Timeout != 50*time.Millisecond {
		t.Errorf("shared client timeout changed to %v", tr.HTTP.Timeout)
	}
}

func TestUnwrapURLError(t *testing.T) {
	_, err := fullURL(&Request{URL: "http://fme.example.com/%zz?token=secret-value", Query: map[string][]string{"a": {"b"}}})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("token leaked into parse error: %v", err)
	}
}
