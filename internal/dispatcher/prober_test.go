package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func monitorConfigJSON(t *testing.T, cfg monitorConfig) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	return string(b)
}

func TestProbeClassifiesSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber("wnam", "sjc")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL}),
	})
	if out.Status != "up" {
		t.Fatalf("status = %q, want up", out.Status)
	}
	if out.Error != "" {
		t.Fatalf("error = %q, want empty", out.Error)
	}
	if out.Region != "wnam" || out.Colo != "sjc" {
		t.Fatalf("region/colo = %q/%q, want wnam/sjc", out.Region, out.Colo)
	}
}

func TestProbeClassifiesClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL}),
	})
	if out.Status != "down" || out.Code != 404 || out.Error != "Client error" {
		t.Fatalf("got %+v", out)
	}
}

func TestProbeClassifiesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL}),
	})
	if out.Status != "down" || out.Code != 502 || out.Error != "Server error" {
		t.Fatalf("got %+v", out)
	}
}

func TestProbeFollowsRedirectWhenEnabled(t *testing.T) {
	var hitFinal bool
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		hitFinal = true
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL + "/start", FollowRedirects: true}),
	})
	if !hitFinal {
		t.Fatal("redirect target was never hit")
	}
	if out.Status != "up" {
		t.Fatalf("status = %q, want up", out.Status)
	}
}

func TestProbeRefusesRedirectWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	}))
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL, FollowRedirects: false}),
	})
	if out.Status != "down" || out.Error != "Redirection not enabled" {
		t.Fatalf("got %+v", out)
	}
}

func TestProbeRedirectMissingLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL, FollowRedirects: true}),
	})
	if out.Status != "down" || out.Error != "Redirect location not found" || out.Code != 302 {
		t.Fatalf("got %+v", out)
	}
}

func TestProbeTooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: srv.URL + "/loop", FollowRedirects: true}),
	})
	if out.Status != "down" || out.Error != "Too many redirects" {
		t.Fatalf("got %+v", out)
	}
}

func TestProbeTransportErrorOnUnreachableHost(t *testing.T) {
	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{
		Kind:   "http",
		Config: monitorConfigJSON(t, monitorConfig{URL: "http://127.0.0.1:1"}),
	})
	if out.Status != "down" {
		t.Fatalf("status = %q, want down", out.Status)
	}
	if out.Code != 0 {
		t.Fatalf("code = %d, want 0", out.Code)
	}
}

func TestProbeNonHTTPKindIsReserved(t *testing.T) {
	p := NewProber("", "")
	out := p.Probe(context.Background(), Request{Kind: "tcp"})
	if out.Status != "down" || out.Error != "TCP check not implemented" {
		t.Fatalf("got %+v", out)
	}
}
