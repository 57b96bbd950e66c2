package dispatcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxRedirects bounds the Dispatcher's manual redirect chase (spec.md
// §4.2: "Maximum chain length 10").
const maxRedirects = 10

const defaultTimeoutMs = 30000

// monitorConfig is the opaque JSON stored in Monitor.Config for kind
// "http". Unknown fields are ignored.
type monitorConfig struct {
	URL             string `json:"url"`
	IntervalS       int    `json:"interval_s"`
	TimeoutMs       int64  `json:"timeout_ms"`
	VerifyTLS       bool   `json:"verify_tls"`
	FollowRedirects bool   `json:"follow_redirects"`
}

// Outcome is the result of one probe attempt: exactly the fields the
// outcome pipeline needs to produce a heartbeat and status-aggregate
// update.
type Outcome struct {
	Status    string
	Code      int
	Error     string
	LatencyMs int64
	Region    string
	Colo      string
}

// Prober issues the HTTP probe described in spec.md §4.2. A Prober is
// stateless and safe for concurrent use.
type Prober struct {
	region string
	colo   string
}

// NewProber builds a Prober that stamps region/colo from this process's
// runtime metadata (spec.md §4.2: "region/colo come from the inbound
// request's runtime metadata, defaulting to unknown if absent").
func NewProber(region, colo string) *Prober {
	if region == "" {
		region = "unknown"
	}
	if colo == "" {
		colo = "unknown"
	}
	return &Prober{region: region, colo: colo}
}

// Probe runs the probe described by req and returns a classified Outcome.
// It never returns an error; every failure mode is folded into Outcome.
func (p *Prober) Probe(ctx context.Context, req Request) Outcome {
	start := time.Now()
	out := p.probe(ctx, req)
	out.LatencyMs = time.Since(start).Milliseconds()
	out.Region = p.region
	out.Colo = p.colo
	return out
}

func (p *Prober) probe(ctx context.Context, req Request) Outcome {
	if req.Kind != "http" {
		return Outcome{Status: "down", Error: "TCP check not implemented"}
	}

	var cfg monitorConfig
	if err := json.Unmarshal([]byte(req.Config), &cfg); err != nil {
		return Outcome{Status: "down", Error: fmt.Sprintf("invalid monitor config: %v", err)}
	}

	timeoutMs := req.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	client := &http.Client{
		// The Dispatcher chases redirects itself so it can distinguish
		// "follow" from "refuse" and cap the chain length; an
		// automatically-following client could not do either.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS}, //nolint:gosec // verify_tls is user-controlled per monitor
		},
	}

	url := cfg.URL
	for chain := 0; ; chain++ {
		if chain > maxRedirects {
			return Outcome{Status: "down", Error: "Too many redirects"}
		}

		resp, err := fetchWithTimeout(ctx, client, url, timeout)
		if err != nil {
			if err == context.DeadlineExceeded {
				return Outcome{Status: "down", Error: "HTTP fetch timed out"}
			}
			return Outcome{Status: "down", Error: fmt.Sprintf("HTTP fetch error: %v", err)}
		}

		status := classify(resp, cfg.FollowRedirects)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if status.redirectTo != "" {
			url = status.redirectTo
			continue
		}
		return status.outcome
	}
}

type classifyResult struct {
	outcome    Outcome
	redirectTo string
}

func classify(resp *http.Response, followRedirects bool) classifyResult {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return classifyResult{outcome: Outcome{Status: "up"}}
	case code >= 300 && code < 400:
		if !followRedirects {
			return classifyResult{outcome: Outcome{Status: "down", Error: "Redirection not enabled"}}
		}
		loc := resp.Header.Get("Location")
		if loc == "" {
			return classifyResult{outcome: Outcome{Status: "down", Code: code, Error: "Redirect location not found"}}
		}
		return classifyResult{redirectTo: loc}
	case code >= 400 && code < 500:
		return classifyResult{outcome: Outcome{Status: "down", Code: code, Error: "Client error"}}
	default:
		return classifyResult{outcome: Outcome{Status: "down", Code: code, Error: "Server error"}}
	}
}

// fetchWithTimeout races the GET, run on its own goroutine, against the
// Done channel of a context.WithTimeout, per spec.md §4.2's "race the fetch
// against a delay ... if the delay wins, abort the request" phrasing.
func fetchWithTimeout(ctx context.Context, client *http.Client, url string, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	type result struct {
		resp *http.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := client.Do(httpReq)
		ch <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return nil, context.DeadlineExceeded
	case r := <-ch:
		return r.resp, r.err
	}
}
