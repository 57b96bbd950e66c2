package ticker

import (
	"context"
	"fmt"
	"net/http"

	fastshot "github.com/opus-domini/fast-shot"

	"github.com/pulseward/pulseward/internal/store"
)

// DispatchRequest is the body the Ticker POSTs to the Dispatcher's
// /internal/dispatch/run, field names matching spec.md §6's camelCase
// wire contract exactly.
type DispatchRequest struct {
	DispatchID string        `json:"dispatchId"`
	Monitor    store.Monitor `json:"-"`
	SampleRate float64       `json:"-"`
	TimeoutMs  int64         `json:"-"`
}

type dispatchWireBody struct {
	DispatchID   string `json:"dispatchId"`
	MonitorID    string `json:"monitorId"`
	OrgID        string `json:"orgId"`
	Kind         string `json:"kind"`
	Config       string `json:"config"`
	TimeoutMs    int64  `json:"timeoutMs"`
	SampleRate   float64 `json:"sampleRate"`
	OnDownScript string `json:"onDownScript,omitempty"`
}

// Client POSTs dispatch requests to the Dispatcher over HTTP, built on
// fast-shot's fluent net/http wrapper (a teacher dependency declared in
// go.mod but never invoked by the copied code). CheckRedirect is left
// at the Go default here, since the Ticker->Dispatcher hop is a plain
// internal RPC, not the probe itself — only the Dispatcher's outbound
// probe needs manual redirect chasing.
type Client struct {
	baseURL string
	token   string
	http    fastshot.ClientHttpMethods
}

// NewClient builds a dispatch Client targeting the Dispatcher at
// baseURL, authenticating with token via X-Dispatch-Token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: fastshot.NewClient(baseURL).
			Header().Add("X-Dispatch-Token", token).
			Build(),
	}
}

// Run posts one dispatch request and waits for the Dispatcher's
// synchronous acknowledgement (202 accepted / 401 unauthorized / 500
// store failure). The probe itself runs inside the Dispatcher process;
// this call returns once that process has durably recorded the attempt.
func (c *Client) Run(ctx context.Context, req DispatchRequest) error {
	body := dispatchWireBody{
		DispatchID:   req.DispatchID,
		MonitorID:    req.Monitor.ID,
		OrgID:        req.Monitor.OrgID,
		Kind:         req.Monitor.Kind,
		Config:       req.Monitor.Config,
		TimeoutMs:    req.TimeoutMs,
		SampleRate:   req.SampleRate,
		OnDownScript: req.Monitor.OnDownScript,
	}
	resp, err := c.http.POST("/internal/dispatch/run").
		Context().Set(ctx).
		Body().AsJSON(body).
		Send()
	if err != nil {
		return fmt.Errorf("dispatch request: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusAccepted:
		return nil
	case http.StatusUnauthorized:
		return fmt.Errorf("dispatcher rejected token for %s", req.Monitor.ID)
	default:
		return fmt.Errorf("dispatcher returned %d for %s", resp.StatusCode(), req.Monitor.ID)
	}
}
