// Package genhttp is the HTTP client transport for the generation stream.
// It opens POST /api/generate and hands the raw body to the stream decoder;
// a rejection before any event is mapped onto the session error taxonomy.
package genhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pkt.systems/snipforge/core"
	"pkt.systems/snipforge/schema"
)

const generatePath = "/api/generate"

// Transport implements core.Transport over HTTP.
type Transport struct {
	baseURL string
	client  *http.Client
}

// NewTransport builds a transport for the given server base URL. A nil
// client uses http.DefaultClient; callers wanting timeouts pass their own.
// The generation stream itself must not carry a client timeout, it is
// long-lived by design.
func NewTransport(baseURL string, client *http.Client) (*Transport, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{baseURL: base, client: client}, nil
}

// errorBody is the JSON shape of a rejection response.
type errorBody struct {
	Error         string   `json:"error"`
	ErrorCode     string   `json:"errorCode,omitempty"`
	Details       []string `json:"details,omitempty"`
	RemainingUses *int     `json:"remainingUses,omitempty"`
}

// Open implements core.Transport.
func (t *Transport) Open(ctx context.Context, req schema.GenerateRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+generatePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, &schema.SessionError{
			Kind:    schema.KindNetwork,
			Message: err.Error(),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, rejectionError(resp)
	}
	return resp.Body, nil
}

// rejectionError maps a non-2xx response to a SessionError. A JSON error
// body refines the message and kind; otherwise the status alone decides.
func rejectionError(resp *http.Response) *schema.SessionError {
	sessionErr := &schema.SessionError{
		Kind:    schema.KindFromStatus(resp.StatusCode),
		Message: strings.TrimSpace(resp.Status),
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return sessionErr
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return sessionErr
	}
	sessionErr.Message = body.Error
	sessionErr.Details = body.Details
	if body.ErrorCode != "" {
		sessionErr.Kind = schema.KindFromWireCode(body.ErrorCode)
	}
	if body.RemainingUses != nil {
		remaining := *body.RemainingUses
		sessionErr.RemainingUses = &remaining
	} else if sessionErr.Kind == schema.KindRateLimited {
		zero := 0
		sessionErr.RemainingUses = &zero
	}
	return sessionErr
}

var _ core.Transport = (*Transport)(nil)
