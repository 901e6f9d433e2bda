package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

// Response is a successful, normalized registrar response.
type Response struct {
	Status int
	Body   json.RawMessage // canonical JSON, unwrapped if it arrived as text
	Value  any             // decoded body, numbers as json.Number
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	dec := json.NewDecoder(strings.NewReader(string(r.Body)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return NewError(KindNetwork, fmt.Sprintf("decode response: %v", err), r.Status, r.Body)
	}
	return nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (c *Client) buildRequest(ctx context.Context, call Call) (*http.Request, error) {
	base := c.cfg.BaseURL
	if call.BaseURL != "" {
		base = call.BaseURL
	}
	target := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(call.Endpoint, "/")

	auth := Params{
		{Key: "auth-userid", Value: c.cfg.AuthUserID},
		{Key: "api-key", Value: c.cfg.APIKey},
	}

	var req *http.Request
	var err error
	switch call.Verb {
	case VerbWrite:
		req, err = http.NewRequestWithContext(
			ctx, http.MethodPost, target+"?"+auth.Encode(), strings.NewReader(call.Params.Encode()),
		)
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		query := append(auth, call.Params...)
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// roundTrip performs a single HTTP attempt and normalizes the outcome.
func (c *Client) roundTrip(ctx context.Context, call Call) (*Response, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, call)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registrar call %s: %w", call.Endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// Status is checked before the body is looked at.
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		c.monitor.RecordThrottle(resp.StatusCode, resp.Header.Get("Retry-After"))
	case http.StatusForbidden:
		c.monitor.RecordThrottle(resp.StatusCode, "")
	}
	if e := ClassifyStatus(resp.StatusCode, body); e != nil {
		return nil, e
	}

	// Edge proxies answer with HTML block pages, sometimes with 200.
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return nil, NewError(KindNetwork, "html response from registrar edge", resp.StatusCode, body)
	}

	value, canonical, err := DecodeBody(body)
	if err != nil {
		if e, ok := err.(*Error); ok {
			e.Status = resp.StatusCode
		}
		return nil, err
	}

	if e := ParseFailure(value, body); e != nil {
		e.Status = resp.StatusCode
		if e.Kind == KindAPI && c.monitor.DetectThrottlePattern(e.Message) {
			e.Kind = KindRetryable
		}
		return nil, e
	}

	c.monitor.RecordRequest(time.Since(start))
	return &Response{Status: resp.StatusCode, Body: canonical, Value: value}, nil
}
