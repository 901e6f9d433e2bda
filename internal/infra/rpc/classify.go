package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// messagePatterns maps lower-case message fragments to business kinds.
// Order matters: the first matching entry wins.
var messagePatterns = []struct {
	kind      Kind
	fragments []string
}{
	{KindAuth, []string{"invalid api key", "authentication failed", "access denied", "not authorized", "unauthorized"}},
	{KindDomainNotAvailable, []string{"not available", "already registered", "unavailable for registration"}},
	{KindInvalidAuthCode, []string{"invalid auth", "auth code", "authcode", "auth-code", "invalid epp", "transfer code"}},
	{KindDomainExpired, []string{"expired"}},
	{KindInsufficientFunds, []string{"insufficient funds", "insufficient balance", "not enough funds"}},
	{KindTransferNotAllowed, []string{"transfer not allowed", "transfer is not allowed", "cannot be transferred", "transfer prohibited"}},
	{KindCustomerNotFound, []string{"customer not found", "no customer", "invalid customer"}},
	{KindContactNotFound, []string{"contact not found", "no contact", "invalid contact"}},
	{KindOrderNotFound, []string{"order not found", "no order", "invalid order", "orderid not found"}},
	{KindDomainNotFound, []string{"domain not found", "no domain", "domain does not exist"}},
	{KindInvalidParameter, []string{"invalid parameter", "invalid value", "missing parameter", "required parameter", "is required", "is invalid"}},
}

// ClassifyMessage maps a registrar failure message to the closest kind.
func ClassifyMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, p := range messagePatterns {
		for _, f := range p.fragments {
			if strings.Contains(lower, f) {
				return p.kind
			}
		}
	}
	return KindAPI
}

// ClassifyStatus converts a non-2xx status into an Error. Returns nil for 2xx.
func ClassifyStatus(status int, body []byte) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusForbidden:
		return NewError(KindAuth, "credentials rejected or ip blocked", status, body)
	case status == http.StatusTooManyRequests:
		return NewError(KindRetryable, "rate limited", status, body)
	case status >= 500:
		return NewError(KindRetryable, fmt.Sprintf("server error %d", status), status, body)
	default:
		return NewError(KindNetwork, fmt.Sprintf("unexpected http status %d", status), status, body)
	}
}

// DecodeBody accepts a JSON body or JSON encoded as a JSON string.
// It returns the decoded value (numbers as json.Number) and the canonical JSON bytes.
func DecodeBody(body []byte) (any, []byte, error) {
	trimmed := bytes.TrimSpace(body)
	v, err := decodeJSON(trimmed)
	if err != nil {
		return nil, nil, NewError(KindNetwork, "response is not JSON", 0, body)
	}
	// JSON-as-text: the payload is a string holding another JSON document.
	if s, ok := v.(string); ok {
		inner := strings.TrimSpace(s)
		if strings.HasPrefix(inner, "{") || strings.HasPrefix(inner, "[") {
			if nested, err := decodeJSON([]byte(inner)); err == nil {
				return nested, []byte(inner), nil
			}
		}
	}
	return v, trimmed, nil
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// ParseFailure inspects a decoded body for failure markers.
// It returns nil when the body describes a successful result.
func ParseFailure(v any, raw []byte) *Error {
	switch body := v.(type) {
	case string:
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(body)), "error") {
			return NewError(ClassifyMessage(body), body, 0, raw)
		}
	case map[string]any:
		if msg, failed := failureMessage(body); failed {
			return NewError(ClassifyMessage(msg), msg, 0, raw)
		}
	}
	return nil
}

func failureMessage(body map[string]any) (string, bool) {
	status := strings.ToLower(stringField(body, "status"))
	if status == "error" || status == "failed" || status == "failure" {
		for _, k := range []string{"message", "error", "actionstatusdesc", "msg"} {
			if m := stringField(body, k); m != "" {
				return m, true
			}
		}
		return "registrar reported status " + status, true
	}
	if strings.EqualFold(stringField(body, "actionstatus"), "failed") {
		if m := stringField(body, "actionstatusdesc"); m != "" {
			return m, true
		}
		return "action failed", true
	}
	if m := stringField(body, "error"); m != "" {
		return m, true
	}
	return "", false
}

func stringField(m map[string]any, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
