package rpc

import (
	"net/url"
	"strings"
	"time"
)

// Verb selects how parameters are encoded on the wire.
type Verb int

const (
	VerbRead  Verb = iota // GET, everything in the query string
	VerbWrite             // POST, auth in the query string, rest form-encoded
)

func (v Verb) String() string {
	if v == VerbWrite {
		return "write"
	}
	return "read"
}

// Param is a single key/value pair. Repeated keys are allowed.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered parameter list.
type Params []Param

// Add appends one pair per value, so arrays become repeated keys.
func (p Params) Add(key string, values ...string) Params {
	for _, v := range values {
		p = append(p, Param{Key: key, Value: v})
	}
	return p
}

// Encode renders the params as a query string, keeping their order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// Get returns the first value for key.
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Call describes one remote request. It is not modified once submitted.
type Call struct {
	Endpoint string
	Verb     Verb
	Params   Params
	BaseURL  string        // overrides Config.BaseURL when set
	Timeout  time.Duration // overrides Config.Timeout when set
}

// CallOption customizes a Call.
type CallOption func(*Call)

// WithBaseURL sends the call to a different host, e.g. the test or domaincheck API.
func WithBaseURL(u string) CallOption {
	return func(c *Call) { c.BaseURL = u }
}

// WithTimeout overrides the per-attempt deadline.
func WithTimeout(d time.Duration) CallOption {
	return func(c *Call) { c.Timeout = d }
}
