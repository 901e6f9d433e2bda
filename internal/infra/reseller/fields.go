package reseller

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/regsync/internal/core/domain"
)

// Registrar responses are loosely typed: numbers arrive as strings, booleans
// as "true"/"false", times as unix seconds. These helpers extract fields
// field-by-field with defaults instead of casting.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolean(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(strings.ToLower(v)))
		return b
	case json.Number:
		return v.String() != "0"
	}
	return false
}

func unixTime(m map[string]any, key string) time.Time {
	secs, err := strconv.ParseInt(str(m, key), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

func strList(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// has reports whether key carries a non-empty value.
func has(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	}
	return true
}

// omissions collects tracked fields whose response keys were all absent.
type omissions struct {
	m       map[string]any
	missing domain.Omissions
}

func (o *omissions) need(field string, keys ...string) {
	for _, k := range keys {
		if has(o.m, k) {
			return
		}
	}
	o.missing = append(o.missing, field)
}

func (o *omissions) add(field string, ok bool) {
	if !ok {
		o.missing = append(o.missing, field)
	}
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

// nameservers collects ns1..nsN in order.
func nameservers(m map[string]any) []string {
	type ns struct {
		idx  int
		host string
	}
	var found []ns
	for k := range m {
		if !strings.HasPrefix(k, "ns") {
			continue
		}
		idx, err := strconv.Atoi(k[2:])
		if err != nil {
			continue
		}
		if host := str(m, k); host != "" {
			found = append(found, ns{idx: idx, host: strings.ToLower(host)})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].idx < found[j].idx })

	out := make([]string, 0, len(found))
	for _, n := range found {
		out = append(out, n.host)
	}
	return out
}

func parsePrice(v any) (decimal.Decimal, error) {
	switch p := v.(type) {
	case json.Number:
		return decimal.NewFromString(p.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(p))
	case float64:
		return decimal.NewFromFloat(p), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported price value %T", v)
}

// LookupKey finds an entry keyed by a composite name. The registrar may key
// results by the dotted name, the name with dots removed, or in any case.
func LookupKey(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	noDot := strings.ReplaceAll(name, ".", "")
	if v, ok := m[noDot]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) || strings.EqualFold(k, noDot) {
			return v, true
		}
	}
	return nil, false
}
