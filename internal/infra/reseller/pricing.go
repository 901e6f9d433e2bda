package reseller

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// PriceTable is the canonical pricing shape: slab -> action -> duration -> major amount.
// Unslabbed products use the "" slab.
type PriceTable map[string]map[domain.Action]map[int]decimal.Decimal

// ProductPrices is the normalized price table of one resource key.
type ProductPrices struct {
	Key   string
	Unit  domain.DurationUnit
	Table PriceTable
}

// PriceList is one tier's response, normalized.
type PriceList struct {
	Tier     domain.Tier
	Source   string
	Currency string
	Products map[string]ProductPrices
	// Rejected holds products whose prices could not be parsed.
	Rejected map[string]error
}

var tierEndpoints = map[domain.Tier]string{
	domain.TierCustomer: "products/customer-price.json",
	domain.TierReseller: "products/reseller-price.json",
	domain.TierCost:     "products/reseller-cost-price.json",
}

// PricingService wraps the products/*-price endpoints.
type PricingService struct {
	client Caller
	opts   Options
}

// Prices fetches a tier's price list. With no keys the full list is returned;
// with keys the call is narrowed to those products.
func (s *PricingService) Prices(ctx context.Context, tier domain.Tier, keys ...string) (*PriceList, error) {
	endpoint, ok := tierEndpoints[tier]
	if !ok {
		return nil, fmt.Errorf("unknown pricing tier %q", tier)
	}

	var params rpc.Params
	if len(keys) > 0 {
		params = params.Add("product-key", keys...)
	}
	resp, err := s.client.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}

	list := &PriceList{
		Tier:     tier,
		Source:   endpoint,
		Currency: s.opts.Currency,
		Products: make(map[string]ProductPrices, len(m)),
		Rejected: make(map[string]error),
	}
	for key, raw := range m {
		table, unit, err := NormalizePriceTable(raw)
		if errors.Is(err, errEmptyProduct) {
			continue
		}
		if err != nil {
			list.Rejected[key] = err
			s.opts.Logger.Warn("Rejected product prices", "tier", tier, "product", key, "error", err)
			continue
		}
		list.Products[key] = ProductPrices{Key: key, Unit: unit, Table: table}
	}
	return list, nil
}

// Product looks up a product in the list using the composite-key rules.
func (l *PriceList) Product(key string) (ProductPrices, bool) {
	if p, ok := l.Products[key]; ok {
		return p, true
	}
	generic := make(map[string]any, len(l.Products))
	for k, v := range l.Products {
		generic[k] = v
	}
	if v, ok := LookupKey(generic, key); ok {
		return v.(ProductPrices), true
	}
	return ProductPrices{}, false
}

var (
	slabKey      = regexp.MustCompile(`^\d+(-\d+)?$`)
	flatPriceKey = regexp.MustCompile(`^([a-z_]+?)(\d+)$`)
	rangeSlabKey = regexp.MustCompile(`^\d+-\d+$`)

	errEmptyProduct = errors.New("product has no price entries")
)

// remote action names -> canonical actions
var actionNames = map[string]domain.Action{
	"addnewdomain":      domain.ActionRegister,
	"register":          domain.ActionRegister,
	"renewdomain":       domain.ActionRenew,
	"renew":             domain.ActionRenew,
	"addtransferdomain": domain.ActionTransfer,
	"transfer":          domain.ActionTransfer,
	"restoredomain":     domain.ActionRestore,
	"restore":           domain.ActionRestore,
	"add":               domain.ActionAdd,
	"addaccounts":       domain.ActionAdd,
}

func canonicalAction(name string) domain.Action {
	name = strings.ToLower(name)
	if a, ok := actionNames[name]; ok {
		return a
	}
	return domain.Action(name)
}

// NormalizePriceTable turns any of the registrar's pricing shapes into a PriceTable:
//
//	flat:    {"addnewdomain1": "10.20", "renewdomain2": "20.40"}
//	nested:  {"addnewdomain": {"1": "10.20"}}
//	slabbed: {"1": {...}, "2": {...}} or {"1-5": {...}}, each slab flat or nested
//	email:   {"email_account_ranges": {"1-5": {"add": {"1": "1.00"}}}}
//
// Seat-range slabs are priced per month, everything else per year.
func NormalizePriceTable(raw any) (PriceTable, domain.DurationUnit, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, "", fmt.Errorf("unexpected price shape %T", raw)
	}

	unit := domain.UnitYears
	slabs := map[string]any{"": m}

	if ranges, ok := asMap(m["email_account_ranges"]); ok {
		slabs = ranges
		unit = domain.UnitMonths
	} else if isSlabbed(m) {
		slabs = m
		for k := range m {
			if rangeSlabKey.MatchString(k) {
				unit = domain.UnitMonths
				break
			}
		}
	}

	table := make(PriceTable, len(slabs))
	for slab, v := range slabs {
		body, ok := asMap(v)
		if !ok {
			return nil, "", fmt.Errorf("slab %q: unexpected shape %T", slab, v)
		}
		// some responses wrap a slab's prices in {"pricing": {...}}
		if inner, ok := asMap(body["pricing"]); ok && len(body) == 1 {
			body = inner
		}
		actions, err := normalizeActions(body)
		if err != nil {
			return nil, "", fmt.Errorf("slab %q: %w", slab, err)
		}
		if len(actions) > 0 {
			table[slab] = actions
		}
	}
	if len(table) == 0 {
		return nil, unit, errEmptyProduct
	}
	return table, unit, nil
}

func isSlabbed(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k, v := range m {
		if !slabKey.MatchString(k) {
			return false
		}
		if _, ok := asMap(v); !ok {
			return false
		}
	}
	return true
}

// normalizeActions accepts the flat and nested forms of a single slab.
func normalizeActions(m map[string]any) (map[domain.Action]map[int]decimal.Decimal, error) {
	out := make(map[domain.Action]map[int]decimal.Decimal)
	put := func(action domain.Action, duration int, raw any) error {
		price, err := parsePrice(raw)
		if err != nil {
			return fmt.Errorf("%s/%d: %w", action, duration, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("%s/%d: %w", action, duration, domain.ErrNegativeAmount)
		}
		if out[action] == nil {
			out[action] = make(map[int]decimal.Decimal)
		}
		out[action][duration] = price
		return nil
	}

	for key, v := range m {
		lower := strings.ToLower(key)
		if nested, ok := asMap(v); ok {
			action := canonicalAction(lower)
			for dk, dv := range nested {
				duration, err := strconv.Atoi(dk)
				if err != nil || duration <= 0 {
					continue
				}
				if err := put(action, duration, dv); err != nil {
					return nil, err
				}
			}
			continue
		}

		parts := flatPriceKey.FindStringSubmatch(lower)
		if parts == nil {
			continue
		}
		duration, _ := strconv.Atoi(parts[2])
		if duration <= 0 {
			continue
		}
		if err := put(canonicalAction(parts[1]), duration, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}
