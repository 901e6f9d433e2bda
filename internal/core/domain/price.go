package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one pricing view of the same resource key.
type Tier string

const (
	TierCustomer Tier = "customer"
	TierReseller Tier = "reseller"
	TierCost     Tier = "cost"
)

// AllTiers lists every tier in refresh order.
var AllTiers = []Tier{TierCustomer, TierReseller, TierCost}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierCustomer, TierReseller, TierCost:
		return Tier(s), nil
	}
	return "", errors.New("unknown pricing tier: " + s)
}

type Action string

const (
	ActionRegister Action = "register"
	ActionRenew    Action = "renew"
	ActionTransfer Action = "transfer"
	ActionRestore  Action = "restore"
	ActionAdd      Action = "add" // email seats
)

type DurationUnit string

const (
	UnitYears  DurationUnit = "years"
	UnitMonths DurationUnit = "months"
)

// ErrNegativeAmount is returned when a remote price is below zero.
var ErrNegativeAmount = errors.New("negative price amount")

// PriceQuote is a single price point. Amount is in minor currency units.
type PriceQuote struct {
	ResourceKey string
	Action      Action
	Unit        DurationUnit
	Duration    int
	Amount      int64
	Currency    string
}

// Major returns the amount in major currency units.
func (q PriceQuote) Major() decimal.Decimal {
	return FromMinorUnits(q.Amount, q.Currency)
}

type Freshness string

const (
	Fresh Freshness = "fresh"
	Stale Freshness = "stale"
)

// CachedPrice is a PriceQuote persisted for one pricing tier.
// Unique on (ResourceKey, Tier, Slab, Action, Duration).
type CachedPrice struct {
	PriceQuote
	Tier        Tier
	Slab        string // "" when the product is not slabbed
	Source      string
	RefreshedAt time.Time
}

// Freshness reports whether the row is still within maxAge of its refresh.
func (c CachedPrice) Freshness(now time.Time, maxAge time.Duration) Freshness {
	if now.Sub(c.RefreshedAt) > maxAge {
		return Stale
	}
	return Fresh
}

// ISO 4217 minor-unit exponents that differ from the usual two digits.
var currencyExponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "UYI": 0, "VND": 0, "VUV": 0,
	"XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"CLF": 4, "UYW": 4,
}

// CurrencyExponent returns the number of minor-unit digits for an ISO 4217
// code. Unknown or empty codes use 2.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a decimal major amount to minor units of currency:
// 10.20 USD is 1020, 1500 JPY is 1500.
func ToMinorUnits(d decimal.Decimal, currency string) (int64, error) {
	if d.IsNegative() {
		return 0, ErrNegativeAmount
	}
	return d.Shift(CurrencyExponent(currency)).Round(0).IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(v int64, currency string) decimal.Decimal {
	return decimal.New(v, -CurrencyExponent(currency))
}
