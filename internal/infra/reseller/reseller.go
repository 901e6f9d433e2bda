// Package reseller maps registrar endpoints onto typed requests and results.
package reseller

import (
	"context"
	"log/slog"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// Caller is the part of rpc.Client the services need.
type Caller interface {
	Get(ctx context.Context, endpoint string, params rpc.Params, opts ...rpc.CallOption) (*rpc.Response, error)
	Post(ctx context.Context, endpoint string, params rpc.Params, opts ...rpc.CallOption) (*rpc.Response, error)
}

// Options configures the services.
type Options struct {
	PurchasesEnabled bool
	Currency         string
	InvoiceOption    string // NoInvoice, PayInvoice, KeepInvoice
	EmailProduct     string // endpoint prefix of the email product, e.g. "eelite/us"
	// AvailabilityURL overrides the base URL for availability checks.
	AvailabilityURL string
	Logger          *slog.Logger
}

// Registrar groups the resource services sharing one client.
type Registrar struct {
	Domains   *DomainService
	Pricing   *PricingService
	Email     *EmailService
	Customers *CustomerService
}

// New builds every service on top of client.
func New(client Caller, opts Options) *Registrar {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.InvoiceOption == "" {
		opts.InvoiceOption = "NoInvoice"
	}
	if opts.EmailProduct == "" {
		opts.EmailProduct = "eelite/us"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	g := guard{enabled: opts.PurchasesEnabled}
	return &Registrar{
		Domains:   &DomainService{client: client, guard: g, opts: opts},
		Pricing:   &PricingService{client: client, opts: opts},
		Email:     &EmailService{client: client, guard: g, opts: opts},
		Customers: &CustomerService{client: client},
	}
}

// guard blocks money-spending calls when purchases are disabled.
type guard struct {
	enabled bool
}

func (g guard) check(action string) error {
	if g.enabled {
		return nil
	}
	return &rpc.Error{
		Kind:    rpc.KindPurchasesDisabled,
		Message: action + " refused: purchases are disabled",
	}
}

func responseMap(resp *rpc.Response) (map[string]any, error) {
	m, ok := asMap(resp.Value)
	if !ok {
		return nil, rpc.NewError(rpc.KindNetwork, "expected JSON object", resp.Status, resp.Body)
	}
	return m, nil
}

// scalar returns a response that is a bare number or string, e.g. a new order id.
func scalar(resp *rpc.Response) string {
	return str(map[string]any{"v": resp.Value}, "v")
}

func orderResult(resp *rpc.Response) (*domain.OrderResult, error) {
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}
	return &domain.OrderResult{
		OrderID:     str(m, "entityid"),
		Status:      str(m, "actionstatus"),
		Description: str(m, "actionstatusdesc"),
		InvoiceID:   str(m, "invoiceid"),
	}, nil
}
