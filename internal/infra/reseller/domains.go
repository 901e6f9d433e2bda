package reseller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// DomainService wraps the domains/* endpoints.
type DomainService struct {
	client Caller
	guard  guard
	opts   Options
}

// RegisterRequest holds the parameters of a new registration.
type RegisterRequest struct {
	Name            string
	Years           int
	Nameservers     []string
	CustomerID      string
	Contacts        domain.ContactSet
	PurchasePrivacy bool
	AutoRenew       bool
}

// TransferRequest holds the parameters of an inbound transfer.
type TransferRequest struct {
	Name            string
	AuthCode        string
	CustomerID      string
	Contacts        domain.ContactSet
	Nameservers     []string
	PurchasePrivacy bool
	AutoRenew       bool
}

// RenewRequest renews an existing order. ExpiresAt must be the current expiry.
type RenewRequest struct {
	OrderID   string
	Years     int
	ExpiresAt time.Time
	AutoRenew bool
}

func splitName(name string) (sld, tld string, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	i := strings.IndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", &rpc.Error{Kind: rpc.KindInvalidParameter, Message: fmt.Sprintf("invalid domain name %q", name)}
	}
	return name[:i], name[i+1:], nil
}

// CheckAvailability asks for every name in a single call.
// Names missing from the response come back as domain.Unknown.
func (s *DomainService) CheckAvailability(ctx context.Context, names ...string) ([]domain.AvailabilityResult, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var params rpc.Params
	seenSLD := make(map[string]bool)
	seenTLD := make(map[string]bool)
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		sld, tld, err := splitName(n)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, sld+"."+tld)
		if !seenSLD[sld] {
			seenSLD[sld] = true
			params = params.Add("domain-name", sld)
		}
		if !seenTLD[tld] {
			seenTLD[tld] = true
			params = params.Add("tlds", tld)
		}
	}

	var opts []rpc.CallOption
	if s.opts.AvailabilityURL != "" {
		opts = append(opts, rpc.WithBaseURL(s.opts.AvailabilityURL))
	}
	resp, err := s.client.Get(ctx, "domains/available.json", params, opts...)
	if err != nil {
		return nil, err
	}
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}

	results := make([]domain.AvailabilityResult, 0, len(normalized))
	for _, name := range normalized {
		res := domain.AvailabilityResult{Name: name, Status: domain.Unknown}
		if entry, ok := LookupKey(m, name); ok {
			res.Status, res.ClassKey = classifyAvailability(entry)
		}
		results = append(results, res)
	}
	return results, nil
}

func classifyAvailability(entry any) (domain.Availability, string) {
	m, ok := asMap(entry)
	if !ok {
		return domain.Unknown, ""
	}
	classKey := str(m, "classkey")
	switch strings.ToLower(str(m, "status")) {
	case "available":
		if strings.Contains(strings.ToLower(classKey), "premium") {
			return domain.Premium, classKey
		}
		return domain.Available, classKey
	case "regthroughus", "regthroughothers", "unavailable", "registered":
		return domain.Unavailable, classKey
	}
	return domain.Unknown, classKey
}

// Details fetches the authoritative state of an order.
func (s *DomainService) Details(ctx context.Context, orderID string) (*domain.DomainDetails, error) {
	params := rpc.Params{}.Add("order-id", orderID).Add("options", "All")
	resp, err := s.client.Get(ctx, "domains/details.json", params)
	if err != nil {
		return nil, err
	}
	return parseDomainDetails(resp)
}

// DetailsByName is Details keyed by the domain name, used when importing.
func (s *DomainService) DetailsByName(ctx context.Context, name string) (*domain.DomainDetails, error) {
	params := rpc.Params{}.Add("domain-name", strings.ToLower(name)).Add("options", "All")
	resp, err := s.client.Get(ctx, "domains/details-by-name.json", params)
	if err != nil {
		return nil, err
	}
	return parseDomainDetails(resp)
}

func parseDomainDetails(resp *rpc.Response) (*domain.DomainDetails, error) {
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}
	if str(m, "orderid") == "" {
		return nil, rpc.NewError(rpc.KindOrderNotFound, "details response has no orderid", resp.Status, resp.Body)
	}
	ns := nameservers(m)
	o := omissions{m: m}
	o.need(domain.FieldStatus, "currentstatus")
	o.add(domain.FieldExpiresAt, !unixTime(m, "endtime").IsZero())
	o.need(domain.FieldAutoRenew, "recurring")
	o.add(domain.FieldLocked, m["orderstatus"] != nil)
	o.need(domain.FieldPrivacyProtected, "isprivacyprotected")
	o.add(domain.FieldNameservers, len(ns) > 0)

	return &domain.DomainDetails{
		OrderID:          str(m, "orderid"),
		Name:             strings.ToLower(str(m, "domainname")),
		CustomerID:       str(m, "customerid"),
		Status:           str(m, "currentstatus"),
		ExpiresAt:        unixTime(m, "endtime"),
		AutoRenew:        boolean(m, "recurring"),
		Locked:           containsFold(strList(m, "orderstatus"), "transferlock"),
		PrivacyProtected: boolean(m, "isprivacyprotected"),
		Nameservers:      ns,
		Omitted:          o.missing,
	}, nil
}

// OrderID resolves the order id of a domain in this reseller account.
func (s *DomainService) OrderID(ctx context.Context, name string) (string, error) {
	resp, err := s.client.Get(ctx, "domains/orderid.json", rpc.Params{}.Add("domain-name", strings.ToLower(name)))
	if err != nil {
		return "", err
	}
	id := scalar(resp)
	if id == "" {
		return "", rpc.NewError(rpc.KindDomainNotFound, "no order id for "+name, resp.Status, resp.Body)
	}
	return id, nil
}

func (s *DomainService) contactParams(p rpc.Params, customerID string, c domain.ContactSet) rpc.Params {
	return p.Add("customer-id", customerID).
		Add("reg-contact-id", c.Registrant).
		Add("admin-contact-id", c.Admin).
		Add("tech-contact-id", c.Tech).
		Add("billing-contact-id", c.Billing)
}

// Register buys a new domain.
func (s *DomainService) Register(ctx context.Context, req RegisterRequest) (*domain.OrderResult, error) {
	if err := s.guard.check("register " + req.Name); err != nil {
		return nil, err
	}
	if req.Years <= 0 {
		req.Years = 1
	}

	p := rpc.Params{}.
		Add("domain-name", strings.ToLower(req.Name)).
		Add("years", strconv.Itoa(req.Years)).
		Add("ns", req.Nameservers...)
	p = s.contactParams(p, req.CustomerID, req.Contacts)
	p = p.Add("invoice-option", s.opts.InvoiceOption).
		Add("purchase-privacy", strconv.FormatBool(req.PurchasePrivacy)).
		Add("protect-privacy", strconv.FormatBool(req.PurchasePrivacy)).
		Add("auto-renew", strconv.FormatBool(req.AutoRenew))

	resp, err := s.client.Post(ctx, "domains/register.json", p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// Renew extends an existing order.
func (s *DomainService) Renew(ctx context.Context, req RenewRequest) (*domain.OrderResult, error) {
	if err := s.guard.check("renew order " + req.OrderID); err != nil {
		return nil, err
	}
	if req.Years <= 0 {
		req.Years = 1
	}

	p := rpc.Params{}.
		Add("order-id", req.OrderID).
		Add("years", strconv.Itoa(req.Years)).
		Add("exp-date", strconv.FormatInt(req.ExpiresAt.Unix(), 10)).
		Add("invoice-option", s.opts.InvoiceOption).
		Add("auto-renew", strconv.FormatBool(req.AutoRenew))

	resp, err := s.client.Post(ctx, "domains/renew.json", p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// Transfer starts an inbound transfer.
func (s *DomainService) Transfer(ctx context.Context, req TransferRequest) (*domain.OrderResult, error) {
	if err := s.guard.check("transfer " + req.Name); err != nil {
		return nil, err
	}

	p := rpc.Params{}.
		Add("domain-name", strings.ToLower(req.Name)).
		Add("auth-code", req.AuthCode).
		Add("ns", req.Nameservers...)
	p = s.contactParams(p, req.CustomerID, req.Contacts)
	p = p.Add("invoice-option", s.opts.InvoiceOption).
		Add("purchase-privacy", strconv.FormatBool(req.PurchasePrivacy)).
		Add("protect-privacy", strconv.FormatBool(req.PurchasePrivacy)).
		Add("auto-renew", strconv.FormatBool(req.AutoRenew))

	resp, err := s.client.Post(ctx, "domains/transfer.json", p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// Restore recovers a domain in its redemption period.
func (s *DomainService) Restore(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	if err := s.guard.check("restore order " + orderID); err != nil {
		return nil, err
	}
	p := rpc.Params{}.Add("order-id", orderID).Add("invoice-option", s.opts.InvoiceOption)
	resp, err := s.client.Post(ctx, "domains/restore.json", p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// PurchasePrivacy buys privacy protection for an order.
func (s *DomainService) PurchasePrivacy(ctx context.Context, orderID string) (*domain.OrderResult, error) {
	if err := s.guard.check("purchase privacy for order " + orderID); err != nil {
		return nil, err
	}
	p := rpc.Params{}.Add("order-id", orderID).Add("invoice-option", s.opts.InvoiceOption)
	resp, err := s.client.Post(ctx, "domains/purchase-privacy.json", p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// SetPrivacy toggles already purchased privacy protection.
func (s *DomainService) SetPrivacy(ctx context.Context, orderID string, enabled bool, reason string) error {
	if reason == "" {
		reason = "customer request"
	}
	p := rpc.Params{}.
		Add("order-id", orderID).
		Add("protect-privacy", strconv.FormatBool(enabled)).
		Add("reason", reason)
	_, err := s.client.Post(ctx, "domains/modify-privacy-protection.json", p)
	return err
}

func (s *DomainService) SetAutoRenew(ctx context.Context, orderID string, enabled bool) error {
	endpoint := "domains/auto-renew/disable.json"
	if enabled {
		endpoint = "domains/auto-renew/enable.json"
	}
	_, err := s.client.Post(ctx, endpoint, rpc.Params{}.Add("order-id", orderID))
	return err
}

// SetTheftProtection toggles the registrar transfer lock.
func (s *DomainService) SetTheftProtection(ctx context.Context, orderID string, enabled bool) error {
	endpoint := "domains/disable-theft-protection.json"
	if enabled {
		endpoint = "domains/enable-theft-protection.json"
	}
	_, err := s.client.Post(ctx, endpoint, rpc.Params{}.Add("order-id", orderID))
	return err
}

func (s *DomainService) ModifyNameservers(ctx context.Context, orderID string, ns []string) error {
	if len(ns) < 2 {
		return &rpc.Error{Kind: rpc.KindInvalidParameter, Message: "at least two nameservers are required"}
	}
	_, err := s.client.Post(ctx, "domains/modify-ns.json", rpc.Params{}.Add("order-id", orderID).Add("ns", ns...))
	return err
}
