package reseller

import (
	"context"
	"strconv"
	"strings"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// EmailService wraps the hosted email order endpoints.
type EmailService struct {
	client Caller
	guard  guard
	opts   Options
}

func (s *EmailService) endpoint(action string) string {
	return strings.Trim(s.opts.EmailProduct, "/") + "/" + action
}

func (s *EmailService) Details(ctx context.Context, orderID string) (*domain.EmailDetails, error) {
	resp, err := s.client.Get(ctx, s.endpoint("details.json"), rpc.Params{}.Add("order-id", orderID))
	if err != nil {
		return nil, err
	}
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}
	if str(m, "orderid") == "" {
		return nil, rpc.NewError(rpc.KindOrderNotFound, "details response has no orderid", resp.Status, resp.Body)
	}

	plan := str(m, "planname")
	if plan == "" {
		plan = str(m, "productkey")
	}
	seats, seatsErr := strconv.Atoi(str(m, "emailaccounts"))
	o := omissions{m: m}
	o.need(domain.FieldStatus, "currentstatus")
	o.add(domain.FieldExpiresAt, !unixTime(m, "endtime").IsZero())
	o.need(domain.FieldAutoRenew, "recurring")
	o.add(domain.FieldSeats, seatsErr == nil)
	o.need(domain.FieldPlan, "planname", "productkey")

	return &domain.EmailDetails{
		OrderID:    str(m, "orderid"),
		DomainName: strings.ToLower(str(m, "domainname")),
		Plan:       plan,
		Seats:      seats,
		Status:     str(m, "currentstatus"),
		ExpiresAt:  unixTime(m, "endtime"),
		AutoRenew:  boolean(m, "recurring"),
		Omitted:    o.missing,
	}, nil
}

// AddSeats buys additional mailboxes on an order.
func (s *EmailService) AddSeats(ctx context.Context, orderID string, seats int) (*domain.OrderResult, error) {
	if err := s.guard.check("add email seats to order " + orderID); err != nil {
		return nil, err
	}
	if seats <= 0 {
		return nil, &rpc.Error{Kind: rpc.KindInvalidParameter, Message: "seats must be positive"}
	}
	p := rpc.Params{}.
		Add("order-id", orderID).
		Add("no-of-accounts", strconv.Itoa(seats)).
		Add("invoice-option", s.opts.InvoiceOption)
	resp, err := s.client.Post(ctx, s.endpoint("add-email-account.json"), p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

// Renew renews an order for the given number of months and seats.
func (s *EmailService) Renew(ctx context.Context, orderID string, months, seats int) (*domain.OrderResult, error) {
	if err := s.guard.check("renew email order " + orderID); err != nil {
		return nil, err
	}
	p := rpc.Params{}.
		Add("order-id", orderID).
		Add("months", strconv.Itoa(months)).
		Add("no-of-accounts", strconv.Itoa(seats)).
		Add("invoice-option", s.opts.InvoiceOption)
	resp, err := s.client.Post(ctx, s.endpoint("renew.json"), p)
	if err != nil {
		return nil, err
	}
	return orderResult(resp)
}

func (s *EmailService) SetAutoRenew(ctx context.Context, orderID string, enabled bool) error {
	action := "auto-renew/disable.json"
	if enabled {
		action = "auto-renew/enable.json"
	}
	_, err := s.client.Post(ctx, s.endpoint(action), rpc.Params{}.Add("order-id", orderID))
	return err
}
