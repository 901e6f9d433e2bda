package reseller

import (
	"context"

	"github.com/vietddude/regsync/internal/core/domain"
	"github.com/vietddude/regsync/internal/infra/rpc"
)

// CustomerService wraps the customers/* and contacts/* endpoints.
type CustomerService struct {
	client Caller
}

// SignupRequest creates a customer under the reseller account.
type SignupRequest struct {
	Username string // email address
	Password string
	Name     string
	Company  string
	Address  string
	City     string
	State    string
	Country  string
	Zip      string
	PhoneCC  string
	Phone    string
	Language string
}

func (s *CustomerService) Details(ctx context.Context, username string) (*domain.Customer, error) {
	resp, err := s.client.Get(ctx, "customers/details.json", rpc.Params{}.Add("username", username))
	if err != nil {
		return nil, err
	}
	return parseCustomer(resp)
}

func (s *CustomerService) DetailsByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	resp, err := s.client.Get(ctx, "customers/details-by-id.json", rpc.Params{}.Add("customer-id", customerID))
	if err != nil {
		return nil, err
	}
	return parseCustomer(resp)
}

func parseCustomer(resp *rpc.Response) (*domain.Customer, error) {
	m, err := responseMap(resp)
	if err != nil {
		return nil, err
	}
	if str(m, "customerid") == "" {
		return nil, rpc.NewError(rpc.KindCustomerNotFound, "customer response has no customerid", resp.Status, resp.Body)
	}
	return &domain.Customer{
		ID:       str(m, "customerid"),
		Username: str(m, "username"),
		Name:     str(m, "name"),
		Company:  str(m, "company"),
		Email:    str(m, "useremail"),
		Phone:    str(m, "telno"),
		Country:  str(m, "country"),
		Status:   str(m, "customerstatus"),
	}, nil
}

// Signup creates a customer and returns its id.
func (s *CustomerService) Signup(ctx context.Context, req SignupRequest) (string, error) {
	if req.Language == "" {
		req.Language = "en"
	}
	p := rpc.Params{}.
		Add("username", req.Username).
		Add("passwd", req.Password).
		Add("name", req.Name).
		Add("company", req.Company).
		Add("address-line-1", req.Address).
		Add("city", req.City).
		Add("state", req.State).
		Add("country", req.Country).
		Add("zipcode", req.Zip).
		Add("phone-cc", req.PhoneCC).
		Add("phone", req.Phone).
		Add("lang-pref", req.Language)

	resp, err := s.client.Post(ctx, "customers/signup.json", p)
	if err != nil {
		return "", err
	}
	return scalar(resp), nil
}

// AddContact creates a contact for a customer and returns its id.
func (s *CustomerService) AddContact(ctx context.Context, c domain.Contact) (string, error) {
	if c.Type == "" {
		c.Type = "Contact"
	}
	p := rpc.Params{}.
		Add("name", c.Name).
		Add("company", c.Company).
		Add("email", c.Email).
		Add("address-line-1", c.Address).
		Add("city", c.City).
		Add("state", c.State).
		Add("country", c.Country).
		Add("zipcode", c.Zip).
		Add("phone-cc", c.PhoneCC).
		Add("phone", c.Phone).
		Add("customer-id", c.CustomerID).
		Add("type", c.Type)

	resp, err := s.client.Post(ctx, "contacts/add.json", p)
	if err != nil {
		return "", err
	}
	return scalar(resp), nil
}

// DefaultContacts returns (creating if needed) the customer's default contact set.
func (s *CustomerService) DefaultContacts(ctx context.Context, customerID string) (domain.ContactSet, error) {
	p := rpc.Params{}.Add("customer-id", customerID).Add("type", "Contact")
	resp, err := s.client.Post(ctx, "contacts/default.json", p)
	if err != nil {
		return domain.ContactSet{}, err
	}
	m, err := responseMap(resp)
	if err != nil {
		return domain.ContactSet{}, err
	}
	if inner, ok := LookupKey(m, "contact"); ok {
		if im, ok := asMap(inner); ok {
			m = im
		}
	}

	contactID := func(key string) string {
		v, ok := LookupKey(m, key)
		if !ok {
			return ""
		}
		if cm, ok := asMap(v); ok {
			if id := str(cm, "contactId"); id != "" {
				return id
			}
			return str(cm, "contactid")
		}
		return str(map[string]any{"v": v}, "v")
	}

	set := domain.ContactSet{
		Registrant: contactID("registrantContactDetails"),
		Admin:      contactID("adminContactDetails"),
		Tech:       contactID("techContactDetails"),
		Billing:    contactID("billingContactDetails"),
	}
	if set.Registrant == "" {
		return set, rpc.NewError(rpc.KindContactNotFound, "no default registrant contact", resp.Status, resp.Body)
	}
	return set, nil
}
