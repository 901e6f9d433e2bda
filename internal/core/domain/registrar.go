package domain

import "time"

// Availability is the registrar's answer for a single name.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
	Premium     Availability = "premium"
	// Unknown means the response held no entry for the name. It is not Unavailable.
	Unknown Availability = "unknown"
)

type AvailabilityResult struct {
	Name     string
	Status   Availability
	ClassKey string
}

// DomainDetails is the authoritative remote view of a domain order.
type DomainDetails struct {
	OrderID          string
	Name             string
	CustomerID       string
	Status           string
	ExpiresAt        time.Time
	AutoRenew        bool
	Locked           bool
	PrivacyProtected bool
	Nameservers      []string
	Omitted          Omissions
}

// EmailDetails is the authoritative remote view of an email order.
type EmailDetails struct {
	OrderID    string
	DomainName string
	Plan       string
	Seats      int
	Status     string
	ExpiresAt  time.Time
	AutoRenew  bool
	Omitted    Omissions
}

// OrderResult is returned by money-spending actions.
type OrderResult struct {
	OrderID     string
	Status      string
	Description string
	InvoiceID   string
}

type Customer struct {
	ID       string
	Username string
	Name     string
	Company  string
	Email    string
	Phone    string
	Country  string
	Status   string
}

type Contact struct {
	ID         string
	CustomerID string
	Type       string
	Name       string
	Company    string
	Email      string
	Address    string
	City       string
	State      string
	Zip        string
	Country    string
	PhoneCC    string
	Phone      string
}

// ContactSet holds the four contact ids a registration needs.
type ContactSet struct {
	Registrant string
	Admin      string
	Tech       string
	Billing    string
}
