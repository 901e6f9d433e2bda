package domain

import "time"

type ResourceType string

const (
	ResourceDomain     ResourceType = "domain"
	ResourceEmailOrder ResourceType = "email_order"
)

// Fields tracked on mirrored resources. Repository patches only accept these.
const (
	FieldStatus           = "status"
	FieldExpiresAt        = "expires_at"
	FieldAutoRenew        = "auto_renew"
	FieldLocked           = "locked"
	FieldPrivacyProtected = "privacy_protected"
	FieldNameservers      = "nameservers"
	FieldSeats            = "seats"
	FieldPlan             = "plan"
	FieldLastSyncedAt     = "last_synced_at"
)

// Omissions lists tracked fields a registrar response did not carry. Their
// zero values on the details struct are placeholders, not remote state.
type Omissions []string

func (o Omissions) Has(field string) bool {
	for _, f := range o {
		if f == field {
			return true
		}
	}
	return false
}

// Patch is a set of field updates keyed by the field constants above.
type Patch map[string]any

// Domain is the local mirror of a registered domain order.
type Domain struct {
	ID               string
	TenantID         string
	OrderID          string
	Name             string
	Status           string
	ExpiresAt        time.Time
	AutoRenew        bool
	Locked           bool
	PrivacyProtected bool
	Nameservers      []string
	CreatedViaAPI    bool
	LastSyncedAt     *time.Time
	UpdatedAt        time.Time
}

// EmailOrder is the local mirror of a hosted email order.
type EmailOrder struct {
	ID            string
	TenantID      string
	OrderID       string
	DomainName    string
	Plan          string
	Seats         int
	Status        string
	ExpiresAt     time.Time
	AutoRenew     bool
	CreatedViaAPI bool
	LastSyncedAt  *time.Time
	UpdatedAt     time.Time
}

// Discrepancy is one field-level mismatch found by reconciliation.
type Discrepancy struct {
	ID           string
	RunID        string
	ResourceType ResourceType
	ResourceID   string
	DisplayName  string
	Field        string
	LocalValue   string
	RemoteValue  string
	DetectedAt   time.Time
}
