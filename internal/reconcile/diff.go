package reconcile

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/regsync/internal/core/domain"
)

// change is one tracked field whose mirrored value differs from the registrar.
type change struct {
	field  string
	local  string
	remote string
	value  any // remote value, typed for the repository patch
}

// differ collects changes, ignoring fields the registrar did not report.
type differ struct {
	omitted domain.Omissions
	changes []change
}

func (d *differ) str(field, local, remote string) {
	if local != remote && !d.omitted.Has(field) {
		d.changes = append(d.changes, change{field, local, remote, remote})
	}
}

func (d *differ) boolean(field string, local, remote bool) {
	if local != remote && !d.omitted.Has(field) {
		d.changes = append(d.changes, change{
			field, strconv.FormatBool(local), strconv.FormatBool(remote), remote,
		})
	}
}

func (d *differ) integer(field string, local, remote int) {
	if local != remote && !d.omitted.Has(field) {
		d.changes = append(d.changes, change{
			field, strconv.Itoa(local), strconv.Itoa(remote), remote,
		})
	}
}

// instant compares at second precision; the registrar reports unix seconds.
// A zero remote time means the registrar did not report the field.
func (d *differ) instant(field string, local, remote time.Time) {
	if remote.IsZero() || d.omitted.Has(field) {
		return
	}
	l := local.UTC().Truncate(time.Second)
	r := remote.UTC().Truncate(time.Second)
	if !l.Equal(r) {
		d.changes = append(d.changes, change{field, formatTime(l), formatTime(r), r})
	}
}

func (d *differ) list(field string, local, remote []string) {
	if !slices.Equal(local, remote) && !d.omitted.Has(field) {
		d.changes = append(d.changes, change{
			field, strings.Join(local, ","), strings.Join(remote, ","), slices.Clone(remote),
		})
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func diffDomain(local *domain.Domain, remote *domain.DomainDetails) []change {
	d := differ{omitted: remote.Omitted}
	d.str(domain.FieldStatus, local.Status, remote.Status)
	d.instant(domain.FieldExpiresAt, local.ExpiresAt, remote.ExpiresAt)
	d.boolean(domain.FieldAutoRenew, local.AutoRenew, remote.AutoRenew)
	d.boolean(domain.FieldLocked, local.Locked, remote.Locked)
	d.boolean(domain.FieldPrivacyProtected, local.PrivacyProtected, remote.PrivacyProtected)
	d.list(domain.FieldNameservers, local.Nameservers, remote.Nameservers)
	return d.changes
}

func diffEmailOrder(local *domain.EmailOrder, remote *domain.EmailDetails) []change {
	d := differ{omitted: remote.Omitted}
	d.str(domain.FieldStatus, local.Status, remote.Status)
	d.instant(domain.FieldExpiresAt, local.ExpiresAt, remote.ExpiresAt)
	d.boolean(domain.FieldAutoRenew, local.AutoRenew, remote.AutoRenew)
	d.integer(domain.FieldSeats, local.Seats, remote.Seats)
	d.str(domain.FieldPlan, local.Plan, remote.Plan)
	return d.changes
}
