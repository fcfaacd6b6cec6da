package urssaf

import (
	"errors"
	"strings"
)

// Activity is the micro-entrepreneur activity category that drives every rate.
type Activity string

const (
	ActivityVente        Activity = "vente"
	ActivityServicesBIC  Activity = "services_bic"
	ActivityLiberalBNC   Activity = "liberal_bnc"
	ActivityLiberalCIPAV Activity = "liberal_cipav"
)

var ErrUnknownActivity = errors.New("unknown activity")

// Activities returns every supported activity.
func Activities() []Activity {
	return []Activity{ActivityVente, ActivityServicesBIC, ActivityLiberalBNC, ActivityLiberalCIPAV}
}

// ParseActivity accepts the canonical names plus a few common aliases.
func ParseActivity(s string) (Activity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vente", "commerce", "bic_vente":
		return ActivityVente, nil
	case "services_bic", "services", "bic_services", "artisan":
		return ActivityServicesBIC, nil
	case "liberal_bnc", "bnc", "liberal":
		return ActivityLiberalBNC, nil
	case "liberal_cipav", "cipav":
		return ActivityLiberalCIPAV, nil
	default:
		return "", ErrUnknownActivity
	}
}

// Label returns the French label shown to users.
func (a Activity) Label() string {
	switch a {
	case ActivityVente:
		return "Vente de marchandises (BIC)"
	case ActivityServicesBIC:
		return "Prestations de services commerciales ou artisanales (BIC)"
	case ActivityLiberalBNC:
		return "Profession libérale (BNC, SSI)"
	case ActivityLiberalCIPAV:
		return "Profession libérale réglementée (BNC, CIPAV)"
	default:
		return string(a)
	}
}

// IsLiberal reports whether the activity is a BNC liberal profession.
func (a Activity) IsLiberal() bool {
	return a == ActivityLiberalBNC || a == ActivityLiberalCIPAV
}
