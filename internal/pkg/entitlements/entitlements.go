package entitlements

import (
	"github.com/cubbyhq/cubby/internal/pkg/billing"
)

// unlimited marks a limit that is not enforced.
const unlimited = -1

// MaxStorageAccounts returns how many saved credential profiles a tier may
// hold. Free users get a single profile; any paid tier lifts the cap.
func MaxStorageAccounts(tier string) int {
	switch billing.Tier(tier) {
	case billing.TierPersonal, billing.TierProfessional, billing.TierProfessionalAnnual:
		return unlimited
	default:
		return 1
	}
}

// CanAddStorageAccount reports whether a user on the given tier may save one
// more profile on top of current.
func CanAddStorageAccount(tier string, current int) bool {
	max := MaxStorageAccounts(tier)
	return max == unlimited || current < max
}

// AllowedFeatures returns the client feature switches for a tier. The desktop
// app uses these to decide which UI surfaces to unlock.
func AllowedFeatures(tier string) (multiAccount, bulkOps bool) {
	switch billing.Tier(tier) {
	case billing.TierProfessional, billing.TierProfessionalAnnual:
		return true, true
	case billing.TierPersonal:
		return true, false
	default:
		return false, false
	}
}
