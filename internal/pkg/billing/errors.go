package billing

import "errors"

// Sentinel errors returned by the billing service. Controllers map these to
// HTTP status codes; anything else is an internal or provider failure.
var (
	ErrUnknownTier              = errors.New("unknown plan tier")
	ErrForbiddenAccount         = errors.New("checkout account does not match the authenticated user")
	ErrUserNotFound             = errors.New("user not found")
	ErrActivePlanExists         = errors.New("an active plan already exists for this user")
	ErrActiveSubscriptionExists = errors.New("an active subscription already exists for this user")
	ErrNoBillingAccount         = errors.New("no billing account on record for this user")
)
