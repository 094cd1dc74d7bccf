package constants

// Static route constants
const (
	APIPrefix = "/api/v1"

	AuthRegisterRoute        = "/auth/register"
	AuthLoginRoute           = "/auth/login"
	AuthActivateRoute        = "/auth/activate"
	AuthPasswordResetRoute   = "/auth/password-reset/request"
	AuthPasswordConfirmRoute = "/auth/password-reset/confirm"
	AuthMeRoute              = "/auth/me"

	BillingRoute         = "/billing"
	BillingCheckoutRoute = "/billing/checkout/sessions"
	BillingPortalRoute   = "/billing/portal"
	BillingWebhookRoute  = "/billing/webhooks"

	StorageAccountsRoute = "/storage-accounts"

	DocsRoute = "/docs"
)
