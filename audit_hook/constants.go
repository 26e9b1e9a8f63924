package audithook

// Action constants for audit events.
const (
	// Policy actions
	ActionPolicyCreated     = "policy.created"
	ActionPolicyDeactivated = "policy.deactivated"

	// Premium actions
	ActionPaymentRecorded   = "payment.recorded"
	ActionClaimantQualified = "claimant.qualified"
	ActionPremiumCalculated = "premium.calculated"

	// Access actions
	ActionAccessDenied = "access.denied"
)

// Resource constants for audit events.
const (
	ResourcePolicy  = "policy"
	ResourcePayment = "payment"
	ResourcePremium = "premium"
	ResourceEngine  = "engine"
)

// Category constants for audit events.
const (
	CategoryPolicy  = "policy"
	CategoryPayment = "payment"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
