package audithook

// Action constants for audit events.
const (
	// Lot actions
	ActionLotCreated = "lot.created"

	// Session actions
	ActionSessionEntered   = "session.entered"
	ActionSessionRefreshed = "session.refreshed"
	ActionSessionLeft      = "session.left"

	// Settlement actions
	ActionSettlementFailed = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourceLot     = "lot"
	ResourceSession = "session"
	ResourceReceipt = "receipt"
)

// Category constants for audit events.
const (
	CategoryRegistry = "registry"
	CategoryParking  = "parking"
	CategoryPayment  = "payment"
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
