package types

// Failure kinds carried by PaymentResolution.Kind. Stable identifiers:
// downstream schedulers re-check awaiting_confirmations and tx_not_found,
// everything else is terminal for a given hash.
const (
	// -----------------------------
	// SUCCESS
	// -----------------------------
	KindOK = "ok"

	// -----------------------------
	// LOCATION
	// -----------------------------
	KindNotFound = "tx_not_found"

	// -----------------------------
	// VERIFICATION
	// -----------------------------
	KindAwaitingConfirmations = "awaiting_confirmations"
	KindReverted              = "tx_reverted"
	KindNoMatchingTransfer    = "no_matching_transfer"
	KindPriceUnavailable      = "price_unavailable"

	// -----------------------------
	// DEPENDENCY PRESSURE
	// -----------------------------
	KindRateLimited = "rate_limited"
	KindCircuitOpen = "circuit_open"
	KindTimeout     = "timeout"

	// -----------------------------
	// UNEXPECTED
	// -----------------------------
	KindUpstreamProtocolError = "upstream_protocol_error"
)
