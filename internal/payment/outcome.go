package payment

import "strings"

// Decision is the canonical reading of a provider response: deliver the
// tickets, hold the reservation for a later callback, or reject and release.
type Decision int

const (
	Deliver Decision = iota
	Hold
	Reject
)

func (d Decision) String() string {
	switch d {
	case Deliver:
		return "deliver"
	case Hold:
		return "hold"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// Rejection subcodes surfaced to the buyer.
const (
	SubcodeFund         = "FUND"
	SubcodeSecurityCode = "SECURITY_CODE"
	SubcodeExpiredCard  = "EXPIRED_CARD"
	SubcodeFormError    = "FORM_ERROR"
	SubcodeCallAuth     = "CALL_AUTH"
	SubcodeOther        = "OTHER"
)

type Outcome struct {
	Decision  Decision
	Subcode   string
	Message   string
	Retryable bool
}

// Normalize maps the provider's status/statusDetail pair onto the three
// canonical outcomes. Unknown statuses are held rather than rejected, so a
// provider rollout of new codes cannot drop paid reservations.
func Normalize(status, statusDetail string) Outcome {
	switch strings.ToLower(status) {
	case "approved":
		return Outcome{Decision: Deliver, Message: "Payment approved."}
	case "pending", "in_process", "in_mediation":
		return Outcome{Decision: Hold, Message: "Payment is being processed. Tickets will be delivered upon confirmation."}
	case "rejected":
		return rejection(statusDetail)
	default:
		return Outcome{Decision: Hold, Message: "Payment is being processed. Tickets will be delivered upon confirmation."}
	}
}

func rejection(statusDetail string) Outcome {
	detail := strings.ToLower(statusDetail)
	switch {
	case strings.Contains(detail, "insufficient"):
		return Outcome{Decision: Reject, Subcode: SubcodeFund, Retryable: true,
			Message: "Payment rejected: insufficient funds."}
	case strings.Contains(detail, "security_code"):
		return Outcome{Decision: Reject, Subcode: SubcodeSecurityCode, Retryable: true,
			Message: "Payment rejected: invalid security code."}
	case strings.Contains(detail, "expired"):
		return Outcome{Decision: Reject, Subcode: SubcodeExpiredCard, Retryable: false,
			Message: "Payment rejected: card expired."}
	case strings.Contains(detail, "bad_filled"), strings.Contains(detail, "form"):
		return Outcome{Decision: Reject, Subcode: SubcodeFormError, Retryable: true,
			Message: "Payment rejected: check the card details and try again."}
	case strings.Contains(detail, "call_for_auth"):
		return Outcome{Decision: Reject, Subcode: SubcodeCallAuth, Retryable: true,
			Message: "Payment rejected: your bank requires authorization for this charge."}
	default:
		return Outcome{Decision: Reject, Subcode: SubcodeOther, Retryable: false,
			Message: "Payment rejected."}
	}
}
