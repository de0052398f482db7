package models

// OutcomeKind tags the variant of a PurchaseOutcome
type OutcomeKind string

const (
	OutcomeNonTradingDay      OutcomeKind = "non_trading_day"
	OutcomeNoPurchasableBonds OutcomeKind = "no_purchasable_bonds"
	OutcomeSubmitted          OutcomeKind = "submitted"
	OutcomeFailed             OutcomeKind = "failed"
)

// Operator-facing texts, kept identical to what the operators already receive
const (
	NonTradingDayText      = "目前不能打新债"
	NoPurchasableBondsText = "当前没有可申购的债券"
	FailedTextPrefix       = "打新债失败，"
)

// PurchaseOutcome is the single result produced per user per run.
// Message carries the dialog text for Submitted and the error text for Failed.
type PurchaseOutcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// NonTradingDay is returned when the site shows its non-trading-day banner
func NonTradingDay() PurchaseOutcome {
	return PurchaseOutcome{Kind: OutcomeNonTradingDay}
}

// NoPurchasableBonds is returned when there is nothing to subscribe
func NoPurchasableBonds() PurchaseOutcome {
	return PurchaseOutcome{Kind: OutcomeNoPurchasableBonds}
}

// Submitted carries the cleaned result dialog text
func Submitted(message string) PurchaseOutcome {
	return PurchaseOutcome{Kind: OutcomeSubmitted, Message: message}
}

// Failed carries the (already normalized) error text
func Failed(message string) PurchaseOutcome {
	return PurchaseOutcome{Kind: OutcomeFailed, Message: message}
}

// Text renders the outcome as the notification body
func (o PurchaseOutcome) Text() string {
	switch o.Kind {
	case OutcomeNonTradingDay:
		return NonTradingDayText
	case OutcomeNoPurchasableBonds:
		return NoPurchasableBondsText
	case OutcomeFailed:
		return FailedTextPrefix + o.Message
	default:
		return o.Message
	}
}

// IsFailure reports whether the outcome is the Failed variant
func (o PurchaseOutcome) IsFailure() bool {
	return o.Kind == OutcomeFailed
}
