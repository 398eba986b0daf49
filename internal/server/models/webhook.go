package models

import "time"

// EventKind is the closed set of gateway webhook events the engine knows.
type EventKind int

const (
	EventUnrecognized EventKind = iota
	EventInitialPurchase
	EventRenewal
	EventProductChange
	EventCancellation
	EventUncancellation
	EventExpiration
	EventBillingIssue
	EventNonRenewingPurchase
)

var eventKindNames = map[string]EventKind{
	"INITIAL_PURCHASE":      EventInitialPurchase,
	"RENEWAL":               EventRenewal,
	"PRODUCT_CHANGE":        EventProductChange,
	"CANCELLATION":          EventCancellation,
	"UNCANCELLATION":        EventUncancellation,
	"EXPIRATION":            EventExpiration,
	"BILLING_ISSUE":         EventBillingIssue,
	"NON_RENEWING_PURCHASE": EventNonRenewingPurchase,
}

// ParseEventKind maps a gateway event type string to its kind. Unknown
// strings map to EventUnrecognized.
func ParseEventKind(s string) EventKind {
	if k, ok := eventKindNames[s]; ok {
		return k
	}
	return EventUnrecognized
}

func (k EventKind) String() string {
	for name, v := range eventKindNames {
		if v == k {
			return name
		}
	}
	return "UNRECOGNIZED"
}

// WebhookEvent is a decoded gateway notification. AppUserID may hold either
// our account id or the gateway subscriber id.
type WebhookEvent struct {
	Kind      EventKind
	RawType   string
	AppUserID string
	ProductID *string
	ExpiresAt *time.Time
}
