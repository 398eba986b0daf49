package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/wellkeeper/internal/server/models"
)

var ErrMalformedWebhook = errors.New("gateway: malformed webhook payload")

type webhookPayload struct {
	Event struct {
		Type           string  `json:"type"`
		AppUserID      string  `json:"app_user_id"`
		ProductID      string  `json:"product_id"`
		ExpirationAtMs *int64  `json:"expiration_at_ms"`
		OriginalUserID *string `json:"original_app_user_id"`
	} `json:"event"`
}

// ParseWebhook decodes a gateway notification. Only a body that is not a
// JSON object fails. Missing or unknown event types come back as
// models.EventUnrecognized and a missing user id as an empty AppUserID, both
// left to the service to acknowledge.
func ParseWebhook(body []byte) (*models.WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	userID := p.Event.AppUserID
	if userID == "" && p.Event.OriginalUserID != nil {
		userID = *p.Event.OriginalUserID
	}
	ev := &models.WebhookEvent{
		Kind:      models.ParseEventKind(p.Event.Type),
		RawType:   p.Event.Type,
		AppUserID: userID,
	}
	if p.Event.ProductID != "" {
		pid := p.Event.ProductID
		ev.ProductID = &pid
	}
	if p.Event.ExpirationAtMs != nil {
		t := time.UnixMilli(*p.Event.ExpirationAtMs).UTC()
		ev.ExpiresAt = &t
	}
	return ev, nil
}
