package models

import (
	"encoding/json"
	"time"
)

// ShipmentRow is the normalized persistence row derived from a provider
// order. Only orders that already carry a tracking code are ever projected.
type ShipmentRow struct {
	OrderID            string
	Protocol           string
	Status             string
	RecipientName      string
	RecipientPhoneE164 *string
	TrackingCode       string
	TrackingURL        *string
	RawPayload         json.RawMessage
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
