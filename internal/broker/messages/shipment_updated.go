package messages

import "time"

// ShipmentUpdated is published after a shipment row is projected and
// persisted. ship-notifier consumes it to message the recipient.
type ShipmentUpdated struct {
	OrderID            string    `json:"order_id"`
	Protocol           string    `json:"protocol"`
	Status             string    `json:"status"`
	RecipientName      string    `json:"recipient_name"`
	RecipientPhoneE164 *string   `json:"recipient_phone_e164,omitempty"`
	TrackingCode       string    `json:"tracking_code"`
	TrackingURL        *string   `json:"tracking_url,omitempty"`
	SyncedAt           time.Time `json:"synced_at"`
	Deferred           bool      `json:"deferred"`
}
