package models

import "encoding/json"

// Order is the read-only view of a Melhor Envio order. Nullable timestamps
// stay raw strings: we only ever check presence, never parse them.
type Order struct {
	ID       string     `json:"id"` // 36-char UUID, not the ORD-... protocol
	Protocol string     `json:"protocol"`
	Status   string     `json:"status"`
	To       *Recipient `json:"to"`

	Tracking     *string `json:"tracking"`
	SelfTracking *string `json:"self_tracking"`
	TrackingURL  *string `json:"tracking_url"`

	GeneratedAt *string `json:"generated_at"`
	CanceledAt  *string `json:"canceled_at"`
	ExpiredAt   *string `json:"expired_at"`
	SuspendedAt *string `json:"suspended_at"`

	Service *ShippingService `json:"service"`

	// Raw keeps the full provider payload for audit; set by the client at
	// decode time, never serialized back.
	Raw json.RawMessage `json:"-"`
}

type Recipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type ShippingService struct {
	Name    string   `json:"name"`
	Company *Company `json:"company"`
}

type Company struct {
	Name         string `json:"name"`
	TrackingLink string `json:"tracking_link"`
}

// TrackingCode returns the direct tracking code, or the self-reported one,
// or "" when the provider has not attached a code yet.
func (o *Order) TrackingCode() string {
	if o.Tracking != nil && *o.Tracking != "" {
		return *o.Tracking
	}
	if o.SelfTracking != nil && *o.SelfTracking != "" {
		return *o.SelfTracking
	}
	return ""
}

func (o *Order) HasTracking() bool {
	return o.TrackingCode() != ""
}

// Unlabeled reports whether a label has not been generated yet and the order
// carries no cancellation/expiry/suspension marker.
func (o *Order) Unlabeled() bool {
	return !present(o.GeneratedAt) &&
		!present(o.CanceledAt) && !present(o.ExpiredAt) && !present(o.SuspendedAt)
}

// Eligible reports whether the order is a candidate for label generation.
func (o *Order) Eligible() bool {
	switch o.Status {
	case "paid", "released":
	default:
		return false
	}
	return o.Unlabeled()
}

func present(s *string) bool {
	return s != nil && *s != ""
}
