package shipments

import (
	"strings"

	"github.com/rbxlabs/shipbox/internal/models"
)

const (
	// Shown to downstream consumers (notification messages) when the order
	// has no recipient name; they never deal with a null name.
	placeholderRecipientName = "cliente"

	fallbackTrackingBase = "https://www.melhorrastreio.com.br/rastreio"
)

// RowFromOrder projects a provider order into a normalized shipment row.
// Callers must only pass orders that already carry a tracking code.
func RowFromOrder(o *models.Order) *models.ShipmentRow {
	name := placeholderRecipientName
	phone := ""
	if o.To != nil {
		if o.To.Name != "" {
			name = o.To.Name
		}
		phone = o.To.Phone
	}

	return &models.ShipmentRow{
		OrderID:            o.ID,
		Protocol:           o.Protocol,
		Status:             o.Status,
		RecipientName:      name,
		RecipientPhoneE164: NormalizePhoneBR(phone),
		TrackingCode:       o.TrackingCode(),
		TrackingURL:        trackingURL(o),
		RawPayload:         o.Raw,
	}
}

// NormalizePhoneBR normalizes a Brazilian phone to +55XXXXXXXXXX(X): strip
// everything but digits, drop leading zeros, drop a leading "55" country
// code, then require 10 or 11 digits (landline vs mobile with area code).
// Anything else yields nil: invalid input is dropped, not rejected.
func NormalizePhoneBR(raw string) *string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := strings.TrimLeft(b.String(), "0")
	d = strings.TrimPrefix(d, "55")
	if len(d) != 10 && len(d) != 11 {
		return nil
	}
	out := "+55" + d
	return &out
}

// trackingURL picks the deep link in priority order: the provider's explicit
// tracking_url, then the carrier's tracking_link base joined with the code,
// then the Melhor Rastreio fallback. Carriers sometimes supply more accurate
// deep links than the generic fallback, hence the ordering.
func trackingURL(o *models.Order) *string {
	if o.TrackingURL != nil && *o.TrackingURL != "" {
		return o.TrackingURL
	}

	code := o.TrackingCode()
	if code == "" {
		return nil
	}

	if o.Service != nil && o.Service.Company != nil && o.Service.Company.TrackingLink != "" {
		u := strings.TrimRight(o.Service.Company.TrackingLink, "/") + "/" + code
		return &u
	}

	u := fallbackTrackingBase + "/" + code
	return &u
}
