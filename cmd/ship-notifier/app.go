package main

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rbxlabs/shipbox/internal/broker/messages"
)

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// runNotifier consumes shipment.updated events and emits one notification per
// shipment. Delivery is a structured log line for now; the projected row
// guarantees a non-empty recipient name and a tracking URL when one exists.
func runNotifier(ctx context.Context, consumer kafkaConsumer) error {
	return consumer.Consume(ctx, func(_key, value []byte) error {
		var m messages.ShipmentUpdated
		if err := json.Unmarshal(value, &m); err != nil {
			return err
		}
		notify(m)
		return nil
	})
}

func notify(m messages.ShipmentUpdated) {
	args := []any{
		"order_id", m.OrderID,
		"protocol", m.Protocol,
		"recipient", m.RecipientName,
		"tracking_code", m.TrackingCode,
		"deferred", m.Deferred,
	}
	if m.RecipientPhoneE164 != nil {
		args = append(args, "phone", *m.RecipientPhoneE164)
	}
	if m.TrackingURL != nil {
		args = append(args, "tracking_url", *m.TrackingURL)
	}
	slog.Info("shipment notification", args...)
}
