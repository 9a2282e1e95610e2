package pgship

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/rbxlabs/shipbox/internal/models"
)

// UpsertShipments writes a batch of projected rows keyed by order_id in one
// transaction. Re-projecting the same order just refreshes the row.
func (s *Storage) UpsertShipments(ctx context.Context, rows []*models.ShipmentRow) error {
	if len(rows) == 0 {
		return nil
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range rows {
		_, err := tx.Exec(ctx, `
INSERT INTO me_shipments (
  order_id, protocol, status, recipient_name, recipient_phone_e164,
  tracking_code, tracking_url, raw_payload, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
ON CONFLICT (order_id)
DO UPDATE SET
  protocol = EXCLUDED.protocol,
  status = EXCLUDED.status,
  recipient_name = EXCLUDED.recipient_name,
  recipient_phone_e164 = EXCLUDED.recipient_phone_e164,
  tracking_code = EXCLUDED.tracking_code,
  tracking_url = EXCLUDED.tracking_url,
  raw_payload = EXCLUDED.raw_payload,
  updated_at = EXCLUDED.updated_at
`, r.OrderID, r.Protocol, r.Status, r.RecipientName, r.RecipientPhoneE164,
			r.TrackingCode, r.TrackingURL, r.RawPayload, now)
		if err != nil {
			return errors.Wrap(err, "upsert shipment")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// GetShipmentsByOrderIDs is used by tests and the API to read back projected
// rows; result order follows the database, not the input.
func (s *Storage) GetShipmentsByOrderIDs(ctx context.Context, orderIDs []string) ([]*models.ShipmentRow, error) {
	if len(orderIDs) == 0 {
		return []*models.ShipmentRow{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT
  order_id, protocol, status, recipient_name, recipient_phone_e164,
  tracking_code, tracking_url, raw_payload, created_at, updated_at
FROM me_shipments
WHERE order_id = ANY($1)
`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.ShipmentRow, 0, len(orderIDs))
	for rows.Next() {
		var r models.ShipmentRow
		if err := rows.Scan(
			&r.OrderID, &r.Protocol, &r.Status,
			&r.RecipientName, &r.RecipientPhoneE164,
			&r.TrackingCode, &r.TrackingURL, &r.RawPayload,
			&r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, &r)
	}

	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
