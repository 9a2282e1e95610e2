package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbxlabs/shipbox/internal/broker/messages"
	"github.com/rbxlabs/shipbox/internal/models"
	"github.com/rbxlabs/shipbox/internal/services/shipments"
)

type OrderFetcher interface {
	GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error)
}

type ShipmentStore interface {
	UpsertShipments(ctx context.Context, rows []*models.ShipmentRow) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Reconciler copes with the provider's eventually-consistent tracking-code
// assignment: after label generation it re-fetches the requested orders
// right away, then once more after a delay, and projects whichever orders
// already carry a tracking code.
type Reconciler struct {
	orders OrderFetcher
	store  ShipmentStore

	producer Producer // optional
	topic    string

	delay       time.Duration
	concurrency int
	sleep       func(ctx context.Context, d time.Duration)

	deferredWG sync.WaitGroup

	totalSynced   atomic.Int64
	totalDropped  atomic.Int64
	totalDeferred atomic.Int64
	lastErrorMu   sync.Mutex
	lastError     string
}

func New(orders OrderFetcher, store ShipmentStore) *Reconciler {
	return &Reconciler{
		orders:      orders,
		store:       store,
		delay:       60 * time.Second,
		concurrency: 10,
		sleep:       sleepCtx,
	}
}

func (r *Reconciler) WithProducer(p Producer, topic string) *Reconciler {
	r.producer = p
	r.topic = topic
	return r
}

func (r *Reconciler) WithDelay(d time.Duration) *Reconciler {
	if d > 0 {
		r.delay = d
	}
	return r
}

func (r *Reconciler) WithConcurrency(n int) *Reconciler {
	if n > 0 {
		r.concurrency = n
	}
	return r
}

// WithSleep overrides the deferred-pass waiter (tests).
func (r *Reconciler) WithSleep(sleep func(ctx context.Context, d time.Duration)) *Reconciler {
	r.sleep = sleep
	return r
}

// SyncNow is the immediate pass: fetch each order individually, keep the
// ones that already carry a tracking code, project and persist them.
// Returns the order ids that were synced. A fetch failure on one order never
// blocks the others; that order is just absent from the result.
func (r *Reconciler) SyncNow(ctx context.Context, accountID string, orderIDs []string) ([]string, error) {
	return r.syncPass(ctx, accountID, orderIDs, false)
}

// ScheduleDeferred runs one more pass after the configured delay as a
// fire-and-forget task. Nothing awaits it and every error is swallowed
// (logged): this is best-effort reconciliation, not guaranteed delivery.
func (r *Reconciler) ScheduleDeferred(accountID string, orderIDs []string) {
	if len(orderIDs) == 0 {
		return
	}
	r.totalDeferred.Add(1)
	r.deferredWG.Add(1)
	go func() {
		defer r.deferredWG.Done()

		// Detached from the request that spawned it on purpose.
		ctx := context.Background()
		r.sleep(ctx, r.delay)

		if _, err := r.syncPass(ctx, accountID, orderIDs, true); err != nil {
			slog.Warn("deferred shipment sync failed", "error", err.Error())
			r.setLastError(err.Error())
		}
	}()
}

// WaitDeferred blocks until all scheduled deferred passes finish. Used by
// tests and by graceful shutdown to drain in-flight work.
func (r *Reconciler) WaitDeferred() {
	r.deferredWG.Wait()
}

func (r *Reconciler) syncPass(ctx context.Context, accountID string, orderIDs []string, deferred bool) ([]string, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	fetched := r.fetchOrders(ctx, accountID, orderIDs)

	var rows []*models.ShipmentRow
	var synced []string
	for _, o := range fetched {
		if !o.HasTracking() {
			r.totalDropped.Add(1)
			continue
		}
		rows = append(rows, shipments.RowFromOrder(o))
		synced = append(synced, o.ID)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := r.store.UpsertShipments(ctx, rows); err != nil {
		r.setLastError(err.Error())
		return nil, err
	}
	r.totalSynced.Add(int64(len(rows)))

	r.publishUpdated(ctx, rows, deferred)
	return synced, nil
}

// fetchOrders fans out one GetOrder per id; failed fetches are dropped.
// Result order is whatever the goroutines produced, not the input order.
func (r *Reconciler) fetchOrders(ctx context.Context, accountID string, orderIDs []string) []*models.Order {
	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []*models.Order

	for _, id := range orderIDs {
		sem <- struct{}{}
		wg.Add(1)
		go func(orderID string) {
			defer func() {
				<-sem
				wg.Done()
			}()
			o, err := r.orders.GetOrder(ctx, accountID, orderID)
			if err != nil {
				slog.Warn("fetch order for sync", "order_id", orderID, "error", err.Error())
				r.setLastError(err.Error())
				return
			}
			if o == nil || o.ID == "" {
				return
			}
			mu.Lock()
			out = append(out, o)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

func (r *Reconciler) publishUpdated(ctx context.Context, rows []*models.ShipmentRow, deferred bool) {
	if r.producer == nil {
		return
	}
	now := time.Now().UTC()
	for _, row := range rows {
		msg := messages.ShipmentUpdated{
			OrderID:            row.OrderID,
			Protocol:           row.Protocol,
			Status:             row.Status,
			RecipientName:      row.RecipientName,
			RecipientPhoneE164: row.RecipientPhoneE164,
			TrackingCode:       row.TrackingCode,
			TrackingURL:        row.TrackingURL,
			SyncedAt:           now,
			Deferred:           deferred,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		if err := r.producer.Publish(ctx, r.topic, []byte(row.OrderID), b); err != nil {
			// Rows are already persisted; a lost event is acceptable.
			slog.Warn("publish shipment.updated", "order_id", row.OrderID, "error", err.Error())
		}
	}
}

type Stats struct {
	TotalSynced   int64  `json:"totalSynced"`
	TotalDropped  int64  `json:"totalDropped"`
	TotalDeferred int64  `json:"totalDeferred"`
	LastError     string `json:"lastError,omitempty"`
}

func (r *Reconciler) Stats() Stats {
	st := Stats{
		TotalSynced:   r.totalSynced.Load(),
		TotalDropped:  r.totalDropped.Load(),
		TotalDeferred: r.totalDeferred.Load(),
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reconciler) setLastError(s string) {
	r.lastErrorMu.Lock()
	r.lastError = s
	r.lastErrorMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
