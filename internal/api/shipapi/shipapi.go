package shipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rbxlabs/shipbox/internal/cache"
	"github.com/rbxlabs/shipbox/internal/integrations/melhorenvio"
	"github.com/rbxlabs/shipbox/internal/models"
	"github.com/rbxlabs/shipbox/internal/services/reconciler"
)

type OrdersClient interface {
	ListOrders(ctx context.Context, accountID string, p melhorenvio.ListOrdersParams) (json.RawMessage, error)
	GenerateLabels(ctx context.Context, accountID string, orderIDs []string) (json.RawMessage, error)
}

type CodeExchanger interface {
	ExchangeCode(ctx context.Context, accountID, code string) (*models.Credential, error)
}

type Syncer interface {
	SyncNow(ctx context.Context, accountID string, orderIDs []string) ([]string, error)
	ScheduleDeferred(accountID string, orderIDs []string)
	Stats() reconciler.Stats
}

type API struct {
	orders OrdersClient
	tokens CodeExchanger
	sync   Syncer

	cache    cache.BytesCache // optional, raw provider pages only
	cacheTTL time.Duration

	deferredDelay time.Duration
}

func New(orders OrdersClient, tokens CodeExchanger, sync Syncer, deferredDelay time.Duration) *API {
	if deferredDelay <= 0 {
		deferredDelay = 60 * time.Second
	}
	return &API{orders: orders, tokens: tokens, sync: sync, deferredDelay: deferredDelay}
}

// WithCache enables short-TTL caching of raw provider order pages.
func (a *API) WithCache(c cache.BytesCache, ttl time.Duration) *API {
	a.cache = c
	a.cacheTTL = ttl
	return a
}

func (a *API) Routes(r chi.Router) {
	r.Get("/api/v1/me/orders", a.listOrders)
	r.Post("/api/v1/me/generate", a.generateLabels)
	r.Get("/oauth/callback", a.oauthCallback)
	r.Get("/stats", a.stats)
}

// listOrders is a paginated pass-through for the provider's order list.
// only_eligible filters provider-side (status=released); only_unlabeled
// filters locally for orders whose label has not been generated yet.
func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := accountIDParam(q.Get("account_id"))

	page := intParam(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	perPage := intParam(q.Get("per_page"), 20)
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	onlyEligible := boolParam(q.Get("only_eligible"), false)
	onlyUnlabeled := boolParam(q.Get("only_unlabeled"), true)

	params := melhorenvio.ListOrdersParams{Page: page, PerPage: perPage}
	if onlyEligible {
		params.Status = "released"
	}

	raw, err := a.fetchOrdersPage(r.Context(), accountID, params)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("failed to list orders: %v", err))
		return
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("failed to list orders: %v", err))
		return
	}

	if onlyUnlabeled {
		env["data"] = filterUnlabeled(env["data"])
	}
	env["ok"] = json.RawMessage(`true`)

	writeJSON(w, http.StatusOK, env)
}

type generateRequest struct {
	Orders []string `json:"orders"`
}

// generateLabels triggers label generation, syncs whatever tracking codes are
// already attached, and schedules the deferred pass for the rest.
func (a *API) generateLabels(w http.ResponseWriter, r *http.Request) {
	accountID := accountIDParam(r.URL.Query().Get("account_id"))

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Orders) == 0 {
		writeErr(w, http.StatusBadRequest, "orders is required and must not be empty")
		return
	}

	if _, err := a.orders.GenerateLabels(r.Context(), accountID, req.Orders); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("failed to generate labels: %v", err))
		return
	}

	syncedNow, err := a.sync.SyncNow(r.Context(), accountID, req.Orders)
	if err != nil {
		// Labels are generated; a failed immediate sync is not fatal, the
		// deferred pass will retry.
		slog.Warn("immediate shipment sync failed", "error", err.Error())
		syncedNow = nil
	}
	a.sync.ScheduleDeferred(accountID, req.Orders)

	if syncedNow == nil {
		syncedNow = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                   true,
		"generated":            req.Orders,
		"synced_now":           syncedNow,
		"deferred_sync_seconds": int(a.deferredDelay / time.Second),
	})
}

// oauthCallback exchanges the authorization code and reports the outcome in
// the body; it never fails at the transport level.
func (a *API) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	accountID := accountIDParam(q.Get("account_id"))

	if code == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"received": false, "saved": false, "error": "code query param is required",
		})
		return
	}

	if _, err := a.tokens.ExchangeCode(r.Context(), accountID, code); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"received": true, "saved": false, "error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true, "saved": true, "account_id": accountID,
	})
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sync.Stats())
}

func (a *API) fetchOrdersPage(ctx context.Context, accountID string, p melhorenvio.ListOrdersParams) (json.RawMessage, error) {
	key := fmt.Sprintf("orders:%s:%d:%d:%s", accountID, p.Page, p.PerPage, p.Status)

	if a.cache != nil && a.cacheTTL > 0 {
		if b, ok, err := a.cache.Get(ctx, key); err == nil && ok {
			return b, nil
		}
	}

	raw, err := a.orders.ListOrders(ctx, accountID, p)
	if err != nil {
		return nil, err
	}

	if a.cache != nil && a.cacheTTL > 0 {
		_ = a.cache.Set(ctx, key, raw, a.cacheTTL)
	}
	return raw, nil
}

// decodeEnvelope keeps unknown provider envelope fields (totals, links)
// intact so the pass-through stays faithful.
func decodeEnvelope(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{"data": json.RawMessage(`[]`)}, nil
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		// Bare array responses become {"data": [...]}.
		var items []json.RawMessage
		if arrErr := json.Unmarshal(raw, &items); arrErr == nil {
			return map[string]json.RawMessage{"data": raw}, nil
		}
		return nil, err
	}
	if _, ok := env["data"]; !ok {
		env["data"] = json.RawMessage(`[]`)
	}
	return env, nil
}

func filterUnlabeled(data json.RawMessage) json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return data
	}
	kept := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		var o models.Order
		if err := json.Unmarshal(item, &o); err != nil {
			continue
		}
		if o.Unlabeled() {
			kept = append(kept, item)
		}
	}
	b, err := json.Marshal(kept)
	if err != nil {
		return data
	}
	return b
}

func accountIDParam(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func boolParam(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
