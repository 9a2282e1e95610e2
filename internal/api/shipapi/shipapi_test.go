package shipapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rbxlabs/shipbox/internal/integrations/melhorenvio"
	"github.com/rbxlabs/shipbox/internal/models"
	"github.com/rbxlabs/shipbox/internal/services/reconciler"
)

type fakeOrders struct {
	listIn    melhorenvio.ListOrdersParams
	listCalls int
	listOut   json.RawMessage
	listErr   error

	genIn  []string
	genErr error
}

func (f *fakeOrders) ListOrders(ctx context.Context, accountID string, p melhorenvio.ListOrdersParams) (json.RawMessage, error) {
	f.listCalls++
	f.listIn = p
	return f.listOut, f.listErr
}

func (f *fakeOrders) GenerateLabels(ctx context.Context, accountID string, orderIDs []string) (json.RawMessage, error) {
	f.genIn = orderIDs
	return json.RawMessage(`{}`), f.genErr
}

type fakeExchanger struct {
	accountID string
	code      string
	err       error
}

func (f *fakeExchanger) ExchangeCode(ctx context.Context, accountID, code string) (*models.Credential, error) {
	f.accountID = accountID
	f.code = code
	if f.err != nil {
		return nil, f.err
	}
	return &models.Credential{AccountID: accountID}, nil
}

type fakeSyncer struct {
	syncIn     []string
	syncOut    []string
	syncErr    error
	deferredIn []string
}

func (f *fakeSyncer) SyncNow(ctx context.Context, accountID string, orderIDs []string) ([]string, error) {
	f.syncIn = orderIDs
	return f.syncOut, f.syncErr
}

func (f *fakeSyncer) ScheduleDeferred(accountID string, orderIDs []string) {
	f.deferredIn = orderIDs
}

func (f *fakeSyncer) Stats() reconciler.Stats {
	return reconciler.Stats{TotalSynced: 7}
}

type mapCache struct {
	m map[string][]byte
}

func (c *mapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}

func newTestRouter(a *API) *chi.Mux {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}

func TestListOrders_FiltersUnlabeledLocally(t *testing.T) {
	fo := &fakeOrders{listOut: json.RawMessage(`{
		"data": [
			{"id":"o1","status":"released"},
			{"id":"o2","status":"released","generated_at":"2025-06-01T00:00:00Z"},
			{"id":"o3","status":"paid","canceled_at":"2025-06-01T00:00:00Z"}
		],
		"total": 3
	}`)}
	a := New(fo, &fakeExchanger{}, &fakeSyncer{}, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/orders?only_eligible=true", nil)
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "released", fo.listIn.Status)
	require.Equal(t, 1, fo.listIn.Page)
	require.Equal(t, 20, fo.listIn.PerPage)

	var resp struct {
		OK    bool           `json:"ok"`
		Data  []models.Order `json:"data"`
		Total int            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.Len(t, resp.Data, 1, "labeled and canceled orders filtered out")
	require.Equal(t, "o1", resp.Data[0].ID)
	require.Equal(t, 3, resp.Total, "provider envelope fields pass through")
}

func TestListOrders_CacheHitSkipsProvider(t *testing.T) {
	fo := &fakeOrders{listOut: json.RawMessage(`{"data":[]}`)}
	c := &mapCache{m: map[string][]byte{}}
	a := New(fo, &fakeExchanger{}, &fakeSyncer{}, time.Minute).WithCache(c, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/orders", nil)
	newTestRouter(a).ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, fo.listCalls)

	newTestRouter(a).ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, fo.listCalls, "second identical request served from cache")
}

func TestListOrders_ProviderFailure(t *testing.T) {
	fo := &fakeOrders{listErr: errors.New("upstream down")}
	a := New(fo, &fakeExchanger{}, &fakeSyncer{}, time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/orders", nil)
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "upstream down")
}

func TestGenerateLabels_EmptyBatchRejected(t *testing.T) {
	fo := &fakeOrders{}
	a := New(fo, &fakeExchanger{}, &fakeSyncer{}, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/generate", strings.NewReader(`{"orders":[]}`))
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, fo.genIn, "no provider call for an empty batch")
}

func TestGenerateLabels_FullFlow(t *testing.T) {
	fo := &fakeOrders{}
	fs := &fakeSyncer{syncOut: []string{"o1"}}
	a := New(fo, &fakeExchanger{}, fs, 60*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/generate",
		strings.NewReader(`{"orders":["o1","o2"]}`))
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"o1", "o2"}, fo.genIn)
	require.Equal(t, []string{"o1", "o2"}, fs.syncIn)
	require.Equal(t, []string{"o1", "o2"}, fs.deferredIn)

	var resp struct {
		OK                  bool     `json:"ok"`
		Generated           []string `json:"generated"`
		SyncedNow           []string `json:"synced_now"`
		DeferredSyncSeconds int      `json:"deferred_sync_seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.Equal(t, []string{"o1", "o2"}, resp.Generated)
	require.Equal(t, []string{"o1"}, resp.SyncedNow)
	require.Equal(t, 60, resp.DeferredSyncSeconds)
}

func TestGenerateLabels_ImmediateSyncFailureStillSchedulesDeferred(t *testing.T) {
	fo := &fakeOrders{}
	fs := &fakeSyncer{syncErr: errors.New("db down")}
	a := New(fo, &fakeExchanger{}, fs, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/generate",
		strings.NewReader(`{"orders":["o1"]}`))
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"o1"}, fs.deferredIn)
	require.Contains(t, rec.Body.String(), `"synced_now":[]`)
}

func TestGenerateLabels_ProviderRejection(t *testing.T) {
	fo := &fakeOrders{genErr: &melhorenvio.UpstreamRejectedError{Status: 422, Body: "bad ids"}}
	fs := &fakeSyncer{}
	a := New(fo, &fakeExchanger{}, fs, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/generate",
		strings.NewReader(`{"orders":["o1"]}`))
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, fs.syncIn, "no sync pass when generation fails")
	require.Nil(t, fs.deferredIn)
}

func TestOAuthCallback(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		a := New(&fakeOrders{}, &fakeExchanger{}, &fakeSyncer{}, time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/oauth/callback", nil)
		rec := httptest.NewRecorder()
		newTestRouter(a).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "callback never fails at transport level")
		require.Contains(t, rec.Body.String(), `"received":false`)
	})

	t.Run("exchange failure captured in body", func(t *testing.T) {
		fe := &fakeExchanger{err: errors.New("code expired")}
		a := New(&fakeOrders{}, fe, &fakeSyncer{}, time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=x", nil)
		rec := httptest.NewRecorder()
		newTestRouter(a).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"saved":false`)
		require.Contains(t, rec.Body.String(), "code expired")
	})

	t.Run("success", func(t *testing.T) {
		fe := &fakeExchanger{}
		a := New(&fakeOrders{}, fe, &fakeSyncer{}, time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=abc&account_id=acme", nil)
		rec := httptest.NewRecorder()
		newTestRouter(a).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "acme", fe.accountID)
		require.Equal(t, "abc", fe.code)
		require.Contains(t, rec.Body.String(), `"saved":true`)
	})
}

func TestStats(t *testing.T) {
	a := New(&fakeOrders{}, &fakeExchanger{}, &fakeSyncer{}, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	newTestRouter(a).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalSynced":7`)
}
