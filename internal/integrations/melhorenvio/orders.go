package melhorenvio

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/rbxlabs/shipbox/internal/models"
)

// GetOrder fetches a single order by its 36-char UUID.
func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (*models.Order, error) {
	raw, err := c.Call(ctx, http.MethodGet, "/me/orders/"+orderID, accountID, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeOrder(raw)
}

type ListOrdersParams struct {
	Page    int
	PerPage int
	Status  string // provider-side filter, e.g. "released"
}

// ListOrders is the single-page pass-through behind GET /orders. The raw
// provider envelope is returned untouched so the API can forward it.
func (c *Client) ListOrders(ctx context.Context, accountID string, p ListOrdersParams) (json.RawMessage, error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	return c.Call(ctx, http.MethodGet, "/me/orders", accountID, nil, q)
}

// ListOrdersAllPages follows the provider's next_page_url pagination until a
// page comes back empty or without a next link, aggregating everything in
// page order.
func (c *Client) ListOrdersAllPages(ctx context.Context, accountID string) ([]*models.Order, error) {
	var out []*models.Order

	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		raw, err := c.Call(ctx, http.MethodGet, "/me/orders", accountID, nil, q)
		if err != nil {
			return nil, err
		}

		env, err := decodeOrdersPage(raw)
		if err != nil {
			return nil, err
		}
		if len(env.Data) == 0 {
			break
		}
		for _, item := range env.Data {
			o, err := decodeOrder(item)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		if env.NextPageURL == nil || *env.NextPageURL == "" {
			break
		}
	}
	return out, nil
}

// GenerateLabels triggers label generation for a batch of order UUIDs.
// An empty batch short-circuits without a network call.
func (c *Client) GenerateLabels(ctx context.Context, accountID string, orderIDs []string) (json.RawMessage, error) {
	if len(orderIDs) == 0 {
		return json.RawMessage(`{"data":[]}`), nil
	}
	return c.Call(ctx, http.MethodPost, "/me/shipment/generate", accountID,
		map[string][]string{"orders": orderIDs}, nil)
}

type ordersPage struct {
	Data        []json.RawMessage `json:"data"`
	NextPageURL *string           `json:"next_page_url"`
}

// The provider normally wraps pages in {data, next_page_url}, but has been
// seen returning a bare array for small accounts.
func decodeOrdersPage(raw json.RawMessage) (ordersPage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return ordersPage{}, errors.Wrap(err, "decode orders array")
		}
		return ordersPage{Data: items}, nil
	}

	var env ordersPage
	if err := json.Unmarshal(raw, &env); err != nil {
		return ordersPage{}, errors.Wrap(err, "decode orders page")
	}
	return env, nil
}

func decodeOrder(raw json.RawMessage) (*models.Order, error) {
	var o models.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	o.Raw = raw
	return &o, nil
}
