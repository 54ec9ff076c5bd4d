package exchange

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// Endpoint paths for order entry.
const (
	LimitOrderPath  = "/limit-order"
	MarketOrderPath = "/market-order"
)

// OrderPath returns the endpoint an order of the given kind is posted to.
func OrderPath(kind domain.OrderKind) string {
	if kind == domain.OrderKindMarket {
		return MarketOrderPath
	}
	return LimitOrderPath
}

// PostOrder sends req to the limit-order or market-order endpoint, chosen by
// req.MarketOrder. A 2xx response is success; no body is required.
func (c *Client) PostOrder(ctx context.Context, requestID string, req domain.OrderRequest) error {
	op := "exchange: " + string(req.Kind()) + " order"
	_, err := c.doRequest(ctx, op, http.MethodPost, OrderPath(req.Kind()), requestID, req)
	return err
}
