package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind selects the venue endpoint an order is sent to.
type OrderKind string

const (
	OrderKindLimit  OrderKind = "limit"
	OrderKindMarket OrderKind = "market"
)

// OrderRequest is the payload posted to the limit-order and market-order
// endpoints. MarketOrder is sent even though the endpoint already implies it.
type OrderRequest struct {
	UserID      string  `json:"userId"`
	Unit        float64 `json:"unit"`
	Limit       float64 `json:"limit"`
	Buy         bool    `json:"buy"`
	MarketOrder bool    `json:"marketOrder"`
}

// Side returns the order side.
func (r OrderRequest) Side() OrderSide {
	if r.Buy {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Kind returns the order kind.
func (r OrderRequest) Kind() OrderKind {
	if r.MarketOrder {
		return OrderKindMarket
	}
	return OrderKindLimit
}
