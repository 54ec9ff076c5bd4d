package service

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

// MarketLimitText is shown in place of the limit while in market mode.
const MarketLimitText = "At market"

// Ticket is the order-entry working state. It is owned by one caller and is
// not safe for concurrent use.
type Ticket struct {
	Unit        float64 `json:"unit"`
	Limit       float64 `json:"limit"`
	Buy         bool    `json:"buy"`
	MarketOrder bool    `json:"marketOrder"`
}

// NewTicket returns an empty buy-side limit ticket.
func NewTicket() Ticket {
	return Ticket{Buy: true}
}

// SetMarketOrder switches market mode. Entering market mode sets the working
// limit to the expected fill price from book.
func (t *Ticket) SetMarketOrder(on bool, book *domain.OrderBook) {
	t.MarketOrder = on
	if on {
		t.Limit = MarketLimit(t.Buy, book)
	}
}

// SetBuy changes the side. In market mode the working limit follows the
// opposing side of book.
func (t *Ticket) SetBuy(buy bool, book *domain.OrderBook) {
	t.Buy = buy
	if t.MarketOrder {
		t.Limit = MarketLimit(t.Buy, book)
	}
}

// LimitText is the displayed limit: the number, or MarketLimitText in
// market mode.
func (t Ticket) LimitText() string {
	if t.MarketOrder {
		return MarketLimitText
	}
	return strconv.FormatFloat(t.Limit, 'f', -1, 64)
}

// Notional is the numeric limit times unit.
func (t Ticket) Notional() float64 {
	return Notional(t.Limit, t.Unit)
}

// Request builds the order payload for userID.
func (t Ticket) Request(userID string) domain.OrderRequest {
	return domain.OrderRequest{
		UserID:      userID,
		Unit:        t.Unit,
		Limit:       t.Limit,
		Buy:         t.Buy,
		MarketOrder: t.MarketOrder,
	}
}

// Submitted records a submission result. Unit and limit are reset only on
// success so a failed order can be retried as entered.
func (t *Ticket) Submitted(err error) {
	if err != nil {
		return
	}
	t.Unit = 0
	t.Limit = 0
}

// Notional returns limit * unit, or 0 when either operand is not finite or
// the product overflows. The product is taken in decimal so prices such as
// 0.1 multiply without binary rounding error.
func Notional(limit, unit float64) float64 {
	if !finiteNum(limit) || !finiteNum(unit) {
		return 0
	}
	return notional(decimal.NewFromFloat(limit), unit)
}

// NotionalText computes the notional from a displayed limit. A placeholder
// such as MarketLimitText yields 0.
func NotionalText(limitText string, unit float64) float64 {
	limit, err := decimal.NewFromString(strings.TrimSpace(limitText))
	if err != nil || !finiteNum(unit) {
		return 0
	}
	return notional(limit, unit)
}

func notional(limit decimal.Decimal, unit float64) float64 {
	n, _ := limit.Mul(decimal.NewFromFloat(unit)).Float64()
	if !finiteNum(n) {
		return 0
	}
	return n
}

// MarketLimit returns the expected fill price of a market order: the best
// ask for a buy, the best bid for a sell, and 0 when book is absent or the
// side is empty.
func MarketLimit(buy bool, book *domain.OrderBook) float64 {
	if book == nil {
		return 0
	}
	levels := book.BidOrders
	if buy {
		levels = book.AskOrders
	}
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Limit
}

func finiteNum(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
