package service

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/marketclient/internal/domain"
)

func testBook() *domain.OrderBook {
	return &domain.OrderBook{
		BidOrders: []domain.PriceLevel{{Limit: 100, Volume: 5}},
		AskOrders: []domain.PriceLevel{{Limit: 101, Volume: 3}},
	}
}

func TestTicket_MarketBuyUsesBestAsk(t *testing.T) {
	tk := NewTicket()
	tk.SetMarketOrder(true, testBook())
	if tk.Limit != 101 {
		t.Errorf("Limit = %v, want 101", tk.Limit)
	}

	tk.SetBuy(false, testBook())
	if tk.Limit != 100 {
		t.Errorf("Limit after switching to sell = %v, want 100", tk.Limit)
	}
	if got := tk.LimitText(); got != MarketLimitText {
		t.Errorf("LimitText = %q, want %q", got, MarketLimitText)
	}
}

func TestTicket_SideChangeOutsideMarketModeKeepsLimit(t *testing.T) {
	tk := NewTicket()
	tk.Limit = 42
	tk.SetBuy(false, testBook())
	if tk.Limit != 42 {
		t.Errorf("Limit = %v, want 42", tk.Limit)
	}
	if got := tk.LimitText(); got != "42" {
		t.Errorf("LimitText = %q, want 42", got)
	}
}

func TestTicket_MarketModeWithoutBook(t *testing.T) {
	tk := NewTicket()
	tk.Limit = 7
	tk.SetMarketOrder(true, nil)
	if tk.Limit != 0 {
		t.Errorf("Limit = %v, want 0 when no book", tk.Limit)
	}
}

func TestTicket_SubmittedResetsOnlyOnSuccess(t *testing.T) {
	tk := Ticket{Unit: 2, Limit: 10, Buy: true}

	tk.Submitted(errors.New("server error"))
	if tk.Unit != 2 || tk.Limit != 10 {
		t.Errorf("failed submit changed ticket: %+v", tk)
	}

	tk.Submitted(nil)
	if tk.Unit != 0 || tk.Limit != 0 {
		t.Errorf("successful submit did not reset: %+v", tk)
	}
	if !tk.Buy {
		t.Error("side should be kept after submit")
	}
}

func TestTicket_Request(t *testing.T) {
	tk := Ticket{Unit: 2, Limit: 10, Buy: false, MarketOrder: true}
	want := domain.OrderRequest{UserID: "u1", Unit: 2, Limit: 10, Buy: false, MarketOrder: true}
	if got := tk.Request("u1"); got != want {
		t.Errorf("Request = %+v, want %+v", got, want)
	}
	if got := tk.Notional(); got != 20 {
		t.Errorf("Notional = %v, want 20", got)
	}
}

func TestNotional(t *testing.T) {
	tests := []struct {
		limit, unit, want float64
	}{
		{10, 2, 20},
		{0.1, 3, 0.3},
		{0.47, 7, 3.29},
		{0, 5, 0},
		{math.NaN(), 5, 0},
		{5, math.Inf(1), 0},
		{math.MaxFloat64, 10, 0},
	}
	for _, tt := range tests {
		if got := Notional(tt.limit, tt.unit); got != tt.want {
			t.Errorf("Notional(%v, %v) = %v, want %v", tt.limit, tt.unit, got, tt.want)
		}
	}
}

func TestNotionalText(t *testing.T) {
	tests := []struct {
		text string
		unit float64
		want float64
	}{
		{"10", 3, 30},
		{" 2.5 ", 2, 5},
		{"0.1", 3, 0.3},
		{MarketLimitText, 3, 0},
		{"", 3, 0},
		{"NaN", 3, 0},
	}
	for _, tt := range tests {
		if got := NotionalText(tt.text, tt.unit); got != tt.want {
			t.Errorf("NotionalText(%q, %v) = %v, want %v", tt.text, tt.unit, got, tt.want)
		}
	}
}

func TestMarketLimit(t *testing.T) {
	book := testBook()
	if got := MarketLimit(true, book); got != 101 {
		t.Errorf("buy = %v, want 101", got)
	}
	if got := MarketLimit(false, book); got != 100 {
		t.Errorf("sell = %v, want 100", got)
	}
	if got := MarketLimit(true, &domain.OrderBook{BidOrders: []domain.PriceLevel{{Limit: 1}}}); got != 0 {
		t.Errorf("empty ask side = %v, want 0", got)
	}
}
