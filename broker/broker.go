package broker

import (
	"fmt"
	"strings"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide normalizes a terminal supplied side.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown side %q (want buy|sell)", s)
	}
}

// OrderKind selects market execution or one of the pending order kinds.
type OrderKind string

const (
	Market OrderKind = "market"
	Limit  OrderKind = "limit"
	Stop   OrderKind = "stop"
)

// ParseOrderKind normalizes a terminal supplied order type. Empty means market.
func ParseOrderKind(s string) (OrderKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "market":
		return Market, nil
	case "limit":
		return Limit, nil
	case "stop":
		return Stop, nil
	default:
		return "", fmt.Errorf("unknown order type %q (want market|limit|stop)", s)
	}
}

// OrderIntent is what the terminal asks for, in lots and terminal terms.
// StopLoss and TakeProfit are nil when unset.
type OrderIntent struct {
	Symbol     string
	Side       Side
	Volume     float64 // lots
	Kind       OrderKind
	Price      float64 // limit/stop trigger price, ignored for market orders
	StopLoss   *float64
	TakeProfit *float64
}

// Validate checks the intent is structurally usable before translation.
func (o OrderIntent) Validate() error {
	switch {
	case strings.TrimSpace(o.Symbol) == "":
		return NewError(KindInvalidRequest, "symbol is required")
	case o.Side != Buy && o.Side != Sell:
		return NewError(KindInvalidRequest, "side must be buy or sell")
	case o.Volume <= 0:
		return NewError(KindInvalidRequest, "volume must be positive")
	case o.Kind != Market && o.Price <= 0:
		return NewError(KindInvalidRequest, fmt.Sprintf("price is required for %s orders", o.Kind))
	}
	return nil
}

// ModifyRequest changes protective levels or volume of an open position.
// Zero values mean "leave unset" upstream.
type ModifyRequest struct {
	PositionID string
	StopLoss   float64
	TakeProfit float64
	Volume     float64
}

// Account is what the account store resolves a caller's account reference to.
type Account struct {
	UpstreamAccountID string
	Password          *string
}

// Record is an opaque upstream record (position, pending order, trade).
type Record = map[string]any

// PlaceResult is returned for a placed order.
type PlaceResult struct {
	Status     string `json:"status"`
	Endpoint   string `json:"endpoint"`
	HTTPStatus int    `json:"httpStatus"`
	ReturnCode int    `json:"returnCode,omitempty"`
	Upstream   any    `json:"upstream,omitempty"`
}

// Attempt describes one step of a fallback chain as it was executed.
type Attempt struct {
	Name     string `json:"name"`
	Method   string `json:"method"`
	URL      string `json:"url"`
	Status   int    `json:"status"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ExecResult is the outcome of a close or modify operation.
type ExecResult struct {
	PositionID string    `json:"positionId"`
	Accepted   bool      `json:"accepted"`
	Status     int       `json:"status"`
	Message    string    `json:"message,omitempty"`
	Attempts   []Attempt `json:"attempts"`
	Upstream   any       `json:"upstream,omitempty"`
}

// CloseAllResult aggregates a close-all fan out.
type CloseAllResult struct {
	Closed  int          `json:"closed"`
	Failed  int          `json:"failed"`
	Total   int          `json:"total"`
	Results []ExecResult `json:"results"`
}

// TradeListing is the merged view of an account's trading state.
type TradeListing struct {
	Positions       []Record `json:"positions"`
	PendingOrders   []Record `json:"pendingOrders"`
	ClosedPositions []Record `json:"closedPositions"`
}
