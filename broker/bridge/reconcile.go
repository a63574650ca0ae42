package bridge

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/gateway/broker"
)

// Envelope candidates, in priority order. The bridge wraps lists differently
// across deployments.
var (
	positionLists = broker.Candidates{
		"positions", "Positions", "data.positions", "Data.Positions",
		"data", "Data", "items", "Items", "result", "Result",
	}
	orderLists = broker.Candidates{
		"orders", "Orders", "pendingOrders", "PendingOrders", "data.orders", "Data.Orders",
		"data", "Data", "items", "Items", "result", "Result",
	}
	historyLists = broker.Candidates{
		"trades", "Trades", "deals", "Deals", "history", "History",
		"closedPositions", "ClosedPositions", "data.trades", "Data.Trades",
		"data.items", "Data.Items", "data", "Data", "items", "Items", "result", "Result",
	}
)

// Closed trade field candidates.
var (
	tradeOrderIDs = broker.Candidates{"orderId", "OrderId", "order", "Order", "ticket", "Ticket"}
	tradeDealIDs  = broker.Candidates{"dealId", "DealId", "deal", "Deal"}
	tradeSymbols  = broker.Candidates{"symbol", "Symbol"}
	tradePrices   = broker.Candidates{"price", "Price", "closePrice", "ClosePrice", "priceClose", "PriceClose", "openPrice", "OpenPrice"}
	tradeVolumes  = broker.Candidates{"volume", "Volume", "lots", "Lots", "closeVolume", "CloseVolume", "quantity", "Quantity"}
	tradeProfits  = broker.Candidates{"profit", "Profit", "pnl", "PnL", "Pnl", "pl", "PL"}
)

// History range: effectively unbounded, one large page.
const (
	historyFrom     = "2000-01-01"
	historyPageSize = 10000
)

// ValidClosedTrade reports whether a raw history record is a complete trade.
// Incomplete upstream records are dropped silently.
func ValidClosedTrade(r broker.Record) bool {
	_, okOrder := tradeOrderIDs.PositiveNumber(r)
	_, okDeal := tradeDealIDs.PositiveNumber(r)
	if !okOrder && !okDeal {
		return false
	}
	if _, ok := tradeSymbols.NonEmptyString(r); !ok {
		return false
	}
	if _, ok := tradePrices.PositiveNumber(r); !ok {
		return false
	}
	if _, ok := tradeVolumes.PositiveNumber(r); !ok {
		return false
	}
	profit, ok := tradeProfits.Number(r)
	return ok && profit != 0
}

// FilterClosedTrades keeps the valid records, preserving order.
func FilterClosedTrades(in []broker.Record) []broker.Record {
	out := make([]broker.Record, 0, len(in))
	for _, r := range in {
		if ValidClosedTrade(r) {
			out = append(out, r)
		}
	}
	return out
}

// FetchPositions lists open positions.
func (c *Client) FetchPositions(ctx context.Context, token, accountID string) ([]broker.Record, error) {
	return c.fetchList(ctx, token, c.paths.Positions, map[string]string{"accountId": accountID}, positionLists)
}

// FetchPendingOrders lists pending orders.
func (c *Client) FetchPendingOrders(ctx context.Context, token, accountID string) ([]broker.Record, error) {
	return c.fetchList(ctx, token, c.paths.PendingOrders, map[string]string{"accountId": accountID}, orderLists)
}

// FetchHistory lists closed trades over an unbounded range, unfiltered.
func (c *Client) FetchHistory(ctx context.Context, token, accountID string) ([]broker.Record, error) {
	q := map[string]string{
		"accountId": accountID,
		"from":      historyFrom,
		"to":        time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02"),
		"page":      "1",
		"pageSize":  strconv.Itoa(historyPageSize),
	}
	return c.fetchList(ctx, token, c.paths.History, q, historyLists)
}

func (c *Client) fetchList(ctx context.Context, token, path string, q map[string]string, keys broker.Candidates) ([]broker.Record, error) {
	out := c.Do(ctx, Request{
		Method:  http.MethodGet,
		URL:     c.URL(path),
		Token:   token,
		Query:   q,
		Timeout: c.opts.RequestTimeout,
	})
	if !out.Accepted() {
		return nil, out.Failure()
	}

	arr, ok := out.JSON.([]any)
	if !ok {
		arr, ok = keys.Array(out.JSON)
	}
	if !ok {
		return nil, broker.NewError(broker.KindShapeMismatch, "no list in "+strings.TrimPrefix(path, "/")+" response").
			WithUpstream(out.Status, out.Body)
	}

	recs := make([]broker.Record, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			recs = append(recs, m)
		}
	}
	return recs, nil
}

// ListTrades fetches positions, pending orders and closed trades in
// parallel. A failed fetch yields an empty list for its category only. The
// call fails only when every fetch was refused with a 401, so the caller can
// re-authenticate.
func (c *Client) ListTrades(ctx context.Context, token, accountID string) (broker.TradeListing, error) {
	var (
		listing               broker.TradeListing
		posErr, ordErr, hisErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		listing.Positions, posErr = c.FetchPositions(ctx, token, accountID)
		return nil
	})
	g.Go(func() error {
		listing.PendingOrders, ordErr = c.FetchPendingOrders(ctx, token, accountID)
		return nil
	})
	g.Go(func() error {
		var raw []broker.Record
		raw, hisErr = c.FetchHistory(ctx, token, accountID)
		listing.ClosedPositions = FilterClosedTrades(raw)
		return nil
	})
	_ = g.Wait()

	log := c.log.WithField("account", accountID)
	for name, err := range map[string]error{"positions": posErr, "pendingOrders": ordErr, "closedPositions": hisErr} {
		if err != nil {
			log.WithError(err).WithField("list", name).Warn("listing fetch failed")
		}
	}

	if listing.Positions == nil {
		listing.Positions = []broker.Record{}
	}
	if listing.PendingOrders == nil {
		listing.PendingOrders = []broker.Record{}
	}

	if allKind(broker.KindAuthentication, posErr, ordErr, hisErr) {
		return listing, posErr
	}
	return listing, nil
}

func allKind(k broker.Kind, errs ...error) bool {
	for _, err := range errs {
		if broker.KindOf(err) != k {
			return false
		}
	}
	return true
}
