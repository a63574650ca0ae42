package bridge

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/gateway/broker"
)

var positionIDs = broker.Candidates{"positionId", "PositionId", "position_id", "ticket", "Ticket", "id", "Id", "ID", "position", "Position"}

// CloseSteps is the close-position chain: the REST delete, then the client
// namespace close, then the Trading namespace close with capitalized fields.
// volume <= 0 closes the whole position.
func (c *Client) CloseSteps(accountID, positionID string, volume float64) []Step {
	return []Step{
		{
			Name:   "delete",
			Method: http.MethodDelete,
			URL: func() string {
				u := c.URL("/client/position/" + url.PathEscape(positionID))
				if volume > 0 {
					u += "?volume=" + url.QueryEscape(formatFloat(volume))
				}
				return u
			},
			Timeout: c.opts.CloseTimeout,
			Retry:   RetryableClose,
		},
		{
			Name:   "client-close",
			Method: http.MethodPost,
			URL:    func() string { return c.URL("/client/position/close") },
			Payload: func() any {
				body := map[string]any{"positionId": numericOrString(positionID)}
				if volume > 0 {
					body["volume"] = volume
				}
				return body
			},
			Timeout: c.opts.CloseTimeout,
			Retry:   RetryableClose,
		},
		{
			Name:   "trading-close",
			Method: http.MethodPost,
			URL:    func() string { return c.URL("/Trading/position/close") },
			Payload: func() any {
				body := map[string]any{
					"Login":      numericOrString(accountID),
					"PositionId": numericOrString(positionID),
				}
				if volume > 0 {
					body["Volume"] = volume
				}
				return body
			},
			Timeout: c.opts.CloseTimeout,
			Retry:   RetryableClose,
		},
	}
}

// ModifySteps is the modify chain: client namespace POST, then exactly one
// Trading namespace PUT. Zero fields mean "leave unset".
func (c *Client) ModifySteps(accountID string, req broker.ModifyRequest) []Step {
	return []Step{
		{
			Name:   "client-modify",
			Method: http.MethodPost,
			URL:    func() string { return c.URL("/client/position/modify") },
			Payload: func() any {
				return map[string]any{
					"positionId": numericOrString(req.PositionID),
					"stopLoss":   req.StopLoss,
					"takeProfit": req.TakeProfit,
					"volume":     req.Volume,
				}
			},
			Timeout: c.opts.ModifyTimeout,
			Retry:   RetryableModify,
		},
		{
			Name:   "trading-modify",
			Method: http.MethodPut,
			URL:    func() string { return c.URL("/Trading/position/modify") },
			Payload: func() any {
				return map[string]any{
					"Login":      numericOrString(accountID),
					"PositionId": numericOrString(req.PositionID),
					"StopLoss":   req.StopLoss,
					"TakeProfit": req.TakeProfit,
					"Volume":     req.Volume,
				}
			},
			Timeout: c.opts.ModifyTimeout,
		},
	}
}

// ClosePosition runs the close chain for one position.
func (c *Client) ClosePosition(ctx context.Context, token, accountID, positionID string, volume float64) (broker.ExecResult, error) {
	chain := c.Run(ctx, token, c.CloseSteps(accountID, positionID, volume))
	return execResult(positionID, chain, chain.Final())
}

// ModifyPosition runs the modify chain and returns the better of the two
// responses.
func (c *Client) ModifyPosition(ctx context.Context, token, accountID string, req broker.ModifyRequest) (broker.ExecResult, error) {
	chain := c.Run(ctx, token, c.ModifySteps(accountID, req))
	return execResult(req.PositionID, chain, chain.Best())
}

func execResult(positionID string, chain ChainResult, out Outcome) (broker.ExecResult, error) {
	res := broker.ExecResult{
		PositionID: positionID,
		Accepted:   chain.Accepted,
		Status:     out.Status,
		Attempts:   chain.Attempts,
		Upstream:   out.JSON,
	}
	if chain.Accepted {
		return res, nil
	}
	res.Message = out.Message()
	return res, out.Failure()
}

// CloseAll closes every open position, at most CloseAllConcurrency at a time.
// Only a failed positions listing fails the call; per-position failures are
// counted.
func (c *Client) CloseAll(ctx context.Context, token, accountID string) (broker.CloseAllResult, error) {
	positions, err := c.FetchPositions(ctx, token, accountID)
	if err != nil {
		return broker.CloseAllResult{}, err
	}

	results := make([]broker.ExecResult, len(positions))
	var g errgroup.Group
	g.SetLimit(c.opts.CloseAllConcurrency)
	for i, p := range positions {
		i, p := i, p
		g.Go(func() error {
			id, ok := positionIDs.String(p)
			if !ok {
				results[i] = broker.ExecResult{Message: "no identifier", Attempts: []broker.Attempt{}}
				return nil
			}
			res, err := c.ClosePosition(ctx, token, accountID, id, 0)
			if err != nil && res.Message == "" {
				res.Message = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := broker.CloseAllResult{Total: len(positions), Results: results}
	for _, r := range results {
		if r.Accepted {
			out.Closed++
		} else {
			out.Failed++
		}
	}
	c.log.WithField("account", accountID).WithField("closed", out.Closed).WithField("failed", out.Failed).Info("close all finished")
	return out, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
