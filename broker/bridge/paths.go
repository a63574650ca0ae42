package bridge

import "strings"

// Paths are the upstream endpoints relative to the base URL. The base URL
// conventionally ends in "/api".
type Paths struct {
	Login         string `json:"login" yaml:"login"`
	MarketBuy     string `json:"market_buy" yaml:"market_buy"`
	MarketSell    string `json:"market_sell" yaml:"market_sell"`
	BuyLimit      string `json:"buy_limit" yaml:"buy_limit"`
	SellLimit     string `json:"sell_limit" yaml:"sell_limit"`
	BuyStop       string `json:"buy_stop" yaml:"buy_stop"`
	SellStop      string `json:"sell_stop" yaml:"sell_stop"`
	Positions     string `json:"positions" yaml:"positions"`
	PendingOrders string `json:"pending_orders" yaml:"pending_orders"`
	History       string `json:"history" yaml:"history"`
}

// DefaultPaths returns the bridge's stock endpoint layout.
func DefaultPaths() Paths {
	return Paths{
		Login:         "/client/auth/login",
		MarketBuy:     "/client/trade/buy",
		MarketSell:    "/client/trade/sell",
		BuyLimit:      "/client/order/buy-limit",
		SellLimit:     "/client/order/sell-limit",
		BuyStop:       "/client/order/buy-stop",
		SellStop:      "/client/order/sell-stop",
		Positions:     "/client/positions",
		PendingOrders: "/client/orders",
		History:       "/client/history/trades",
	}
}

// WithDefaults fills empty paths from DefaultPaths.
func (p Paths) WithDefaults() Paths {
	d := DefaultPaths()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&p.Login, d.Login)
	fill(&p.MarketBuy, d.MarketBuy)
	fill(&p.MarketSell, d.MarketSell)
	fill(&p.BuyLimit, d.BuyLimit)
	fill(&p.SellLimit, d.SellLimit)
	fill(&p.BuyStop, d.BuyStop)
	fill(&p.SellStop, d.SellStop)
	fill(&p.Positions, d.Positions)
	fill(&p.PendingOrders, d.PendingOrders)
	fill(&p.History, d.History)
	return p
}

// joinURL joins base and path with exactly one slash.
func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
