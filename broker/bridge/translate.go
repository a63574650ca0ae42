package bridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/gateway/broker"
)

// Bridge order type codes.
const (
	TypeBuy       = 0
	TypeSell      = 1
	TypeBuyLimit  = 2
	TypeSellLimit = 3
	TypeBuyStop   = 4
	TypeSellStop  = 5
)

// ReturnCodePlaced means the bridge accepted the request and is processing it
// asynchronously. It arrives with non-2xx statuses too.
const ReturnCodePlaced = 10012

// Result statuses reported to the terminal.
const (
	StatusExecuted = "executed"
	StatusPlaced   = "placed"
)

// DefaultCryptoTickers are matched as substrings of the upper-cased symbol.
var DefaultCryptoTickers = []string{
	"BTC", "ETH", "LTC", "XRP", "BCH", "SOL", "DOGE", "BNB", "DOT",
	"LINK", "AVAX", "MATIC", "SHIB", "TRX", "XLM", "UNI", "ATOM", "XMR",
}

// Payload is the upstream shape of an order intent.
type Payload struct {
	Method   string
	Path     string
	TypeCode int
	Body     map[string]any
}

// Translator maps order intents onto bridge endpoints and volume units.
type Translator struct {
	paths  Paths
	crypto []string
}

// NewTranslator builds a Translator. A nil ticker list uses DefaultCryptoTickers.
func NewTranslator(paths Paths, cryptoTickers []string) Translator {
	if len(cryptoTickers) == 0 {
		cryptoTickers = DefaultCryptoTickers
	}
	up := make([]string, 0, len(cryptoTickers))
	for _, t := range cryptoTickers {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			up = append(up, t)
		}
	}
	return Translator{paths: paths.WithDefaults(), crypto: up}
}

// IsCrypto reports whether symbol names a recognized crypto ticker.
func (t Translator) IsCrypto(symbol string) bool {
	s := strings.ToUpper(symbol)
	for _, tk := range t.crypto {
		if strings.Contains(s, tk) {
			return true
		}
	}
	return false
}

// MarketVolume converts lots to bridge units for market orders, for every
// symbol.
func MarketVolume(lots float64) int64 {
	return decimal.NewFromFloat(lots).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// PendingVolume converts lots for pending orders. The bridge multiplies
// non-crypto pending volumes by 10, so those are sent as lots/10.
func (t Translator) PendingVolume(symbol string, lots float64) float64 {
	if t.IsCrypto(symbol) {
		return float64(MarketVolume(lots))
	}
	v, _ := decimal.NewFromFloat(lots).Div(decimal.NewFromInt(10)).Round(4).Float64()
	return v
}

// Translate derives the upstream payload for an intent.
func (t Translator) Translate(o broker.OrderIntent) (Payload, error) {
	if err := o.Validate(); err != nil {
		return Payload{}, err
	}
	body := map[string]any{
		"symbol":     strings.ToUpper(strings.TrimSpace(o.Symbol)),
		"stopLoss":   orZero(o.StopLoss),
		"takeProfit": orZero(o.TakeProfit),
	}

	if o.Kind == broker.Market {
		p := Payload{Method: http.MethodPost, TypeCode: TypeBuy, Path: t.paths.MarketBuy, Body: body}
		if o.Side == broker.Sell {
			p.TypeCode, p.Path = TypeSell, t.paths.MarketSell
		}
		body["volume"] = MarketVolume(o.Volume)
		body["price"] = 0
		return p, nil
	}

	var p Payload
	switch {
	case o.Side == broker.Buy && o.Kind == broker.Limit:
		p = Payload{TypeCode: TypeBuyLimit, Path: t.paths.BuyLimit}
	case o.Side == broker.Sell && o.Kind == broker.Limit:
		p = Payload{TypeCode: TypeSellLimit, Path: t.paths.SellLimit}
	case o.Side == broker.Buy && o.Kind == broker.Stop:
		p = Payload{TypeCode: TypeBuyStop, Path: t.paths.BuyStop}
	case o.Side == broker.Sell && o.Kind == broker.Stop:
		p = Payload{TypeCode: TypeSellStop, Path: t.paths.SellStop}
	default:
		return Payload{}, broker.NewError(broker.KindInvalidRequest, fmt.Sprintf("no endpoint for %s %s", o.Side, o.Kind))
	}
	p.Method = http.MethodPost
	p.Body = body
	body["volume"] = t.PendingVolume(o.Symbol, o.Volume)
	body["price"] = o.Price
	body["type"] = p.TypeCode
	return p, nil
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// PlaceOrder translates and sends an order. A 10012 return code is reported
// as placed whatever the HTTP status says.
func (c *Client) PlaceOrder(ctx context.Context, token string, o broker.OrderIntent) (broker.PlaceResult, error) {
	p, err := c.tr.Translate(o)
	if err != nil {
		return broker.PlaceResult{}, err
	}

	url := c.URL(p.Path)
	out := c.Do(ctx, Request{
		Method:  p.Method,
		URL:     url,
		Token:   token,
		Body:    p.Body,
		Timeout: c.opts.RequestTimeout,
	})

	res := broker.PlaceResult{Endpoint: url, HTTPStatus: out.Status, Upstream: out.JSON}
	code, hasCode := out.ReturnCode()
	if hasCode {
		res.ReturnCode = code
	}

	log := c.log.WithField("symbol", o.Symbol).WithField("type", p.TypeCode).WithField("status", out.Status)
	switch {
	case hasCode && code == ReturnCodePlaced:
		res.Status = StatusPlaced
		log.Info("order accepted for async processing")
		return res, nil
	case out.Accepted():
		res.Status = StatusExecuted
		if o.Kind != broker.Market {
			res.Status = StatusPlaced
		}
		log.Info("order accepted")
		return res, nil
	default:
		log.WithField("message", out.Message()).Warn("order rejected")
		return res, out.Failure()
	}
}
