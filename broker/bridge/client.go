package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gateway/broker"
)

const (
	DefaultCloseTimeout   = 3 * time.Second
	DefaultModifyTimeout  = 30 * time.Second
	DefaultRequestTimeout = 35 * time.Second

	// DefaultCloseAllConcurrency bounds in-flight closes during CloseAll.
	DefaultCloseAllConcurrency = 8
)

var (
	successFlag = broker.Candidates{"success", "Success"}
	messageKeys = broker.Candidates{"message", "Message", "error", "Error", "msg", "detail", "title", "data.message"}
	returnCodes = broker.Candidates{"returnCode", "ReturnCode", "retcode", "Retcode", "data.returnCode", "Data.ReturnCode"}
)

// Options configure a Client.
type Options struct {
	BaseURL        string
	Paths          Paths
	CloseTimeout   time.Duration
	ModifyTimeout  time.Duration
	RequestTimeout time.Duration
	CryptoTickers  []string
	Logger         logrus.FieldLogger

	// CloseAllConcurrency caps parallel closes; <= 0 takes the default.
	CloseAllConcurrency int
}

// Client talks to the broker's trade bridge.
type Client struct {
	http  *resty.Client
	base  string
	paths Paths
	opts  Options
	tr    Translator
	log   logrus.FieldLogger
}

// New creates a bridge client. Zero timeouts take the package defaults.
func New(opts Options) *Client {
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.ModifyTimeout <= 0 {
		opts.ModifyTimeout = DefaultModifyTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.CloseAllConcurrency <= 0 {
		opts.CloseAllConcurrency = DefaultCloseAllConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	opts.Paths = opts.Paths.WithDefaults()

	// No resty level retries: fallback chains decide what gets retried.
	rc := resty.New().
		SetTimeout(opts.RequestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "rustyeddy-gateway")

	return &Client{
		http:  rc,
		base:  strings.TrimRight(opts.BaseURL, "/"),
		paths: opts.Paths,
		opts:  opts,
		tr:    NewTranslator(opts.Paths, opts.CryptoTickers),
		log:   opts.Logger,
	}
}

// URL resolves a path against the base URL.
func (c *Client) URL(path string) string {
	return joinURL(c.base, path)
}

// Translator returns the order translator bound to this client's paths.
func (c *Client) Translator() Translator {
	return c.tr
}

// Request is a single upstream call.
type Request struct {
	Method  string
	URL     string
	Token   string
	Query   map[string]string
	Body    any
	Timeout time.Duration
}

// Outcome is what happened to a Request. Transport failures are carried in
// Err rather than returned so chains can evaluate them like HTTP failures.
type Outcome struct {
	Status   int
	Body     []byte
	JSON     any
	Err      error
	TimedOut bool
}

// OK reports a 2xx response.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Status >= http.StatusOK && o.Status < http.StatusMultipleChoices
}

// ExplicitFailure reports a JSON body asserting success:false.
func (o Outcome) ExplicitFailure() bool {
	ok, present := successFlag.Bool(o.JSON)
	return present && !ok
}

// Accepted is the uniform success predicate: a 2xx status whose body, when
// present, does not assert failure.
func (o Outcome) Accepted() bool {
	return o.OK() && !o.ExplicitFailure()
}

// ReturnCode is the embedded bridge return code, if any.
func (o Outcome) ReturnCode() (int, bool) {
	n, ok := returnCodes.Number(o.JSON)
	if !ok {
		return 0, false
	}
	return int(n), true
}

// Message returns the best human readable message available.
func (o Outcome) Message() string {
	if msg, ok := messageKeys.String(o.JSON); ok {
		return msg
	}
	if o.Err != nil {
		return o.Err.Error()
	}
	if s := strings.TrimSpace(string(o.Body)); s != "" && o.JSON == nil {
		if len(s) > 256 {
			s = s[:256]
		}
		return s
	}
	if o.Status != 0 {
		return http.StatusText(o.Status)
	}
	return "no response"
}

// Failure classifies a failed outcome into the gateway taxonomy.
func (o Outcome) Failure() *broker.Error {
	switch {
	case o.TimedOut:
		return broker.NewError(broker.KindUpstreamTimeout, "upstream timed out").WithCause(o.Err)
	case o.Err != nil:
		return broker.NewError(broker.KindShapeMismatch, "upstream unreachable").WithCause(o.Err)
	case o.Status == http.StatusUnauthorized:
		return broker.NewError(broker.KindAuthentication, o.Message()).WithUpstream(o.Status, o.Body)
	case o.Status == http.StatusNotFound && !o.ExplicitFailure():
		return broker.NewError(broker.KindNotFound, o.Message()).WithUpstream(o.Status, o.Body)
	case o.Status == http.StatusMethodNotAllowed || o.Status == http.StatusUnsupportedMediaType:
		return broker.NewError(broker.KindShapeMismatch, o.Message()).WithUpstream(o.Status, o.Body)
	default:
		return broker.NewError(broker.KindUpstreamRejection, o.Message()).WithUpstream(o.Status, o.Body)
	}
}

// Unauthorized reports an upstream 401.
func (o Outcome) Unauthorized() bool {
	return o.Err == nil && o.Status == http.StatusUnauthorized
}

// Do executes req, bounding it by req.Timeout when set.
func (c *Client) Do(ctx context.Context, req Request) Outcome {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	r := c.http.R().SetContext(ctx)
	if req.Token != "" {
		r.SetAuthToken(req.Token)
	}
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}

	start := time.Now()
	resp, err := r.Execute(req.Method, req.URL)
	log := c.log.WithFields(logrus.Fields{
		"method":  req.Method,
		"url":     req.URL,
		"latency": time.Since(start).String(),
	})
	if err != nil {
		timedOut := isTimeout(ctx, err)
		log.WithError(err).WithField("timeout", timedOut).Warn("upstream call failed")
		return Outcome{Err: errors.Wrapf(err, "%s %s", req.Method, req.URL), TimedOut: timedOut}
	}

	out := Outcome{Status: resp.StatusCode(), Body: resp.Body()}
	out.JSON = decodeJSON(out.Body)
	log.WithField("status", out.Status).Debug("upstream call")
	return out
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func decodeJSON(b []byte) any {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	return v
}

// LoginRequest carries the credentials for a bridge session.
type LoginRequest struct {
	AccountID  string
	Password   string
	DeviceID   string
	DeviceType string
}

// Login posts credentials to the login endpoint. The account id must be
// numeric; the bridge rejects string ids.
func (c *Client) Login(ctx context.Context, req LoginRequest) (Outcome, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(req.AccountID), 10, 64)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "account id %q is not numeric", req.AccountID)
	}
	if req.DeviceType == "" {
		req.DeviceType = "web"
	}
	body := map[string]any{
		"AccountId":  id,
		"Password":   req.Password,
		"DeviceId":   req.DeviceID,
		"DeviceType": req.DeviceType,
	}
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     c.URL(c.paths.Login),
		Body:    body,
		Timeout: c.opts.RequestTimeout,
	}), nil
}

// numericOrString sends ids as JSON numbers when they look numeric.
func numericOrString(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
