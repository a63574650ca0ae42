// Package gateway is the order and position execution gateway: it resolves a
// caller's account, obtains a bridge session and runs the requested trading
// operation against the upstream bridge.
package gateway

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/journal"
)

// Caller identifies who is asking and for which of their accounts. The
// gateway trusts it; end-user authentication happens in front of it.
type Caller struct {
	UserID     string
	AccountRef string
}

// AccountStore resolves a caller's account reference.
type AccountStore interface {
	Lookup(ctx context.Context, userID, accountRef string) (broker.Account, error)
}

// Tokens supplies bridge session tokens.
type Tokens interface {
	EnsureToken(ctx context.Context, accountID, password string) (token string, cached bool, err error)
	Invalidate(accountID string)
}

// Upstream is the bridge as the gateway uses it.
type Upstream interface {
	PlaceOrder(ctx context.Context, token string, o broker.OrderIntent) (broker.PlaceResult, error)
	ClosePosition(ctx context.Context, token, accountID, positionID string, volume float64) (broker.ExecResult, error)
	ModifyPosition(ctx context.Context, token, accountID string, req broker.ModifyRequest) (broker.ExecResult, error)
	CloseAll(ctx context.Context, token, accountID string) (broker.CloseAllResult, error)
	ListTrades(ctx context.Context, token, accountID string) (broker.TradeListing, error)
}

// Recorder persists executed operations.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Service is the gateway.
type Service struct {
	accounts AccountStore
	tokens   Tokens
	upstream Upstream
	journal  Recorder
	log      logrus.FieldLogger
}

// Option configures a Service.
type Option func(*Service)

// WithJournal records every mutating operation to r.
func WithJournal(r Recorder) Option {
	return func(s *Service) { s.journal = r }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// New builds a Service.
func New(accounts AccountStore, tokens Tokens, upstream Upstream, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		upstream: upstream,
		log:      logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) resolve(ctx context.Context, c Caller) (accountID, password string, err error) {
	if strings.TrimSpace(c.AccountRef) == "" {
		return "", "", broker.NewError(broker.KindNotFound, "account reference is required")
	}
	acct, err := s.accounts.Lookup(ctx, c.UserID, c.AccountRef)
	if err != nil {
		if broker.KindOf(err) != "" {
			return "", "", err
		}
		return "", "", errors.Wrapf(err, "lookup account %s", c.AccountRef)
	}
	if acct.Password == nil || strings.TrimSpace(*acct.Password) == "" {
		return "", "", broker.NewError(broker.KindAccountNotConfigured, "no bridge password on file for account "+c.AccountRef)
	}
	return acct.UpstreamAccountID, *acct.Password, nil
}

// withSession runs fn with a bridge token. A 401 on a cached token gets one
// retry with a fresh login.
func (s *Service) withSession(ctx context.Context, c Caller, fn func(token, accountID string) error) (string, error) {
	accountID, password, err := s.resolve(ctx, c)
	if err != nil {
		return "", err
	}
	token, cached, err := s.tokens.EnsureToken(ctx, accountID, password)
	if err != nil {
		return accountID, err
	}

	err = fn(token, accountID)
	if !cached || broker.KindOf(err) != broker.KindAuthentication {
		return accountID, err
	}

	s.log.WithField("account", accountID).Info("cached bridge token refused, logging in again")
	s.tokens.Invalidate(accountID)
	token, _, err = s.tokens.EnsureToken(ctx, accountID, password)
	if err != nil {
		return accountID, err
	}
	return accountID, fn(token, accountID)
}

// PlaceOrder translates and submits an order intent.
func (s *Service) PlaceOrder(ctx context.Context, c Caller, o broker.OrderIntent) (broker.PlaceResult, error) {
	if err := o.Validate(); err != nil {
		return broker.PlaceResult{}, err
	}
	var res broker.PlaceResult
	accountID, err := s.withSession(ctx, c, func(token, _ string) error {
		var err error
		res, err = s.upstream.PlaceOrder(ctx, token, o)
		return err
	})

	s.record(ctx, journal.Entry{
		UserID:     c.UserID,
		AccountID:  accountID,
		Operation:  journal.OpPlace,
		Target:     strings.ToUpper(o.Symbol),
		Accepted:   err == nil,
		Status:     statusOr(res.Status, err),
		HTTPStatus: res.HTTPStatus,
		Attempts:   1,
		Message:    messageOf(err),
	}, err)
	return res, err
}

// ClosePosition closes one position, whole when volume <= 0.
func (s *Service) ClosePosition(ctx context.Context, c Caller, positionID string, volume float64) (broker.ExecResult, error) {
	positionID = strings.TrimSpace(positionID)
	if positionID == "" {
		return broker.ExecResult{}, broker.NewError(broker.KindNotFound, "position id is required")
	}
	var res broker.ExecResult
	accountID, err := s.withSession(ctx, c, func(token, accountID string) error {
		var err error
		res, err = s.upstream.ClosePosition(ctx, token, accountID, positionID, volume)
		return err
	})
	s.recordExec(ctx, c, accountID, journal.OpClose, positionID, res, err)
	return res, err
}

// ModifyPosition changes stop loss, take profit or volume of a position.
func (s *Service) ModifyPosition(ctx context.Context, c Caller, req broker.ModifyRequest) (broker.ExecResult, error) {
	req.PositionID = strings.TrimSpace(req.PositionID)
	if req.PositionID == "" {
		return broker.ExecResult{}, broker.NewError(broker.KindNotFound, "position id is required")
	}
	var res broker.ExecResult
	accountID, err := s.withSession(ctx, c, func(token, accountID string) error {
		var err error
		res, err = s.upstream.ModifyPosition(ctx, token, accountID, req)
		return err
	})
	s.recordExec(ctx, c, accountID, journal.OpModify, req.PositionID, res, err)
	return res, err
}

// CloseAll closes every open position of the account. Partial failure is a
// normal result; only a failed positions listing is an error.
func (s *Service) CloseAll(ctx context.Context, c Caller) (broker.CloseAllResult, error) {
	var res broker.CloseAllResult
	accountID, err := s.withSession(ctx, c, func(token, accountID string) error {
		var err error
		res, err = s.upstream.CloseAll(ctx, token, accountID)
		return err
	})

	s.record(ctx, journal.Entry{
		UserID:    c.UserID,
		AccountID: accountID,
		Operation: journal.OpCloseAll,
		Target:    "*",
		Accepted:  err == nil && res.Failed == 0,
		Status:    closeAllStatus(res, err),
		Attempts:  res.Total,
		Message:   messageOf(err),
	}, err)
	return res, err
}

// ListTrades returns open positions, pending orders and valid closed trades.
func (s *Service) ListTrades(ctx context.Context, c Caller) (broker.TradeListing, error) {
	var res broker.TradeListing
	_, err := s.withSession(ctx, c, func(token, accountID string) error {
		var err error
		res, err = s.upstream.ListTrades(ctx, token, accountID)
		return err
	})
	return res, err
}

func (s *Service) recordExec(ctx context.Context, c Caller, accountID, op, target string, res broker.ExecResult, err error) {
	status := "accepted"
	if !res.Accepted {
		status = "failed"
	}
	s.record(ctx, journal.Entry{
		UserID:     c.UserID,
		AccountID:  accountID,
		Operation:  op,
		Target:     target,
		Accepted:   res.Accepted,
		Status:     status,
		HTTPStatus: res.Status,
		Attempts:   len(res.Attempts),
		Message:    firstNonEmpty(res.Message, messageOf(err)),
	}, err)
}

// record writes e to the journal. Journal failures are logged only; they
// must not turn an executed trade into an error.
func (s *Service) record(ctx context.Context, e journal.Entry, opErr error) {
	log := s.log.WithFields(logrus.Fields{
		"op":       e.Operation,
		"account":  e.AccountID,
		"target":   e.Target,
		"accepted": e.Accepted,
		"attempts": e.Attempts,
	})
	if opErr != nil {
		log.WithError(opErr).Warn("gateway operation failed")
	} else {
		log.Info("gateway operation done")
	}

	if s.journal == nil || e.AccountID == "" {
		return
	}
	if err := s.journal.Record(ctx, e); err != nil {
		log.WithError(err).Error("journal write failed")
	}
}

func statusOr(status string, err error) string {
	if err != nil {
		if k := broker.KindOf(err); k != "" {
			return string(k)
		}
		return "error"
	}
	return status
}

func closeAllStatus(res broker.CloseAllResult, err error) string {
	if err != nil {
		return statusOr("", err)
	}
	switch {
	case res.Total == 0:
		return "empty"
	case res.Failed == 0:
		return "closed"
	case res.Closed == 0:
		return "failed"
	default:
		return "partial"
	}
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s != "" {
			return s
		}
	}
	return ""
}
