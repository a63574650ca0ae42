package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/broker/bridge"
)

var (
	tokenKeys  = broker.Candidates{"token", "Token", "accessToken", "AccessToken", "access_token", "jwt", "data.token", "Data.Token", "data.accessToken", "result.token"}
	expiryKeys = broker.Candidates{"expiresIn", "ExpiresIn", "expires_in", "data.expiresIn"}
)

// Authenticator performs the bridge login call.
type Authenticator interface {
	Login(ctx context.Context, req bridge.LoginRequest) (bridge.Outcome, error)
}

// Manager hands out bridge tokens, logging in when the cache has none.
type Manager struct {
	cache    TokenCache
	auth     Authenticator
	log      logrus.FieldLogger
	deviceID func() string
}

// NewManager wires a Manager. A nil logger uses the logrus standard logger.
func NewManager(cache TokenCache, auth Authenticator, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		cache:    cache,
		auth:     auth,
		log:      log,
		deviceID: func() string { return uuid.NewString() },
	}
}

// EnsureToken returns a usable token for accountID. cached reports whether it
// came from the cache, in which case an upstream 401 warrants Invalidate and
// a second try.
func (m *Manager) EnsureToken(ctx context.Context, accountID, password string) (token string, cached bool, err error) {
	if tok, ok := m.cache.Get(accountID); ok {
		return tok, true, nil
	}

	log := m.log.WithField("account", accountID)
	out, err := m.auth.Login(ctx, bridge.LoginRequest{
		AccountID:  accountID,
		Password:   strings.TrimSpace(password),
		DeviceID:   m.deviceID(),
		DeviceType: "web",
	})
	if err != nil {
		return "", false, broker.NewError(broker.KindAuthentication, "login request invalid").WithCause(err)
	}
	if !out.Accepted() {
		log.WithField("status", out.Status).WithField("message", out.Message()).Warn("bridge login failed")
		e := broker.NewError(broker.KindAuthentication, "login failed: "+out.Message()).WithUpstream(out.Status, out.Body)
		if out.Err != nil {
			e = e.WithCause(out.Err)
		}
		return "", false, e
	}

	tok, ok := tokenKeys.NonEmptyString(out.JSON)
	if !ok {
		return "", false, broker.NewError(broker.KindAuthentication, "login response carried no token").WithUpstream(out.Status, out.Body)
	}

	ttl := DefaultTTL
	if secs, ok := expiryKeys.PositiveNumber(out.JSON); ok {
		ttl = time.Duration(min(secs, MaxTTL.Seconds())) * time.Second
	}
	m.cache.Set(accountID, tok, ttl)
	log.WithField("ttl", ttl.String()).Info("bridge session established")
	return tok, false, nil
}

// Invalidate drops the cached token for accountID.
func (m *Manager) Invalidate(accountID string) {
	m.cache.Invalidate(accountID)
}
