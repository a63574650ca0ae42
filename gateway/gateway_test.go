package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/broker/bridge"
	"github.com/rustyeddy/gateway/broker/session"
	"github.com/rustyeddy/gateway/journal"
)

type fakeAccounts map[string]broker.Account

func (f fakeAccounts) Lookup(_ context.Context, userID, ref string) (broker.Account, error) {
	a, ok := f[userID+"/"+ref]
	if !ok {
		return broker.Account{}, broker.NewError(broker.KindNotFound, "no such account")
	}
	return a, nil
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journal.Entry
	err     error
}

func (f *fakeJournal) Record(_ context.Context, e journal.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeJournal) all() []journal.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]journal.Entry(nil), f.entries...)
}

// upstream is a fake bridge that issues numbered tokens and refuses any
// token listed in revoked.
type upstream struct {
	mu      sync.Mutex
	logins  int
	calls   []string
	revoked map[string]bool
	handle  func(w http.ResponseWriter, r *http.Request)
}

func (u *upstream) serve(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	if strings.HasSuffix(r.URL.Path, "/client/auth/login") {
		u.logins++
		n := u.logins
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token": "tok-%d", "expiresIn": 3600}`, n)
		return
	}
	u.calls = append(u.calls, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api"))
	refused := u.revoked[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
	u.mu.Unlock()

	_, _ = io.Copy(io.Discard, r.Body)
	if refused {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if u.handle != nil {
		u.handle(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"success": true}`)
}

func (u *upstream) counts() (logins int, calls []string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.logins, append([]string(nil), u.calls...)
}

func (u *upstream) revoke(tok string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.revoked[tok] = true
}

func strp(s string) *string { return &s }

var alice = Caller{UserID: "alice", AccountRef: "main"}

func newTestService(t *testing.T, handle func(w http.ResponseWriter, r *http.Request)) (*Service, *upstream, *fakeJournal) {
	t.Helper()

	up := &upstream{revoked: map[string]bool{}, handle: handle}
	srv := httptest.NewServer(http.HandlerFunc(up.serve))
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	client := bridge.New(bridge.Options{BaseURL: srv.URL + "/api", Logger: log})
	tokens := session.NewManager(session.NewMemoryCache(), client, log)
	accounts := fakeAccounts{
		"alice/main":    {UpstreamAccountID: "1001", Password: strp("secret")},
		"alice/nopass":  {UpstreamAccountID: "1002"},
		"alice/blank":   {UpstreamAccountID: "1003", Password: strp("  ")},
		"bob/secondary": {UpstreamAccountID: "2001", Password: strp("pw")},
	}
	j := &fakeJournal{}
	return New(accounts, tokens, client, WithJournal(j), WithLogger(log)), up, j
}

var eurusd = broker.OrderIntent{Symbol: "eurusd", Side: broker.Buy, Volume: 0.1, Kind: broker.Market}

func TestUnknownAccountIsNotFound(t *testing.T) {
	t.Parallel()

	svc, up, j := newTestService(t, nil)
	_, err := svc.PlaceOrder(context.Background(), Caller{UserID: "alice", AccountRef: "other"}, eurusd)
	assert.Equal(t, broker.KindNotFound, broker.KindOf(err))

	_, err = svc.ListTrades(context.Background(), Caller{UserID: "mallory", AccountRef: "main"})
	assert.Equal(t, broker.KindNotFound, broker.KindOf(err))

	logins, calls := up.counts()
	assert.Zero(t, logins)
	assert.Empty(t, calls)
	assert.Empty(t, j.all())
}

func TestMissingPasswordIsAccountNotConfigured(t *testing.T) {
	t.Parallel()

	svc, up, _ := newTestService(t, nil)
	for _, ref := range []string{"nopass", "blank"} {
		_, err := svc.ClosePosition(context.Background(), Caller{UserID: "alice", AccountRef: ref}, "5", 0)
		assert.Equal(t, broker.KindAccountNotConfigured, broker.KindOf(err), ref)
	}
	logins, calls := up.counts()
	assert.Zero(t, logins)
	assert.Empty(t, calls)
}

func TestInvalidIntentNeverReachesUpstream(t *testing.T) {
	t.Parallel()

	svc, up, _ := newTestService(t, nil)
	_, err := svc.PlaceOrder(context.Background(), alice, broker.OrderIntent{Symbol: "EURUSD", Side: broker.Buy, Kind: broker.Limit, Volume: 1})
	assert.Equal(t, broker.KindInvalidRequest, broker.KindOf(err))
	logins, _ := up.counts()
	assert.Zero(t, logins)
}

func TestPlaceOrderLogsInOnceAndJournals(t *testing.T) {
	t.Parallel()

	svc, up, j := newTestService(t, nil)
	ctx := context.Background()

	res, err := svc.PlaceOrder(ctx, alice, eurusd)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusExecuted, res.Status)

	_, err = svc.PlaceOrder(ctx, alice, eurusd)
	require.NoError(t, err)

	logins, calls := up.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, []string{"POST /client/trade/buy", "POST /client/trade/buy"}, calls)

	entries := j.all()
	require.Len(t, entries, 2)
	assert.Equal(t, journal.Entry{
		UserID:     "alice",
		AccountID:  "1001",
		Operation:  journal.OpPlace,
		Target:     "EURUSD",
		Accepted:   true,
		Status:     bridge.StatusExecuted,
		HTTPStatus: http.StatusOK,
		Attempts:   1,
	}, entries[0])
}

func TestCachedTokenRefusedTriggersOneRelogin(t *testing.T) {
	t.Parallel()

	svc, up, j := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.ModifyPosition(ctx, alice, broker.ModifyRequest{PositionID: "42", StopLoss: 1.05})
	require.NoError(t, err)

	up.revoke("tok-1")
	res, err := svc.ModifyPosition(ctx, alice, broker.ModifyRequest{PositionID: "42", StopLoss: 1.04})
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	logins, calls := up.counts()
	assert.Equal(t, 2, logins)
	assert.Equal(t, []string{
		"POST /client/position/modify",
		"POST /client/position/modify",
		"POST /client/position/modify",
	}, calls)
	assert.Len(t, j.all(), 2)
}

func TestFreshTokenRefusedIsNotRetried(t *testing.T) {
	t.Parallel()

	svc, up, j := newTestService(t, nil)
	up.revoke("tok-1")
	up.revoke("tok-2")

	_, err := svc.ClosePosition(context.Background(), alice, "42", 0)
	assert.Equal(t, broker.KindAuthentication, broker.KindOf(err))

	logins, calls := up.counts()
	assert.Equal(t, 1, logins)
	assert.Len(t, calls, 1)

	entries := j.all()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Accepted)
	assert.Equal(t, journal.OpClose, entries[0].Operation)
	assert.Equal(t, http.StatusUnauthorized, entries[0].HTTPStatus)
}

func TestJournalFailureDoesNotFailTrade(t *testing.T) {
	t.Parallel()

	svc, _, j := newTestService(t, nil)
	j.err = errors.New("disk full")

	res, err := svc.ClosePosition(context.Background(), alice, "42", 0)
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestCloseAllReportsPartialFailure(t *testing.T) {
	t.Parallel()

	svc, _, j := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/client/positions":
			_, _ = io.WriteString(w, `{"positions": [{"positionId": 1}, {"positionId": 2}]}`)
		case strings.HasSuffix(r.URL.Path, "/position/2"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"success": false, "message": "market closed"}`)
		default:
			_, _ = io.WriteString(w, `{"success": true}`)
		}
	})

	res, err := svc.CloseAll(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Closed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Total)

	entries := j.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "partial", entries[0].Status)
	assert.Equal(t, journal.OpCloseAll, entries[0].Operation)
	assert.False(t, entries[0].Accepted)
}

func TestListTradesIsNotJournaled(t *testing.T) {
	t.Parallel()

	svc, _, j := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	res, err := svc.ListTrades(context.Background(), alice)
	require.NoError(t, err)
	assert.NotNil(t, res.Positions)
	assert.Empty(t, j.all())
}

func TestBlankPositionID(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t, nil)
	_, err := svc.ClosePosition(context.Background(), alice, " ", 0)
	assert.Equal(t, broker.KindNotFound, broker.KindOf(err))
	_, err = svc.ModifyPosition(context.Background(), alice, broker.ModifyRequest{})
	assert.Equal(t, broker.KindNotFound, broker.KindOf(err))
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "empty", closeAllStatus(broker.CloseAllResult{}, nil))
	assert.Equal(t, "closed", closeAllStatus(broker.CloseAllResult{Closed: 2, Total: 2}, nil))
	assert.Equal(t, "failed", closeAllStatus(broker.CloseAllResult{Failed: 2, Total: 2}, nil))
	assert.Equal(t, "upstream_timeout", closeAllStatus(broker.CloseAllResult{}, broker.ErrUpstreamTimeout))
	assert.Equal(t, "error", statusOr("ok", errors.New("x")))
}
