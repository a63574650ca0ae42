package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/gateway/broker"
	"github.com/rustyeddy/gateway/broker/bridge"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func quietLogger() logrus.FieldLogger {
	l, _ := test.NewNullLogger()
	return l
}

func TestMemoryCacheSafetyBuffer(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	c := NewMemoryCacheWithClock(clk.Now)
	c.Set("1001", "tok", time.Hour)

	// Last instant before the buffer.
	clk.Advance(time.Hour - SafetyBuffer - time.Millisecond)
	got, ok := c.Get("1001")
	require.True(t, ok)
	assert.Equal(t, "tok", got)

	// Exactly at expiresAt - buffer the token is gone and evicted.
	clk.Advance(time.Millisecond)
	_, ok = c.Get("1001")
	assert.False(t, ok)
	assert.Equal(t, 0, c.size())
}

func TestMemoryCacheDefaultTTLAndInvalidate(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewMemoryCacheWithClock(clk.Now)
	c.Set("a", "tok", 0)

	clk.Advance(DefaultTTL - SafetyBuffer - time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Invalidate("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func newLoginServer(t *testing.T, status int, body string, calls *int32, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/client/auth/login", r.URL.Path)
		if seen != nil {
			m := map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&m)
			*seen = m
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBridge(url string) *bridge.Client {
	return bridge.New(bridge.Options{BaseURL: url + "/api", Logger: quietLogger()})
}

func TestEnsureTokenLogsInOnceAndCaches(t *testing.T) {
	t.Parallel()

	var calls int32
	var seen map[string]any
	srv := newLoginServer(t, http.StatusOK, `{"data": {"token": "abc"}, "expiresIn": 600}`, &calls, &seen)

	m := NewManager(NewMemoryCache(), newBridge(srv.URL), quietLogger())

	tok, cached, err := m.EnsureToken(context.Background(), "1001", "  secret \n")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	assert.False(t, cached)

	assert.Equal(t, float64(1001), seen["AccountId"])
	assert.Equal(t, "secret", seen["Password"])
	assert.Equal(t, "web", seen["DeviceType"])
	assert.NotEmpty(t, seen["DeviceId"])

	tok, cached, err = m.EnsureToken(context.Background(), "1001", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	assert.True(t, cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	m.Invalidate("1001")
	_, cached, err = m.EnsureToken(context.Background(), "1001", "secret")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnsureTokenFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http failure", http.StatusForbidden, `{"message": "bad password"}`},
		{"no token field", http.StatusOK, `{"session": "x"}`},
		{"only blank tokens", http.StatusOK, `{"token": "", "data": {"token": "  "}}`},
		{"explicit failure", http.StatusOK, `{"success": false, "token": "abc"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var calls int32
			srv := newLoginServer(t, tt.status, tt.body, &calls, nil)
			cache := NewMemoryCache()
			m := NewManager(cache, newBridge(srv.URL), quietLogger())

			_, _, err := m.EnsureToken(context.Background(), "1001", "pw")
			require.Error(t, err)
			assert.True(t, errors.Is(err, broker.ErrAuthentication))
			assert.Equal(t, 0, cache.size())
		})
	}
}

func TestEnsureTokenSkipsBlankTokenField(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := newLoginServer(t, http.StatusOK, `{"token": "", "data": {"token": "real-token"}}`, &calls, nil)
	m := NewManager(NewMemoryCache(), newBridge(srv.URL), quietLogger())

	tok, cached, err := m.EnsureToken(context.Background(), "1001", "pw")
	require.NoError(t, err)
	assert.Equal(t, "real-token", tok)
	assert.False(t, cached)
}

func TestEnsureTokenCapsAdvertisedLifetime(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := newLoginServer(t, http.StatusOK, `{"token": "abc", "expiresIn": 1e11}`, &calls, nil)
	clk := &fakeClock{t: time.Unix(0, 0)}
	m := NewManager(NewMemoryCacheWithClock(clk.Now), newBridge(srv.URL), quietLogger())
	ctx := context.Background()

	_, _, err := m.EnsureToken(ctx, "1001", "pw")
	require.NoError(t, err)

	clk.Advance(MaxTTL - SafetyBuffer - time.Second)
	_, cached, err := m.EnsureToken(ctx, "1001", "pw")
	require.NoError(t, err)
	assert.True(t, cached)

	clk.Advance(time.Second)
	_, cached, err = m.EnsureToken(ctx, "1001", "pw")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestEnsureTokenNonNumericAccount(t *testing.T) {
	t.Parallel()

	m := NewManager(NewMemoryCache(), newBridge("http://127.0.0.1:1"), quietLogger())
	_, _, err := m.EnsureToken(context.Background(), "abc", "pw")
	assert.True(t, errors.Is(err, broker.ErrAuthentication))
}
