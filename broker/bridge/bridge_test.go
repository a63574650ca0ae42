package bridge

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// seenRequest is what the fake bridge recorded about a call.
type seenRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

// fakeBridge is an httptest upstream whose responses are chosen per call.
type fakeBridge struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	seen   []seenRequest
	handle func(w http.ResponseWriter, r *http.Request, req seenRequest)
}

func newFakeBridge(t *testing.T, handle func(w http.ResponseWriter, r *http.Request, req seenRequest)) *fakeBridge {
	t.Helper()
	fb := &fakeBridge{t: t, handle: handle}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := seenRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &req.Body)
		}
		fb.mu.Lock()
		fb.seen = append(fb.seen, req)
		fb.mu.Unlock()
		fb.handle(w, r, req)
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBridge) requests() []seenRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]seenRequest(nil), fb.seen...)
}

func (fb *fakeBridge) client(opts Options) *Client {
	opts.BaseURL = fb.srv.URL + "/api"
	if opts.Logger == nil {
		l, _ := test.NewNullLogger()
		opts.Logger = l
	}
	return New(opts)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// dropConnection simulates a network failure.
func dropConnection(t *testing.T, w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	require.True(t, ok)
	conn, _, err := hj.Hijack()
	require.NoError(t, err)
	_ = conn.Close()
}

// stall holds the request open until the client gives up.
func stall(r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(2 * time.Second):
	}
}

func paths(reqs []seenRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Method + " " + r.Path
	}
	return out
}
