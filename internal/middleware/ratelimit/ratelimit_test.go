package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pendergraft/fundme/internal/auth"
	"github.com/pendergraft/fundme/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote string) *http.Request {
	req := httptest.NewRequest("GET", "/api/v1/", nil)
	req.RemoteAddr = remote
	return req
}

func TestLimiter_BurstThenReject(t *testing.T) {
	l := New(Config{RequestsPerMin: 60, BurstSize: 2, CleanupMinutes: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request("192.0.2.1:1000"))
		assert.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		assert.Equal(t, "60", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, request("192.0.2.1:1000"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Error.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request("192.0.2.2:1000"))
	assert.Equal(t, http.StatusOK, rr.Code, "other clients keep their own bucket")
}

func TestLimiter_KeysByAccount(t *testing.T) {
	l := New(Config{RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	account := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	withAccount := func(remote string) *http.Request {
		req := request(remote)
		return req.WithContext(auth.WithAPIKey(req.Context(), &storage.APIKey{ID: "k1", Account: account.Hex()}))
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, withAccount("192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Same account from a different address shares the bucket.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, withAccount("198.51.100.9:1000"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// The anonymous bucket for the first address is untouched.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request("192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLimiter_HealthUnthrottled(t *testing.T) {
	l := New(Config{RequestsPerMin: 1, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	assert.Equal(t, 0, l.tracked())
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(Config{RequestsPerMin: 60, BurstSize: 1, CleanupMinutes: 1})
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("ip:192.0.2.1")
	now = now.Add(30 * time.Second)
	l.Allow("ip:192.0.2.2")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, l.sweep())
	assert.Equal(t, 1, l.tracked())
}

func TestMiddleware_Disabled(t *testing.T) {
	mw, stop := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})
	defer stop()
	handler := mw(okHandler())

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, request("192.0.2.1:1000"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestMiddleware_StopIdempotent(t *testing.T) {
	_, stop := Middleware(Config{Enabled: true, RequestsPerMin: 10, BurstSize: 1})
	stop()
	stop()
}
