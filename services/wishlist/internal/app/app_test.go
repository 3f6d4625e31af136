package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/auth"
	"github.com/justin-elyphant/elyphant-v1-sub002/services/wishlist/internal/config"
)

const testSecret = "app-test-secret-that-is-long-enough"

func newRedisApp(t *testing.T) (*App, *httptest.Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("WISHLIST_ADD_RETRY_DELAY", "0s")

	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	srv := httptest.NewServer(a.httpServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		assert.NoError(t, a.Shutdown())
	})
	return a, srv, mr
}

func bearer(t *testing.T, accountID string) string {
	t.Helper()
	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    auth.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func TestApp_HealthWithRedisBackend(t *testing.T) {
	_, srv, _ := newRedisApp(t)

	status, body := call(t, srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, status)
	checks, ok := body["checks"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, checks, "redis")
	assert.Contains(t, checks, "catalog")
}

func TestApp_WishlistFlowPersistsToRedis(t *testing.T) {
	_, srv, mr := newRedisApp(t)
	token := bearer(t, "acct-e2e")

	status, _ := call(t, srv, http.MethodPost, "/api/v1/wishlists/quick-add", token, map[string]any{
		"product_id": "p-100",
		"title":      "Canvas Tote",
		"price":      1999,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := call(t, srv, http.MethodGet, "/api/v1/wishlists/products/p-100", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]any)["wishlisted"])

	stored, err := mr.Get("profile:acct-e2e")
	require.NoError(t, err)
	assert.Contains(t, stored, "Canvas Tote")

	status, _ = call(t, srv, http.MethodDelete, "/api/v1/wishlists/session", token, nil)
	assert.Equal(t, http.StatusNoContent, status)

	// A fresh session reads the same state back from storage.
	status, body = call(t, srv, http.MethodGet, "/api/v1/wishlists", token, nil)
	require.Equal(t, http.StatusOK, status)
	products := body["data"].(map[string]any)["wishlisted_products"].([]any)
	assert.Equal(t, []any{"p-100"}, products)
}

func TestApp_RejectsMissingToken(t *testing.T) {
	_, srv, _ := newRedisApp(t)

	status, _ := call(t, srv, http.MethodGet, "/api/v1/wishlists", "", nil)

	assert.Equal(t, http.StatusUnauthorized, status)
}
