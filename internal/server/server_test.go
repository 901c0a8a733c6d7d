package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"quill/internal/config"
	"quill/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	srv *Server
	app *fiber.App
	db  *gorm.DB
}

func testConfig() *config.Config {
	return &config.Config{
		Port:           "0",
		Env:            "test",
		DBDriver:       "sqlite",
		JWTSecret:      "test-secret-that-is-long-enough-for-hs256",
		JWTIssuer:      "quill-api",
		JWTAudience:    "quill-client",
		JWTExpiryHours: 1,
		BcryptCost:     4,
		AllowedOrigins: "http://localhost:5173",
		FeatureFlags:   "view_counting=on",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, withRedis bool) *testServer {
	t.Helper()
	db := testutil.NewTestDB(t)
	var rdb *redis.Client
	if withRedis {
		_, rdb = testutil.NewTestRedis(t)
	}
	srv, err := NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)
	t.Cleanup(srv.shutdownFn)
	return &testServer{srv: srv, app: srv.App(), db: db}
}

// envelope mirrors the response body shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Message    string `json:"message"`
		StatusCode int    `json:"statusCode"`
		Code       string `json:"code"`
		Details    []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
		Stack []string `json:"stack"`
	} `json:"error"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

// login returns a token for a fixture user created with testutil.DefaultPassword.
func (ts *testServer) login(t *testing.T, email string) string {
	t.Helper()
	status, env := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": testutil.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, status)
	return decode[struct {
		Token string `json:"token"`
	}](t, env.Data).Token
}
