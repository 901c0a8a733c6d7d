package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorEnvelope_StackOnlyOutsideProduction(t *testing.T) {
	failing := func(c *fiber.Ctx) error {
		return models.NewInternalError(errors.New("disk on fire"))
	}

	dev := &Server{config: testConfig()}
	app := fiber.New(fiber.Config{ErrorHandler: dev.errorHandler})
	app.Get("/boom", failing)
	ts := &testServer{app: app}

	status, env := ts.do(t, http.MethodGet, "/boom", "", nil)
	require.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, env.Success)
	assert.Equal(t, "Internal server error", env.Error.Message)
	assert.Equal(t, models.CodeInternal, env.Error.Code)
	assert.Equal(t, 500, env.Error.StatusCode)
	assert.Contains(t, env.Error.Stack, "disk on fire")

	cfg := testConfig()
	cfg.Env = "production"
	prod := &Server{config: cfg}
	app = fiber.New(fiber.Config{ErrorHandler: prod.errorHandler})
	app.Get("/boom", failing)
	ts = &testServer{app: app}

	_, env = ts.do(t, http.MethodGet, "/boom", "", nil)
	assert.Empty(t, env.Error.Stack)
}

func TestRecoverFunnelsIntoEnvelope(t *testing.T) {
	srv := &Server{config: testConfig()}
	app := fiber.New(fiber.Config{ErrorHandler: srv.errorHandler})
	srv.SetupMiddleware(app)
	app.Get("/panic", func(c *fiber.Ctx) error { panic("unexpected") })
	ts := &testServer{app: app}

	status, env := ts.do(t, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.CodeInternal, env.Error.Code)
}

func TestSetupMiddleware_RateLimitedResponseIncludesCORSHeaders(t *testing.T) {
	srv := &Server{config: testConfig()}

	app := fiber.New(fiber.Config{ErrorHandler: srv.errorHandler})
	srv.SetupMiddleware(app)
	app.Get("/limited", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodGet, "/limited", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)

	status, _ := ts.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err = ts.app.Test(req, -1)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRecordRenderedStatus(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)

	status, env := ts.do(t, http.MethodGet, "/api/posts/424242", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodeNotFound, env.Error.Code)

	resp, err := ts.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	notFound := regexp.MustCompile(`http_requests_total\{[^}]*path="/api/posts/:id"[^}]*status_code="404"[^}]*\} [1-9]`)
	serverError := regexp.MustCompile(`http_requests_total\{[^}]*path="/api/posts/:id"[^}]*status_code="500"`)
	assert.Regexp(t, notFound, string(body))
	assert.NotRegexp(t, serverError, string(body))
}

func TestWSTicket(t *testing.T) {
	withRedis := newTestServer(t, testConfig(), true)
	user := testutil.CreateUser(t, withRedis.db, "listener", models.RoleUser)
	token := withRedis.login(t, user.Email)

	status, env := withRedis.do(t, http.MethodPost, "/api/ws/ticket", token, nil)
	require.Equal(t, http.StatusOK, status)
	ticket := decode[struct {
		Ticket string `json:"ticket"`
	}](t, env.Data).Ticket
	assert.NotEmpty(t, ticket)

	status, _ = withRedis.do(t, http.MethodGet, "/api/ws?ticket="+ticket, "", nil)
	assert.Equal(t, http.StatusUpgradeRequired, status)

	noRedis := newTestServer(t, testConfig(), false)
	other := testutil.CreateUser(t, noRedis.db, "listener", models.RoleUser)
	status, _ = noRedis.do(t, http.MethodPost, "/api/ws/ticket", noRedis.login(t, other.Email), nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
