package server

import (
	"net/http"
	"strings"
	"testing"

	"quill/internal/models"
	"quill/internal/testutil"
	"quill/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authPayload struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)

	body := map[string]string{
		"username": "newbie",
		"email":    "Newbie@Example.com",
		"password": testutil.DefaultPassword,
	}
	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)
	payload := decode[authPayload](t, env.Data)
	assert.NotEmpty(t, payload.Token)
	assert.Equal(t, "newbie@example.com", payload.User.Email)
	assert.Equal(t, models.RoleUser, payload.User.Role)

	status, env = ts.do(t, http.MethodPost, "/api/auth/register", "", body)
	require.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)
	assert.Equal(t, models.CodeConflict, env.Error.Code)
	assert.Contains(t, env.Error.Message, "already exists")
}

func TestRegister_WeakPasswordListsEveryRule(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)

	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "weakling",
		"email":    "weak@example.com",
		"password": "abc",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.CodeValidation, env.Error.Code)
	assert.GreaterOrEqual(t, len(env.Error.Details), 3)
	for _, d := range env.Error.Details {
		assert.Equal(t, "password", d.Field)
	}
}

func TestRegister_OverlongPasswordIsFieldError(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)

	status, env := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "verbose",
		"email":    "verbose@example.com",
		"password": strings.Repeat("Aa1!", 20),
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, models.CodeValidation, env.Error.Code)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "password", env.Error.Details[0].Field)
	assert.Equal(t, validation.MsgPasswordTooLong, env.Error.Details[0].Message)
}

func TestLoginMeLogout(t *testing.T) {
	ts := newTestServer(t, testConfig(), true)
	user := testutil.CreateUser(t, ts.db, "reader", models.RoleUser)

	status, env := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": user.Email, "password": "Wr0ng$password",
	})
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Error.Message)

	token := ts.login(t, user.Email)

	status, env = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[struct {
		User models.User `json:"user"`
	}](t, env.Data)
	assert.Equal(t, "reader", me.User.Username)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token has been revoked", env.Error.Message)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)

	status, env := ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, models.CodeUnauthorized, env.Error.Code)

	status, _ = ts.do(t, http.MethodGet, "/api/auth/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestLogin_DeactivatedUser(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)
	user := testutil.CreateUser(t, ts.db, "sleepy", models.RoleUser)
	token := ts.login(t, user.Email)
	require.NoError(t, ts.db.Model(user).UpdateColumn("is_active", false).Error)

	status, _ := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": user.Email, "password": testutil.DefaultPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.do(t, http.MethodGet, "/api/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChangePasswordAndProfile(t *testing.T) {
	ts := newTestServer(t, testConfig(), false)
	user := testutil.CreateUser(t, ts.db, "writer", models.RoleUser)
	token := ts.login(t, user.Email)

	status, env := ts.do(t, http.MethodPut, "/api/auth/profile", token, map[string]string{"bio": "Gopher"})
	require.Equal(t, http.StatusOK, status)
	profile := decode[struct {
		User models.User `json:"user"`
	}](t, env.Data)
	assert.Equal(t, "Gopher", profile.User.Bio)

	status, _ = ts.do(t, http.MethodPut, "/api/auth/change-password", token, map[string]string{
		"currentPassword": testutil.DefaultPassword,
		"newPassword":     "An0ther$ecret",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": user.Email, "password": "An0ther$ecret",
	})
	assert.Equal(t, http.StatusOK, status)
}
