package client

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/server"
	"quill/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

// startAPI serves a fully wired API on a loopback listener and returns its base URL.
func startAPI(t *testing.T) (string, *gorm.DB) {
	t.Helper()

	cfg := &config.Config{
		Env:            "test",
		DBDriver:       "sqlite",
		JWTSecret:      "client-test-secret-that-is-long-enough",
		JWTIssuer:      "quill-api",
		JWTAudience:    "quill-client",
		JWTExpiryHours: 1,
		BcryptCost:     4,
		FeatureFlags:   "view_counting=on",
	}
	db := testutil.NewTestDB(t)
	_, rdb := testutil.NewTestRedis(t)

	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return "http://" + ln.Addr().String() + "/api", db
}

func nextEvent(t *testing.T, sub *Subscription) Notification {
	t.Helper()
	select {
	case n, ok := <-sub.Events():
		require.True(t, ok, "subscription closed: %v", sub.Err())
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
		return Notification{}
	}
}

func TestEditorialScenario(t *testing.T) {
	ctx := context.Background()
	baseURL, db := startAPI(t)

	admin := testutil.CreateUser(t, db, "editor", models.RoleAdmin)
	editor := New(baseURL)
	_, err := editor.Login(ctx, admin.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	category, err := editor.CreateCategory(ctx, CategoryInput{Name: "Engineering"})
	require.NoError(t, err)

	author := New(baseURL)
	me, err := author.Register(ctx, RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "Str0ng!pass",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, me.Role)

	authorFeed, err := author.Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = authorFeed.Close() }()
	moderationFeed, err := editor.Subscribe(ctx)
	require.NoError(t, err)
	defer func() { _ = moderationFeed.Close() }()

	post, err := author.CreatePost(ctx, PostInput{
		Title:      strPtr("Designing idempotent consumers"),
		Content:    strPtr("Consumers must tolerate redelivery without duplicating side effects."),
		CategoryID: &category.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)

	post, err = author.SubmitPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, post.Status)
	assert.Equal(t, notifications.EventPostSubmitted, nextEvent(t, authorFeed).Type)
	queued := nextEvent(t, moderationFeed)
	assert.Equal(t, notifications.EventPostSubmitted, queued.Type)
	assert.Equal(t, post.ID, queued.Payload.PostID)

	_, err = author.ApprovePost(ctx, post.ID)
	assert.True(t, IsStatus(err, http.StatusForbidden), err)

	_, err = editor.RejectPost(ctx, post.ID, "too short")
	assert.True(t, IsStatus(err, http.StatusBadRequest), err)

	post, err = editor.RejectPost(ctx, post.ID, "Needs more detail on X")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, post.Status)
	rejected := nextEvent(t, authorFeed)
	assert.Equal(t, notifications.EventPostRejected, rejected.Type)
	assert.Equal(t, "Needs more detail on X", rejected.Payload.Reason)

	got, err := author.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusRejected, got.Status)
	assert.Equal(t, "Needs more detail on X", got.RejectionReason)

	anonymous := New(baseURL)
	_, err = anonymous.GetPost(ctx, post.ID)
	assert.True(t, IsStatus(err, http.StatusNotFound), err)

	// Editing a rejected post reopens it; a second round gets published.
	post, err = author.UpdatePost(ctx, post.ID, PostInput{
		Content: strPtr("Consumers must tolerate redelivery. Here is how we dedupe by message id."),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
	_, err = author.SubmitPost(ctx, post.ID)
	require.NoError(t, err)
	post, err = editor.ApprovePost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, post.IsPublished)

	list, err := anonymous.ListPosts(ctx, ListPostsParams{Category: category.Slug})
	require.NoError(t, err)
	require.Len(t, list.Posts, 1)
	assert.Equal(t, post.ID, list.Posts[0].ID)

	liked, count, err := author.LikePost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)
}

func TestSession_LazyPrincipalAndInvalidation(t *testing.T) {
	ctx := context.Background()
	baseURL, db := startAPI(t)
	user := testutil.CreateUser(t, db, "reader", models.RoleUser)

	primary := New(baseURL)
	_, err := primary.Login(ctx, user.Email, testutil.DefaultPassword)
	require.NoError(t, err)

	// A second client adopting the token loads the principal on first use.
	secondary := New(baseURL)
	_, err = secondary.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	token := primary.Session().Token()
	secondary.Session().SetToken(token)
	_, ok := secondary.Session().Principal()
	assert.False(t, ok)

	principal, err := secondary.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reader", principal.Username)
	cached, ok := secondary.Session().Principal()
	require.True(t, ok)
	assert.Same(t, principal, cached)

	require.NoError(t, primary.Logout(ctx))
	assert.False(t, primary.Session().Authenticated())

	// The second session still holds the revoked token; the 401 clears it.
	assert.Equal(t, token, secondary.Session().Token())
	_, err = secondary.MyPosts(ctx, ListPostsParams{})
	assert.True(t, IsStatus(err, http.StatusUnauthorized), err)
	assert.False(t, secondary.Session().Authenticated())
}
