package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_TransitionUsesCompareAndSet(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE "posts"."id" = $1 ORDER BY "posts"."id" LIMIT $2 FOR UPDATE`)).
		WithArgs(7, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "status", "author_id"}).AddRow(7, "Queued", "pending", 3))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), 7, func(p *models.Post) error {
		return p.Approve(1)
	})
	assert.ErrorIs(t, err, models.ErrStaleTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_Transition(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, mr := testutil.NewTestStore(t)
	repo := NewPostRepository(db, store)
	ctx := context.Background()

	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	admin := testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Lifecycle", models.PostStatusDraft)

	_, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.PostKey(post.ID)))

	submitted, err := repo.Transition(ctx, post.ID, (*models.Post).SubmitForApproval)
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPending, submitted.Status)
	assert.True(t, submitted.SubmittedForApproval)
	assert.False(t, mr.Exists(cache.PostKey(post.ID)))

	_, err = repo.Transition(ctx, post.ID, (*models.Post).SubmitForApproval)
	var transitionErr *models.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, models.PostStatusPending, transitionErr.From)

	published, err := repo.Transition(ctx, post.ID, func(p *models.Post) error { return p.Approve(admin.ID) })
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusPublished, published.Status)
	assert.True(t, published.IsApproved)
	assert.True(t, published.IsPublished)
	require.NotNil(t, published.PublishedAt)
	require.NotNil(t, published.ApprovedByID)
	assert.Equal(t, admin.ID, *published.ApprovedByID)
	require.NotNil(t, published.Author)
	assert.Equal(t, "author", published.Author.Username)

	_, err = repo.Transition(ctx, 4242, (*models.Post).Archive)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostRepository_TransitionRejectReasonCheckedFirst(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Short reason", models.PostStatusPending)

	_, err := repo.Transition(context.Background(), post.ID, func(p *models.Post) error { return p.Reject(1, "too short") })
	assert.ErrorIs(t, err, models.ErrInvalidRejectionReason)

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, models.PostStatusPending, stored.Status)
	assert.Empty(t, stored.RejectionReason)
}

func TestPostRepository_ConcurrentApprovalsSucceedOnce(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Race", models.PostStatusPending)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(adminID uint) {
			defer wg.Done()
			_, err := repo.Transition(context.Background(), post.ID, func(p *models.Post) error { return p.Approve(adminID) })
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(uint(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrStaleTransition), "unexpected error %v", err)
	}
}

func TestPostRepository_ListFiltersAndPagination(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "alice", models.RoleUser)
	bob := testutil.CreateUser(t, db, "bob", models.RoleUser)
	golang := testutil.CreateCategory(t, db, "Golang")
	rust := testutil.CreateCategory(t, db, "Rust")

	for i := 0; i < 12; i++ {
		testutil.CreatePost(t, db, alice, golang, fmt.Sprintf("Go post %02d", i), models.PostStatusPublished)
	}
	tagged := testutil.CreatePost(t, db, bob, rust, "Ownership explained", models.PostStatusPublished)
	require.NoError(t, db.Exec("UPDATE posts SET tags = ? WHERE id = ?", `["memory","rust"]`, tagged.ID).Error)
	testutil.CreatePost(t, db, bob, rust, "Draft thoughts", models.PostStatusDraft)

	published := PostFilter{Status: models.PostStatusPublished, CategoryID: golang.ID}
	posts, total, err := repo.List(ctx, published, models.NewPage(2, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
	assert.Len(t, posts, 5)
	meta := models.Paginate(models.NewPage(2, 5), total)
	assert.Equal(t, 3, meta.TotalPages)
	assert.True(t, meta.HasNextPage)
	assert.True(t, meta.HasPrevPage)

	posts, total, err = repo.List(ctx, PostFilter{Status: models.PostStatusPublished, CategorySlug: "rust"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Ownership explained", posts[0].Title)
	require.NotNil(t, posts[0].Category)
	assert.Equal(t, "Rust", posts[0].Category.Name)

	_, total, err = repo.List(ctx, PostFilter{AuthorUsername: "bob"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = repo.List(ctx, PostFilter{AuthorID: bob.ID, Status: models.PostStatusDraft}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	posts, total, err = repo.List(ctx, PostFilter{Tag: "MEMORY"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, tagged.ID, posts[0].ID)

	_, total, err = repo.List(ctx, PostFilter{Search: "OWNERSHIP"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	posts, _, err = repo.List(ctx, PostFilter{CategoryID: golang.ID, SortBy: "title", SortOrder: "asc"}, models.NewPage(1, 3))
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "Go post 00", posts[0].Title)
	assert.Equal(t, "Go post 02", posts[2].Title)
}

func TestPostRepository_ListMatchesWildcardsLiterally(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	golang := testutil.CreatePost(t, db, author, cat, "Channels in practice", models.PostStatusPublished)
	require.NoError(t, db.Exec("UPDATE posts SET tags = ? WHERE id = ?", `["go"]`, golang.ID).Error)
	snake := testutil.CreatePost(t, db, author, cat, "Naming snake_case things", models.PostStatusPublished)
	require.NoError(t, db.Exec("UPDATE posts SET tags = ? WHERE id = ?", `["snake_case"]`, snake.ID).Error)

	for _, tag := range []string{"%", "_o", "snake%"} {
		_, total, err := repo.List(ctx, PostFilter{Tag: tag}, models.NewPage(1, 10))
		require.NoError(t, err)
		assert.Zero(t, total, "tag %q", tag)
	}

	posts, total, err := repo.List(ctx, PostFilter{Tag: "snake_case"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, snake.ID, posts[0].ID)

	_, total, err = repo.List(ctx, PostFilter{Search: "%"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Zero(t, total)

	_, total, err = repo.List(ctx, PostFilter{Search: "snake_"}, models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestPostRepository_ListPendingOldestFirst(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")

	first := testutil.CreatePost(t, db, author, cat, "First in queue", models.PostStatusPending)
	second := testutil.CreatePost(t, db, author, cat, "Second in queue", models.PostStatusPending)
	require.NoError(t, db.Model(first).UpdateColumn("submitted_at", second.SubmittedAt.Add(-time.Hour)).Error)
	testutil.CreatePost(t, db, author, cat, "Not queued", models.PostStatusDraft)

	posts, total, err := repo.ListPending(context.Background(), models.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, posts, 2)
	assert.Equal(t, first.ID, posts[0].ID)
	assert.Equal(t, second.ID, posts[1].ID)
}

func TestPostRepository_UpdateAndDelete(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, mr := testutil.NewTestStore(t)
	repo := NewPostRepository(db, store)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Original", models.PostStatusDraft)

	loaded, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	loaded.Title = "Edited"
	loaded.Tags = []string{"edited"}
	require.NoError(t, repo.Update(ctx, loaded))
	assert.False(t, mr.Exists(cache.PostKey(post.ID)))

	reloaded, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", reloaded.Title)
	assert.Equal(t, []string{"edited"}, reloaded.Tags)
	assert.Equal(t, author.ID, reloaded.AuthorID)

	require.NoError(t, repo.Delete(ctx, post.ID))
	var appErr *models.AppError
	require.True(t, errors.As(repo.Delete(ctx, post.ID), &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestPostRepository_UpdateLeavesLifecycleAlone(t *testing.T) {
	db := testutil.NewTestDB(t)
	store, _ := testutil.NewTestStore(t)
	repo := NewPostRepository(db, store)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	admin := testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Queued", models.PostStatusPending)

	stale, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	require.Equal(t, models.PostStatusPending, stale.Status)

	_, err = repo.Transition(ctx, post.ID, func(p *models.Post) error { return p.Approve(admin.ID) })
	require.NoError(t, err)

	stale.Title = "Queued, edited"
	require.NoError(t, repo.Update(ctx, stale))

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, "Queued, edited", stored.Title)
	assert.Equal(t, models.PostStatusPublished, stored.Status)
	assert.True(t, stored.IsApproved)
	assert.True(t, stored.IsPublished)
	assert.Equal(t, models.PostStatusPublished, stale.Status, "Update reloads the row it wrote")
}

func TestPostRepository_ToggleLikeAndViews(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	fan := testutil.CreateUser(t, db, "fan", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Likeable", models.PostStatusPublished)
	draft := testutil.CreatePost(t, db, author, cat, "Hidden", models.PostStatusDraft)

	liked, count, err := repo.ToggleLike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)

	ids, err := repo.LikedPostIDs(ctx, fan.ID, []uint{post.ID, draft.ID})
	require.NoError(t, err)
	assert.True(t, ids[post.ID])
	assert.False(t, ids[draft.ID])

	liked, count, err = repo.ToggleLike(ctx, fan.ID, post.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), count)

	_, _, err = repo.ToggleLike(ctx, fan.ID, draft.ID)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeValidation, appErr.Code)

	require.NoError(t, repo.IncrementViewCount(ctx, post.ID))
	require.NoError(t, repo.IncrementViewCount(ctx, post.ID))
	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, int64(2), stored.ViewCount)
}

func TestPostRepository_ToggleLikeConflictLeavesCount(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM "posts"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(9, "published"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "likes"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "likes"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "like_count" FROM "posts"`)).
		WillReturnRows(sqlmock.NewRows([]string{"like_count"}).AddRow(1))
	mock.ExpectCommit()

	liked, count, err := repo.ToggleLike(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_SlugAndCategoryCounts(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := NewPostRepository(db, nil)
	ctx := context.Background()
	author := testutil.CreateUser(t, db, "author", models.RoleUser)
	cat := testutil.CreateCategory(t, db, "General")
	post := testutil.CreatePost(t, db, author, cat, "Slugged", models.PostStatusDraft)

	exists, err := repo.SlugExists(ctx, post.Slug)
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = repo.SlugExists(ctx, "never-used")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := repo.CountByCategory(ctx, cat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
