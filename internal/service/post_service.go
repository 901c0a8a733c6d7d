package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"quill/internal/featureflags"
	"quill/internal/models"
	"quill/internal/notifications"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// EventPublisher delivers post lifecycle events to interested sockets.
type EventPublisher interface {
	PublishPostEvent(ctx context.Context, e notifications.PostEvent) error
}

// PostService implements post authoring, browsing and the approval workflow.
type PostService struct {
	posts      repository.PostRepository
	categories repository.CategoryRepository
	flags      *featureflags.Manager
	events     EventPublisher
}

// CreatePostInput is the payload for a new post.
type CreatePostInput struct {
	Title      string   `json:"title" validate:"required,min=3,max=200"`
	Content    string   `json:"content" validate:"required,min=10,max=10000"`
	Excerpt    string   `json:"excerpt" validate:"omitempty,max=300"`
	CategoryID uint     `json:"categoryId" validate:"required"`
	Slug       string   `json:"slug" validate:"omitempty,min=3,max=100,slug"`
	Tags       []string `json:"tags" validate:"omitempty,max=10,dive,max=30"`
}

// UpdatePostInput is a partial update. Nil fields are left untouched.
type UpdatePostInput struct {
	Title      *string   `json:"title" validate:"omitempty,min=3,max=200"`
	Content    *string   `json:"content" validate:"omitempty,min=10,max=10000"`
	Excerpt    *string   `json:"excerpt" validate:"omitempty,max=300"`
	CategoryID *uint     `json:"categoryId"`
	Slug       *string   `json:"slug" validate:"omitempty,min=3,max=100,slug"`
	Tags       *[]string `json:"tags" validate:"omitempty,max=10,dive,max=30"`
}

// ListPostsInput carries the query of a post listing.
type ListPostsInput struct {
	Page      models.Page
	Status    string
	Category  string
	Author    string
	Tag       string
	Search    string
	SortBy    string
	SortOrder string
}

// PostList is a page of posts.
type PostList struct {
	Posts      []models.Post     `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
}

// NewPostService wires a PostService. flags and events may be nil.
func NewPostService(posts repository.PostRepository, categories repository.CategoryRepository, flags *featureflags.Manager, events EventPublisher) *PostService {
	return &PostService{posts: posts, categories: categories, flags: flags, events: events}
}

// List returns posts matching in. Only admins and moderators may look past published posts.
func (s *PostService) List(ctx context.Context, viewer *models.User, in ListPostsInput) (*PostList, error) {
	filter, err := s.buildFilter(in)
	if err != nil {
		return nil, err
	}
	switch {
	case filter.Status == "":
		filter.Status = models.PostStatusPublished
	case filter.Status != models.PostStatusPublished && !viewer.CanModerate():
		return nil, models.NewForbiddenError("Only moderators can filter by status")
	}
	return s.list(ctx, viewer, filter, in.Page)
}

// ListMine returns the viewer's own posts in any status.
func (s *PostService) ListMine(ctx context.Context, viewer *models.User, in ListPostsInput) (*PostList, error) {
	filter, err := s.buildFilter(in)
	if err != nil {
		return nil, err
	}
	filter.AuthorID = viewer.ID
	filter.AuthorUsername = ""
	return s.list(ctx, viewer, filter, in.Page)
}

// ListPending returns the approval queue, oldest submission first.
func (s *PostService) ListPending(ctx context.Context, viewer *models.User, page models.Page) (*PostList, error) {
	if !viewer.CanModerate() {
		return nil, models.NewForbiddenError("Insufficient permissions")
	}
	posts, total, err := s.posts.ListPending(ctx, page)
	if err != nil {
		return nil, err
	}
	return &PostList{Posts: posts, Pagination: models.Paginate(page, total)}, nil
}

func (s *PostService) buildFilter(in ListPostsInput) (repository.PostFilter, error) {
	f := repository.PostFilter{
		Tag:       strings.ToLower(strings.TrimSpace(in.Tag)),
		Search:    strings.TrimSpace(in.Search),
		SortBy:    in.SortBy,
		SortOrder: strings.ToLower(in.SortOrder),
	}
	if f.SortBy != "" && !repository.ValidPostSort(f.SortBy) {
		return f, models.NewFieldValidationError([]models.FieldError{{Field: "sortBy", Message: "sortBy must be one of createdAt, updatedAt, publishedAt, title, viewCount, likeCount"}})
	}
	if f.SortOrder != "" && f.SortOrder != "asc" && f.SortOrder != "desc" {
		return f, models.NewFieldValidationError([]models.FieldError{{Field: "sortOrder", Message: "sortOrder must be asc or desc"}})
	}
	if in.Status != "" {
		status, err := models.ParsePostStatus(in.Status)
		if err != nil {
			return f, models.NewFieldValidationError([]models.FieldError{{Field: "status", Message: "status must be a valid post status"}})
		}
		f.Status = status
	}
	if id, ok := parseID(in.Category); ok {
		f.CategoryID = id
	} else {
		f.CategorySlug = strings.TrimSpace(in.Category)
	}
	if id, ok := parseID(in.Author); ok {
		f.AuthorID = id
	} else {
		f.AuthorUsername = strings.TrimSpace(in.Author)
	}
	return f, nil
}

func (s *PostService) list(ctx context.Context, viewer *models.User, filter repository.PostFilter, page models.Page) (*PostList, error) {
	ctx, span := observability.StartSpan(ctx, "service", "PostService.List",
		attribute.String("status", string(filter.Status)))
	posts, total, err := s.posts.List(ctx, filter, page)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if err := s.markLiked(ctx, viewer, posts); err != nil {
		return nil, err
	}
	return &PostList{Posts: posts, Pagination: models.Paginate(page, total)}, nil
}

func (s *PostService) markLiked(ctx context.Context, viewer *models.User, posts []models.Post) error {
	if viewer == nil || len(posts) == 0 {
		return nil
	}
	ids := make([]uint, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}
	liked, err := s.posts.LikedPostIDs(ctx, viewer.ID, ids)
	if err != nil {
		return err
	}
	for i := range posts {
		posts[i].Liked = liked[posts[i].ID]
	}
	return nil
}

// Get returns a post visible to viewer. Hidden posts yield 404 so their existence does not leak.
// Public reads of published posts bump the view counter when view counting is enabled.
func (s *PostService) Get(ctx context.Context, viewer *models.User, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.IsVisibleTo(viewer) {
		return nil, models.NewNotFoundError("Post", id)
	}

	if post.Status == models.PostStatusPublished && s.countViews(viewer) {
		if err := s.posts.IncrementViewCount(ctx, id); err != nil {
			observability.Logger.WarnContext(ctx, "failed to count post view",
				slog.Uint64("post_id", uint64(id)), slog.String("error", err.Error()))
		} else {
			post.ViewCount++
		}
	}

	if viewer != nil {
		liked, err := s.posts.LikedPostIDs(ctx, viewer.ID, []uint{id})
		if err != nil {
			return nil, err
		}
		post.Liked = liked[id]
	}
	return post, nil
}

func (s *PostService) countViews(viewer *models.User) bool {
	if s.flags == nil {
		return true
	}
	var uid uint
	if viewer != nil {
		uid = viewer.ID
	}
	return s.flags.Enabled(featureflags.ViewCounting, uid)
}

func (s *PostService) activeCategory(ctx context.Context, id uint) error {
	category, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return models.NewFieldValidationError([]models.FieldError{{Field: "categoryId", Message: "Category does not exist"}})
	}
	if !category.IsActive {
		return models.NewFieldValidationError([]models.FieldError{{Field: "categoryId", Message: "Category is not active"}})
	}
	return nil
}

func (s *PostService) ensureSlugFree(ctx context.Context, slug string) error {
	taken, err := s.posts.SlugExists(ctx, slug)
	if err != nil {
		return err
	}
	if taken {
		return models.NewConflictError("slug")
	}
	return nil
}

// Create stores a new draft authored by author.
func (s *PostService) Create(ctx context.Context, author *models.User, in CreatePostInput) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Excerpt = strings.TrimSpace(in.Excerpt)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if err := s.activeCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	slug := in.Slug
	if slug != "" {
		if err := s.ensureSlugFree(ctx, slug); err != nil {
			return nil, err
		}
	} else {
		slug = models.UniqueSlug(in.Title)
	}

	excerpt := in.Excerpt
	if excerpt == "" {
		excerpt = models.DeriveExcerpt(in.Content)
	}

	post := &models.Post{
		Title:       in.Title,
		Content:     in.Content,
		Excerpt:     excerpt,
		Slug:        slug,
		AuthorID:    author.ID,
		CategoryID:  in.CategoryID,
		Tags:        models.NormalizeTags(in.Tags),
		Status:      models.PostStatusDraft,
		ReadingTime: models.ReadingTime(in.Content),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Update applies a partial edit. Only the author or an admin may edit; an author
// editing a rejected post sends it back to draft.
func (s *PostService) Update(ctx context.Context, editor *models.User, id uint, in UpdatePostInput) (*models.Post, error) {
	in.Title, in.Content = trimmed(in.Title), trimmed(in.Content)
	in.Excerpt, in.Slug = trimmed(in.Excerpt), trimmed(in.Slug)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !post.CanBeEditedBy(editor) {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}

	if in.Title != nil {
		post.Title = *in.Title
	}
	if in.Content != nil {
		post.Content = *in.Content
		post.ReadingTime = models.ReadingTime(post.Content)
		if in.Excerpt == nil {
			post.Excerpt = models.DeriveExcerpt(post.Content)
		}
	}
	if in.Excerpt != nil {
		post.Excerpt = *in.Excerpt
		if post.Excerpt == "" {
			post.Excerpt = models.DeriveExcerpt(post.Content)
		}
	}
	if in.CategoryID != nil && *in.CategoryID != post.CategoryID {
		if err := s.activeCategory(ctx, *in.CategoryID); err != nil {
			return nil, err
		}
		post.CategoryID = *in.CategoryID
		post.Category = nil
	}
	if in.Slug != nil && *in.Slug != post.Slug {
		if err := s.ensureSlugFree(ctx, *in.Slug); err != nil {
			return nil, err
		}
		post.Slug = *in.Slug
	}
	if in.Tags != nil {
		post.Tags = models.NormalizeTags(*in.Tags)
	}

	if editor.ID == post.AuthorID && post.Status == models.PostStatusRejected {
		if err := s.reopen(ctx, id); err != nil {
			return nil, err
		}
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// reopen moves a rejected post back to draft. A post that already left the
// rejected state is left alone.
func (s *PostService) reopen(ctx context.Context, id uint) error {
	reopened := false
	_, err := s.posts.Transition(ctx, id, func(p *models.Post) error {
		if !p.ReopenForEditing() {
			return models.ErrInvalidTransition
		}
		reopened = true
		return nil
	})
	if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return err
	}
	if reopened {
		observability.RecordTransition(string(models.TransitionReopen))
	}
	return nil
}

// Delete removes a post. Only the author or an admin may delete.
func (s *PostService) Delete(ctx context.Context, actor *models.User, id uint) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !post.CanBeEditedBy(actor) {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	return s.posts.Delete(ctx, id)
}

// Submit moves the author's draft into the approval queue.
func (s *PostService) Submit(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	return s.transition(ctx, actor, id, models.TransitionSubmit, func(p *models.Post) error {
		if p.AuthorID != actor.ID {
			return models.NewForbiddenError("Only the author can submit this post")
		}
		return p.SubmitForApproval()
	})
}

// Approve publishes a pending post. Admin only.
func (s *PostService) Approve(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	if !actor.IsAdmin() {
		return nil, models.NewForbiddenError("Only admins can approve posts")
	}
	return s.transition(ctx, actor, id, models.TransitionApprove, func(p *models.Post) error {
		return p.Approve(actor.ID)
	})
}

// Reject returns a pending post to its author. Admin only; the reason is checked
// before the post is read.
func (s *PostService) Reject(ctx context.Context, actor *models.User, id uint, reason string) (*models.Post, error) {
	if !actor.IsAdmin() {
		return nil, models.NewForbiddenError("Only admins can reject posts")
	}
	if err := validation.Struct(rejectInput{Reason: strings.TrimSpace(reason)}); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, models.TransitionReject, func(p *models.Post) error {
		return p.Reject(actor.ID, reason)
	})
}

type rejectInput struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

// Archive retires a published post. Author or admin.
func (s *PostService) Archive(ctx context.Context, actor *models.User, id uint) (*models.Post, error) {
	return s.transition(ctx, actor, id, models.TransitionArchive, func(p *models.Post) error {
		if !p.CanBeEditedBy(actor) {
			return models.NewForbiddenError("You can only archive your own posts")
		}
		return p.Archive()
	})
}

func (s *PostService) transition(ctx context.Context, actor *models.User, id uint, t models.Transition, apply func(*models.Post) error) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "PostService."+string(t),
		attribute.Int64("post_id", int64(id)))
	post, err := s.posts.Transition(ctx, id, apply)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	observability.RecordTransition(string(t))
	observability.Logger.InfoContext(ctx, "post transitioned",
		slog.String("transition", string(t)),
		slog.Uint64("post_id", uint64(id)),
		slog.String("status", string(post.Status)))

	if s.events != nil {
		if event, ok := notifications.NewPostEvent(t, post, actor.ID); ok {
			if err := s.events.PublishPostEvent(ctx, event); err != nil {
				observability.Logger.WarnContext(ctx, "failed to publish post event",
					slog.String("type", event.Type), slog.String("error", err.Error()))
			}
		}
	}
	return post, nil
}

// ToggleLike flips the viewer's like on a published post.
func (s *PostService) ToggleLike(ctx context.Context, viewer *models.User, id uint) (bool, int64, error) {
	return s.posts.ToggleLike(ctx, viewer.ID, id)
}
