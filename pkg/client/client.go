// Package client is a typed HTTP client for the quill API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"quill/internal/models"
)

// ErrNotAuthenticated is returned when an operation needs a session and none is held.
var ErrNotAuthenticated = errors.New("client: not authenticated")

// APIError is a decoded error envelope.
type APIError struct {
	StatusCode int                 `json:"statusCode"`
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Details    []models.FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *APIError       `json:"error"`
}

// Client calls the API on behalf of one Session.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for baseURL, e.g. "http://localhost:8080/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		session: &Session{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns the client's session.
func (c *Client) Session() *Session {
	return c.session
}

// do sends a request and decodes the envelope's data into out. Any 401 on an
// authenticated call invalidates the session.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := c.session.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		c.session.invalidateToken(token)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		if env.Error == nil {
			env.Error = &APIError{Message: http.StatusText(resp.StatusCode)}
		}
		env.Error.StatusCode = resp.StatusCode
		return env.Error
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// RegisterRequest is the payload for Register.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

type authResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Register creates an account and signs the session in as it.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*models.User, error) {
	var res authResult
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, in, &res); err != nil {
		return nil, err
	}
	c.session.establish(res.Token, res.User)
	return res.User, nil
}

// Login signs the session in.
func (c *Client) Login(ctx context.Context, email, password string) (*models.User, error) {
	var res authResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	c.session.establish(res.Token, res.User)
	return res.User, nil
}

// Logout revokes the token server-side and always clears the session.
func (c *Client) Logout(ctx context.Context) error {
	if !c.session.Authenticated() {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.session.Invalidate()
	return err
}

// CurrentUser returns the session principal, fetching /auth/me on first use.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	if user, ok := c.session.Principal(); ok {
		return user, nil
	}
	token := c.session.Token()
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	var res struct {
		User *models.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &res); err != nil {
		return nil, err
	}
	c.session.setPrincipal(token, res.User)
	return res.User, nil
}

// PostList is one page of posts.
type PostList struct {
	Posts      []models.Post     `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
}

// ListPostsParams are the optional filters of ListPosts. Zero values are omitted.
type ListPostsParams struct {
	Page      int
	Limit     int
	Status    models.PostStatus
	Category  string
	Author    string
	Tag       string
	Search    string
	SortBy    string
	SortOrder string
}

func (p ListPostsParams) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	set("status", string(p.Status))
	set("category", p.Category)
	set("author", p.Author)
	set("tag", p.Tag)
	set("search", p.Search)
	set("sortBy", p.SortBy)
	set("sortOrder", p.SortOrder)
	return q
}

// ListPosts returns a page of posts visible to the session.
func (c *Client) ListPosts(ctx context.Context, params ListPostsParams) (*PostList, error) {
	var out PostList
	if err := c.do(ctx, http.MethodGet, "/posts", params.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MyPosts returns the session user's posts in any status.
func (c *Client) MyPosts(ctx context.Context, params ListPostsParams) (*PostList, error) {
	var out PostList
	if err := c.do(ctx, http.MethodGet, "/posts/my-posts", params.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingPosts returns the approval queue.
func (c *Client) PendingPosts(ctx context.Context, params ListPostsParams) (*PostList, error) {
	var out PostList
	if err := c.do(ctx, http.MethodGet, "/posts/pending/approval", params.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PostInput is the payload for CreatePost and UpdatePost. Nil fields are left unchanged on update.
type PostInput struct {
	Title      *string   `json:"title,omitempty"`
	Content    *string   `json:"content,omitempty"`
	Excerpt    *string   `json:"excerpt,omitempty"`
	CategoryID *uint     `json:"categoryId,omitempty"`
	Slug       *string   `json:"slug,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

type postResult struct {
	Post *models.Post `json:"post"`
}

func (c *Client) postCall(ctx context.Context, method, path string, body interface{}) (*models.Post, error) {
	var res postResult
	if err := c.do(ctx, method, path, nil, body, &res); err != nil {
		return nil, err
	}
	return res.Post, nil
}

func postPath(id uint, action string) string {
	path := "/posts/" + strconv.FormatUint(uint64(id), 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

// GetPost fetches a post visible to the session.
func (c *Client) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	return c.postCall(ctx, http.MethodGet, postPath(id, ""), nil)
}

// CreatePost creates a draft.
func (c *Client) CreatePost(ctx context.Context, in PostInput) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPost, "/posts", in)
}

// UpdatePost edits a post.
func (c *Client) UpdatePost(ctx context.Context, id uint, in PostInput) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPut, postPath(id, ""), in)
}

// DeletePost removes a post.
func (c *Client) DeletePost(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, postPath(id, ""), nil, nil, nil)
}

// SubmitPost moves a draft to pending.
func (c *Client) SubmitPost(ctx context.Context, id uint) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPost, postPath(id, "submit"), nil)
}

// ApprovePost publishes a pending post.
func (c *Client) ApprovePost(ctx context.Context, id uint) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPost, postPath(id, "approve"), nil)
}

// RejectPost rejects a pending post with reason.
func (c *Client) RejectPost(ctx context.Context, id uint, reason string) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPost, postPath(id, "reject"), map[string]string{"reason": reason})
}

// ArchivePost retires a published post.
func (c *Client) ArchivePost(ctx context.Context, id uint) (*models.Post, error) {
	return c.postCall(ctx, http.MethodPost, postPath(id, "archive"), nil)
}

// LikePost toggles the session user's like and returns the new state.
func (c *Client) LikePost(ctx context.Context, id uint) (liked bool, likeCount int64, err error) {
	var res struct {
		Liked     bool  `json:"liked"`
		LikeCount int64 `json:"likeCount"`
	}
	if err := c.do(ctx, http.MethodPost, postPath(id, "like"), nil, nil, &res); err != nil {
		return false, 0, err
	}
	return res.Liked, res.LikeCount, nil
}

// ListCategories returns the active categories.
func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var res struct {
		Categories []models.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Categories, nil
}

// CategoryInput is the payload for CreateCategory.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    *uint  `json:"parentId,omitempty"`
}

// CreateCategory creates a category. Admin only.
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	var res struct {
		Category *models.Category `json:"category"`
	}
	if err := c.do(ctx, http.MethodPost, "/categories", nil, in, &res); err != nil {
		return nil, err
	}
	return res.Category, nil
}
