// Package models contains data structures for the application's domain models.
package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// PostStatus is the lifecycle state of a post.
type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPending   PostStatus = "pending"
	PostStatusPublished PostStatus = "published"
	PostStatusRejected  PostStatus = "rejected"
	PostStatusArchived  PostStatus = "archived"
)

// AllPostStatuses lists every lifecycle state in workflow order.
func AllPostStatuses() []PostStatus {
	return []PostStatus{PostStatusDraft, PostStatusPending, PostStatusPublished, PostStatusRejected, PostStatusArchived}
}

// Valid reports whether s is a known lifecycle state.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusDraft, PostStatusPending, PostStatusPublished, PostStatusRejected, PostStatusArchived:
		return true
	default:
		return false
	}
}

// ParsePostStatus converts raw input into a PostStatus.
func ParsePostStatus(raw string) (PostStatus, error) {
	s := PostStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("invalid post status %q", raw)
	}
	return s, nil
}

// Transition names a lifecycle operation, used for metrics and events.
type Transition string

const (
	TransitionSubmit  Transition = "submit"
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
	TransitionArchive Transition = "archive"
	TransitionReopen  Transition = "reopen"
)

// Rejection reason bounds, in characters.
const (
	MinRejectionReasonLength = 10
	MaxRejectionReasonLength = 500
)

const (
	excerptLength      = 150
	wordsPerMinute     = 200
	maxSlugLength      = 100
	slugSuffixLength   = 8
	defaultSlugBase    = "post"
	excerptEllipsis    = "..."
	rejectReasonFormat = "rejection reason must be between %d and %d characters"
)

var (
	// ErrInvalidTransition is returned when a lifecycle operation is not legal from the current state.
	ErrInvalidTransition = errors.New("invalid post status transition")
	// ErrStaleTransition is returned when the stored status changed between read and write.
	ErrStaleTransition = errors.New("post status changed concurrently")
	// ErrInvalidRejectionReason is returned when a rejection reason is missing or out of bounds.
	ErrInvalidRejectionReason = fmt.Errorf(rejectReasonFormat, MinRejectionReasonLength, MaxRejectionReasonLength)
)

// TransitionError describes a refused lifecycle operation.
type TransitionError struct {
	Op   Transition
	From PostStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a post in %s status", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Post is a blog article moving through the approval workflow.
type Post struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Title                string     `gorm:"size:200;not null" json:"title"`
	Content              string     `gorm:"type:text;not null" json:"content"`
	Excerpt              string     `gorm:"size:300" json:"excerpt"`
	Slug                 string     `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	AuthorID             uint       `gorm:"not null;index" json:"authorId"`
	Author               *User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	CategoryID           uint       `gorm:"not null;index" json:"categoryId"`
	Category             *Category  `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Tags                 []string   `gorm:"type:text;serializer:json" json:"tags"`
	Status               PostStatus `gorm:"size:20;not null;default:draft;index" json:"status"`
	SubmittedForApproval bool       `gorm:"not null;default:false" json:"submittedForApproval"`
	SubmittedAt          *time.Time `json:"submittedAt,omitempty"`
	IsApproved           bool       `gorm:"not null;default:false" json:"isApproved"`
	ApprovedByID         *uint      `gorm:"index" json:"approvedById,omitempty"`
	ApprovedBy           *User      `gorm:"foreignKey:ApprovedByID" json:"approvedBy,omitempty"`
	ApprovedAt           *time.Time `json:"approvedAt,omitempty"`
	RejectionReason      string     `gorm:"size:500" json:"rejectionReason,omitempty"`
	IsPublished          bool       `gorm:"not null;default:false" json:"isPublished"`
	PublishedAt          *time.Time `json:"publishedAt,omitempty"`
	ArchivedAt           *time.Time `json:"archivedAt,omitempty"`
	ReadingTime          int        `gorm:"not null;default:1" json:"readingTime"`
	ViewCount            int64      `gorm:"not null;default:0" json:"viewCount"`
	LikeCount            int64      `gorm:"not null;default:0" json:"likeCount"`
	CommentCount         int64      `gorm:"not null;default:0" json:"commentCount"`
	// Liked is computed per request for the authenticated caller.
	Liked     bool      `gorm:"-" json:"liked"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SubmitForApproval moves a draft into the approval queue.
func (p *Post) SubmitForApproval() error {
	if p.Status != PostStatusDraft {
		return &TransitionError{Op: TransitionSubmit, From: p.Status}
	}
	now := time.Now().UTC()
	p.Status = PostStatusPending
	p.SubmittedForApproval = true
	p.SubmittedAt = &now
	return nil
}

// Approve publishes a pending post on behalf of adminID.
func (p *Post) Approve(adminID uint) error {
	if p.Status != PostStatusPending {
		return &TransitionError{Op: TransitionApprove, From: p.Status}
	}
	now := time.Now().UTC()
	p.Status = PostStatusPublished
	p.IsApproved = true
	p.ApprovedByID = &adminID
	p.ApprovedAt = &now
	p.PublishedAt = &now
	p.IsPublished = true
	p.RejectionReason = ""
	return nil
}

// Reject sends a pending post back to its author with a reason.
func (p *Post) Reject(adminID uint, reason string) error {
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < MinRejectionReasonLength || n > MaxRejectionReasonLength {
		return ErrInvalidRejectionReason
	}
	if p.Status != PostStatusPending {
		return &TransitionError{Op: TransitionReject, From: p.Status}
	}
	now := time.Now().UTC()
	p.Status = PostStatusRejected
	p.IsApproved = false
	p.ApprovedByID = &adminID
	p.ApprovedAt = &now
	p.RejectionReason = reason
	return nil
}

// Archive retires a published post.
func (p *Post) Archive() error {
	if p.Status != PostStatusPublished {
		return &TransitionError{Op: TransitionArchive, From: p.Status}
	}
	now := time.Now().UTC()
	p.Status = PostStatusArchived
	p.IsPublished = false
	p.ArchivedAt = &now
	return nil
}

// ReopenForEditing returns a rejected post to draft. It reports whether the status changed.
func (p *Post) ReopenForEditing() bool {
	if p.Status != PostStatusRejected {
		return false
	}
	p.Status = PostStatusDraft
	p.SubmittedForApproval = false
	p.SubmittedAt = nil
	return true
}

// IsVisibleTo reports whether viewer may read the post. viewer may be nil for anonymous callers.
func (p *Post) IsVisibleTo(viewer *User) bool {
	if p.Status == PostStatusPublished {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == p.AuthorID || viewer.CanModerate()
}

// CanBeEditedBy reports whether user is the author or an admin.
func (p *Post) CanBeEditedBy(user *User) bool {
	if user == nil {
		return false
	}
	return user.ID == p.AuthorID || user.IsAdmin()
}

// LifecycleColumns returns the persisted workflow fields keyed by column name.
func (p *Post) LifecycleColumns() map[string]interface{} {
	return map[string]interface{}{
		"status":                 p.Status,
		"submitted_for_approval": p.SubmittedForApproval,
		"submitted_at":           p.SubmittedAt,
		"is_approved":            p.IsApproved,
		"approved_by_id":         p.ApprovedByID,
		"approved_at":            p.ApprovedAt,
		"rejection_reason":       p.RejectionReason,
		"is_published":           p.IsPublished,
		"published_at":           p.PublishedAt,
		"archived_at":            p.ArchivedAt,
		"updated_at":             time.Now().UTC(),
	}
}

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugHyphens      = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-safe identifier from a title.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugInvalidChars.ReplaceAllString(s, "")
	s = slugWhitespace.ReplaceAllString(strings.TrimSpace(s), "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// UniqueSlug derives a slug from title with a random disambiguator appended.
func UniqueSlug(title string) string {
	base := Slugify(title)
	if base == "" {
		base = defaultSlugBase
	}
	if limit := maxSlugLength - slugSuffixLength - 1; len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:slugSuffixLength]
	return base + "-" + suffix
}

// DeriveExcerpt returns the first characters of content for list views.
func DeriveExcerpt(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= excerptLength {
		return content
	}
	runes := []rune(content)
	return strings.TrimSpace(string(runes[:excerptLength])) + excerptEllipsis
}

// ReadingTime estimates minutes needed to read content.
func ReadingTime(content string) int {
	words := len(strings.Fields(content))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) / wordsPerMinute))
}

// NormalizeTags lower-cases, trims and de-duplicates tags, keeping first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
