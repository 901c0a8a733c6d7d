package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost_SubmitForApproval(t *testing.T) {
	t.Parallel()

	p := &Post{Status: PostStatusDraft}
	require.NoError(t, p.SubmitForApproval())
	assert.Equal(t, PostStatusPending, p.Status)
	assert.True(t, p.SubmittedForApproval)
	assert.NotNil(t, p.SubmittedAt)

	for _, from := range []PostStatus{PostStatusPending, PostStatusPublished, PostStatusRejected, PostStatusArchived} {
		p := &Post{Status: from}
		err := p.SubmitForApproval()
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", from)
		assert.Equal(t, from, p.Status)
		assert.Nil(t, p.SubmittedAt)
	}
}

func TestPost_Approve(t *testing.T) {
	t.Parallel()

	p := &Post{Status: PostStatusPending, RejectionReason: "old reason from before"}
	require.NoError(t, p.Approve(7))
	assert.Equal(t, PostStatusPublished, p.Status)
	assert.True(t, p.IsApproved)
	assert.True(t, p.IsPublished)
	require.NotNil(t, p.ApprovedByID)
	assert.Equal(t, uint(7), *p.ApprovedByID)
	assert.NotNil(t, p.ApprovedAt)
	assert.NotNil(t, p.PublishedAt)
	assert.Empty(t, p.RejectionReason)

	draft := &Post{Status: PostStatusDraft}
	err := draft.Approve(7)
	var terr *TransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, TransitionApprove, terr.Op)
	assert.Equal(t, PostStatusDraft, terr.From)
	assert.False(t, draft.IsPublished)
	assert.Nil(t, draft.PublishedAt)
}

func TestPost_Reject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  PostStatus
		reason  string
		wantErr error
	}{
		{"Valid", PostStatusPending, "Needs more detail on X", nil},
		{"Empty Reason", PostStatusPending, "", ErrInvalidRejectionReason},
		{"Short Reason", PostStatusPending, "too short", ErrInvalidRejectionReason},
		{"Whitespace Padded Short", PostStatusPending, "   short   ", ErrInvalidRejectionReason},
		{"Long Reason", PostStatusPending, strings.Repeat("x", 501), ErrInvalidRejectionReason},
		{"Max Reason", PostStatusPending, strings.Repeat("x", 500), nil},
		{"Not Pending", PostStatusDraft, "Needs more detail on X", ErrInvalidTransition},
		{"Bad Reason Checked First", PostStatusPublished, "short", ErrInvalidRejectionReason},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Post{Status: tt.status}
			err := p.Reject(3, tt.reason)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.status, p.Status)
				assert.Empty(t, p.RejectionReason)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PostStatusRejected, p.Status)
			assert.False(t, p.IsApproved)
			assert.Equal(t, strings.TrimSpace(tt.reason), p.RejectionReason)
			require.NotNil(t, p.ApprovedByID)
			assert.Equal(t, uint(3), *p.ApprovedByID)
		})
	}
}

func TestPost_ArchiveAndReopen(t *testing.T) {
	t.Parallel()

	p := &Post{Status: PostStatusPublished, IsPublished: true}
	require.NoError(t, p.Archive())
	assert.Equal(t, PostStatusArchived, p.Status)
	assert.False(t, p.IsPublished)
	assert.NotNil(t, p.ArchivedAt)
	assert.ErrorIs(t, p.Archive(), ErrInvalidTransition)

	rejected := &Post{Status: PostStatusRejected, SubmittedForApproval: true}
	assert.True(t, rejected.ReopenForEditing())
	assert.Equal(t, PostStatusDraft, rejected.Status)
	assert.False(t, rejected.SubmittedForApproval)

	pending := &Post{Status: PostStatusPending}
	assert.False(t, pending.ReopenForEditing())
	assert.Equal(t, PostStatusPending, pending.Status)
}

func TestPost_NoDirectDraftToPublished(t *testing.T) {
	t.Parallel()

	p := &Post{Status: PostStatusDraft}
	assert.Error(t, p.Approve(1))
	require.NoError(t, p.SubmitForApproval())
	require.NoError(t, p.Approve(1))
	assert.Equal(t, PostStatusPublished, p.Status)
}

func TestPost_Visibility(t *testing.T) {
	t.Parallel()

	author := &User{ID: 1, Role: RoleUser}
	other := &User{ID: 2, Role: RoleUser}
	mod := &User{ID: 3, Role: RoleModerator}
	admin := &User{ID: 4, Role: RoleAdmin}

	draft := &Post{AuthorID: 1, Status: PostStatusDraft}
	assert.False(t, draft.IsVisibleTo(nil))
	assert.True(t, draft.IsVisibleTo(author))
	assert.False(t, draft.IsVisibleTo(other))
	assert.True(t, draft.IsVisibleTo(mod))
	assert.True(t, draft.IsVisibleTo(admin))

	published := &Post{AuthorID: 1, Status: PostStatusPublished}
	assert.True(t, published.IsVisibleTo(nil))

	assert.True(t, draft.CanBeEditedBy(author))
	assert.True(t, draft.CanBeEditedBy(admin))
	assert.False(t, draft.CanBeEditedBy(mod))
	assert.False(t, draft.CanBeEditedBy(other))
	assert.False(t, draft.CanBeEditedBy(nil))
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Go: The  Good Parts!  ", "go-the-good-parts"},
		{"already-slugged--title", "already-slugged-title"},
		{"--leading and trailing--", "leading-and-trailing"},
		{"Café au lait", "caf-au-lait"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestUniqueSlug(t *testing.T) {
	t.Parallel()

	a := UniqueSlug("Same Title")
	b := UniqueSlug("Same Title")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "same-title-"))
	assert.Len(t, a, len("same-title-")+8)

	assert.True(t, strings.HasPrefix(UniqueSlug("???"), "post-"))

	long := UniqueSlug(strings.Repeat("word ", 60))
	assert.LessOrEqual(t, len(long), 100)
	assert.NotContains(t, long, "--")
}

func TestDeriveExcerpt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short content", DeriveExcerpt("short content"))

	long := strings.Repeat("a", 200)
	assert.Equal(t, strings.Repeat("a", 150)+"...", DeriveExcerpt(long))

	multibyte := strings.Repeat("é", 151)
	assert.Equal(t, strings.Repeat("é", 150)+"...", DeriveExcerpt(multibyte))
}

func TestReadingTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ReadingTime("   "))
	assert.Equal(t, 1, ReadingTime("one two three"))
	assert.Equal(t, 1, ReadingTime(strings.Repeat("w ", 200)))
	assert.Equal(t, 2, ReadingTime(strings.Repeat("w ", 201)))
}

func TestNormalizeTags(t *testing.T) {
	t.Parallel()

	got := NormalizeTags([]string{" Go ", "go", "", "Testing", "TESTING", "web"})
	assert.Equal(t, []string{"go", "testing", "web"}, got)
	assert.Empty(t, NormalizeTags(nil))
}

func TestParsePostStatus(t *testing.T) {
	t.Parallel()

	s, err := ParsePostStatus(" Pending ")
	require.NoError(t, err)
	assert.Equal(t, PostStatusPending, s)

	_, err = ParsePostStatus("deleted")
	assert.Error(t, err)
}
