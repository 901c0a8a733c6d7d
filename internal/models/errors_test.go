package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"Record Not Found", fmt.Errorf("load post: %w", gorm.ErrRecordNotFound), http.StatusNotFound, CodeNotFound, "Resource not found"},
		{"Postgres Duplicate", &pgconn.PgError{Code: "23505", Detail: "Key (slug)=(hello) already exists."}, http.StatusBadRequest, CodeConflict, "slug already exists"},
		{"SQLite Duplicate", errors.New("UNIQUE constraint failed: users.email"), http.StatusBadRequest, CodeConflict, "email already exists"},
		{"Gorm Duplicate", gorm.ErrDuplicatedKey, http.StatusBadRequest, CodeConflict, "resource already exists"},
		{"Expired Token", fmt.Errorf("verify: %w", jwt.ErrTokenExpired), http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token"},
		{"Fiber Error", fiber.NewError(fiber.StatusMethodNotAllowed, "nope"), http.StatusMethodNotAllowed, CodeValidation, "nope"},
		{"Invalid Transition", &TransitionError{Op: TransitionSubmit, From: PostStatusPending}, http.StatusBadRequest, CodeValidation, "cannot submit a post in pending status"},
		{"Stale Transition", ErrStaleTransition, http.StatusConflict, CodeConflict, "Post was modified by another request"},
		{"App Error Passthrough", NewForbiddenError("not yours"), http.StatusForbidden, CodeForbidden, "not yours"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantMsg, got.Message)
		})
	}

	assert.Nil(t, Translate(nil))
}

func TestTranslate_RejectionReasonDetails(t *testing.T) {
	t.Parallel()

	got := Translate(ErrInvalidRejectionReason)
	require.Len(t, got.Details, 1)
	assert.Equal(t, "reason", got.Details[0].Field)
	assert.Equal(t, http.StatusBadRequest, got.Status)
}

func TestDuplicateKeyField_CamelCasesColumns(t *testing.T) {
	t.Parallel()

	field, ok := DuplicateKeyField(errors.New("UNIQUE constraint failed: likes.user_id, likes.post_id"))
	assert.True(t, ok)
	assert.Equal(t, "userId", field)

	_, ok = DuplicateKeyField(errors.New("connection refused"))
	assert.False(t, ok)
}
