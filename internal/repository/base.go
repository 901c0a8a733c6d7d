package repository

import (
	"errors"

	"quill/internal/models"

	"gorm.io/gorm"
)

// storeError converts a persistence failure into an application error.
// Unique violations become 400 conflicts naming the offending field.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if field, ok := models.DuplicateKeyField(err); ok {
		conflict := models.NewConflictError(field)
		conflict.Err = err
		return conflict
	}
	return models.NewInternalError(err)
}

// lookupError maps a missing row onto a typed 404 and everything else through storeError.
func lookupError(err error, resource string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.NewNotFoundError(resource, id)
	}
	return storeError(err)
}
