package service

import (
	"context"
	"log/slog"
	"strings"

	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/validation"
)

// UserService implements account administration.
type UserService struct {
	users repository.UserRepository
}

// ListUsersInput carries the admin user listing query.
type ListUsersInput struct {
	Page     models.Page
	Role     string
	IsActive string
	Search   string
}

// UserList is a page of users.
type UserList struct {
	Users      []models.User     `json:"users"`
	Pagination models.Pagination `json:"pagination"`
}

type roleInput struct {
	Role string `json:"role" validate:"required,role"`
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) List(ctx context.Context, in ListUsersInput) (*UserList, error) {
	filter := repository.UserFilter{Search: strings.TrimSpace(in.Search)}
	if in.Role != "" {
		role, err := models.ParseRole(in.Role)
		if err != nil {
			return nil, models.NewFieldValidationError([]models.FieldError{{Field: "role", Message: "role must be one of user, moderator, admin"}})
		}
		filter.Role = role
	}
	switch strings.ToLower(strings.TrimSpace(in.IsActive)) {
	case "":
	case "true", "1":
		active := true
		filter.IsActive = &active
	case "false", "0":
		active := false
		filter.IsActive = &active
	default:
		return nil, models.NewFieldValidationError([]models.FieldError{{Field: "isActive", Message: "isActive must be true or false"}})
	}

	users, total, err := s.users.List(ctx, filter, in.Page)
	if err != nil {
		return nil, err
	}
	return &UserList{Users: users, Pagination: models.Paginate(in.Page, total)}, nil
}

func (s *UserService) Stats(ctx context.Context) (*models.UserStats, error) {
	return s.users.Stats(ctx)
}

// Get returns a user to themselves or to an admin.
func (s *UserService) Get(ctx context.Context, viewer *models.User, id uint) (*models.User, error) {
	if viewer.ID != id && !viewer.IsAdmin() {
		return nil, models.NewForbiddenError("You can only view your own account")
	}
	return s.users.GetByID(ctx, id)
}

// UpdateProfile edits profile fields of a user. Self or admin.
func (s *UserService) UpdateProfile(ctx context.Context, editor *models.User, id uint, in ProfileInput) (*models.User, error) {
	if editor.ID != id && !editor.IsAdmin() {
		return nil, models.NewForbiddenError("You can only edit your own account")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	applyProfile(user, in)
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangeRole assigns a role. Admins cannot change their own role.
func (s *UserService) ChangeRole(ctx context.Context, admin *models.User, id uint, role string) (*models.User, error) {
	in := roleInput{Role: strings.ToLower(strings.TrimSpace(role))}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if admin.ID == id {
		return nil, models.NewValidationError("You cannot change your own role")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRole(ctx, id, models.Role(in.Role)); err != nil {
		return nil, err
	}
	user.Role = models.Role(in.Role)
	observability.Logger.InfoContext(ctx, "user role changed",
		slog.Uint64("target_user_id", uint64(id)), slog.String("role", in.Role))
	return user, nil
}

// SetActive activates or deactivates an account. Admins cannot deactivate themselves.
func (s *UserService) SetActive(ctx context.Context, admin *models.User, id uint, active bool) (*models.User, error) {
	if admin.ID == id && !active {
		return nil, models.NewValidationError("You cannot deactivate your own account")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	user.IsActive = active
	return user, nil
}

// Delete removes an account and its content. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, admin *models.User, id uint) error {
	if admin.ID == id {
		return models.NewValidationError("You cannot delete your own account")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	observability.Logger.InfoContext(ctx, "user deleted", slog.Uint64("target_user_id", uint64(id)))
	return nil
}
