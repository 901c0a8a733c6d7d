// Package service implements the application's use cases on top of the repositories.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"quill/internal/auth"
	"quill/internal/cache"
	"quill/internal/models"
	"quill/internal/observability"
	"quill/internal/repository"
	"quill/internal/validation"
)

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=30,username"`
	Email     string `json:"email" validate:"required,max=255,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"firstName" validate:"omitempty,max=50"`
	LastName  string `json:"lastName" validate:"omitempty,max=50"`
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileInput carries optional profile changes. Nil fields are left untouched.
type ProfileInput struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=50"`
	LastName  *string `json:"lastName" validate:"omitempty,max=50"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
	Avatar    *string `json:"avatar" validate:"omitempty,url,max=500"`
}

// ChangePasswordInput is the change-password payload.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// AuthService handles credentials, sessions and token revocation.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	hasher *auth.Hasher
	cache  *cache.Store
	now    func() time.Time
}

// NewAuthService wires an AuthService. store may be nil, which disables revocation and tickets.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, hasher *auth.Hasher, store *cache.Store) *AuthService {
	return &AuthService{users: users, tokens: tokens, hasher: hasher, cache: store, now: time.Now}
}

// withPasswordRules merges struct validation failures with password strength failures.
func withPasswordRules(in interface{}, field, password string) error {
	var details []models.FieldError
	if err := validation.Struct(in); err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) {
			return err
		}
		details = append(details, appErr.Details...)
	}
	if password != "" {
		for _, msg := range validation.ValidatePasswordStrength(password).Errors {
			details = append(details, models.FieldError{Field: field, Message: msg})
		}
	}
	if len(details) > 0 {
		return models.NewFieldValidationError(details)
	}
	return nil
}

// Register creates an account with the user role and signs it in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = validation.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := withPasswordRules(in, "password", in.Password); err != nil {
		observability.RecordAuthAttempt("register", false)
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username:  in.Username,
		Email:     in.Email,
		Password:  hash,
		Role:      models.RoleUser,
		IsActive:  true,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	if err := s.users.Create(ctx, user); err != nil {
		observability.RecordAuthAttempt("register", false)
		return nil, err
	}

	token, err := s.tokens.GenerateToken(auth.PrincipalFromUser(user))
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.RecordAuthAttempt("register", true)
	observability.Logger.InfoContext(ctx, "user registered", slog.Uint64("user_id", uint64(user.ID)))
	return &AuthResult{User: user, Token: token}, nil
}

// Login verifies credentials and issues a token. Unknown emails, wrong passwords
// and deactivated accounts all yield 401.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = validation.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		observability.RecordAuthAttempt("login", false)
		return nil, models.NewUnauthorizedError("Invalid email or password")
	}

	ok, err := s.hasher.Compare(in.Password, user.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !ok {
		observability.RecordAuthAttempt("login", false)
		return nil, models.NewUnauthorizedError("Invalid email or password")
	}
	if !user.IsActive {
		observability.RecordAuthAttempt("login", false)
		return nil, models.NewUnauthorizedError("Account is deactivated")
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	token, err := s.tokens.GenerateToken(auth.PrincipalFromUser(user))
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.RecordAuthAttempt("login", true)
	return &AuthResult{User: user, Token: token}, nil
}

// Authenticate resolves a bearer token into the current user. Revoked tokens,
// deleted users and deactivated users are rejected with 401.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, *auth.Claims, error) {
	claims, err := s.tokens.VerifyToken(token)
	if err != nil {
		return nil, nil, models.NewUnauthorizedError("Invalid or expired token")
	}

	revoked, err := s.cache.IsRevoked(ctx, claims.ID)
	if err != nil {
		observability.Logger.WarnContext(ctx, "token revocation check failed", slog.String("error", err.Error()))
	}
	if revoked {
		return nil, nil, models.NewUnauthorizedError("Token has been revoked")
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, models.NewUnauthorizedError("Invalid or expired token")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return nil, nil, models.NewUnauthorizedError("User no longer exists")
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, models.NewUnauthorizedError("Account is deactivated")
	}
	return user, claims, nil
}

// Logout revokes the token's jti until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.RevokeToken(ctx, claims.ID, ttl); err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			observability.Logger.WarnContext(ctx, "logout without Redis; token stays valid until expiry")
			return nil
		}
		return models.NewInternalError(err)
	}
	return nil
}

// UpdateProfile applies the supplied profile fields to userID.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	applyProfile(user, in)
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func applyProfile(user *models.User, in ProfileInput) {
	if in.FirstName != nil {
		user.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		user.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Bio != nil {
		user.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.Avatar != nil {
		user.Avatar = strings.TrimSpace(*in.Avatar)
	}
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	if err := withPasswordRules(in, "newPassword", in.NewPassword); err != nil {
		return err
	}

	user, err := s.users.GetWithCredentials(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := s.hasher.Compare(in.CurrentPassword, user.Password)
	if err != nil {
		return models.NewInternalError(err)
	}
	if !ok {
		return models.NewFieldValidationError([]models.FieldError{{Field: "currentPassword", Message: "Current password is incorrect"}})
	}
	if in.CurrentPassword == in.NewPassword {
		return models.NewFieldValidationError([]models.FieldError{{Field: "newPassword", Message: "New password must differ from the current password"}})
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// IssueWSTicket returns a single-use ticket for opening the notification socket.
func (s *AuthService) IssueWSTicket(ctx context.Context, userID uint) (string, error) {
	ticket, err := s.cache.IssueTicket(ctx, userID)
	if err != nil {
		return "", ticketError(err)
	}
	return ticket, nil
}

// RedeemWSTicket consumes ticket and returns the active user it was issued to.
func (s *AuthService) RedeemWSTicket(ctx context.Context, ticket string) (*models.User, error) {
	userID, err := s.cache.ConsumeTicket(ctx, ticket)
	if err != nil {
		return nil, ticketError(err)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, models.NewUnauthorizedError("User no longer exists")
	}
	if !user.IsActive {
		return nil, models.NewUnauthorizedError("Account is deactivated")
	}
	return user, nil
}

func ticketError(err error) error {
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		return &models.AppError{Code: models.CodeInternal, Status: 503, Message: "Realtime notifications are unavailable", Err: err}
	case errors.Is(err, cache.ErrTicketInvalid):
		return models.NewUnauthorizedError(err.Error())
	default:
		return models.NewInternalError(err)
	}
}
