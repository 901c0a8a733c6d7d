package auth

import (
	"quill/internal/models"
)

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID   uint
	Username string
	Email    string
	Role     models.Role
}

// PrincipalFromUser builds a Principal for u.
func PrincipalFromUser(u *models.User) *Principal {
	if u == nil {
		return nil
	}
	return &Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// HasRole reports whether p holds one of the required roles.
// It never panics: a nil principal or unknown role yields false.
func HasRole(p *Principal, required ...models.Role) bool {
	if p == nil || !p.Role.Valid() {
		return false
	}
	for _, r := range required {
		if p.Role == r {
			return true
		}
	}
	return false
}
