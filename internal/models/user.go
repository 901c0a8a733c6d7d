package models

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Username  string     `gorm:"size:30;uniqueIndex;not null" json:"username"`
	Email     string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string     `gorm:"not null" json:"-"`
	Role      Role       `gorm:"size:20;not null;default:user;index" json:"role"`
	IsActive  bool       `gorm:"not null;default:true" json:"isActive"`
	FirstName string     `gorm:"size:50" json:"firstName,omitempty"`
	LastName  string     `gorm:"size:50" json:"lastName,omitempty"`
	Bio       string     `gorm:"size:500" json:"bio,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanModerate reports whether the user may review the approval queue.
func (u *User) CanModerate() bool {
	if u == nil {
		return false
	}
	switch u.Role {
	case RoleAdmin, RoleModerator:
		return true
	case RoleUser:
		return false
	default:
		return false
	}
}

// FullName joins the profile name fields.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.LastName
	}
}

// UserStats aggregates account and content counts for the admin dashboard.
type UserStats struct {
	TotalUsers    int64                `json:"totalUsers"`
	ActiveUsers   int64                `json:"activeUsers"`
	InactiveUsers int64                `json:"inactiveUsers"`
	UsersByRole   map[Role]int64       `json:"usersByRole"`
	PostsByStatus map[PostStatus]int64 `json:"postsByStatus"`
	TopAuthors    []AuthorStat         `json:"topAuthors"`
}

// AuthorStat is one row of the top authors ranking.
type AuthorStat struct {
	UserID         uint   `json:"userId"`
	Username       string `json:"username"`
	PublishedPosts int64  `json:"publishedPosts"`
}
