package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Role
		wantErr bool
	}{
		{"user", RoleUser, false},
		{"Moderator", RoleModerator, false},
		{" ADMIN ", RoleAdmin, false},
		{"admn", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestUser_RoleHelpers(t *testing.T) {
	t.Parallel()

	var nilUser *User
	assert.False(t, nilUser.IsAdmin())
	assert.False(t, nilUser.CanModerate())
	assert.True(t, (&User{Role: RoleAdmin}).CanModerate())
	assert.True(t, (&User{Role: RoleModerator}).CanModerate())
	assert.False(t, (&User{Role: RoleModerator}).IsAdmin())
	assert.False(t, (&User{Role: Role("root")}).CanModerate())
	assert.Equal(t, "Ada Lovelace", (&User{FirstName: "Ada", LastName: "Lovelace"}).FullName())
}
