package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

func TestAuthorize(t *testing.T) {
	t.Parallel()

	admins := NewRoleSet(auth.RoleAdmin)
	staff := NewRoleSet(auth.RoleManager, auth.RoleAdmin)

	tests := []struct {
		name      string
		principal *auth.Principal
		allowed   RoleSet
		wantCode  util.Code
	}{
		{name: "empty set admits user", principal: &auth.Principal{Role: auth.RoleUser}, allowed: nil},
		{name: "admin on admin route", principal: &auth.Principal{Role: auth.RoleAdmin}, allowed: admins},
		{name: "manager on staff route", principal: &auth.Principal{Role: auth.RoleManager}, allowed: staff},
		{
			name:      "user on admin route",
			principal: &auth.Principal{Role: auth.RoleUser},
			allowed:   admins,
			wantCode:  util.CodeForbidden,
		},
		{
			name:      "engineer on staff route",
			principal: &auth.Principal{Role: auth.RoleEngineer},
			allowed:   staff,
			wantCode:  util.CodeForbidden,
		},
		{name: "no principal", principal: nil, allowed: nil, wantCode: util.CodeUnauthorized},
		{name: "no principal on admin route", principal: nil, allowed: admins, wantCode: util.CodeUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Authorize(tt.principal, tt.allowed)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantCode, auth.CodeFor(err))
		})
	}
}

func TestRoleSet(t *testing.T) {
	t.Parallel()

	s := NewRoleSet(auth.RoleAdmin, auth.RoleUser, auth.RoleAdmin)
	assert.Len(t, s, 2)
	assert.True(t, s.Contains(auth.RoleUser))
	assert.False(t, s.Contains(auth.RoleManager))
	assert.Equal(t, []auth.Role{auth.RoleUser, auth.RoleAdmin}, s.Roles())
	assert.Empty(t, NewRoleSet().Roles())
}
