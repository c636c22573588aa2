package auth

import (
	"testing"

	"pathpatrol/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestCanMatrix(t *testing.T) {
	admin := &model.User{ID: 1, Role: model.RoleAdmin, IsActive: true}
	moderator := &model.User{ID: 2, Role: model.RoleModerator, IsActive: true}
	citizen := &model.User{ID: 3, Role: model.RoleCitizen, IsActive: true}
	inactiveAdmin := &model.User{ID: 4, Role: model.RoleAdmin, IsActive: false}

	tests := []struct {
		name   string
		user   *model.User
		action Action
		want   bool
	}{
		{"anonymous submits", nil, ActionSubmit, true},
		{"anonymous views", nil, ActionView, true},
		{"anonymous cannot update", nil, ActionUpdateStatus, false},
		{"citizen cannot update", citizen, ActionUpdateStatus, false},
		{"moderator updates", moderator, ActionUpdateStatus, true},
		{"moderator assigns", moderator, ActionAssign, true},
		{"moderator exports", moderator, ActionExport, true},
		{"moderator cannot delete", moderator, ActionDelete, false},
		{"admin deletes", admin, ActionDelete, true},
		{"admin manages users", admin, ActionManageUsers, true},
		{"moderator cannot manage users", moderator, ActionManageUsers, false},
		{"moderator cannot backfill", moderator, ActionBackfill, false},
		{"inactive admin cannot delete", inactiveAdmin, ActionDelete, false},
		{"unknown action", admin, Action("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.user, tt.action, nil))
		})
	}
}

func TestOwns(t *testing.T) {
	owner := int64(3)
	citizen := &model.User{ID: 3}

	assert.True(t, Owns(citizen, &model.Complaint{UserID: &owner}))
	assert.False(t, Owns(citizen, &model.Complaint{}))
	assert.False(t, Owns(nil, &model.Complaint{UserID: &owner}))
}
