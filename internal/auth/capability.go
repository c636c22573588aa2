package auth

import "pathpatrol/internal/model"

type Action string

const (
	ActionSubmit       Action = "complaint:submit"
	ActionView         Action = "complaint:view"
	ActionUpdateStatus Action = "complaint:update_status"
	ActionAssign       Action = "complaint:assign"
	ActionDelete       Action = "complaint:delete"
	ActionViewStats    Action = "complaint:stats"
	ActionExport       Action = "complaint:export"
	ActionBackfill     Action = "complaint:backfill"
	ActionManageUsers  Action = "user:manage"
)

// Can reports whether user may perform action on complaint. user may be nil
// for anonymous callers; complaint may be nil for actions without a target.
// Inactive accounts are treated as anonymous.
func Can(user *model.User, action Action, complaint *model.Complaint) bool {
	if user != nil && !user.IsActive {
		user = nil
	}

	switch action {
	case ActionSubmit, ActionView:
		return true
	case ActionUpdateStatus, ActionAssign, ActionViewStats, ActionExport:
		return user.CanEditAnyComplaint()
	case ActionDelete:
		return user.CanDeleteComplaint()
	case ActionBackfill, ActionManageUsers:
		return user.IsAdmin()
	}
	return false
}

// Owns reports whether complaint was submitted by user.
func Owns(user *model.User, complaint *model.Complaint) bool {
	return user != nil && complaint != nil && complaint.UserID != nil && *complaint.UserID == user.ID
}
