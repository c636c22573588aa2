package model

import "time"

type Role string

const (
	RoleCitizen   Role = "citizen"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleModerator || r == RoleAdmin
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
	Phone        *string   `json:"phone,omitempty"`
	Address      *string   `json:"address,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

func (u *User) IsModerator() bool {
	return u != nil && u.Role == RoleModerator
}

func (u *User) CanEditAnyComplaint() bool {
	return u.IsAdmin() || u.IsModerator()
}

func (u *User) CanDeleteComplaint() bool {
	return u.IsAdmin()
}

func (u *User) CanAccessAdminPanel() bool {
	return u.IsAdmin() || u.IsModerator()
}

type UserStats struct {
	Total             int           `json:"total"`
	Active            int           `json:"active"`
	Inactive          int           `json:"inactive"`
	ByRole            map[Role]int  `json:"by_role"`
	ComplaintsPerUser map[int64]int `json:"complaints_per_user"`
}

// Request/Response
type RegisterRequest struct {
	Username string  `json:"username" binding:"required,min=3"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=6"`
	FullName string  `json:"full_name" binding:"required"`
	Phone    *string `json:"phone"`
	Address  *string `json:"address"`
}

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type UpdateRoleRequest struct {
	Role Role `json:"role" binding:"required"`
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
}

type Claims struct {
	UserID   int64
	Username string
	Role     Role
}
