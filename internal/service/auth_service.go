package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"pathpatrol/config"
	"pathpatrol/internal/auth"
	"pathpatrol/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", model.ErrUnauthorized)

type UserStore interface {
	Create(ctx context.Context, user *model.User) (int64, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Count(ctx context.Context) (int, error)
	UpdateRole(ctx context.Context, id int64, role model.Role) (bool, error)
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) (bool, error)
	RoleCounts(ctx context.Context) (*model.UserStats, error)
}

// ComplaintCounter reports complaint counts per submitting user.
type ComplaintCounter interface {
	CountByUser(ctx context.Context) (map[int64]int, error)
}

type AuthService struct {
	userRepo   UserStore
	complaints ComplaintCounter
	jwtConfig  config.JWTConfig
	now        func() time.Time
}

func NewAuthService(userRepo UserStore, complaints ComplaintCounter, jwtConfig config.JWTConfig) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		complaints: complaints,
		jwtConfig:  jwtConfig,
		now:        time.Now,
	}
}

// Register creates an active citizen account.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.User, error) {
	return s.createUser(ctx, req, model.RoleCitizen)
}

func (s *AuthService) createUser(ctx context.Context, req *model.RegisterRequest, role model.Role) (*model.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username, email and password are required", model.ErrValidation)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		FullName:     req.FullName,
		Role:         role,
		IsActive:     true,
		Phone:        req.Phone,
		Address:      req.Address,
	}
	if _, err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates by username or email and issues a token.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	user, err := s.Authenticate(ctx, req.Login, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user)
	if err != nil {
		return nil, err
	}

	return &model.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

// Authenticate checks the password of an active account found by username or,
// failing that, by email.
func (s *AuthService) Authenticate(ctx context.Context, login, password string) (*model.User, error) {
	login = strings.TrimSpace(login)
	user, err := s.userRepo.FindByUsername(ctx, login)
	if errors.Is(err, model.ErrNotFound) {
		user, err = s.userRepo.FindByEmail(ctx, login)
	}
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ValidateToken parses a bearer token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*model.Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(s.jwtConfig.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, model.ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrUnauthorized
	}

	// JSON numbers decode as float64.
	id, ok := claims["user_id"].(float64)
	if !ok {
		return nil, model.ErrUnauthorized
	}
	username, _ := claims["username"].(string)
	role, _ := claims["role"].(string)

	return &model.Claims{
		UserID:   int64(id),
		Username: username,
		Role:     model.Role(role),
	}, nil
}

// CurrentUser resolves a token to its active account.
func (s *AuthService) CurrentUser(ctx context.Context, tokenString string) (*model.User, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, model.ErrUnauthorized
	}
	return user, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *AuthService) ListUsers(ctx context.Context, actor *model.User) ([]model.User, error) {
	if !auth.Can(actor, auth.ActionManageUsers, nil) {
		return nil, model.ErrForbidden
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []model.User{}
	}
	return users, nil
}

func (s *AuthService) UpdateRole(ctx context.Context, actor *model.User, id int64, role model.Role) (bool, error) {
	if !auth.Can(actor, auth.ActionManageUsers, nil) {
		return false, model.ErrForbidden
	}
	if !role.Valid() {
		return false, fmt.Errorf("%w: unknown role %q", model.ErrValidation, role)
	}
	return s.userRepo.UpdateRole(ctx, id, role)
}

func (s *AuthService) Activate(ctx context.Context, actor *model.User, id int64) (bool, error) {
	return s.setActive(ctx, actor, id, true)
}

// Deactivate disables an account. Admins cannot deactivate themselves.
func (s *AuthService) Deactivate(ctx context.Context, actor *model.User, id int64) (bool, error) {
	if actor != nil && actor.ID == id {
		return false, fmt.Errorf("%w: cannot deactivate your own account", model.ErrValidation)
	}
	return s.setActive(ctx, actor, id, false)
}

func (s *AuthService) setActive(ctx context.Context, actor *model.User, id int64, active bool) (bool, error) {
	if !auth.Can(actor, auth.ActionManageUsers, nil) {
		return false, model.ErrForbidden
	}
	return s.userRepo.SetActive(ctx, id, active)
}

// UpdatePassword rehashes the password after checking the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, actor *model.User, current, next string) error {
	if actor == nil {
		return model.ErrUnauthorized
	}
	if len(next) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", model.ErrValidation)
	}
	user, err := s.userRepo.FindByID(ctx, actor.ID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	ok, err := s.userRepo.UpdatePasswordHash(ctx, actor.ID, string(hash))
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrNotFound
	}
	return nil
}

// EnsureDefaultAdmin creates the bootstrap admin account when no user exists.
// It reports whether an account was created.
func (s *AuthService) EnsureDefaultAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	n, err := s.userRepo.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	_, err = s.CreateAdmin(ctx, cfg.Username, cfg.Email, cfg.Password, cfg.FullName)
	if err != nil {
		return false, err
	}
	log.Printf("Created default admin account %q", cfg.Username)
	return true, nil
}

func (s *AuthService) CreateAdmin(ctx context.Context, username, email, password, fullName string) (*model.User, error) {
	if fullName == "" {
		fullName = "System Administrator"
	}
	return s.createUser(ctx, &model.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
		FullName: fullName,
	}, model.RoleAdmin)
}

func (s *AuthService) Stats(ctx context.Context, actor *model.User) (*model.UserStats, error) {
	if !auth.Can(actor, auth.ActionManageUsers, nil) {
		return nil, model.ErrForbidden
	}
	stats, err := s.userRepo.RoleCounts(ctx)
	if err != nil {
		return nil, err
	}
	if s.complaints != nil {
		perUser, err := s.complaints.CountByUser(ctx)
		if err != nil {
			return nil, err
		}
		stats.ComplaintsPerUser = perUser
	}
	return stats, nil
}

func (s *AuthService) generateToken(user *model.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      now.Add(time.Hour * time.Duration(s.jwtConfig.ExpirationHours)).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtConfig.Secret))
}
