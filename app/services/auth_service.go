package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/app/repositories"
	"github.com/shashiranjanraj/vastra/pkg/auth"
	"github.com/shashiranjanraj/vastra/pkg/logger"
)

// RegisterInput is the signup request body.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthService handles registration and session issuance.
type AuthService struct {
	users *repositories.UserRepository
}

func NewAuthService(db *gorm.DB) *AuthService {
	return &AuthService{users: repositories.NewUserRepository(db)}
}

// Register creates a user and returns a session token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, string, error) {
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return models.User{}, "", err
	}

	user := models.User{Name: input.Name, Email: input.Email, Password: hash}
	if err := s.users.Create(ctx, &user); err != nil {
		return models.User{}, "", err
	}

	token, err := auth.GenerateToken(user.ID, user.Staff)
	if err != nil {
		return models.User{}, "", err
	}

	logger.WithCtx(ctx).Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login checks credentials and returns a session token. Lookup and
// password failures are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.User, string, error) {
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, "", ErrInvalidCredentials
		}
		return models.User{}, "", err
	}
	if !auth.CheckPassword(user.Password, input.Password) {
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Staff)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}
