package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"blogchat/internal/common"
	"blogchat/internal/dbmysql"
)

type UserService interface {
	RegisterUser(ctx context.Context, in RegisterInput) (*dbmysql.User, string, error)
	LoginUser(ctx context.Context, email, password string) (*dbmysql.User, string, error)
	GetProfile(ctx context.Context, userID string) (*dbmysql.User, error)
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type userService struct {
	userRepo UserRepository
	tokens   *common.TokenManager
	log      *slog.Logger
}

func NewUserService(userRepo UserRepository, tokens *common.TokenManager, log *slog.Logger) UserService {
	return &userService{userRepo: userRepo, tokens: tokens, log: log}
}

func (s *userService) RegisterUser(ctx context.Context, in RegisterInput) (*dbmysql.User, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if err := common.ValidateStruct(in); err != nil {
		return nil, "", err
	}

	//duplicates check
	exists, err := s.userRepo.CheckEmailExists(ctx, in.Email)
	if err != nil {
		return nil, "", err
	}
	if exists {
		return nil, "", fmt.Errorf("email %s: %w", in.Email, common.ErrConflict)
	}

	hashed, err := common.HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &dbmysql.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
	}
	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Name)
	if err != nil {
		return nil, "", err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// LoginUser reports an unknown email as ErrNotFound and a wrong password as
// ErrUnauthorized.
func (s *userService) LoginUser(ctx context.Context, email, password string) (*dbmysql.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", fmt.Errorf("%w: email and password required", common.ErrValidation)
	}

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}

	if err := common.CheckPassword(password, user.PasswordHash); err != nil {
		return nil, "", fmt.Errorf("%w: invalid password", common.ErrUnauthorized)
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Name)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (*dbmysql.User, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	return s.userRepo.GetUserByID(ctx, userID)
}
