package service

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/dllu1/go-chatroom/internal/audit"
	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/repository"
	"github.com/dllu1/go-chatroom/pkg/log"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// userServiceImpl implements UserService.
type userServiceImpl struct {
	repo repository.UserRepository
}

// NewUserService creates a new user service.
func NewUserService(repo repository.UserRepository) UserService {
	return &userServiceImpl{repo: repo}
}

// Register registers a new user.
func (s *userServiceImpl) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		l.Error().Err(err).Msg("failed to hash password")
		return nil, err
	}

	user := &domain.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.ActionRegister, user.Username, "user registered")
	return user.ToResponse(), nil
}

// Login authenticates a user. The returned username string is what the
// chat core consumes as the authenticated identity.
func (s *userServiceImpl) Login(ctx context.Context, req *domain.LoginRequest) (*domain.UserResponse, error) {
	l := log.Ctx(ctx)

	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			audit.LogWithDetail(ctx, audit.ActionLoginFailed, req.Username, "user not found", "login failed")
			return nil, ErrInvalidCredentials
		}
		l.Error().Err(err).Msg("failed to get user by username")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		audit.LogWithDetail(ctx, audit.ActionLoginFailed, req.Username, "wrong password", "login failed")
		return nil, ErrInvalidCredentials
	}

	audit.Log(ctx, audit.ActionLogin, user.Username, "login successful")
	return user.ToResponse(), nil
}
