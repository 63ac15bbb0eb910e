package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/pkg/logging"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const searchLimit = 10

type UserService struct {
	log       *slog.Logger
	repo      domain.UserRepository
	txManager contracts.Transactor
	cost      int
}

func NewUserService(log *slog.Logger, repo domain.UserRepository, txManager contracts.Transactor) *UserService {
	return &UserService{
		log:       log,
		repo:      repo,
		txManager: txManager,
		cost:      bcrypt.DefaultCost,
	}
}

// Register creates the account. The email must not be taken.
func (s *UserService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	err = s.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.repo.GetUserByEmail(txCtx, req.Email); err == nil {
			return domain.ErrEmailTaken
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return s.repo.CreateUser(txCtx, user)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrEmailTaken) {
			s.log.ErrorContext(ctx, "user - register - create user failed", logging.Err(err))
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "user - register - create user success", logging.User(user.ID))
	return user, nil
}

// Login checks the credentials. Unknown email and wrong password look the same.
func (s *UserService) Login(ctx context.Context, req domain.LoginRequest) (*domain.User, error) {
	req = req.Normalized()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		s.log.ErrorContext(ctx, "user - login - get user failed", logging.Err(err))
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	s.log.InfoContext(ctx, "user - login - success", logging.User(user.ID))
	return user, nil
}

func (s *UserService) Profile(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// Logout marks the account offline. Live connections are not touched.
func (s *UserService) Logout(ctx context.Context, userID string) error {
	if err := s.repo.UpdateOnlineStatus(ctx, userID, false); err != nil {
		s.log.ErrorContext(ctx, "user - logout - update online status failed", logging.User(userID), logging.Err(err))
		return err
	}
	return nil
}

func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *UserService) Search(ctx context.Context, query, callerID string) ([]domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.User{}, nil
	}
	return s.repo.SearchUsers(ctx, query, callerID, searchLimit)
}

func (s *UserService) UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	return s.repo.GetUsersByIDs(ctx, ids)
}
