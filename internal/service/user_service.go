package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/repository"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

// UserService manages chat users, their bans and their point balances.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, dispatcher: dispatcher, logger: logger}
}

// Register marks the user as started. Repeated calls are harmless.
func (s *UserService) Register(ctx context.Context, userID int64) error {
	return s.users.Register(ctx, userID)
}

// IsStarted reports whether the user has interacted before.
func (s *UserService) IsStarted(ctx context.Context, userID int64) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return user.Started, nil
}

// SetBanned blocks or unblocks ticket creation for the user.
func (s *UserService) SetBanned(ctx context.Context, userID int64, banned bool) error {
	if err := s.users.SetBanned(ctx, userID, banned); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	s.logger.Info("user ban updated", zap.Int64("user_id", userID), zap.Bool("banned", banned))
	return nil
}

// IsBanned reports whether the user is blocked. Unknown users are not.
func (s *UserService) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return isBanned(ctx, s.users, userID)
}

// AddPoints credits amount points and returns the new balance.
func (s *UserService) AddPoints(ctx context.Context, userID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperrors.NewInvalidInput("amount must be positive", nil)
	}
	balance, err := s.users.AddPoints(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:    events.EventPointsGranted,
		OwnerID: userID,
		Actor:   adminActor(),
		Payload: events.PointsGrantedPayload{Amount: amount, Balance: balance},
	})
	return balance, nil
}

// RemovePoints debits amount points. The balance never drops below zero.
func (s *UserService) RemovePoints(ctx context.Context, userID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, apperrors.NewInvalidInput("amount must be positive", nil)
	}
	return s.users.AddPoints(ctx, userID, -amount)
}

// Points returns the user's balance; unknown users have zero.
func (s *UserService) Points(ctx context.Context, userID int64) (int, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return user.Points, nil
}
