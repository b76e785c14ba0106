package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/repository"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

const (
	referralCodeLength   = 6
	referralCodeAttempts = 10
)

// ReferralService issues and resolves referral codes.
type ReferralService struct {
	referrals repository.ReferralRepository
	users     repository.UserRepository
	logger    *zap.Logger
	now       func() time.Time
	newCode   func() string
}

// ReferralDependencies bundles collaborators for ReferralService.
type ReferralDependencies struct {
	ReferralRepo repository.ReferralRepository
	UserRepo     repository.UserRepository
	Logger       *zap.Logger
	Clock        func() time.Time
	// CodeGenerator overrides the random generator, mainly for tests.
	CodeGenerator func() string
}

// ReferralSummary is a user's referral standing.
type ReferralSummary struct {
	Points int
	Codes  []string
}

// NewReferralService constructs the service.
func NewReferralService(deps ReferralDependencies) *ReferralService {
	svc := &ReferralService{
		referrals: deps.ReferralRepo,
		users:     deps.UserRepo,
		logger:    deps.Logger,
		now:       deps.Clock,
		newCode:   deps.CodeGenerator,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.newCode == nil {
		svc.newCode = func() string { return randomCode(referralCodeLength) }
	}
	return svc
}

// Generate issues a fresh code for userID, retrying on collision.
func (s *ReferralService) Generate(ctx context.Context, userID int64) (*domain.Referral, error) {
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		referral := &domain.Referral{Code: s.newCode(), UserID: userID, CreatedAt: s.now()}
		created, err := s.referrals.Create(ctx, referral)
		if err != nil {
			return nil, fmt.Errorf("create referral: %w", err)
		}
		if created {
			s.logger.Info("referral code generated", zap.Int64("user_id", userID), zap.String("code", referral.Code))
			return referral, nil
		}
		s.logger.Debug("referral code collision", zap.String("code", referral.Code))
	}
	return nil, apperrors.NewConflict("could not allocate a unique referral code", nil)
}

// Resolve returns the referral behind code, rejecting unknown codes and the caller's own.
func (s *ReferralService) Resolve(ctx context.Context, code string, userID int64) (*domain.Referral, error) {
	return resolveReferral(ctx, s.referrals, code, userID)
}

// Summary returns the user's point balance and codes.
func (s *ReferralService) Summary(ctx context.Context, userID int64) (*ReferralSummary, error) {
	summary := &ReferralSummary{}
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		summary.Points = user.Points
	case !apperrors.IsNoRows(err):
		return nil, fmt.Errorf("load user: %w", err)
	}

	referrals, err := s.referrals.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	for _, referral := range referrals {
		summary.Codes = append(summary.Codes, referral.Code)
	}
	return summary, nil
}

func resolveReferral(ctx context.Context, referrals repository.ReferralRepository, code string, userID int64) (*domain.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.NewInvalidInput("invalid referral code", nil)
	}
	referral, err := referrals.GetByCode(ctx, code)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewInvalidInput("invalid referral code", map[string]any{"reason": "unknown"})
		}
		return nil, fmt.Errorf("resolve referral: %w", err)
	}
	if referral.UserID == userID {
		return nil, apperrors.NewInvalidInput("you cannot use your own referral code", map[string]any{"reason": "self"})
	}
	return referral, nil
}
