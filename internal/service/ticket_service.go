package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/observability"
	"github.com/spec-kit/orderdesk/internal/repository"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	referrals  repository.ReferralRepository
	config     repository.ConfigRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	UserRepo     repository.UserRepository
	ReferralRepo repository.ReferralRepository
	ConfigRepo   repository.ConfigRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Clock        func() time.Time
}

// StatusChangeResult reports what an admin status command did.
type StatusChangeResult struct {
	Ticket *domain.Ticket
	Key    domain.StatusKey
	// NewStatus is empty when the command did not change the label.
	NewStatus string
	// AwaitingTracking is set for "shipped": the label changes once MarkShipped supplies a code.
	AwaitingTracking bool
	Closed           bool
	// ReferrerID is set when a referral point was credited.
	ReferrerID *int64
	// Warning flags a section mismatch. It never blocks the transition.
	Warning string
}

// CloseOutcome distinguishes the results of a close request.
type CloseOutcome string

const (
	CloseOutcomeClosed        CloseOutcome = "closed"
	CloseOutcomeAlreadyClosed CloseOutcome = "already_closed"
	CloseOutcomeNoOpenTicket  CloseOutcome = "no_open_ticket"
)

// CloseResult is returned by the close operations.
type CloseResult struct {
	Outcome  CloseOutcome
	TicketID string
	OwnerID  int64
}

// TicketInfo is the admin view of one ticket.
type TicketInfo struct {
	Ticket      *domain.Ticket
	OwnerPoints int
	ReferrerID  *int64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		referrals:  deps.ReferralRepo,
		config:     deps.ConfigRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// CreateTicket opens a ticket for userID in section. A non-empty referral code
// must resolve to another user's referral; no points are granted here.
func (s *TicketService) CreateTicket(ctx context.Context, userID int64, section, referralCode string) (*domain.Ticket, error) {
	section = strings.TrimSpace(section)
	if section == "" {
		return nil, apperrors.NewInvalidInput("section is required", nil)
	}

	banned, err := isBanned(ctx, s.users, userID)
	if err != nil {
		return nil, err
	}
	if banned {
		return nil, apperrors.NewForbidden("you are blocked from creating tickets")
	}

	var (
		code     *string
		referrer *int64
	)
	if referralCode = strings.TrimSpace(referralCode); referralCode != "" {
		referral, err := resolveReferral(ctx, s.referrals, referralCode, userID)
		if err != nil {
			return nil, err
		}
		code = &referral.Code
		referrer = &referral.UserID
	}

	if err := s.users.Register(ctx, userID); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	seq, err := s.config.NextSequence(ctx, repository.ConfigKeyTicketCounter)
	if err != nil {
		return nil, fmt.Errorf("next ticket sequence: %w", err)
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:           GenerateTicketID(seq),
		UserID:       userID,
		Section:      section,
		Status:       domain.StatusCreated,
		CreatedAt:    now,
		LastActivity: now,
		ReferralCode: code,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	points := 0
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		points = user.Points
	}

	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		OwnerID:  userID,
		Actor:    userActor(userID),
		Payload: events.TicketCreatedPayload{
			Section:      section,
			ReferralCode: code,
			ReferrerID:   referrer,
			OwnerPoints:  points,
		},
	})
	return ticket, nil
}

// AdvanceStatus applies an admin status key to an open ticket.
func (s *TicketService) AdvanceStatus(ctx context.Context, ticketID, rawKey string) (*StatusChangeResult, error) {
	key, ok := domain.ParseStatusKey(rawKey)
	if !ok {
		return nil, apperrors.NewInvalidInput("unknown status", map[string]any{"options": domain.StatusKeys})
	}

	ticket, err := s.openTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	result := &StatusChangeResult{Ticket: ticket, Key: key}

	switch key {
	case domain.StatusKeyAccepted, domain.StatusKeyPaid, domain.StatusKeyPackage:
		oldStatus, newStatus := ticket.Status, statusLabels[key]
		if err := s.updateStatus(ctx, ticket, newStatus); err != nil {
			return nil, err
		}
		result.NewStatus = newStatus
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			OwnerID:  ticket.UserID,
			Actor:    adminActor(),
			Payload:  events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus},
		})

	case domain.StatusKeyShipped:
		result.AwaitingTracking = true

	case domain.StatusKeyDelivered:
		if !ticket.SectionMatches("bulk", "value") {
			result.Warning = "this ticket does not seem to be bulk"
		}
		if err := s.complete(ctx, ticket, domain.StatusDelivered, result); err != nil {
			return nil, err
		}

	case domain.StatusKeyComplete:
		if !ticket.SectionMatches("singles") {
			result.Warning = "this ticket does not seem to be singles"
		}
		if err := s.complete(ctx, ticket, domain.StatusComplete, result); err != nil {
			return nil, err
		}

	case domain.StatusKeyShipDetails:
		if !ticket.SectionMatches("bulk", "value") {
			result.Warning = "this ticket does not seem to be bulk"
		}
		publishEvent(ctx, s.dispatcher, s.logger, events.Event{
			Type:     events.EventShippingDetailsRequested,
			TicketID: ticket.ID,
			OwnerID:  ticket.UserID,
			Actor:    adminActor(),
		})
	}

	return result, nil
}

// MarkShipped completes a "shipped" transition with the carrier tracking code.
func (s *TicketService) MarkShipped(ctx context.Context, ticketID, trackingCode string) (*domain.Ticket, error) {
	trackingCode = strings.TrimSpace(trackingCode)
	if trackingCode == "" {
		return nil, apperrors.NewInvalidInput("tracking code is required", nil)
	}
	ticket, err := s.openTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.updateStatus(ctx, ticket, domain.StatusShipped); err != nil {
		return nil, err
	}
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketShipped,
		TicketID: ticket.ID,
		OwnerID:  ticket.UserID,
		Actor:    adminActor(),
		Payload:  events.TicketShippedPayload{TrackingCode: trackingCode},
	})
	return ticket, nil
}

// CloseTicket closes ticketID. Closing an already closed ticket is reported, not an error.
func (s *TicketService) CloseTicket(ctx context.Context, ticketID string, actor domain.CloseActor) (*CloseResult, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	result := &CloseResult{TicketID: ticket.ID, OwnerID: ticket.UserID}

	closed, err := s.tickets.Close(ctx, ticket.ID, s.now(), "")
	if err != nil {
		return nil, fmt.Errorf("close ticket: %w", err)
	}
	if !closed {
		result.Outcome = CloseOutcomeAlreadyClosed
		return result, nil
	}

	result.Outcome = CloseOutcomeClosed
	s.closed(ctx, ticket, actor, ticket.Status)
	return result, nil
}

// CloseLatestForUser closes the user's most recently created open ticket.
func (s *TicketService) CloseLatestForUser(ctx context.Context, userID int64) (*CloseResult, error) {
	open, err := s.tickets.ListOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	if len(open) == 0 {
		return &CloseResult{Outcome: CloseOutcomeNoOpenTicket, OwnerID: userID}, nil
	}
	return s.CloseTicket(ctx, open[0].ID, domain.CloseActorUser)
}

// TouchActivity records chat activity on an open ticket and resets the prompt timers.
func (s *TicketService) TouchActivity(ctx context.Context, ticketID string) error {
	if _, err := s.tickets.Touch(ctx, normalizeTicketID(ticketID), s.now()); err != nil {
		return fmt.Errorf("touch ticket: %w", err)
	}
	return nil
}

// GetTicket fetches a ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, normalizeTicketID(ticketID))
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

// ListOpenForUser returns the user's open tickets, newest first.
func (s *TicketService) ListOpenForUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	return s.tickets.ListOpenByUser(ctx, userID)
}

// ListOpen returns every open ticket, oldest first.
func (s *TicketService) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	return s.tickets.ListOpen(ctx)
}

// TicketInfo returns a ticket with its owner's balance and the referrer, if any.
func (s *TicketService) TicketInfo(ctx context.Context, ticketID string) (*TicketInfo, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	info := &TicketInfo{Ticket: ticket}
	if user, err := s.users.GetByID(ctx, ticket.UserID); err == nil {
		info.OwnerPoints = user.Points
	} else if !apperrors.IsNoRows(err) {
		return nil, err
	}
	if ticket.ReferralCode != nil {
		if referral, err := s.referrals.GetByCode(ctx, *ticket.ReferralCode); err == nil {
			info.ReferrerID = &referral.UserID
		}
	}
	return info, nil
}

var statusLabels = map[domain.StatusKey]string{
	domain.StatusKeyAccepted: domain.StatusAccepted,
	domain.StatusKeyPaid:     domain.StatusPaid,
	domain.StatusKeyPackage:  domain.StatusPackaging,
}

func (s *TicketService) openTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Closed {
		return nil, errTicketClosed(ticket.ID)
	}
	return ticket, nil
}

func (s *TicketService) updateStatus(ctx context.Context, ticket *domain.Ticket, status string) error {
	updated, err := s.tickets.UpdateStatus(ctx, ticket.ID, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !updated {
		return errTicketClosed(ticket.ID)
	}
	ticket.Status = status
	return nil
}

// complete closes the ticket with a terminal status. The close is guarded by
// closed = false, so only the caller that wins it credits the referrer.
func (s *TicketService) complete(ctx context.Context, ticket *domain.Ticket, status string, result *StatusChangeResult) error {
	now := s.now()
	closed, err := s.tickets.Close(ctx, ticket.ID, now, status)
	if err != nil {
		return fmt.Errorf("close ticket: %w", err)
	}
	if !closed {
		return errTicketClosed(ticket.ID)
	}
	ticket.Status = status
	ticket.Closed = true
	ticket.ClosedAt = &now
	result.NewStatus = status
	result.Closed = true

	if ticket.ReferralCode != nil {
		referral, err := s.referrals.GetByCode(ctx, *ticket.ReferralCode)
		switch {
		case err == nil:
			points, err := s.users.AddPoints(ctx, referral.UserID, 1)
			if err != nil {
				s.logger.Error("credit referral point", zap.String("ticket_id", ticket.ID), zap.Error(err))
				break
			}
			result.ReferrerID = &referral.UserID
			publishEvent(ctx, s.dispatcher, s.logger, events.Event{
				Type:     events.EventReferralCredited,
				TicketID: ticket.ID,
				OwnerID:  ticket.UserID,
				Actor:    adminActor(),
				Payload: events.ReferralCreditedPayload{
					ReferrerID: referral.UserID,
					Code:       referral.Code,
					Points:     points,
				},
			})
		case apperrors.IsNoRows(err):
			s.logger.Warn("referral code no longer resolves", zap.String("ticket_id", ticket.ID))
		default:
			s.logger.Error("resolve referral", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.closed(ctx, ticket, domain.CloseActorCompletion, status)
	return nil
}

func (s *TicketService) closed(ctx context.Context, ticket *domain.Ticket, actor domain.CloseActor, status string) {
	s.metrics.RecordTicketClosed(string(actor))
	publishEvent(ctx, s.dispatcher, s.logger, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		OwnerID:  ticket.UserID,
		Actor:    closeActor(actor, ticket.UserID),
		Payload:  events.TicketClosedPayload{ClosedBy: string(actor), Status: status},
	})
}

func errTicketClosed(ticketID string) error {
	return apperrors.NewConflict("ticket already closed", map[string]any{"ticket_id": ticketID})
}

func normalizeTicketID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func isBanned(ctx context.Context, users repository.UserRepository, userID int64) (bool, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("load user: %w", err)
	}
	return user.Banned, nil
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, logger *zap.Logger, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func userActor(userID int64) events.Actor {
	return events.Actor{Type: events.ActorUser, UserID: &userID}
}

func adminActor() events.Actor {
	return events.Actor{Type: events.ActorAdmin}
}

func systemActor() events.Actor {
	return events.Actor{Type: events.ActorSystem}
}

func closeActor(actor domain.CloseActor, ownerID int64) events.Actor {
	switch actor {
	case domain.CloseActorUser:
		return userActor(ownerID)
	case domain.CloseActorInactivity:
		return systemActor()
	default:
		return adminActor()
	}
}
