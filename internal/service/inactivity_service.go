package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/observability"
	"github.com/spec-kit/orderdesk/internal/repository"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

// PromptResponse is the admin answer to an inactivity prompt.
type PromptResponse string

const (
	PromptClose PromptResponse = "close"
	PromptKeep  PromptResponse = "keep"
)

// PromptResult reports the effect of a prompt response. Exactly one field is set.
type PromptResult struct {
	Close        *CloseResult
	SnoozedUntil *time.Time
}

// SweepReport summarizes one pass of the inactivity sweep.
type SweepReport struct {
	Scanned  int      `json:"scanned"`
	Prompted []string `json:"prompted"`
	Closed   []string `json:"closed"`
}

// InactivityService prompts about and closes idle tickets.
type InactivityService struct {
	tickets    repository.TicketRepository
	lifecycle  *TicketService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	policy     config.TicketConfig
	now        func() time.Time
}

// InactivityDependencies bundles collaborators for InactivityService.
type InactivityDependencies struct {
	TicketRepo    repository.TicketRepository
	TicketService *TicketService
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Policy        config.TicketConfig
	Clock         func() time.Time
}

// NewInactivityService constructs the service.
func NewInactivityService(deps InactivityDependencies) *InactivityService {
	svc := &InactivityService{
		tickets:    deps.TicketRepo,
		lifecycle:  deps.TicketService,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		policy:     deps.Policy,
		now:        deps.Clock,
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// Sweep evaluates every open ticket once. Decisions depend only on persisted
// timestamps, so a missed or repeated run is harmless.
func (s *InactivityService) Sweep(ctx context.Context) (*SweepReport, error) {
	open, err := s.tickets.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}

	report := &SweepReport{Scanned: len(open)}
	for i := range open {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		ticket := &open[i]
		now := s.now()
		idle := now.Sub(ticket.LastActivity)

		switch {
		case idle > s.policy.HardCloseTimeout:
			closed, err := s.tickets.Close(ctx, ticket.ID, now, "")
			if err != nil {
				s.logger.Error("inactivity close failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				continue
			}
			if !closed {
				continue
			}
			report.Closed = append(report.Closed, ticket.ID)
			s.lifecycle.closed(ctx, ticket, domain.CloseActorInactivity, ticket.Status)
			s.logger.Info("ticket closed for inactivity", zap.String("ticket_id", ticket.ID), zap.Duration("idle", idle))

		case idle > s.policy.SoftPromptTimeout:
			if !shouldPrompt(ticket, now) {
				continue
			}
			// The prompt is recorded before it is sent so an overlapping sweep cannot send it twice.
			marked, err := s.tickets.MarkPrompted(ctx, ticket.ID, now)
			if err != nil {
				s.logger.Error("record inactivity prompt failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
				continue
			}
			if !marked {
				continue
			}
			report.Prompted = append(report.Prompted, ticket.ID)
			s.metrics.RecordPrompt()
			publishEvent(ctx, s.dispatcher, s.logger, events.Event{
				Type:     events.EventInactivityPrompt,
				TicketID: ticket.ID,
				OwnerID:  ticket.UserID,
				Actor:    systemActor(),
				Payload:  events.InactivityPromptPayload{IdleFor: idle},
			})
		}
	}

	if len(report.Prompted) > 0 || len(report.Closed) > 0 {
		s.logger.Info("inactivity sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("prompted", len(report.Prompted)),
			zap.Int("closed", len(report.Closed)))
	}
	return report, nil
}

// shouldPrompt prompts once per idle period: when never prompted, or when the
// snooze granted after the last prompt has run out.
func shouldPrompt(ticket *domain.Ticket, now time.Time) bool {
	if ticket.Snoozed(now) {
		return false
	}
	if ticket.LastPromptAt == nil {
		return true
	}
	return ticket.SnoozeUntil != nil && !now.Before(*ticket.SnoozeUntil)
}

// RespondToPrompt applies the admin's answer to an inactivity prompt.
func (s *InactivityService) RespondToPrompt(ctx context.Context, ticketID string, response PromptResponse) (*PromptResult, error) {
	switch response {
	case PromptClose:
		result, err := s.lifecycle.CloseTicket(ctx, ticketID, domain.CloseActorAdmin)
		if err != nil {
			return nil, err
		}
		return &PromptResult{Close: result}, nil
	case PromptKeep:
		ticket, err := s.lifecycle.GetTicket(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		until := s.now().Add(s.policy.SnoozeDuration)
		snoozed, err := s.tickets.Snooze(ctx, ticket.ID, until)
		if err != nil {
			return nil, fmt.Errorf("snooze ticket: %w", err)
		}
		if !snoozed {
			return nil, errTicketClosed(ticket.ID)
		}
		return &PromptResult{SnoozedUntil: &until}, nil
	default:
		return nil, apperrors.NewInvalidInput("unknown prompt response", map[string]any{"response": response})
	}
}

// PurgeClosed deletes tickets closed longer than the retention window.
func (s *InactivityService) PurgeClosed(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-time.Duration(s.policy.RetentionDays) * 24 * time.Hour)
	deleted, err := s.tickets.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge closed tickets: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("purged closed tickets", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
