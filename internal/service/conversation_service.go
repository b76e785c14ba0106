package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/notify"
	"github.com/spec-kit/orderdesk/internal/session"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

// Street, City, ST 12345
var shippingAddressPattern = regexp.MustCompile(`\d+\s+.+,\s*.+,\s*[A-Za-z]{2}\s+\d{5}`)

// Shipping speeds offered once an address (or pickup) is chosen.
const (
	ShippingMethodStandard = "std"
	ShippingMethodPriority = "prio"
)

var shippingMethodLabels = map[string]string{
	ShippingMethodStandard: "Standard Shipping ($20, 3-7 days)",
	ShippingMethodPriority: "Priority Shipping ($35, 2-4 days)",
}

var reviewStars = map[string]bool{
	"1": true, "1.5": true, "2": true, "2.5": true, "3": true,
	"3.5": true, "4": true, "4.5": true, "5": true,
}

const skipKeyword = "skip"

// ReferralOutcome is the result of answering the referral question.
type ReferralOutcome struct {
	// Ticket is set once the ticket exists.
	Ticket *domain.Ticket
	// Invalid is set when the code was rejected; the question stays open.
	Invalid bool
	Reason  string
}

// ShippingDetails is the compiled result of the shipping sub-flow.
type ShippingDetails struct {
	TicketID string
	Type     domain.ShippingType
	Name     string
	Address  string
	Method   string
}

// ConversationService drives the per-user chat sub-flows on top of the
// lifecycle services. Every operation takes plain identifiers.
type ConversationService struct {
	sessions   session.Store
	tickets    *TicketService
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	targets    ChatTargets
	logger     *zap.Logger
}

// ConversationDependencies bundles collaborators for ConversationService.
type ConversationDependencies struct {
	Sessions      session.Store
	TicketService *TicketService
	Dispatcher    events.Dispatcher
	Notifier      notify.Notifier
	Targets       ChatTargets
	Logger        *zap.Logger
}

// NewConversationService constructs the service.
func NewConversationService(deps ConversationDependencies) *ConversationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		sessions:   deps.Sessions,
		tickets:    deps.TicketService,
		dispatcher: deps.Dispatcher,
		notifier:   deps.Notifier,
		targets:    deps.Targets,
		logger:     logger,
	}
}

// Session returns the user's current session.
func (c *ConversationService) Session(ctx context.Context, userID int64) (domain.Session, error) {
	return c.sessions.Get(ctx, userID)
}

// Cancel abandons any sub-flow and reports whether one was active.
func (c *ConversationService) Cancel(ctx context.Context, userID int64) (bool, error) {
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if _, idle := current.(domain.Idle); idle {
		return false, nil
	}
	return true, c.sessions.Clear(ctx, userID)
}

// BeginTicket starts ticket creation for section and asks for a referral code.
func (c *ConversationService) BeginTicket(ctx context.Context, userID int64, section string) error {
	section = strings.TrimSpace(section)
	if section == "" {
		return apperrors.NewInvalidInput("section is required", nil)
	}
	banned, err := isBanned(ctx, c.tickets.users, userID)
	if err != nil {
		return err
	}
	if banned {
		return apperrors.NewForbidden("you are blocked from creating tickets")
	}
	return c.sessions.Set(ctx, userID, domain.AwaitingReferral{Section: section})
}

// SubmitReferral answers the referral question with a code or "skip". A
// rejected code keeps the question open; there is no retry limit.
func (c *ConversationService) SubmitReferral(ctx context.Context, userID int64, input string) (*ReferralOutcome, error) {
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, ok := current.(domain.AwaitingReferral)
	if !ok {
		return nil, errSessionExpired()
	}

	code := strings.TrimSpace(input)
	if strings.EqualFold(code, skipKeyword) {
		code = ""
	}

	ticket, err := c.tickets.CreateTicket(ctx, userID, pending.Section, code)
	if err != nil {
		if code != "" && apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			return &ReferralOutcome{Invalid: true, Reason: apperrors.ToDomainError(err).Message}, nil
		}
		return nil, err
	}

	if err := c.sessions.Set(ctx, userID, domain.ReplyingTo{TicketID: ticket.ID}); err != nil {
		return nil, err
	}
	return &ReferralOutcome{Ticket: ticket}, nil
}

// SelectTicket focuses the user's messages on one of their open tickets.
func (c *ConversationService) SelectTicket(ctx context.Context, userID int64, ticketID string) (*domain.Ticket, error) {
	ticket, err := c.ownedOpenTicket(ctx, userID, ticketID)
	if err != nil {
		return nil, err
	}
	return ticket, c.sessions.Set(ctx, userID, domain.ReplyingTo{TicketID: ticket.ID})
}

// BeginReply focuses an admin on ticketID, replacing any previous focus.
func (c *ConversationService) BeginReply(ctx context.Context, adminID int64, ticketID string) (*domain.Ticket, error) {
	ticket, err := c.tickets.openTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return ticket, c.sessions.Set(ctx, adminID, domain.ReplyingTo{TicketID: ticket.ID})
}

// StopReply drops the admin's focus and returns the ticket it pointed at.
func (c *ConversationService) StopReply(ctx context.Context, adminID int64) (string, error) {
	target, ok, err := c.ReplyTarget(ctx, adminID)
	if err != nil || !ok {
		return "", err
	}
	return target, c.sessions.Clear(ctx, adminID)
}

// ReplyTarget returns the ticket the user or admin is focused on.
func (c *ConversationService) ReplyTarget(ctx context.Context, userID int64) (string, bool, error) {
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return "", false, err
	}
	focus, ok := current.(domain.ReplyingTo)
	if !ok {
		return "", false, nil
	}
	return focus.TicketID, true, nil
}

// RelayFromAdmin forwards an admin message to the owner of the focused ticket.
func (c *ConversationService) RelayFromAdmin(ctx context.Context, adminID int64, text string, photoIDs []string) (*domain.Ticket, error) {
	ticketID, ok, err := c.ReplyTarget(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewConflict("no ticket selected; use reply first", nil)
	}
	ticket, err := c.tickets.openTicket(ctx, ticketID)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConflict) || apperrors.HasCode(err, apperrors.CodeNotFound) {
			_ = c.sessions.Clear(ctx, adminID)
		}
		return nil, err
	}

	if err := c.notifier.Send(ctx, notify.Message{
		ChatID:   ticket.UserID,
		Text:     "💬 Staff: " + sanitize(text),
		PhotoIDs: photoIDs,
	}); err != nil {
		return nil, apperrors.NewTransient("could not deliver message to user", err)
	}
	if err := c.tickets.TouchActivity(ctx, ticket.ID); err != nil {
		return nil, err
	}
	return ticket, nil
}

// RelayFromUser forwards a user message to staff, on the focused ticket when
// it is still open and on the newest open ticket otherwise.
func (c *ConversationService) RelayFromUser(ctx context.Context, userID int64, text string, photoIDs []string) (*domain.Ticket, error) {
	open, err := c.tickets.ListOpenForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, apperrors.NewNotFound("open ticket", map[string]any{"user_id": userID})
	}

	ticket := &open[0]
	if focused, ok, err := c.ReplyTarget(ctx, userID); err == nil && ok {
		for i := range open {
			if open[i].ID == focused {
				ticket = &open[i]
				break
			}
		}
	}
	if err := c.sessions.Set(ctx, userID, domain.ReplyingTo{TicketID: ticket.ID}); err != nil {
		return nil, err
	}
	if err := c.tickets.TouchActivity(ctx, ticket.ID); err != nil {
		return nil, err
	}

	body := fmt.Sprintf("📨 Message from (%d) Ticket %s", userID, ticket.ID)
	if text = sanitize(text); text != "" {
		body += ":\n" + text
	}
	buttons := [][]notify.Button{{
		{Label: "Reply ✍️", Data: notify.Callback(notify.ActionReply, ticket.ID)},
		{Label: "Ping 🔔", Data: notify.Callback(notify.ActionPing, ticket.ID)},
	}}
	for _, chatID := range c.targets.Staff() {
		if err := c.notifier.Send(ctx, notify.Message{ChatID: chatID, Text: body, Buttons: buttons, PhotoIDs: photoIDs}); err != nil {
			c.logger.Warn("relay to staff failed", zap.String("ticket_id", ticket.ID), zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	return ticket, nil
}

// PingOwner nudges the owner of ticketID.
func (c *ConversationService) PingOwner(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := c.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := c.notifier.Send(ctx, notify.Message{
		ChatID: ticket.UserID,
		Text:   "🔔 <b>You have been pinged by the staff!</b>",
	}); err != nil {
		return nil, apperrors.NewTransient("could not ping user", err)
	}
	return ticket, nil
}

// AdvanceStatus applies an admin status key. "shipped" leaves the admin
// waiting for a tracking code.
func (c *ConversationService) AdvanceStatus(ctx context.Context, adminID int64, ticketID, key string) (*StatusChangeResult, error) {
	result, err := c.tickets.AdvanceStatus(ctx, ticketID, key)
	if err != nil {
		return nil, err
	}
	if result.AwaitingTracking {
		if err := c.sessions.Set(ctx, adminID, domain.AwaitingTracking{TicketID: result.Ticket.ID}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// SubmitTracking completes a pending "shipped" transition and restores the
// admin's focus on the ticket.
func (c *ConversationService) SubmitTracking(ctx context.Context, adminID int64, trackingCode string) (*domain.Ticket, error) {
	current, err := c.sessions.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	pending, ok := current.(domain.AwaitingTracking)
	if !ok {
		return nil, errSessionExpired()
	}
	ticket, err := c.tickets.MarkShipped(ctx, pending.TicketID, trackingCode)
	if err != nil {
		if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
			_ = c.sessions.Clear(ctx, adminID)
		}
		return nil, err
	}
	return ticket, c.sessions.Set(ctx, adminID, domain.ReplyingTo{TicketID: ticket.ID})
}

// ChooseShippingOption starts the shipping sub-flow for ticketID. Shipping
// collects a name and address; pickup goes straight to the method.
func (c *ConversationService) ChooseShippingOption(ctx context.Context, userID int64, ticketID string, option domain.ShippingType) (domain.ShippingStep, error) {
	ticket, err := c.ownedOpenTicket(ctx, userID, ticketID)
	if err != nil {
		return "", err
	}
	state := domain.CollectingShipping{TicketID: ticket.ID, Type: option}
	switch option {
	case domain.ShippingTypeShip:
		state.Step = domain.ShippingStepName
	case domain.ShippingTypePickup:
		state.Step = domain.ShippingStepMethod
	default:
		return "", apperrors.NewInvalidInput("unknown shipping option", map[string]any{"option": option})
	}
	return state.Step, c.sessions.Set(ctx, userID, state)
}

// SubmitShippingText feeds the name or address step and returns the next step.
func (c *ConversationService) SubmitShippingText(ctx context.Context, userID int64, text string) (domain.ShippingStep, error) {
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	state, ok := current.(domain.CollectingShipping)
	if !ok {
		return "", errSessionExpired()
	}
	text = strings.TrimSpace(text)

	switch state.Step {
	case domain.ShippingStepName:
		if text == "" {
			return state.Step, apperrors.NewInvalidInput("please enter your full name", nil)
		}
		state.Name = sanitize(text)
		state.Step = domain.ShippingStepAddress
	case domain.ShippingStepAddress:
		if !shippingAddressPattern.MatchString(text) {
			return state.Step, apperrors.NewInvalidInput("invalid address format",
				map[string]any{"expected": "Street Address, City, State ZipCode"})
		}
		state.Address = sanitize(text)
		state.Step = domain.ShippingStepMethod
	default:
		return state.Step, apperrors.NewConflict("choose a shipping method", nil)
	}
	return state.Step, c.sessions.Set(ctx, userID, state)
}

// ChooseShippingMethod finishes the sub-flow and sends the details to staff.
func (c *ConversationService) ChooseShippingMethod(ctx context.Context, userID int64, ticketID, method string) (*ShippingDetails, error) {
	label, ok := shippingMethodLabels[method]
	if !ok {
		return nil, apperrors.NewInvalidInput("unknown shipping method", map[string]any{"method": method})
	}
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	state, ok := current.(domain.CollectingShipping)
	if !ok || state.TicketID != normalizeTicketID(ticketID) || state.Step != domain.ShippingStepMethod {
		return nil, errSessionExpired()
	}

	details := &ShippingDetails{
		TicketID: state.TicketID,
		Type:     state.Type,
		Name:     state.Name,
		Address:  state.Address,
		Method:   label,
	}
	publishEvent(ctx, c.dispatcher, c.logger, events.Event{
		Type:     events.EventShippingDetailsSubmitted,
		TicketID: state.TicketID,
		OwnerID:  userID,
		Actor:    userActor(userID),
		Payload: events.ShippingDetailsPayload{
			Type:    string(state.Type),
			Name:    state.Name,
			Address: state.Address,
			Method:  label,
		},
	})
	return details, c.sessions.Clear(ctx, userID)
}

// BeginReview starts the review sub-flow.
func (c *ConversationService) BeginReview(ctx context.Context, userID int64) error {
	return c.sessions.Set(ctx, userID, domain.InReview{Step: domain.ReviewStepStars})
}

// ChooseStars records the rating.
func (c *ConversationService) ChooseStars(ctx context.Context, userID int64, stars string) error {
	state, err := c.review(ctx, userID, domain.ReviewStepStars)
	if err != nil {
		return err
	}
	if !reviewStars[stars] {
		return apperrors.NewInvalidInput("unknown rating", map[string]any{"stars": stars})
	}
	state.Stars = stars
	state.Step = domain.ReviewStepText
	return c.sessions.Set(ctx, userID, state)
}

// SubmitReviewText records the written review.
func (c *ConversationService) SubmitReviewText(ctx context.Context, userID int64, text string) error {
	state, err := c.review(ctx, userID, domain.ReviewStepText)
	if err != nil {
		return err
	}
	text = sanitize(text)
	if text == "" {
		return apperrors.NewInvalidInput("please write your review", nil)
	}
	state.Text = text
	state.Step = domain.ReviewStepPhotos
	return c.sessions.Set(ctx, userID, state)
}

// AddReviewPhoto attaches a photo and returns how many are attached.
func (c *ConversationService) AddReviewPhoto(ctx context.Context, userID int64, photoID string) (int, error) {
	state, err := c.review(ctx, userID, domain.ReviewStepPhotos)
	if err != nil {
		return 0, err
	}
	if photoID = strings.TrimSpace(photoID); photoID == "" {
		return len(state.Photos), apperrors.NewInvalidInput("please send a photo or type done", nil)
	}
	state.Photos = append(state.Photos, photoID)
	return len(state.Photos), c.sessions.Set(ctx, userID, state)
}

// FinishReview posts the review to the review channel. It answers both "done" and "skip".
func (c *ConversationService) FinishReview(ctx context.Context, userID int64) (*domain.InReview, error) {
	state, err := c.review(ctx, userID, domain.ReviewStepPhotos)
	if err != nil {
		return nil, err
	}
	publishEvent(ctx, c.dispatcher, c.logger, events.Event{
		Type:    events.EventReviewSubmitted,
		OwnerID: userID,
		Actor:   userActor(userID),
		Payload: events.ReviewSubmittedPayload{Stars: state.Stars, Text: state.Text, Photos: state.Photos},
	})
	return &state, c.sessions.Clear(ctx, userID)
}

func (c *ConversationService) review(ctx context.Context, userID int64, step domain.ReviewStep) (domain.InReview, error) {
	current, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return domain.InReview{}, err
	}
	state, ok := current.(domain.InReview)
	if !ok {
		return domain.InReview{}, errSessionExpired()
	}
	if state.Step != step {
		return domain.InReview{}, apperrors.NewConflict("unexpected review step",
			map[string]any{"expected": state.Step})
	}
	return state, nil
}

func (c *ConversationService) ownedOpenTicket(ctx context.Context, userID int64, ticketID string) (*domain.Ticket, error) {
	ticket, err := c.tickets.openTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.UserID != userID {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

func errSessionExpired() error {
	return apperrors.NewConflict("session expired", nil)
}
