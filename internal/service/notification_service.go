package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/notify"
)

// ChatTargets resolves the chat destinations for staff-facing messages.
type ChatTargets struct {
	SupportChatID  int64
	ReferralChatID int64
	ReviewChatID   int64
	AdminIDs       []int64
}

// NewChatTargets builds targets from configuration.
func NewChatTargets(n config.NotificationConfig, a config.AuthConfig) ChatTargets {
	return ChatTargets{
		SupportChatID:  n.SupportChatID,
		ReferralChatID: n.ReferralChatID,
		ReviewChatID:   n.ReviewChatID,
		AdminIDs:       a.AdminIDs,
	}
}

// Staff returns the support group, or every admin when no group is configured.
func (t ChatTargets) Staff() []int64 {
	if t.SupportChatID != 0 {
		return []int64{t.SupportChatID}
	}
	return t.AdminIDs
}

// Reviews returns the review channel, falling back to the staff chats.
func (t ChatTargets) Reviews() []int64 {
	if t.ReviewChatID != 0 {
		return []int64{t.ReviewChatID}
	}
	return t.Staff()
}

var userTextPolicy = bluemonday.StrictPolicy()

// sanitize strips markup from user supplied text before it is embedded in an HTML message.
func sanitize(text string) string {
	return userTextPolicy.Sanitize(strings.TrimSpace(text))
}

// NotificationService turns domain events into chat messages. Delivery is
// best effort: failures are logged and never reach the caller.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	targets    ChatTargets
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, targets ChatTargets, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		targets:    targets,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketShipped, n.handleTicketShipped)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventReferralCredited, n.handleReferralCredited)
	n.dispatcher.Subscribe(events.EventShippingDetailsRequested, n.handleShippingDetailsRequested)
	n.dispatcher.Subscribe(events.EventShippingDetailsSubmitted, n.handleShippingDetailsSubmitted)
	n.dispatcher.Subscribe(events.EventInactivityPrompt, n.handleInactivityPrompt)
	n.dispatcher.Subscribe(events.EventReviewSubmitted, n.handleReviewSubmitted)
	n.dispatcher.Subscribe(events.EventPointsGranted, n.handlePointsGranted)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketCreatedPayload)

	text := fmt.Sprintf("🆕 <b>New Ticket Created!</b>\n👤 User: ID %d\n🎫 Ticket ID: %s\n📂 Category: %s",
		event.OwnerID, event.TicketID, sanitize(payload.Section))
	if payload.ReferralCode != nil && payload.ReferrerID != nil {
		text += fmt.Sprintf("\n🔗 <b>Referral Used:</b> %s (By ID %d)", *payload.ReferralCode, *payload.ReferrerID)
		if n.targets.ReferralChatID != 0 {
			n.send(ctx, event, notify.Message{
				ChatID: n.targets.ReferralChatID,
				Text: fmt.Sprintf("Referral code Used!\nCode: %s\nCreated by: ID %d\nUsed by: ID %d",
					*payload.ReferralCode, *payload.ReferrerID, event.OwnerID),
			})
		}
	}

	n.sendStaff(ctx, event, text, [][]notify.Button{{
		{Label: "Reply to Ticket ✍️", Data: notify.Callback(notify.ActionReply, event.TicketID)},
	}})
	return nil
}

var statusBlurbs = map[string]string{
	domain.StatusAccepted:  "✅ Your order has been accepted!",
	domain.StatusPaid:      "💰 Payment received! Your order is marked as paid.",
	domain.StatusPackaging: "📦 We are currently packaging your order.",
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketStatusChangedPayload)
	n.send(ctx, event, notify.Message{
		ChatID: event.OwnerID,
		Text:   fmt.Sprintf("ℹ️ Status Update: <b>%s</b>\n%s", payload.NewStatus, statusBlurbs[payload.NewStatus]),
	})
	return nil
}

func (n *NotificationService) handleTicketShipped(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketShippedPayload)
	n.send(ctx, event, notify.Message{
		ChatID: event.OwnerID,
		Text: fmt.Sprintf("ℹ️ Status Update: <b>%s</b>\n🚚 Your order is on its way!\nTracking code: <code>%s</code>",
			domain.StatusShipped, sanitize(payload.TrackingCode)),
	})
	return nil
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.TicketClosedPayload)
	switch domain.CloseActor(payload.ClosedBy) {
	case domain.CloseActorInactivity:
		n.sendStaff(ctx, event, fmt.Sprintf("⏳ Ticket %s closed automatically (2 weeks inactivity).", event.TicketID), nil)
		n.send(ctx, event, notify.Message{
			ChatID: event.OwnerID,
			Text:   fmt.Sprintf("⏳ Ticket %s has been closed due to extended inactivity.", event.TicketID),
		})
	case domain.CloseActorUser:
		n.sendStaff(ctx, event, fmt.Sprintf("🔒 Ticket %s closed by user %d.", event.TicketID, event.OwnerID), nil)
	case domain.CloseActorCompletion:
		n.send(ctx, event, notify.Message{
			ChatID: event.OwnerID,
			Text: fmt.Sprintf("ℹ️ Status Update: <b>%s</b>\n🎉 Thank you for your order! Ticket %s is now closed.\nUse /review to tell us how we did.",
				payload.Status, event.TicketID),
		})
	default:
		n.sendStaff(ctx, event, fmt.Sprintf("🔒 Ticket %s closed by admin.", event.TicketID), nil)
		n.send(ctx, event, notify.Message{
			ChatID: event.OwnerID,
			Text:   fmt.Sprintf("🔒 Ticket %s has been closed.", event.TicketID),
		})
	}
	return nil
}

func (n *NotificationService) handleReferralCredited(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.ReferralCreditedPayload)
	n.send(ctx, event, notify.Message{
		ChatID: payload.ReferrerID,
		Text: "🎉 <b>Referral Bonus!</b>\n\nA user you referred has completed an order! " +
			"You have received 1 referral point.\nUse /myreferrals to check your balance.",
	})
	return nil
}

func (n *NotificationService) handleShippingDetailsRequested(ctx context.Context, event events.Event) error {
	n.send(ctx, event, notify.Message{
		ChatID: event.OwnerID,
		Text:   "🚚 <b>Shipping Options</b>\n\nHow would you like to receive your order?",
		Buttons: [][]notify.Button{
			{{Label: "📦 Ship to Me", Data: notify.Callback(notify.ActionShipOption, string(domain.ShippingTypeShip), event.TicketID)}},
			{{Label: "🏃 Pick Up from Staff", Data: notify.Callback(notify.ActionShipOption, string(domain.ShippingTypePickup), event.TicketID)}},
		},
	})
	return nil
}

func (n *NotificationService) handleShippingDetailsSubmitted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.ShippingDetailsPayload)
	var text string
	if payload.Type == string(domain.ShippingTypePickup) {
		text = fmt.Sprintf("🏃 <b>Pickup Request</b>\n🎫 Ticket: %s\n👤 User: ID %d\n\n⚡ Speed: %s",
			event.TicketID, event.OwnerID, payload.Method)
	} else {
		text = fmt.Sprintf("📦 <b>Shipping Details Received</b>\n🎫 Ticket: %s\n👤 User: ID %d\n\n📛 Name: %s\n🏠 Address: %s\n🚚 Method: %s",
			event.TicketID, event.OwnerID, payload.Name, payload.Address, payload.Method)
	}
	n.sendStaff(ctx, event, text, nil)
	return nil
}

func (n *NotificationService) handleInactivityPrompt(ctx context.Context, event events.Event) error {
	n.sendStaff(ctx, event,
		fmt.Sprintf("⏳ <b>Inactivity Alert</b>\nTicket %s has been inactive for over 24 hours.\nClose it?", event.TicketID),
		[][]notify.Button{
			{{Label: "Yes (Close)", Data: notify.Callback(notify.ActionInactiveClose, event.TicketID)}},
			{{Label: "No (Keep Open)", Data: notify.Callback(notify.ActionInactiveKeep, event.TicketID)}},
		})
	return nil
}

func (n *NotificationService) handleReviewSubmitted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.ReviewSubmittedPayload)
	text := fmt.Sprintf("🌟 <b>New Review!</b>\n👤 User: ID %d\n⭐ Rating: %s/5\n💬 Review: %s",
		event.OwnerID, payload.Stars, payload.Text)
	for _, chatID := range n.targets.Reviews() {
		n.send(ctx, event, notify.Message{ChatID: chatID, Text: text, PhotoIDs: payload.Photos})
	}
	return nil
}

func (n *NotificationService) handlePointsGranted(ctx context.Context, event events.Event) error {
	payload, _ := event.Payload.(events.PointsGrantedPayload)
	n.send(ctx, event, notify.Message{
		ChatID: event.OwnerID,
		Text:   fmt.Sprintf("🎉 You have received %d referral points from an admin!", payload.Amount),
	})
	return nil
}

func (n *NotificationService) sendStaff(ctx context.Context, event events.Event, text string, buttons [][]notify.Button) {
	for _, chatID := range n.targets.Staff() {
		n.send(ctx, event, notify.Message{ChatID: chatID, Text: text, Buttons: buttons})
	}
}

func (n *NotificationService) send(ctx context.Context, event events.Event, msg notify.Message) {
	if n.notifier == nil {
		return
	}
	if err := n.notifier.Send(ctx, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}
