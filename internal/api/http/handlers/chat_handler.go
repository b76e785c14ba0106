package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/orderdesk/internal/api/dto"
	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/notify"
	"github.com/spec-kit/orderdesk/internal/service"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

var reviewStarChoices = []string{"1", "1.5", "2", "2.5", "3", "3.5", "4", "4.5", "5"}

// ChatHandler turns chat gateway updates into service calls and answers with
// the messages for the sender. Messages for other chats go out through the
// notifier.
type ChatHandler struct {
	conversation *service.ConversationService
	tickets      *service.TicketService
	users        *service.UserService
	referrals    *service.ReferralService
	inactivity   *service.InactivityService
	isAdmin      func(userID int64) bool
	logger       *zap.Logger
}

// ChatDependencies bundles collaborators for ChatHandler.
type ChatDependencies struct {
	Conversation *service.ConversationService
	Tickets      *service.TicketService
	Users        *service.UserService
	Referrals    *service.ReferralService
	Inactivity   *service.InactivityService
	IsAdmin      func(userID int64) bool
	Logger       *zap.Logger
}

// NewChatHandler constructs handler.
func NewChatHandler(deps ChatDependencies) *ChatHandler {
	h := &ChatHandler{
		conversation: deps.Conversation,
		tickets:      deps.Tickets,
		users:        deps.Users,
		referrals:    deps.Referrals,
		inactivity:   deps.Inactivity,
		isAdmin:      deps.IsAdmin,
		logger:       deps.Logger,
	}
	if h.isAdmin == nil {
		h.isAdmin = func(int64) bool { return false }
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Update POST /chat/updates.
func (h *ChatHandler) Update(c *fiber.Ctx) error {
	var update dto.ChatUpdate
	if err := c.BodyParser(&update); err != nil {
		return apperrors.NewInvalidInput("invalid payload", nil)
	}
	if update.UserID == 0 {
		return apperrors.NewInvalidInput("user_id required", nil)
	}

	reply := &replyBuilder{chatID: update.UserID}
	if err := h.route(c.UserContext(), update, reply); err != nil {
		domainErr := apperrors.ToDomainError(err)
		if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
			h.logger.Error("chat update failed", zap.Int64("user_id", update.UserID), zap.Error(err))
			return err
		}
		reply.text("⚠️ " + userFacing(domainErr))
	}
	return c.JSON(dto.ChatReply{Messages: reply.messages})
}

func userFacing(err *apperrors.DomainError) string {
	if expected, ok := err.Details["expected"].(string); ok {
		return fmt.Sprintf("%s. Expected: %s", err.Message, expected)
	}
	return err.Message
}

func (h *ChatHandler) route(ctx context.Context, u dto.ChatUpdate, r *replyBuilder) error {
	if u.Callback != "" {
		return h.callback(ctx, u, r)
	}
	text := strings.TrimSpace(u.Text)
	if strings.HasPrefix(text, "/") {
		command, args := splitCommand(text)
		if h.isAdmin(u.UserID) {
			handled, err := h.adminCommand(ctx, u.UserID, command, args, r)
			if handled || err != nil {
				return err
			}
		}
		return h.userCommand(ctx, u.UserID, command, args, r)
	}
	return h.message(ctx, u, text, r)
}

func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	command := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	// Group chats append the bot name: /status@desk_bot.
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	return command, fields[1:]
}

func (h *ChatHandler) userCommand(ctx context.Context, userID int64, command string, args []string, r *replyBuilder) error {
	switch command {
	case "start":
		if err := h.users.Register(ctx, userID); err != nil {
			return err
		}
		r.text("👋 Welcome! Use /new <section> to open a ticket, /tickets to see your open tickets and /review to leave a review.")
	case "new":
		section := strings.Join(args, " ")
		if err := h.conversation.BeginTicket(ctx, userID, section); err != nil {
			return err
		}
		r.text("Do you have a referral code? Send it now, or type <b>skip</b>.")
	case "cancel":
		cancelled, err := h.conversation.Cancel(ctx, userID)
		if err != nil {
			return err
		}
		if cancelled {
			r.text("Cancelled.")
		} else {
			r.text("Nothing to cancel.")
		}
	case "close":
		result, err := h.tickets.CloseLatestForUser(ctx, userID)
		if err != nil {
			return err
		}
		r.text(closeOutcomeText(result))
	case "tickets":
		return h.listOwnTickets(ctx, userID, r)
	case "points":
		summary, err := h.referrals.Summary(ctx, userID)
		if err != nil {
			return err
		}
		codes := "none yet, use /referral"
		if len(summary.Codes) > 0 {
			codes = strings.Join(summary.Codes, ", ")
		}
		r.text(fmt.Sprintf("⭐ You have <b>%d</b> points.\nYour referral codes: %s", summary.Points, codes))
	case "referral":
		referral, err := h.referrals.Generate(ctx, userID)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("🎟 Your referral code: <code>%s</code>\nShare it; you earn a point when a referred order completes.", referral.Code))
	case "review":
		if err := h.conversation.BeginReview(ctx, userID); err != nil {
			return err
		}
		r.withButtons("How many stars would you give us?", starButtons())
	case "done":
		return h.finishReview(ctx, userID, r)
	default:
		r.text("Unknown command.")
	}
	return nil
}

func (h *ChatHandler) adminCommand(ctx context.Context, adminID int64, command string, args []string, r *replyBuilder) (bool, error) {
	switch command {
	case "reply":
		if len(args) != 1 {
			return true, usage("/reply <ticket>")
		}
		return true, h.beginReply(ctx, adminID, args[0], r)
	case "stop":
		ticketID, err := h.conversation.StopReply(ctx, adminID)
		if err != nil {
			return true, err
		}
		if ticketID == "" {
			r.text("You were not replying to a ticket.")
		} else {
			r.text(fmt.Sprintf("Stopped replying to %s.", ticketID))
		}
	case "status":
		if len(args) != 2 {
			return true, usage("/status <ticket> <" + statusKeyList() + ">")
		}
		result, err := h.conversation.AdvanceStatus(ctx, adminID, args[0], args[1])
		if err != nil {
			return true, err
		}
		r.text(statusChangeText(result))
	case "close":
		if len(args) == 0 {
			return false, nil
		}
		result, err := h.tickets.CloseTicket(ctx, args[0], domain.CloseActorAdmin)
		if err != nil {
			return true, err
		}
		r.text(closeOutcomeText(result))
	case "ping":
		if len(args) != 1 {
			return true, usage("/ping <ticket>")
		}
		return true, h.ping(ctx, args[0], r)
	case "info":
		if len(args) != 1 {
			return true, usage("/info <ticket>")
		}
		info, err := h.tickets.TicketInfo(ctx, args[0])
		if err != nil {
			return true, err
		}
		r.text(ticketInfoText(info))
	case "open":
		tickets, err := h.tickets.ListOpen(ctx)
		if err != nil {
			return true, err
		}
		if len(tickets) == 0 {
			r.text("No open tickets.")
			return true, nil
		}
		lines := make([]string, 0, len(tickets))
		for _, t := range tickets {
			lines = append(lines, fmt.Sprintf("• %s (%d) %s: %s", t.ID, t.UserID, t.Section, t.Status))
		}
		r.text("📋 Open tickets:\n" + strings.Join(lines, "\n"))
	case "ban", "unban":
		userID, err := parseUserArg(args, "/"+command+" <user>")
		if err != nil {
			return true, err
		}
		if err := h.users.SetBanned(ctx, userID, command == "ban"); err != nil {
			return true, err
		}
		r.text(fmt.Sprintf("User %d %sned.", userID, command))
	case "addpoints", "removepoints":
		if len(args) != 2 {
			return true, usage("/" + command + " <user> <amount>")
		}
		userID, err := parseUserArg(args[:1], "/"+command+" <user> <amount>")
		if err != nil {
			return true, err
		}
		amount, err := strconv.Atoi(args[1])
		if err != nil || amount <= 0 {
			return true, apperrors.NewInvalidInput("amount must be a positive number", nil)
		}
		var balance int
		if command == "addpoints" {
			balance, err = h.users.AddPoints(ctx, userID, amount)
		} else {
			balance, err = h.users.RemovePoints(ctx, userID, amount)
		}
		if err != nil {
			return true, err
		}
		r.text(fmt.Sprintf("User %d now has %d points.", userID, balance))
	default:
		return false, nil
	}
	return true, nil
}

func (h *ChatHandler) callback(ctx context.Context, u dto.ChatUpdate, r *replyBuilder) error {
	action, rest, err := notify.ParseCallback(u.Callback,
		notify.ActionReply, notify.ActionPing,
		notify.ActionInactiveClose, notify.ActionInactiveKeep,
		notify.ActionShipOption, notify.ActionShipMethod,
		notify.ActionReviewStars, notify.ActionSelectTicket,
	)
	if err != nil {
		return apperrors.NewInvalidInput("unknown button", nil)
	}

	switch action {
	case notify.ActionReply, notify.ActionPing, notify.ActionInactiveClose, notify.ActionInactiveKeep:
		if !h.isAdmin(u.UserID) {
			return apperrors.NewForbidden("staff only")
		}
	}

	switch action {
	case notify.ActionReply:
		return h.beginReply(ctx, u.UserID, rest, r)
	case notify.ActionPing:
		return h.ping(ctx, rest, r)
	case notify.ActionInactiveClose:
		result, err := h.inactivity.RespondToPrompt(ctx, rest, service.PromptClose)
		if err != nil {
			return err
		}
		r.text(closeOutcomeText(result.Close))
	case notify.ActionInactiveKeep:
		result, err := h.inactivity.RespondToPrompt(ctx, rest, service.PromptKeep)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("Keeping %s open. Next check after %s.", rest, result.SnoozedUntil.Format("Jan 2 15:04 MST")))
	case notify.ActionShipOption:
		option, ticketID, ok := strings.Cut(rest, "_")
		if !ok {
			return apperrors.NewInvalidInput("unknown button", nil)
		}
		step, err := h.conversation.ChooseShippingOption(ctx, u.UserID, ticketID, domain.ShippingType(option))
		if err != nil {
			return err
		}
		h.shippingPrompt(step, ticketID, r)
	case notify.ActionShipMethod:
		method, ticketID, ok := strings.Cut(rest, "_")
		if !ok {
			return apperrors.NewInvalidInput("unknown button", nil)
		}
		details, err := h.conversation.ChooseShippingMethod(ctx, u.UserID, ticketID, method)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("✅ Thanks! Your shipping details for %s were sent to staff (%s).", details.TicketID, details.Method))
	case notify.ActionReviewStars:
		if err := h.conversation.ChooseStars(ctx, u.UserID, rest); err != nil {
			return err
		}
		r.text("Please write your review.")
	case notify.ActionSelectTicket:
		ticket, err := h.conversation.SelectTicket(ctx, u.UserID, rest)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("Your messages now go to ticket %s.", ticket.ID))
	}
	return nil
}

// message routes free text and photos by the sender's active sub-flow.
func (h *ChatHandler) message(ctx context.Context, u dto.ChatUpdate, text string, r *replyBuilder) error {
	current, err := h.conversation.Session(ctx, u.UserID)
	if err != nil {
		return err
	}

	switch state := current.(type) {
	case domain.AwaitingReferral:
		outcome, err := h.conversation.SubmitReferral(ctx, u.UserID, text)
		if err != nil {
			return err
		}
		if outcome.Invalid {
			r.text("❌ " + outcome.Reason + ". Send another code or type <b>skip</b>.")
			return nil
		}
		r.text(fmt.Sprintf("🎫 Ticket <b>%s</b> created. Send your message and staff will reply here.", outcome.Ticket.ID))
		return nil
	case domain.CollectingShipping:
		step, err := h.conversation.SubmitShippingText(ctx, u.UserID, text)
		if err != nil {
			return err
		}
		h.shippingPrompt(step, state.TicketID, r)
		return nil
	case domain.InReview:
		return h.reviewMessage(ctx, u, state, text, r)
	case domain.AwaitingTracking:
		ticket, err := h.conversation.SubmitTracking(ctx, u.UserID, text)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("📦 %s marked as shipped.", ticket.ID))
		return nil
	}

	if h.isAdmin(u.UserID) {
		if _, replying := current.(domain.ReplyingTo); !replying {
			r.text("Select a ticket with /reply <ticket> first.")
			return nil
		}
		ticket, err := h.conversation.RelayFromAdmin(ctx, u.UserID, text, u.PhotoIDs)
		if err != nil {
			return err
		}
		r.text(fmt.Sprintf("✉️ Sent to %s.", ticket.ID))
		return nil
	}

	if text == "" && len(u.PhotoIDs) == 0 {
		return nil
	}
	if _, err := h.conversation.RelayFromUser(ctx, u.UserID, text, u.PhotoIDs); err != nil {
		if apperrors.HasCode(err, apperrors.CodeNotFound) {
			r.text("You have no open tickets. Use /new <section> to open one.")
			return nil
		}
		return err
	}
	return nil
}

func (h *ChatHandler) reviewMessage(ctx context.Context, u dto.ChatUpdate, state domain.InReview, text string, r *replyBuilder) error {
	switch state.Step {
	case domain.ReviewStepStars:
		r.withButtons("Please pick a rating.", starButtons())
		return nil
	case domain.ReviewStepText:
		if err := h.conversation.SubmitReviewText(ctx, u.UserID, text); err != nil {
			return err
		}
		r.text("Send photos if you like, then type <b>done</b> (or <b>skip</b>).")
		return nil
	}

	if len(u.PhotoIDs) == 0 {
		switch strings.ToLower(text) {
		case "done", "skip":
			return h.finishReview(ctx, u.UserID, r)
		}
		r.text("Send a photo, or type <b>done</b> to post your review.")
		return nil
	}
	var count int
	for _, photoID := range u.PhotoIDs {
		n, err := h.conversation.AddReviewPhoto(ctx, u.UserID, photoID)
		if err != nil {
			return err
		}
		count = n
	}
	r.text(fmt.Sprintf("📸 %d photo(s) attached. Send more or type <b>done</b>.", count))
	return nil
}

func (h *ChatHandler) finishReview(ctx context.Context, userID int64, r *replyBuilder) error {
	review, err := h.conversation.FinishReview(ctx, userID)
	if err != nil {
		return err
	}
	r.text(fmt.Sprintf("🙏 Thanks for your %s⭐ review!", review.Stars))
	return nil
}

func (h *ChatHandler) beginReply(ctx context.Context, adminID int64, ticketID string, r *replyBuilder) error {
	ticket, err := h.conversation.BeginReply(ctx, adminID, ticketID)
	if err != nil {
		return err
	}
	r.text(fmt.Sprintf("✍️ Replying to %s (user %d). Messages you send now go to the customer; /stop to finish.", ticket.ID, ticket.UserID))
	return nil
}

func (h *ChatHandler) ping(ctx context.Context, ticketID string, r *replyBuilder) error {
	ticket, err := h.conversation.PingOwner(ctx, ticketID)
	if err != nil {
		return err
	}
	r.text(fmt.Sprintf("🔔 Pinged the owner of %s.", ticket.ID))
	return nil
}

func (h *ChatHandler) listOwnTickets(ctx context.Context, userID int64, r *replyBuilder) error {
	tickets, err := h.tickets.ListOpenForUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		r.text("You have no open tickets.")
		return nil
	}
	buttons := make([][]notify.Button, 0, len(tickets))
	for _, t := range tickets {
		buttons = append(buttons, []notify.Button{{
			Label: fmt.Sprintf("%s · %s", t.ID, t.Status),
			Data:  notify.Callback(notify.ActionSelectTicket, t.ID),
		}})
	}
	r.withButtons("Your open tickets. Pick one to send messages to it:", buttons)
	return nil
}

func (h *ChatHandler) shippingPrompt(step domain.ShippingStep, ticketID string, r *replyBuilder) {
	switch step {
	case domain.ShippingStepName:
		r.text("Please send your full name.")
	case domain.ShippingStepAddress:
		r.text("Please send your address as: Street Address, City, State ZipCode")
	case domain.ShippingStepMethod:
		r.withButtons("Choose a shipping method:", [][]notify.Button{
			{{Label: "Standard Shipping ($20, 3-7 days)", Data: notify.Callback(notify.ActionShipMethod, service.ShippingMethodStandard, ticketID)}},
			{{Label: "Priority Shipping ($35, 2-4 days)", Data: notify.Callback(notify.ActionShipMethod, service.ShippingMethodPriority, ticketID)}},
		})
	}
}

func starButtons() [][]notify.Button {
	row := make([]notify.Button, 0, len(reviewStarChoices))
	for _, stars := range reviewStarChoices {
		row = append(row, notify.Button{Label: stars + "⭐", Data: notify.Callback(notify.ActionReviewStars, stars)})
	}
	return [][]notify.Button{row[:5], row[5:]}
}

func statusKeyList() string {
	keys := make([]string, 0, len(domain.StatusKeys))
	for _, key := range domain.StatusKeys {
		keys = append(keys, string(key))
	}
	return strings.Join(keys, "|")
}

func statusChangeText(result *service.StatusChangeResult) string {
	var b strings.Builder
	switch {
	case result.AwaitingTracking:
		fmt.Fprintf(&b, "Send the tracking code for %s.", result.Ticket.ID)
	case result.Key == domain.StatusKeyShipDetails:
		fmt.Fprintf(&b, "Asked the owner of %s for shipping details.", result.Ticket.ID)
	case result.Closed:
		fmt.Fprintf(&b, "✅ %s completed and closed.", result.Ticket.ID)
		if result.ReferrerID != nil {
			fmt.Fprintf(&b, " Referral point credited to %d.", *result.ReferrerID)
		}
	default:
		fmt.Fprintf(&b, "%s is now: %s", result.Ticket.ID, result.NewStatus)
	}
	if result.Warning != "" {
		b.WriteString("\n⚠️ " + result.Warning)
	}
	return b.String()
}

func closeOutcomeText(result *service.CloseResult) string {
	switch result.Outcome {
	case service.CloseOutcomeClosed:
		return fmt.Sprintf("🔒 Ticket %s closed.", result.TicketID)
	case service.CloseOutcomeAlreadyClosed:
		return fmt.Sprintf("Ticket %s was already closed.", result.TicketID)
	default:
		return "You have no open tickets."
	}
}

func ticketInfoText(info *service.TicketInfo) string {
	t := info.Ticket
	state := "open"
	if t.Closed {
		state = "closed"
	}
	referral := "none"
	if t.ReferralCode != nil {
		referral = *t.ReferralCode
		if info.ReferrerID != nil {
			referral += fmt.Sprintf(" (from %d)", *info.ReferrerID)
		}
	}
	return fmt.Sprintf("🎫 <b>%s</b> (%s)\nUser: %d (%d points)\nSection: %s\nStatus: %s\nCreated: %s\nLast activity: %s\nReferral: %s",
		t.ID, state, t.UserID, info.OwnerPoints, t.Section, t.Status,
		t.CreatedAt.Format("2006-01-02 15:04"), t.LastActivity.Format("2006-01-02 15:04"), referral)
}

func parseUserArg(args []string, usageText string) (int64, error) {
	if len(args) != 1 {
		return 0, usage(usageText)
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, apperrors.NewInvalidInput("user must be a numeric id", nil)
	}
	return userID, nil
}

func usage(text string) error {
	return apperrors.NewInvalidInput("usage: "+text, nil)
}

type replyBuilder struct {
	chatID   int64
	messages []notify.Message
}

func (r *replyBuilder) text(text string) {
	r.messages = append(r.messages, notify.Message{ChatID: r.chatID, Text: text})
}

func (r *replyBuilder) withButtons(text string, buttons [][]notify.Button) {
	r.messages = append(r.messages, notify.Message{ChatID: r.chatID, Text: text, Buttons: buttons})
}
