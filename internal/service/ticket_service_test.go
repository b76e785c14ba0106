package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/orderdesk/internal/domain"
	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

func TestTicketSuffix(t *testing.T) {
	cases := map[int64]string{
		1:   "1",
		42:  "42",
		99:  "99",
		100: "A",
		101: "B",
		125: "Z",
		126: "AA",
		151: "AZ",
		152: "BA",
	}
	for n, want := range cases {
		assert.Equal(t, want, TicketSuffix(n), "n=%d", n)
	}
}

func TestGenerateTicketIDShape(t *testing.T) {
	id := GenerateTicketID(100)
	prefix, suffix, ok := strings.Cut(id, "-")
	require.True(t, ok)
	assert.Len(t, prefix, 6)
	assert.Equal(t, "A", suffix)
	for _, r := range prefix {
		assert.True(t, strings.ContainsRune(ticketAlphabet, r), "unexpected rune %q", r)
	}
}

func TestCreateTicketUsesSequence(t *testing.T) {
	h := newHarness(t)
	for i, want := range []string{"1", "2", "3"} {
		ticket := h.openTicket(t, int64(10+i), "Singles")
		assert.True(t, strings.HasSuffix(ticket.ID, "-"+want), ticket.ID)
		assert.Equal(t, domain.StatusCreated, ticket.Status)
	}

	staff := h.notifier.to(testSupportChat)
	require.Len(t, staff, 3)
	assert.Contains(t, staff[0].Text, "New Ticket Created!")
	require.Len(t, staff[0].Buttons, 1)
	assert.True(t, strings.HasPrefix(staff[0].Buttons[0][0].Data, "reply_"))
}

func TestCreateTicketReferralValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	referral, err := h.referralSvc.Generate(ctx, 2)
	require.NoError(t, err)

	_, err = h.ticketSvc.CreateTicket(ctx, 2, "Bulk", referral.Code)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
	assert.Equal(t, "self", apperrors.ToDomainError(err).Details["reason"])

	_, err = h.ticketSvc.CreateTicket(ctx, 1, "Bulk", "NOPE99")
	require.Error(t, err)
	assert.Equal(t, "unknown", apperrors.ToDomainError(err).Details["reason"])

	ticket, err := h.ticketSvc.CreateTicket(ctx, 1, "Bulk", strings.ToLower(referral.Code))
	require.NoError(t, err)
	require.NotNil(t, ticket.ReferralCode)
	assert.Equal(t, referral.Code, *ticket.ReferralCode)

	points, err := h.userSvc.Points(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, points, "no points until completion")

	staff := h.notifier.to(testSupportChat)
	require.Len(t, staff, 1)
	assert.Contains(t, staff[0].Text, "Referral Used:")
}

func TestCreateTicketRejectsBannedUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.userSvc.SetBanned(ctx, 5, true))

	_, err := h.ticketSvc.CreateTicket(ctx, 5, "Singles", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	require.NoError(t, h.userSvc.SetBanned(ctx, 5, false))
	_, err = h.ticketSvc.CreateTicket(ctx, 5, "Singles", "")
	assert.NoError(t, err)
}

func TestAdvanceStatusLabels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")
	h.notifier.reset()

	result, err := h.ticketSvc.AdvanceStatus(ctx, strings.ToLower(ticket.ID), " Paid ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, result.NewStatus)
	assert.False(t, result.Closed)

	owner := h.notifier.to(1)
	require.Len(t, owner, 1)
	assert.Contains(t, owner[0].Text, domain.StatusPaid)

	_, err = h.ticketSvc.AdvanceStatus(ctx, ticket.ID, "teleported")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	_, err = h.ticketSvc.AdvanceStatus(ctx, "ZZZZZZ-9", "paid")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestShippedWaitsForTrackingCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Bulk")
	h.notifier.reset()

	result, err := h.ticketSvc.AdvanceStatus(ctx, ticket.ID, "shipped")
	require.NoError(t, err)
	assert.True(t, result.AwaitingTracking)
	assert.Empty(t, result.NewStatus)

	current, err := h.ticketSvc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, current.Status)
	assert.Empty(t, h.notifier.to(1))

	_, err = h.ticketSvc.MarkShipped(ctx, ticket.ID, "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	shipped, err := h.ticketSvc.MarkShipped(ctx, ticket.ID, "1Z999AA1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, shipped.Status)

	owner := h.notifier.to(1)
	require.Len(t, owner, 1, "one notification for the shipped transition")
	assert.Contains(t, owner[0].Text, "1Z999AA1")
}

func TestCompletionCreditsReferrerOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	referral, err := h.referralSvc.Generate(ctx, 2)
	require.NoError(t, err)
	ticket, err := h.ticketSvc.CreateTicket(ctx, 1, "Singles", referral.Code)
	require.NoError(t, err)

	result, err := h.ticketSvc.AdvanceStatus(ctx, ticket.ID, "delivered")
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.Equal(t, domain.StatusDelivered, result.NewStatus)
	assert.NotEmpty(t, result.Warning, "singles ticket marked delivered")
	require.NotNil(t, result.ReferrerID)
	assert.Equal(t, int64(2), *result.ReferrerID)

	_, err = h.ticketSvc.AdvanceStatus(ctx, ticket.ID, "complete")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	points, err := h.userSvc.Points(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, points)

	referrer := h.notifier.to(2)
	require.Len(t, referrer, 1)
	assert.Contains(t, referrer[0].Text, "Referral Bonus!")

	stored, err := h.ticketSvc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.Closed)
	assert.NotNil(t, stored.ClosedAt)
}

func TestCompleteWithoutReferral(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Bulk Lots")

	result, err := h.ticketSvc.AdvanceStatus(ctx, ticket.ID, "complete")
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.Nil(t, result.ReferrerID)
	assert.Equal(t, "this ticket does not seem to be singles", result.Warning)
}

func TestCloseOutcomes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	result, err := h.ticketSvc.CloseLatestForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, CloseOutcomeNoOpenTicket, result.Outcome)

	older := h.openTicket(t, 1, "Singles")
	h.clock.Advance(time.Second)
	newer := h.openTicket(t, 1, "Bulk")

	result, err = h.ticketSvc.CloseLatestForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, CloseOutcomeClosed, result.Outcome)
	assert.Equal(t, newer.ID, result.TicketID)

	result, err = h.ticketSvc.CloseTicket(ctx, newer.ID, domain.CloseActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, CloseOutcomeAlreadyClosed, result.Outcome)

	result, err = h.ticketSvc.CloseTicket(ctx, older.ID, domain.CloseActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, CloseOutcomeClosed, result.Outcome)

	_, err = h.ticketSvc.CloseTicket(ctx, "NOPE00-1", domain.CloseActorAdmin)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	open, err := h.ticketSvc.ListOpenForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestTicketInfo(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	referral, err := h.referralSvc.Generate(ctx, 9)
	require.NoError(t, err)
	ticket, err := h.ticketSvc.CreateTicket(ctx, 1, "Singles", referral.Code)
	require.NoError(t, err)
	_, err = h.userSvc.AddPoints(ctx, 1, 3)
	require.NoError(t, err)

	info, err := h.ticketSvc.TicketInfo(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, info.OwnerPoints)
	require.NotNil(t, info.ReferrerID)
	assert.Equal(t, int64(9), *info.ReferrerID)
}

func TestUserPoints(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.userSvc.AddPoints(ctx, 4, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))

	balance, err := h.userSvc.AddPoints(ctx, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	require.Len(t, h.notifier.to(4), 1)

	balance, err = h.userSvc.RemovePoints(ctx, 4, 8)
	require.NoError(t, err)
	assert.Zero(t, balance)

	summary, err := h.referralSvc.Summary(ctx, 4)
	require.NoError(t, err)
	assert.Zero(t, summary.Points)
	assert.Empty(t, summary.Codes)
}

func TestReferralGenerateRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	svc := NewReferralService(ReferralDependencies{
		ReferralRepo: h.referralRepo,
		UserRepo:     h.users,
		CodeGenerator: func() string {
			code := codes[0]
			codes = codes[1:]
			return code
		},
	})

	first, err := svc.Generate(ctx, 1)
	require.NoError(t, err)
	second, err := svc.Generate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)
	assert.Equal(t, "BBBBBB", second.Code)

	summary, err := svc.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAA", "BBBBBB"}, summary.Codes)
}
