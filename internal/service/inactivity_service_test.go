package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/orderdesk/pkg/util/errorutil"
)

func TestSweepPromptsOncePerIdlePeriod(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")
	h.notifier.reset()

	h.clock.Advance(23 * time.Hour)
	report, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Prompted)

	h.clock.Advance(2 * time.Hour)
	report, err = h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, report.Prompted)

	h.clock.Advance(time.Hour)
	report, err = h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Prompted, "no repeat prompt while unanswered")

	alerts := h.notifier.to(testSupportChat)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Text, "Inactivity Alert")
	require.Len(t, alerts[0].Buttons, 2)
	assert.Equal(t, "inact_yes_"+ticket.ID, alerts[0].Buttons[0][0].Data)
	assert.Equal(t, "inact_no_"+ticket.ID, alerts[0].Buttons[1][0].Data)
}

func TestSnoozeDefersNextPrompt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")

	h.clock.Advance(25 * time.Hour)
	_, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)

	result, err := h.inactivity.RespondToPrompt(ctx, ticket.ID, PromptKeep)
	require.NoError(t, err)
	require.NotNil(t, result.SnoozedUntil)
	assert.Equal(t, h.clock.Now().Add(4*time.Hour), *result.SnoozedUntil)

	h.clock.Advance(3 * time.Hour)
	report, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Prompted)

	h.clock.Advance(2 * time.Hour)
	report, err = h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, report.Prompted)
}

func TestActivityResetsPromptState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")

	h.clock.Advance(25 * time.Hour)
	_, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)

	require.NoError(t, h.ticketSvc.TouchActivity(ctx, ticket.ID))
	stored, err := h.ticketSvc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LastPromptAt)
	assert.Nil(t, stored.SnoozeUntil)

	h.clock.Advance(25 * time.Hour)
	report, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, report.Prompted)
}

func TestSweepHardClosesAbandonedTickets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")
	h.notifier.reset()

	h.clock.Advance(15 * 24 * time.Hour)
	report, err := h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ticket.ID}, report.Closed)
	assert.Empty(t, report.Prompted)

	owner := h.notifier.to(1)
	require.Len(t, owner, 1)
	assert.Contains(t, owner[0].Text, "extended inactivity")

	report, err = h.inactivity.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestRespondToPromptClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ticket := h.openTicket(t, 1, "Singles")

	result, err := h.inactivity.RespondToPrompt(ctx, ticket.ID, PromptClose)
	require.NoError(t, err)
	require.NotNil(t, result.Close)
	assert.Equal(t, CloseOutcomeClosed, result.Close.Outcome)

	_, err = h.inactivity.RespondToPrompt(ctx, ticket.ID, PromptKeep)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = h.inactivity.RespondToPrompt(ctx, ticket.ID, "maybe")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestPurgeClosedKeepsOpenTickets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	closed := h.openTicket(t, 1, "Singles")
	open := h.openTicket(t, 2, "Singles")
	_, err := h.ticketSvc.CloseTicket(ctx, closed.ID, "admin")
	require.NoError(t, err)

	h.clock.Advance(14 * 24 * time.Hour)
	deleted, err := h.inactivity.PurgeClosed(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	h.clock.Advance(2 * 24 * time.Hour)
	deleted, err = h.inactivity.PurgeClosed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = h.ticketSvc.GetTicket(ctx, closed.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = h.ticketSvc.GetTicket(ctx, open.ID)
	assert.NoError(t, err)
}
