package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/domain"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/notify"
	"github.com/spec-kit/orderdesk/internal/repository"
	"github.com/spec-kit/orderdesk/internal/session"
)

const (
	testSupportChat int64 = -1000
	testReviewChat  int64 = -2000
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingNotifier) to(chatID int64) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, msg := range r.sent {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	tickets      repository.TicketRepository
	users        repository.UserRepository
	referralRepo repository.ReferralRepository
	clock        *manualClock
	notifier     *recordingNotifier
	ticketSvc    *TicketService
	referralSvc  *ReferralService
	userSvc      *UserService
	inactivity   *InactivityService
	conversation *ConversationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(repository.GormModels()...))

	h := &harness{
		tickets:      repository.NewGormTicketRepository(db),
		users:        repository.NewGormUserRepository(db),
		referralRepo: repository.NewGormReferralRepository(db),
		clock:        &manualClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		notifier:     &recordingNotifier{},
	}
	dispatcher := events.NewInMemoryDispatcher()
	targets := ChatTargets{SupportChatID: testSupportChat, ReviewChatID: testReviewChat}
	NewNotificationService(dispatcher, h.notifier, targets, nil).RegisterHandlers()

	h.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:   h.tickets,
		UserRepo:     h.users,
		ReferralRepo: h.referralRepo,
		ConfigRepo:   repository.NewGormConfigRepository(db),
		Dispatcher:   dispatcher,
		Clock:        h.clock.Now,
	})
	h.referralSvc = NewReferralService(ReferralDependencies{
		ReferralRepo: h.referralRepo,
		UserRepo:     h.users,
		Clock:        h.clock.Now,
	})
	h.userSvc = NewUserService(h.users, dispatcher, nil)
	h.inactivity = NewInactivityService(InactivityDependencies{
		TicketRepo:    h.tickets,
		TicketService: h.ticketSvc,
		Dispatcher:    dispatcher,
		Policy: config.TicketConfig{
			SoftPromptTimeout: 24 * time.Hour,
			HardCloseTimeout:  14 * 24 * time.Hour,
			SnoozeDuration:    4 * time.Hour,
			RetentionDays:     15,
		},
		Clock: h.clock.Now,
	})
	h.conversation = NewConversationService(ConversationDependencies{
		Sessions:      session.NewMemoryStore(time.Hour, h.clock.Now),
		TicketService: h.ticketSvc,
		Dispatcher:    dispatcher,
		Notifier:      h.notifier,
		Targets:       targets,
	})
	return h
}

func (h *harness) openTicket(t *testing.T, userID int64, section string) *domain.Ticket {
	t.Helper()
	ticket, err := h.ticketSvc.CreateTicket(context.Background(), userID, section, "")
	require.NoError(t, err)
	return ticket
}
