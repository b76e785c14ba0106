package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spec-kit/orderdesk/internal/api/dto"
	"github.com/spec-kit/orderdesk/internal/api/http/handlers"
	"github.com/spec-kit/orderdesk/internal/auth"
	"github.com/spec-kit/orderdesk/internal/catalog"
	"github.com/spec-kit/orderdesk/internal/config"
	"github.com/spec-kit/orderdesk/internal/events"
	"github.com/spec-kit/orderdesk/internal/imageproxy"
	"github.com/spec-kit/orderdesk/internal/notify"
	"github.com/spec-kit/orderdesk/internal/repository"
	"github.com/spec-kit/orderdesk/internal/service"
	"github.com/spec-kit/orderdesk/internal/session"
)

const (
	testAdminID   int64 = 7
	testCustomer  int64 = 4242
	testStaffChat int64 = -100
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

type testServer struct {
	app      *fiber.App
	token    auth.AdminToken
	notifier *recordingNotifier
	fetches  int
	fetchErr error
	settings string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(repository.GormModels()...))

	ts := &testServer{
		token:    auth.NewAdminToken("123:abc", ""),
		notifier: &recordingNotifier{},
		settings: filepath.Join(t.TempDir(), "webapp_settings.json"),
	}

	ticketRepo := repository.NewGormTicketRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	referralRepo := repository.NewGormReferralRepository(db)
	configRepo := repository.NewGormConfigRepository(db)

	dispatcher := events.NewInMemoryDispatcher()
	targets := service.ChatTargets{SupportChatID: testStaffChat, AdminIDs: []int64{testAdminID}}
	service.NewNotificationService(dispatcher, ts.notifier, targets, nil).RegisterHandlers()

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		UserRepo:     userRepo,
		ReferralRepo: referralRepo,
		ConfigRepo:   configRepo,
		Dispatcher:   dispatcher,
	})
	inactivity := service.NewInactivityService(service.InactivityDependencies{
		TicketRepo:    ticketRepo,
		TicketService: tickets,
		Dispatcher:    dispatcher,
		Policy:        config.TicketConfig{SoftPromptTimeout: 24 * time.Hour, HardCloseTimeout: 14 * 24 * time.Hour, SnoozeDuration: 4 * time.Hour, RetentionDays: 15},
	})
	conversation := service.NewConversationService(service.ConversationDependencies{
		Sessions:      session.NewMemoryStore(time.Hour, nil),
		TicketService: tickets,
		Dispatcher:    dispatcher,
		Notifier:      ts.notifier,
		Targets:       targets,
	})
	settings := service.NewSettingsService(service.SettingsDependencies{ConfigRepo: configRepo, FilePath: ts.settings})

	coordinator := catalog.NewCoordinator(catalog.CoordinatorDependencies{
		Fetcher: catalog.FetcherFunc(func(context.Context) (*catalog.Document, error) {
			ts.fetches++
			if ts.fetchErr != nil {
				return nil, ts.fetchErr
			}
			return &catalog.Document{Data: []json.RawMessage{json.RawMessage(`{"name":"oak"}`)}}, nil
		}),
		MirrorPath: filepath.Join(t.TempDir(), "scraped_products.json"),
	})

	origin := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		if r.URL.Path == "/gone.png" {
			stdhttp.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(bytes.Repeat([]byte{1}, 1024))
	}))
	t.Cleanup(origin.Close)
	proxy := imageproxy.New(imageproxy.Config{CacheDir: t.TempDir(), Origin: origin.URL}, nil, nil, nil)

	authCfg := config.AuthConfig{AdminIDs: []int64{testAdminID}}
	ts.app = fiber.New()
	RegisterMiddlewares(ts.app, zap.NewNop(), nil, 5*time.Second)
	RegisterRoutes(ts.app, RouteConfig{
		Health:   handlers.NewHealthHandler("orderdesk", "test", nil),
		Catalog:  handlers.NewCatalogHandler(coordinator, nil),
		Settings: handlers.NewSettingsHandler(settings),
		Images:   handlers.NewImageHandler(proxy),
		Chat: handlers.NewChatHandler(handlers.ChatDependencies{
			Conversation: conversation,
			Tickets:      tickets,
			Users:        service.NewUserService(userRepo, dispatcher, nil),
			Referrals:    service.NewReferralService(service.ReferralDependencies{ReferralRepo: referralRepo, UserRepo: userRepo}),
			Inactivity:   inactivity,
			IsAdmin:      authCfg.IsAdmin,
		}),
		Tickets:         handlers.NewTicketsHandler(tickets, inactivity),
		AdminMiddleware: auth.NewAdminMiddleware(ts.token),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, body any) (*stdhttp.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func (ts *testServer) chatMessages(t *testing.T, update dto.ChatUpdate) []notify.Message {
	t.Helper()
	resp, raw := ts.do(t, fiber.MethodPost, "/chat/updates?token="+ts.token.String(), update)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	var reply dto.ChatReply
	require.NoError(t, json.Unmarshal(raw, &reply))
	for _, msg := range reply.Messages {
		assert.Equal(t, update.UserID, msg.ChatID)
	}
	return reply.Messages
}

func (ts *testServer) chat(t *testing.T, update dto.ChatUpdate) []string {
	t.Helper()
	messages := ts.chatMessages(t, update)
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		texts = append(texts, msg.Text)
	}
	return texts
}

func TestProductsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.fetchErr = errors.New("origin down")

	resp, raw := ts.do(t, fiber.MethodGet, "/api/products", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[],"error":true,"message":"Could not load product data"}`, string(raw))

	resp, raw = ts.do(t, fiber.MethodGet, "/api/products", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[],"error":true,"message":"Scrape cooldown active"}`, string(raw))
	assert.Equal(t, 1, ts.fetches)
}

func TestProductsServesFetchedSnapshot(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, raw := ts.do(t, fiber.MethodGet, "/api/products", nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"data":[{"name":"oak"}],"imagePathPrefix":"/uploads/products/"}`, string(raw))
		assert.Equal(t, "no-cache", resp.Header.Get(fiber.HeaderCacheControl))
	}
	assert.Equal(t, 1, ts.fetches)
}

func TestSaveSettings(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(t, fiber.MethodPost, "/api/save_settings", map[string]any{"token": "nope", "settings": map[string]any{}})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"error":true,"message":"Unauthorized"}`, string(raw))

	resp, raw = ts.do(t, fiber.MethodPost, "/api/save_settings", map[string]any{"token": ts.token.String(), "settings": []string{"x"}})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":true,"message":"Invalid settings"}`, string(raw))

	resp, raw = ts.do(t, fiber.MethodPost, "/api/save_settings", map[string]any{
		"token":    ts.token.String(),
		"settings": map[string]any{"h": []string{"sku-1"}},
	})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"message":"Settings saved"}`, string(raw))

	_, raw = ts.do(t, fiber.MethodGet, "/api/settings", nil)
	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, []any{"sku-1"}, got["h"])
	assert.Equal(t, map[string]any{}, got["r"])
	assert.NotEmpty(t, got["updatedAt"])
}

func TestImageEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(t, fiber.MethodGet, "/api/img?u=/uploads/products/oak.png", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, raw, 1024)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "public, max-age=86400", resp.Header.Get(fiber.HeaderCacheControl))

	resp, _ = ts.do(t, fiber.MethodGet, "/api/img", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, fiber.MethodGet, "/api/img?u=__cached__:abcdef.png", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = ts.do(t, fiber.MethodGet, "/api/img?u=/gone.png", nil)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestMiscRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, fiber.MethodGet, "/favicon.ico", nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, raw := ts.do(t, fiber.MethodPost, "/api/unknown", map[string]any{})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":true,"message":"Not found"}`, string(raw))

	req := httptest.NewRequest(fiber.MethodOptions, "/api/save_settings", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://shop.example")
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	preflight, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, preflight.StatusCode)
	assert.Contains(t, preflight.Header.Get(fiber.HeaderAccessControlAllowMethods), fiber.MethodPost)
	assert.Equal(t, "*", preflight.Header.Get(fiber.HeaderAccessControlAllowOrigin))

	resp, _ = ts.do(t, fiber.MethodGet, "/health/ready", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, raw = ts.do(t, fiber.MethodGet, "/metrics", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, raw)
}

func TestChatTicketFlow(t *testing.T) {
	ts := newTestServer(t)

	replies := ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "/start"})
	require.Len(t, replies, 1)

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "/new Flooring"})
	assert.Contains(t, replies[0], "referral code")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "BOGUS1"})
	assert.Contains(t, replies[0], "❌")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "skip"})
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0], "created")

	staff := ts.notifier.to(testStaffChat)
	require.Len(t, staff, 1)
	replyData := staff[0].Buttons[0][0].Data
	require.True(t, strings.HasPrefix(replyData, notify.ActionReply))
	ticketID := strings.TrimPrefix(replyData, notify.ActionReply)

	assert.Empty(t, ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "is this in stock?"}))
	staff = ts.notifier.to(testStaffChat)
	require.Len(t, staff, 2)
	assert.Contains(t, staff[1].Text, "is this in stock?")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Callback: replyData})
	assert.Contains(t, replies[0], "staff only")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testAdminID, Callback: replyData})
	assert.Contains(t, replies[0], ticketID)

	replies = ts.chat(t, dto.ChatUpdate{UserID: testAdminID, Text: "yes, ships Monday"})
	assert.Contains(t, replies[0], "Sent to "+ticketID)
	toCustomer := ts.notifier.to(testCustomer)
	require.NotEmpty(t, toCustomer)
	assert.Contains(t, toCustomer[len(toCustomer)-1].Text, "yes, ships Monday")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testAdminID, Text: "/status " + ticketID + " paid"})
	assert.Contains(t, replies[0], "Order Paid")

	replies = ts.chat(t, dto.ChatUpdate{UserID: testAdminID, Text: "/status " + ticketID + " teleported"})
	assert.Contains(t, replies[0], "⚠️")

	resp, raw := ts.do(t, fiber.MethodGet, "/api/admin/tickets/"+ticketID+"?token="+ts.token.String(), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail struct {
		Data dto.TicketDetailResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &detail))
	assert.Equal(t, "Order Paid", detail.Data.Status)
	assert.Equal(t, testCustomer, detail.Data.UserID)

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "/close"})
	assert.Contains(t, replies[0], "closed")

	resp, raw = ts.do(t, fiber.MethodGet, "/api/admin/tickets?token="+ts.token.String(), nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[]}`, string(raw))
}

func TestChatRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, fiber.MethodPost, "/chat/updates", dto.ChatUpdate{UserID: testCustomer, Text: "/start"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestChatReviewAndShippingFlows(t *testing.T) {
	ts := newTestServer(t)

	replies := ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "/review"})
	require.Len(t, replies, 1)
	ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Callback: notify.Callback(notify.ActionReviewStars, "4.5")})
	ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "Great planks"})
	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, PhotoIDs: []string{"p1", "p2"}})
	assert.Contains(t, replies[0], "2 photo(s)")
	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "done"})
	assert.Contains(t, replies[0], "4.5")

	ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "/new bulk"})
	ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "skip"})
	staff := ts.notifier.to(testStaffChat)
	ticketID := strings.TrimPrefix(staff[len(staff)-1].Buttons[0][0].Data, notify.ActionReply)

	ts.chat(t, dto.ChatUpdate{UserID: testAdminID, Text: "/status " + ticketID + " shipdetails"})
	prompt := ts.notifier.to(testCustomer)
	require.NotEmpty(t, prompt)
	shipData := prompt[len(prompt)-1].Buttons[0][0].Data
	require.Equal(t, notify.Callback(notify.ActionShipOption, "ship", ticketID), shipData)

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Callback: shipData})
	assert.Contains(t, replies[0], "full name")
	ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "Jo Doe"})
	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Text: "somewhere"})
	assert.Contains(t, replies[0], "Street Address, City, State ZipCode")
	methods := ts.chatMessages(t, dto.ChatUpdate{UserID: testCustomer, Text: "12 Elm St, Springfield, IL 62704"})
	require.Len(t, methods, 1)
	require.Len(t, methods[0].Buttons, 2)
	methodData := notify.Callback(notify.ActionShipMethod, service.ShippingMethodPriority, ticketID)
	assert.Equal(t, methodData, methods[0].Buttons[1][0].Data)

	replies = ts.chat(t, dto.ChatUpdate{UserID: testCustomer, Callback: methodData})
	assert.Contains(t, replies[0], "Priority Shipping")
	staff = ts.notifier.to(testStaffChat)
	assert.Contains(t, staff[len(staff)-1].Text, "12 Elm St")
}
