package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onyxchat/relay-backend/internal/config"
	"github.com/onyxchat/relay-backend/internal/db"
	"github.com/onyxchat/relay-backend/internal/handlers"
	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/middleware"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/server"
	"github.com/onyxchat/relay-backend/internal/services"
	"github.com/onyxchat/relay-backend/internal/state"
	"github.com/onyxchat/relay-backend/internal/transport"
)

// recordingTransport collects outbound traffic so tests can assert on what
// users and agents would have received.
type recordingTransport struct {
	mu     sync.Mutex
	sent   map[int64][]transport.Outbound
	nextID int
}

func newRecordingTransport() *recordingTransport {
	return &recordingTransport{sent: make(map[int64][]transport.Outbound)}
}

func (rt *recordingTransport) SendMessage(ctx context.Context, chatID int64, out transport.Outbound) (transport.MessageRef, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.nextID++
	rt.sent[chatID] = append(rt.sent[chatID], out)
	return transport.MessageRef{ChatID: chatID, MessageID: rt.nextID}, nil
}

func (rt *recordingTransport) EditMessage(ctx context.Context, ref transport.MessageRef, out transport.Outbound) error {
	return nil
}

func (rt *recordingTransport) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	return nil
}

func (rt *recordingTransport) SendAttachment(ctx context.Context, chatID int64, attachmentRef string, caption *string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sent[chatID] = append(rt.sent[chatID], transport.Outbound{Text: "attachment:" + attachmentRef})
	return nil
}

func (rt *recordingTransport) sentTo(chatID int64) []transport.Outbound {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]transport.Outbound(nil), rt.sent[chatID]...)
}

type apiEnv struct {
	router *gin.Engine
	tp     *recordingTransport
	auth   services.AuthService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.NewStoreServiceWithDB(gdb, log).AutoMigrateAll(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}

	roster := &config.Roster{Agents: []config.Agent{
		{ID: 101, Name: "Ann", Secret: "secret-101"},
		{ID: 102, Name: "Ben", Secret: "secret-102"},
	}}
	tp := newRecordingTransport()
	states := state.NewMemoryStore()

	userRepo := repos.NewUserRepo(gdb, log)
	sessRepo := repos.NewSessionRepo(gdb, log)
	msgRepo := repos.NewMessageRepo(gdb, log)

	users := services.NewUserService(userRepo, sessRepo, log)
	sessions := services.NewSessionService(gdb, sessRepo, userRepo, log)
	messages := services.NewMessageService(msgRepo, log)
	notifications := services.NewNotificationService(tp, roster, log)
	panels := services.NewPanelService(sessions, messages, states, tp, log)
	inbound := services.NewInboundService(users, sessions, messages, notifications, panels, log)
	auth := services.NewAuthService(roster, "test-signing-key", time.Hour, log)

	router := server.NewRouter(server.RouterConfig{
		AuthHandler:       handlers.NewAuthHandler(auth),
		AuthMiddleware:    middleware.NewAuthMiddleware(log, auth),
		WebhookHandler:    handlers.NewWebhookHandler(inbound, log),
		SessionHandler:    handlers.NewSessionHandler(sessions, messages, notifications, panels, states, log),
		AttachmentHandler: handlers.NewAttachmentHandler(messages, tp, log),
		PanelHandler:      handlers.NewPanelHandler(states, log),
	})
	return &apiEnv{router: router, tp: tp, auth: auth}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	fields := make(map[string]json.RawMessage)
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &fields)
	}
	return rec, fields
}

func (e *apiEnv) login(t *testing.T, agentID int64) string {
	t.Helper()
	token, err := e.auth.Login(agentID, fmt.Sprintf("secret-%d", agentID))
	if err != nil {
		t.Fatalf("login agent %d: %v", agentID, err)
	}
	return token
}

// startSession pushes /start through the webhook and returns the session id
// it produced, read back off the unclaimed listing.
func (e *apiEnv) startSession(t *testing.T, token string, userID int64, username string) uint64 {
	t.Helper()
	rec, _ := e.do(t, http.MethodPost, "/webhook/message", "", gin.H{
		"user_id":  userID,
		"username": username,
		"text":     "/start",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook /start: status %d body %s", rec.Code, rec.Body.String())
	}

	rec, fields := e.do(t, http.MethodGet, "/api/sessions?kind=unclaimed", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list unclaimed: status %d", rec.Code)
	}
	var items []struct {
		SessionID uint64 `json:"session_id"`
		UserID    int64  `json:"user_id"`
	}
	if err := json.Unmarshal(fields["items"], &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	for _, it := range items {
		if it.UserID == userID {
			return it.SessionID
		}
	}
	t.Fatalf("no unclaimed session for user %d in %+v", userID, items)
	return 0
}

func TestLoginEndpoint(t *testing.T) {
	e := newAPIEnv(t)

	rec, fields := e.do(t, http.MethodPost, "/api/login", "", gin.H{"agent_id": 101, "secret": "secret-101"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %s", rec.Code, rec.Body.String())
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil || token == "" {
		t.Fatalf("expected a token, got %s", rec.Body.String())
	}

	rec, _ = e.do(t, http.MethodPost, "/api/login", "", gin.H{"agent_id": 101, "secret": "nope"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: expected 401, got %d", rec.Code)
	}
}

func TestAgentAPIRequiresToken(t *testing.T) {
	e := newAPIEnv(t)

	rec, _ := e.do(t, http.MethodGet, "/api/sessions", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec, _ = e.do(t, http.MethodGet, "/api/sessions", "not-a-token", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with a garbage token, got %d", rec.Code)
	}
}

func TestStartAlertsAgentsAndListsUnclaimed(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)

	sessionID := e.startSession(t, token, 42, "alice")
	if sessionID == 0 {
		t.Fatal("expected a session id")
	}

	for _, agentID := range []int64{101, 102} {
		var alerted bool
		for _, out := range e.tp.sentTo(agentID) {
			if strings.Contains(out.Text, "New session") {
				alerted = true
			}
		}
		if !alerted {
			t.Fatalf("agent %d never alerted", agentID)
		}
	}
}

func TestClaimConflict(t *testing.T) {
	e := newAPIEnv(t)
	tokenAnn := e.login(t, 101)
	tokenBen := e.login(t, 102)
	sessionID := e.startSession(t, tokenAnn, 42, "alice")

	rec, fields := e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/claim", sessionID), tokenAnn, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("first claim: status %d body %s", rec.Code, rec.Body.String())
	}
	var claimed bool
	if err := json.Unmarshal(fields["claimed"], &claimed); err != nil || !claimed {
		t.Fatalf("expected claimed=true, got %s", rec.Body.String())
	}

	rec, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/claim", sessionID), tokenBen, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second claim: expected 409, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestReplyRequiresActiveChat(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)
	sessionID := e.startSession(t, token, 42, "alice")

	rec, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/reply", sessionID), token,
		gin.H{"text": "hello"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reply without opening: expected 409, got %d body %s", rec.Code, rec.Body.String())
	}

	// Opening the session with ?open=1 puts the agent in active-chat mode.
	rec, _ = e.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d?open=1", sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open session: status %d", rec.Code)
	}
	rec, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/reply", sessionID), token,
		gin.H{"text": "hello from support"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reply: status %d body %s", rec.Code, rec.Body.String())
	}

	var delivered bool
	for _, out := range e.tp.sentTo(42) {
		if out.Text == "hello from support" {
			delivered = true
		}
	}
	if !delivered {
		t.Fatalf("user never received the reply, saw %+v", e.tp.sentTo(42))
	}

	// The reply is now part of the transcript.
	rec, fields := e.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d", sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var transcript string
	if err := json.Unmarshal(fields["transcript"], &transcript); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if !strings.Contains(transcript, "hello from support") {
		t.Fatalf("transcript missing the reply: %q", transcript)
	}
}

func TestReplyRejectsEmptyPayload(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)
	sessionID := e.startSession(t, token, 42, "alice")

	rec, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/reply", sessionID), token, gin.H{}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty reply: expected 400, got %d", rec.Code)
	}
}

func TestCloseTwiceConflicts(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)
	sessionID := e.startSession(t, token, 42, "alice")

	rec, _ := e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/close", sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: status %d body %s", rec.Code, rec.Body.String())
	}
	rec, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/close", sessionID), token, nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second close: expected 409, got %d", rec.Code)
	}

	rec, fields := e.do(t, http.MethodGet, "/api/sessions/closed", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("closed listing: status %d", rec.Code)
	}
	var total int64
	if err := json.Unmarshal(fields["total"], &total); err != nil || total != 1 {
		t.Fatalf("expected 1 closed session, got %s", rec.Body.String())
	}
}

func TestAttachmentEndpointScoping(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)
	sessionID := e.startSession(t, token, 42, "alice")

	rec, _ := e.do(t, http.MethodPost, "/webhook/message", "", gin.H{
		"user_id":        42,
		"username":       "alice",
		"attachment_ref": "file-ref-7",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook attachment: status %d", rec.Code)
	}

	rec, fields := e.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d", sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get session: status %d", rec.Code)
	}
	var attachments []struct {
		Number    int    `json:"number"`
		MessageID uint64 `json:"message_id"`
	}
	if err := json.Unmarshal(fields["attachments"], &attachments); err != nil || len(attachments) != 1 {
		t.Fatalf("expected one indexed attachment, got %s", rec.Body.String())
	}
	messageID := attachments[0].MessageID

	rec, fields = e.do(t, http.MethodGet,
		fmt.Sprintf("/api/attachments/%d?session_id=%d", messageID, sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("attachment fetch: status %d body %s", rec.Code, rec.Body.String())
	}
	var ref string
	if err := json.Unmarshal(fields["attachment_ref"], &ref); err != nil || ref != "file-ref-7" {
		t.Fatalf("expected file-ref-7, got %s", rec.Body.String())
	}

	rec, _ = e.do(t, http.MethodGet,
		fmt.Sprintf("/api/attachments/%d?session_id=%d", messageID, sessionID+1), token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-session fetch: expected 404, got %d", rec.Code)
	}
}

func TestPanelClear(t *testing.T) {
	e := newAPIEnv(t)
	token := e.login(t, 101)
	sessionID := e.startSession(t, token, 42, "alice")

	rec, _ := e.do(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d?open=1", sessionID), token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open session: status %d", rec.Code)
	}
	rec, _ = e.do(t, http.MethodPost, "/api/panel/clear", token, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("panel clear: status %d", rec.Code)
	}

	// With the state cleared, replying is refused again.
	rec, _ = e.do(t, http.MethodPost, fmt.Sprintf("/api/sessions/%d/reply", sessionID), token,
		gin.H{"text": "late"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reply after clear: expected 409, got %d", rec.Code)
	}
}

func TestWebhookValidation(t *testing.T) {
	e := newAPIEnv(t)

	rec, _ := e.do(t, http.MethodPost, "/webhook/message", "", gin.H{"text": "no user"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: expected 400, got %d", rec.Code)
	}
}

func TestHealthcheck(t *testing.T) {
	e := newAPIEnv(t)
	rec, _ := e.do(t, http.MethodGet, "/healthcheck", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck: status %d", rec.Code)
	}
}
