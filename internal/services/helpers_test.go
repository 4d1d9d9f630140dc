package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/onyxchat/relay-backend/internal/config"
	"github.com/onyxchat/relay-backend/internal/db"
	"github.com/onyxchat/relay-backend/internal/logger"
	"github.com/onyxchat/relay-backend/internal/repos"
	"github.com/onyxchat/relay-backend/internal/transport"
)

type testEnv struct {
	gdb      *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
	sessRepo repos.SessionRepo
	msgRepo  repos.MessageRepo
	users    UserService
	sessions SessionService
	messages MessageService
}

// newTestEnv opens a private in-memory SQLite store and wires the repo and
// service layers over it the same way main does. The single-connection pool
// keeps the shared-cache database alive for the whole test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

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

	userRepo := repos.NewUserRepo(gdb, log)
	sessRepo := repos.NewSessionRepo(gdb, log)
	msgRepo := repos.NewMessageRepo(gdb, log)

	return &testEnv{
		gdb:      gdb,
		log:      log,
		userRepo: userRepo,
		sessRepo: sessRepo,
		msgRepo:  msgRepo,
		users:    NewUserService(userRepo, sessRepo, log),
		sessions: NewSessionService(gdb, sessRepo, userRepo, log),
		messages: NewMessageService(msgRepo, log),
	}
}

func (e *testEnv) seedUser(t *testing.T, userID int64, username string) {
	t.Helper()
	var uname *string
	if username != "" {
		uname = &username
	}
	if err := e.users.Upsert(context.Background(), userID, uname); err != nil {
		t.Fatalf("seed user %d: %v", userID, err)
	}
}

func (e *testEnv) openSession(t *testing.T, userID int64) uint64 {
	t.Helper()
	sessionID, _, err := e.sessions.EnsureOpen(context.Background(), userID)
	if err != nil {
		t.Fatalf("open session for user %d: %v", userID, err)
	}
	return sessionID
}

func testRoster(ids ...int64) *config.Roster {
	roster := &config.Roster{}
	for _, id := range ids {
		roster.Agents = append(roster.Agents, config.Agent{
			ID:     id,
			Name:   fmt.Sprintf("agent-%d", id),
			Secret: fmt.Sprintf("secret-%d", id),
		})
	}
	return roster
}

type sentMessage struct {
	ChatID int64
	Out    transport.Outbound
}

type sentAttachment struct {
	ChatID  int64
	Ref     string
	Caption *string
}

type editCall struct {
	Ref transport.MessageRef
	Out transport.Outbound
}

// fakeTransport records deliveries and can be told to fail per recipient.
// Safe for the concurrent fan-out paths.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMessage
	edits    []editCall
	attached []sentAttachment
	failSend map[int64]error
	failEdit error
	nextID   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failSend: make(map[int64]error)}
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, out transport.Outbound) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSend[chatID]; err != nil {
		return transport.MessageRef{}, err
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Out: out})
	return transport.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, ref transport.MessageRef, out transport.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit != nil {
		return f.failEdit
	}
	f.edits = append(f.edits, editCall{Ref: ref, Out: out})
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, ref transport.MessageRef) error {
	return nil
}

func (f *fakeTransport) SendAttachment(ctx context.Context, chatID int64, attachmentRef string, caption *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSend[chatID]; err != nil {
		return err
	}
	f.attached = append(f.attached, sentAttachment{ChatID: chatID, Ref: attachmentRef, Caption: caption})
	return nil
}

func (f *fakeTransport) sentTo(chatID int64) []transport.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transport.Outbound
	for _, s := range f.sent {
		if s.ChatID == chatID {
			out = append(out, s.Out)
		}
	}
	return out
}

func (f *fakeTransport) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func strPtr(s string) *string { return &s }
