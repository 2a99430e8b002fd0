package engine

import (
	"context"
	"io"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	redisAdapter "toybid/adapters/redis"
	"toybid/adapters/store"
	"toybid/models"
	"toybid/notify"
)

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
}

// recordingEmitter 記錄所有發出的通知意圖
type recordingEmitter struct {
	mu      sync.Mutex
	intents []notify.Intent
}

func (e *recordingEmitter) Emit(intent notify.Intent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intents = append(e.intents, intent)
}

func (e *recordingEmitter) Intents() []notify.Intent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]notify.Intent(nil), e.intents...)
}

// localMutex 以行程內的鎖代替分散式鎖
type localMutex struct {
	mu *sync.Mutex
}

func (m *localMutex) Lock(ctx context.Context) (context.Context, error) {
	m.mu.Lock()
	return ctx, nil
}

func (m *localMutex) Unlock() (bool, error) {
	m.mu.Unlock()
	return true, nil
}

func (m *localMutex) Valid() bool {
	return true
}

// stubCooldown 回傳固定剩餘時間的冷卻檢查，並記錄冷卻被啟動的次數
type stubCooldown struct {
	mu     sync.Mutex
	remain time.Duration
	armed  int
}

func (g *stubCooldown) Check(ctx context.Context, key string) (time.Duration, error) {
	return g.remain, nil
}

func (g *stubCooldown) Arm(ctx context.Context, key string, window time.Duration) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed++
	return true, 0, nil
}

func (g *stubCooldown) Armed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

type testEnv struct {
	engine  *Engine
	store   *store.GormStore
	emitter *recordingEmitter
	db      *gorm.DB
}

func setupTest(t *testing.T, config Config, opts ...EngineOption) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Auction{}, &models.Bid{}, &models.HistoryEntry{}))

	gormStore, err := store.NewGormStore(db)
	require.NoError(t, err)
	emitter := &recordingEmitter{}

	var locks sync.Map
	defaults := []EngineOption{
		WithEngineLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEngineMutexFactory(func(key string) redisAdapter.IAutoRenewMutex {
			actual, _ := locks.LoadOrStore(key, &sync.Mutex{})
			return &localMutex{mu: actual.(*sync.Mutex)}
		}),
	}
	eng, err := NewEngine(gormStore, gormStore, emitter, nil, config, append(defaults, opts...)...)
	require.NoError(t, err)

	return &testEnv{
		engine:  eng,
		store:   gormStore,
		emitter: emitter,
		db:      db,
	}
}

func (env *testEnv) createUser(t *testing.T, email string) uuid.UUID {
	t.Helper()
	user := models.User{
		ID:    uuid.New(),
		Name:  email,
		Email: email,
	}
	require.NoError(t, env.db.Create(&user).Error)
	return user.ID
}

func (env *testEnv) createAuction(t *testing.T, owner uuid.UUID, price, increment int64, expiresAt time.Time) *models.Auction {
	t.Helper()
	auction := &models.Auction{
		ID:                  uuid.New(),
		OwnerID:             owner,
		Name:                "Bearbrick 400% Chrome",
		Description:         "Sealed in box",
		Category:            "designer_toys",
		Status:              models.AuctionActive,
		StartingPrice:       price,
		CurrentPrice:        price,
		MinimumBidIncrement: increment,
		ExpiresAt:           expiresAt,
	}
	require.NoError(t, env.store.Create(context.Background(), auction))
	return auction
}
