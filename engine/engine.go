package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"

	redisAdapter "toybid/adapters/redis"
	"toybid/adapters/store"
	"toybid/models"
	"toybid/notify"
)

// Engine 是拍賣生命週期與出價的核心
// 儲存層是唯一事實來源，引擎不會在呼叫之間快取價格或狀態；
// 單一拍賣內的出價提交透過 per-auction 分散式鎖與儲存層的版本檢查雙重序列化
type Engine struct {
	store       store.IAuctionStore
	contacts    store.IContactResolver
	emitter     notify.IEmitter
	cooldown    redisAdapter.ICooldownGuard
	newMutex    func(key string) redisAdapter.IAutoRenewMutex
	htmlChecker *bluemonday.Policy
	logger      *slog.Logger
	config      Config
}

type engineOptions struct {
	logger   *slog.Logger
	newMutex func(key string) redisAdapter.IAutoRenewMutex
	cooldown redisAdapter.ICooldownGuard
}

type EngineOption func(*engineOptions)

// WithEngineLogger 設置日誌記錄器
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithEngineMutexFactory 注入鎖的工廠函數(主要用於測試)
func WithEngineMutexFactory(fn func(key string) redisAdapter.IAutoRenewMutex) EngineOption {
	return func(o *engineOptions) {
		o.newMutex = fn
	}
}

// WithEngineCooldownGuard 注入冷卻檢查(主要用於測試)
func WithEngineCooldownGuard(guard redisAdapter.ICooldownGuard) EngineOption {
	return func(o *engineOptions) {
		o.cooldown = guard
	}
}

// NewEngine 建立一個新的引擎實例
func NewEngine(
	auctionStore store.IAuctionStore,
	contacts store.IContactResolver,
	emitter notify.IEmitter,
	redisClient *redis.Client,
	config Config,
	opts ...EngineOption,
) (*Engine, error) {
	const op = "NewEngine"
	if auctionStore == nil {
		return nil, errors.New("auction store cannot be nil")
	}
	if contacts == nil {
		return nil, errors.New("contact resolver cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("emitter cannot be nil")
	}
	config.applyDefaults()

	options := engineOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.newMutex == nil {
		if redisClient == nil {
			return nil, errors.New("redis client cannot be nil without a mutex factory")
		}
		options.newMutex = func(key string) redisAdapter.IAutoRenewMutex {
			return redisAdapter.NewAutoRenewMutex(redisClient, key)
		}
	}
	if options.cooldown == nil && redisClient != nil {
		guard, err := redisAdapter.NewCooldownGuard(redisClient, config.Redis.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create cooldown guard, err=%w", op, err)
		}
		options.cooldown = guard
	}

	return &Engine{
		store:       auctionStore,
		contacts:    contacts,
		emitter:     emitter,
		cooldown:    options.cooldown,
		newMutex:    options.newMutex,
		htmlChecker: bluemonday.UGCPolicy(),
		logger:      options.logger.With(slog.String("caller", "Engine")),
		config:      config,
	}, nil
}

// getAuction 讀取拍賣並轉換儲存層的NotFound
func (e *Engine) getAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auction, err := e.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	return auction, err
}
