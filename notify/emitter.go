package notify

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	redisAdapter "toybid/adapters/redis"
)

// IEmitter 定義了通知意圖發送的操作介面
// Emit 永遠不會失敗，發送問題只會被記錄，不會影響呼叫端的狀態轉移
type IEmitter interface {
	Emit(intent Intent)
}

// StreamEmitter 實現了 IEmitter，將通知意圖寫入 Redis stream
// 內部使用無界緩衝的 producer，發送永遠不會阻塞出價提交
type StreamEmitter struct {
	producer redisAdapter.IProducer[Intent]
	logger   *slog.Logger
}

type streamEmitterOptions struct {
	logger *slog.Logger
}

type StreamEmitterOption func(*streamEmitterOptions)

// WithStreamEmitterLogger 設置日誌記錄器
func WithStreamEmitterLogger(logger *slog.Logger) StreamEmitterOption {
	return func(o *streamEmitterOptions) {
		o.logger = logger
	}
}

// NewStreamEmitter 建立一個新的 StreamEmitter 實例
func NewStreamEmitter(client *redis.Client, stream string, opts ...StreamEmitterOption) (*StreamEmitter, error) {
	const op = "NewStreamEmitter"
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	options := streamEmitterOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	producer, err := redisAdapter.NewProducer[Intent](
		client,
		stream,
		redisAdapter.WithProducerLogger(options.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}
	return &StreamEmitter{
		producer: producer,
		logger:   options.logger.With(slog.String("caller", "StreamEmitter")),
	}, nil
}

// Start 啟動背景發送
func (e *StreamEmitter) Start() {
	e.producer.Start()
}

// Emit 發送一個通知意圖
// 發送失敗只記錄日誌，呼叫端不需要也不應該處理
func (e *StreamEmitter) Emit(intent Intent) {
	if err := e.producer.Publish(intent); err != nil {
		e.logger.Error("Fail to publish notification intent",
			slog.String("type", string(intent.Type)),
			slog.String("auctionID", intent.AuctionID.String()),
			slog.Any("error", err),
		)
	}
}

// Close 關閉發送端，等待緩衝中的意圖送出
func (e *StreamEmitter) Close() {
	e.producer.Close()
}
