package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	redisAdapter "toybid/adapters/redis"
)

// Relay 將 stream 上的通知意圖轉交給外部的 Notifier
// 使用 consumer group 確保每個意圖至少被處理一次，投遞失敗的意圖會進入 dead-letter
type Relay struct {
	consumer   redisAdapter.IGroupConsumer[Intent]
	notifier   INotifier
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	closed     bool
}

type relayOptions struct {
	logger *slog.Logger
}

type RelayOption func(*relayOptions)

// WithRelayLogger 設置日誌記錄器
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(o *relayOptions) {
		o.logger = logger
	}
}

// NewRelay 建立一個新的 Relay 實例
func NewRelay(client *redis.Client, stream, group, consumerName string, notifier INotifier, opts ...RelayOption) (*Relay, error) {
	const op = "NewRelay"
	if notifier == nil {
		return nil, errors.New("notifier cannot be nil")
	}

	options := relayOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	consumer, err := redisAdapter.NewGroupConsumer[Intent](
		client,
		stream,
		group,
		consumerName,
		redisAdapter.WithGroupConsumerLogger(options.logger),
		redisAdapter.WithGroupConsumerStrictOrdering(true),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}

	// 確保 consumer group 存在，已存在時忽略
	if err := client.XGroupCreateMkStream(context.Background(), stream, group, "0").Err(); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("[%s] Fail to create consumer group, err=%w", op, err)
	}

	return &Relay{
		consumer: consumer,
		notifier: notifier,
		logger:   options.logger.With(slog.String("caller", "Relay")),
		closed:   true,
	}, nil
}

// Start 啟動轉送worker，重複呼叫沒有作用
func (r *Relay) Start() error {
	const op = "Relay.Start"
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		return nil
	}
	if err := r.consumer.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start group consumer, err=%w", op, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFunc = cancel
	r.closed = false
	r.logger.Info("starting notification relay")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.logger.Info("notification relay stopped")
		ch := r.consumer.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if sendErr := r.notifier.Send(ctx, msg.Data); sendErr != nil {
					r.logger.Error("Fail to deliver notification", slog.Any("error", sendErr))
					if err := msg.Fail(ctx, sendErr); err != nil {
						r.logger.Error("Fail to fail message", slog.Any("error", err))
					}
					continue
				}
				if err := msg.Done(ctx); err != nil {
					r.logger.Error("Delivery success but fail to done message", slog.Any("error", err))
					if err := msg.Fail(ctx, err); err != nil {
						r.logger.Error("Delivery success but fail to fail message", slog.Any("error", err))
					}
				}
			}
		}
	}()
	return nil
}

// Close 停止轉送worker並關閉consumer，可以從多個goroutine呼叫
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.cancelFunc()
	r.wg.Wait()
	if err := r.consumer.Close(); err != nil {
		r.logger.Error("Fail to close group consumer", slog.Any("error", err))
	}
}
