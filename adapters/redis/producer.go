package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var (
	ErrProducerClosed = errors.New("producer is closed")
)

// 送出佇列的初始容量，佇列本身無上限，寫入永遠不會阻塞
const producerQueueSize = 64

type producerOptions struct {
	logger *slog.Logger
}

type ProducerOption func(*producerOptions)

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger(logger *slog.Logger) ProducerOption {
	return func(o *producerOptions) {
		o.logger = logger
	}
}

// Producer 將訊息非同步寫入Redis stream
// Publish只負責把訊息放進無界佇列，實際的XADD由背景goroutine執行，
// 寫入失敗只會被記錄，該筆訊息會被放棄
type Producer[T any] struct {
	client *redis.Client
	stream string
	queue  *chanx.UnboundedChan[map[string]any]
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	logger *slog.Logger
}

func NewProducer[T any](client *redis.Client, stream string, opts ...ProducerOption) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := producerOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Producer[T]{
		client: client,
		stream: stream,
		closed: true,
		logger: options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
	}, nil
}

// Start 啟動背景寫入goroutine，重複呼叫沒有作用
func (p *Producer[T]) Start() {
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.queue = chanx.NewUnboundedChan[map[string]any](ctx, producerQueueSize)
	p.cancel = cancel
	p.closed = false
	p.logger.Info("starting stream producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")
		p.drain(ctx)
	}()
}

// Publish 將一筆訊息排入送出佇列
// 只有序列化失敗或producer已關閉時會返回錯誤，排入本身不會阻塞
func (p *Producer[T]) Publish(data T) error {
	if p.closed {
		return ErrProducerClosed
	}

	message, err := PackMessage(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}

	p.queue.In <- message
	return nil
}

// Close 停止背景寫入並等待goroutine結束，重複呼叫沒有作用
func (p *Producer[T]) Close() {
	if p.closed {
		return
	}
	p.logger.Info("closing stream producer")
	p.closed = true
	p.cancel()
	p.wg.Wait()
	p.logger.Info("stream producer closed")
}

// drain 依序把佇列中的訊息寫入stream，直到context被取消
func (p *Producer[T]) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-p.queue.Out:
			id, err := p.client.XAdd(ctx, &redis.XAddArgs{
				Stream: p.stream,
				Values: message,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.logger.Error("publish message error", slog.Any("error", err))
				continue
			}
			p.logger.Debug("message published", slog.String("messageId", id))
		}
	}
}
