package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"
)

// dead-letter stream的名稱後綴，處理失敗的訊息會被搬到 <stream>:dead-letter
const deadLetterSuffix = ":dead-letter"

// 每批向group索取pending訊息的數量
const pendingBatchSize = 100

// Message 封裝一筆待處理的訊息與ack所需的資訊
// 呼叫端處理完成後必須呼叫Done或Fail，否則訊息會以pending的形式留在stream中
type Message[T any] struct {
	Data T

	client    *redis.Client
	done      bool
	messageID string
	stream    string
	group     string

	values map[string]any
}

// Done 確認訊息處理完成，重複呼叫沒有作用
func (m *Message[T]) Done(ctx context.Context) error {
	const op = "Message.Done"
	if m.done {
		return nil
	}
	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack message: %w", op, err)
	}
	m.done = true
	return nil
}

// Fail 回報訊息處理失敗
// 原始內容連同失敗原因會被搬到dead-letter stream，然後才ack原訊息
func (m *Message[T]) Fail(ctx context.Context, failErr error) error {
	const op = "Message.Fail"
	if m.done {
		return nil
	}

	m.values["error"] = failErr.Error()
	if err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream + deadLetterSuffix,
		Values: m.values,
	}).Err(); err != nil {
		return fmt.Errorf("[%s] failed to move message to dead letter queue: %w", op, err)
	}

	if err := m.client.XAck(ctx, m.stream, m.group, m.messageID).Err(); err != nil {
		return fmt.Errorf("[%s] failed to ack failed message: %w", op, err)
	}
	m.done = true
	return nil
}

type groupConsumerOptions struct {
	logger         *slog.Logger
	blockTimeout   time.Duration
	strictOrdering bool // 嚴格順序模式
}

type GroupConsumerOption func(*groupConsumerOptions)

// WithGroupConsumerLogger 設置日誌記錄器
func WithGroupConsumerLogger(logger *slog.Logger) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.logger = logger
	}
}

// WithGroupConsumerBlockTimeout 設置阻塞讀取超時時間
func WithGroupConsumerBlockTimeout(d time.Duration) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.blockTimeout = d
	}
}

// WithGroupConsumerStrictOrdering 設置是否使用嚴格順序模式
// 嚴格順序模式下同一個group同時只有一個consumer在處理訊息，
// 並且pending的訊息會在新訊息之前被優先處理
func WithGroupConsumerStrictOrdering(strict bool) GroupConsumerOption {
	return func(o *groupConsumerOptions) {
		o.strictOrdering = strict
	}
}

// GroupConsumer 以consumer group的形式消費Redis stream
// 每筆訊息至少會被投遞一次，無法解析的訊息直接進dead-letter
type GroupConsumer[T any] struct {
	client     *redis.Client
	stream     string
	group      string
	consumer   string
	downStream chan *Message[T]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	logger     *slog.Logger
	mutex      IAutoRenewMutex
	backlog    []string
	options    groupConsumerOptions
}

func NewGroupConsumer[T any](
	client *redis.Client,
	stream, group, consumer string,
	opts ...GroupConsumerOption,
) (IGroupConsumer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" || group == "" || consumer == "" {
		return nil, errors.New("stream, group and consumer cannot be empty")
	}

	options := groupConsumerOptions{
		logger:       slog.Default(),
		blockTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	gc := &GroupConsumer[T]{
		logger:   options.logger.With(slog.String("caller", "GroupConsumer"), slog.String("stream", stream), slog.String("group", group), slog.String("consumer", consumer)),
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		closed:   true,
		options:  options,
	}

	// 嚴格順序模式以跨實例的鎖保證同一時間只有一個consumer在工作
	if options.strictOrdering {
		gc.mutex = NewAutoRenewMutex(client, fmt.Sprintf("lock:%s:%s", stream, group), WithAutoRenewMutexSkipLockError(true))
	}

	return gc, nil
}

func (s *GroupConsumer[T]) Start() error {
	if !s.closed {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.downStream = make(chan *Message[T], 1)
	s.cancelFunc = cancel
	s.closed = false
	s.logger.Info("starting group consumer")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.logger.Info("group consumer goroutine stopped")
		defer close(s.downStream)
		defer func() {
			if s.options.strictOrdering {
				s.mutex.Unlock()
			}
		}()
		s.run(ctx)
	}()

	return nil
}

// Subscribe 返回待處理訊息的channel，consumer關閉時channel會被關閉
func (s *GroupConsumer[T]) Subscribe() <-chan *Message[T] {
	return s.downStream
}

func (s *GroupConsumer[T]) Close() error {
	if s.closed {
		return nil
	}
	s.logger.Info("closing group consumer")
	s.closed = true
	s.cancelFunc()

	s.wg.Wait()
	s.logger.Info("group consumer closed gracefully")
	return nil
}

// run 重複執行消費回合直到context被取消
// 嚴格順序模式下每一回合都以拿到鎖開始，鎖被奪走時當前回合中止並重新搶鎖
func (s *GroupConsumer[T]) run(ctx context.Context) {
	for {
		roundCtx := ctx

		if s.options.strictOrdering {
			var err error
			// roundCtx在嚴格順序模式下是帶鎖狀態的child context，鎖失效時會被取消
			roundCtx, err = s.mutex.Lock(ctx)
			if err != nil {
				s.logger.Error("failed to acquire lock", slog.Any("error", err))
				if errors.Is(err, context.Canceled) {
					return
				}
				continue
			}
		}
		if err := s.consumeRound(roundCtx); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				// 外部context被取消，正常關閉
				return
			}
			if s.options.strictOrdering && errors.Is(err, context.Canceled) && ctx.Err() == nil {
				s.logger.Error("lock context cancelled, stopping current processing, restarting group consumer")
			} else {
				s.logger.Error("error processing messages, stopping current processing, restarting group consumer", slog.Any("error", err))
			}
			continue
		}
	}
}

// consumeRound 先清掉pending backlog(嚴格順序模式)，然後持續消費新訊息
func (s *GroupConsumer[T]) consumeRound(ctx context.Context) error {
	if s.options.strictOrdering {
		if err := s.loadBacklog(ctx); err != nil {
			s.logger.Error("initial pending messages fetch failed", slog.Any("error", err))
			return err
		}
	}
	for {
		message, err := s.nextMessage(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			s.logger.Error("fetch message error", slog.Any("error", err))
			if errors.Is(err, context.Canceled) {
				return err
			}
			// 其他錯誤通常是與redis之間的通訊異常，重試即可
			continue
		}
		data, err := UnpackMessage[T](message.Values)
		if err != nil {
			// 解析失敗重試也不會成功，直接把訊息搬到dead-letter後繼續處理下一筆
			s.logger.Error("failed to parse message",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			if deadLetterErr := s.moveToDeadLetter(ctx, message); deadLetterErr != nil {
				s.logger.Error("error moving message to dead letter",
					slog.String("messageId", message.ID),
					slog.Any("error", deadLetterErr),
				)
				// 搬移失敗時訊息會以pending的形式留在stream中
				// WARN: 嚴格順序模式會在下一回合優先處理這種訊息，
				//       非嚴格順序模式不讀pending，需要手動對stream處理
				return deadLetterErr
			}
			continue
		}
		msg := &Message[T]{
			Data:      data,
			messageID: message.ID,
			stream:    s.stream,
			group:     s.group,
			client:    s.client,
			values:    message.Values,
		}
		if err := s.deliver(ctx, msg); err != nil {
			s.logger.Error("error moving message to downstream",
				slog.String("messageId", message.ID),
				slog.Any("error", err),
			)
			// 投遞中斷(只可能是context.Canceled)時訊息會以pending的形式留在stream中
			// WARN: 嚴格順序模式會在下一回合優先處理這種訊息，
			//       非嚴格順序模式不讀pending，需要手動對stream處理
			return err
		}
	}
}

// loadBacklog 收集group中所有pending訊息的ID，這些訊息會在新訊息之前被處理
func (s *GroupConsumer[T]) loadBacklog(ctx context.Context) error {
	s.backlog = make([]string, 0, pendingBatchSize)
	lastId := "-"

	for {
		pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: s.stream,
			Group:  s.group,
			Start:  lastId,
			End:    "+",
			Count:  pendingBatchSize,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return fmt.Errorf("error getting pending messages: %w", err)
		}

		if len(pending) == 0 {
			break
		}

		for _, p := range pending {
			s.backlog = append(s.backlog, p.ID)
		}
		lastId = pending[len(pending)-1].ID

		// 不足一整批表示已經沒有更多pending訊息
		if len(pending) < pendingBatchSize {
			break
		}
	}

	s.logger.Info("fetched all pending message IDs",
		slog.Int("count", len(s.backlog)))
	return nil
}

// nextMessage 優先讀取backlog中的pending訊息，backlog清空後才讀新訊息
func (s *GroupConsumer[T]) nextMessage(ctx context.Context) (redis.XMessage, error) {
	var message redis.XMessage
	var err error

	if len(s.backlog) > 0 {
		var messages []redis.XMessage
		messages, err = s.client.XRangeN(ctx, s.stream, s.backlog[0], s.backlog[0], 1).Result()
		s.backlog = s.backlog[1:]
		if len(messages) > 0 {
			message = messages[0]
		}
	} else {
		var streams []redis.XStream
		streams, err = s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.group,
			Consumer: s.consumer,
			Streams:  []string{s.stream, ">"},
			Count:    1,
			Block:    s.options.blockTimeout,
		}).Result()
		if len(streams) > 0 && len(streams[0].Messages) > 0 {
			message = streams[0].Messages[0]
		}
	}

	return message, err
}

// moveToDeadLetter 將無法處理的訊息搬到dead-letter stream並ack原訊息
func (s *GroupConsumer[T]) moveToDeadLetter(ctx context.Context, message redis.XMessage) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream + deadLetterSuffix,
		Values: message.Values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to move message to dead letter queue: %w", err)
	}

	return s.client.XAck(ctx, s.stream, s.group, message.ID).Err()
}

// deliver 將訊息送進下游channel
func (s *GroupConsumer[T]) deliver(ctx context.Context, message *Message[T]) error {
	if ctx.Err() != nil {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return context.Canceled
	case s.downStream <- message:
		return nil
	}
}
