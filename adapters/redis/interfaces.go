//go:generate mockgen -package=redis -destination=mock.go -source=interfaces.go
package redis

import (
	"context"
	"time"
)

// IProducer 定義了 Producer 的操作介面
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IGroupConsumer 定義了 GroupConsumer 的操作介面
type IGroupConsumer[T any] interface {
	Start() error
	Subscribe() <-chan *Message[T]
	Close() error
}

// IAutoRenewMutex 定義了 AutoRenewMutex 的操作介面
type IAutoRenewMutex interface {
	Lock(ctx context.Context) (context.Context, error)
	Unlock() (bool, error)
	Valid() bool
}

// ICooldownGuard 定義了出價冷卻的操作介面
// Check 是唯讀檢查，Arm 才會啟動冷卻；兩者分開讓呼叫端能在動作成功後才計入冷卻
type ICooldownGuard interface {
	Check(ctx context.Context, key string) (time.Duration, error)
	Arm(ctx context.Context, key string, window time.Duration) (bool, time.Duration, error)
}
