package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// stream entry欄位，封包後的通知內容放在這個欄位下
const payloadField = "payload"

// PackMessage 將通知內容封裝成stream entry
// 內容以msgpack序列化後再做base64編碼，放進單一payload欄位；
// 指標類型會連同nil一起被拒絕，呼叫端必須傳值
func PackMessage[T any](data T) (map[string]any, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		payloadField: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// UnpackMessage 將stream entry還原成通知內容
// 空的entry會還原成零值，payload欄位缺失或格式錯誤則回報錯誤
func UnpackMessage[T any](message map[string]any) (T, error) {
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(message) == 0 {
		return result, nil
	}

	encoded, ok := message[payloadField].(string)
	if !ok {
		return result, fmt.Errorf("payload field not found or invalid type")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}
