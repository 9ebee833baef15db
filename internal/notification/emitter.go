package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/middleware"
	"gorm.io/gorm"
)

// Message 一条待发送的通知。
type Message struct {
	UserID string
	Title  string
	Body   string
	Meta   map[string]any
}

// Emitter 通知出口。过户提交后在事务外调用；实现必须是尽力而为的，
// 调用方只负责记日志，绝不把发送失败上抛为业务失败。
type Emitter interface {
	Emit(ctx context.Context, batch []Message) error
}

// StoreEmitter 落库实现：把通知批量写进 notifications 表。
// 写库路径包一层熔断，避免通知存储故障时反复打满连接。
type StoreEmitter struct {
	db      *gorm.DB
	breaker *middleware.CircuitBreaker
}

func NewStoreEmitter(db *gorm.DB) *StoreEmitter {
	return &StoreEmitter{
		db:      db,
		breaker: middleware.NewCircuitBreaker("notification-store", 5, 30*time.Second),
	}
}

func (e *StoreEmitter) Emit(ctx context.Context, batch []Message) error {
	if e == nil || e.db == nil {
		return gorm.ErrInvalidDB
	}
	if len(batch) == 0 {
		return nil
	}

	rows := make([]Notification, 0, len(batch))
	for _, m := range batch {
		meta, err := json.Marshal(m.Meta)
		if err != nil {
			meta = nil
		}
		rows = append(rows, Notification{
			ID:      uuid.NewString(),
			UserID:  m.UserID,
			Title:   m.Title,
			Message: m.Body,
			Meta:    meta,
			Read:    false,
		})
	}

	return e.breaker.Call(ctx, func() error {
		return e.db.WithContext(ctx).Create(&rows).Error
	})
}
