package notification

import (
	"time"

	"gorm.io/datatypes"
)

// Notification 站内通知 GORM 模型（前端轮询展示）。
type Notification struct {
	ID        string         `gorm:"primaryKey;size:36"`
	UserID    string         `gorm:"index;size:36;not null"`
	Title     string         `gorm:"size:128;not null"`
	Message   string         `gorm:"size:512;not null"`
	Meta      datatypes.JSON `gorm:"type:json"` // 业务上下文（carId、迁移的预约/账单 id 等）
	Read      bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
}
