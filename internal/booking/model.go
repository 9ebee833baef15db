package booking

import (
	"time"

	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
)

// Status 预约状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending    Status = "PENDING"     // 已提交，待确认
	StatusConfirmed  Status = "CONFIRMED"   // 已确认，待进场
	StatusInProgress Status = "IN_PROGRESS" // 维修进行中
	StatusCompleted  Status = "COMPLETED"   // 已完成
	StatusCancelled  Status = "CANCELLED"   // 已取消（客户/门店）
)

// JobStage 工单阶段枚举。终态为 COMPLETION。
type JobStage string

const (
	StageInspection JobStage = "INSPECTION"  // 进场检查
	StageDiagnosis  JobStage = "DIAGNOSIS"   // 故障诊断
	StageRepair     JobStage = "REPAIR"      // 维修/换件
	StageTesting    JobStage = "TESTING"     // 效果测试
	StageCompletion JobStage = "COMPLETION"  // 完工（终态）
)

// BillingStatus 账单状态枚举。
type BillingStatus string

const (
	BillingUnpaid BillingStatus = "UNPAID"
	BillingPaid   BillingStatus = "PAID"
	BillingVoid   BillingStatus = "VOID"
)

// Booking 预约 GORM 模型。CustomerID 是付款客户，车辆过户时可按需改派。
type Booking struct {
	ID          string    `gorm:"primaryKey;size:36"`
	CarID       string    `gorm:"index;size:36;not null"`
	CustomerID  string    `gorm:"index;size:36;not null"`
	Status      Status    `gorm:"type:varchar(16);index;not null"`
	ScheduledAt time.Time `gorm:"index;not null"`
	Notes       string    `gorm:"size:255"`

	Jobs     []Job     `gorm:"foreignKey:BookingID"`
	Quote    *Quote    `gorm:"foreignKey:BookingID"`
	Customer user.User `gorm:"foreignKey:CustomerID"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Job 工单 GORM 模型，属于一个 Booking。
type Job struct {
	ID        string    `gorm:"primaryKey;size:36"`
	BookingID string    `gorm:"index;size:36;not null"`
	Stage     JobStage  `gorm:"type:varchar(16);index;not null"`
	Title     string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Quote 报价/发票 GORM 模型。CustomerID 是账单抬头客户。
type Quote struct {
	ID         string `gorm:"primaryKey;size:36"`
	BookingID  string `gorm:"uniqueIndex;size:36;not null"`
	CustomerID string `gorm:"index;size:36;not null"`
	Amount     int64  `gorm:"not null;default:0"` // 金额（单位：分）

	Billing  *Billing  `gorm:"foreignKey:QuoteID"`
	Customer user.User `gorm:"foreignKey:CustomerID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Billing 账单子记录。
type Billing struct {
	ID        string        `gorm:"primaryKey;size:36"`
	QuoteID   string        `gorm:"uniqueIndex;size:36;not null"`
	Status    BillingStatus `gorm:"type:varchar(16);index;not null"`
	PaidAt    *time.Time
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
