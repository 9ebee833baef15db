package car

import (
	"time"

	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/datatypes"
)

// Car 是 cars 表的 GORM 模型。
// OwnerChangedAt 兼作乐观并发令牌：过户的条件更新以它为比较对象。
type Car struct {
	ID      string `gorm:"primaryKey;size:36"`
	PlateNo string `gorm:"uniqueIndex;size:32;not null"`
	VIN     string `gorm:"size:64"`
	Brand   string `gorm:"size:64"`
	Model   string `gorm:"size:64"`
	Year    string `gorm:"size:8"`
	Notes   string `gorm:"size:255"`

	OwnerID        string     `gorm:"index;size:36;not null"`
	OwnerChangedAt *time.Time // 并发令牌；历史数据可能为 NULL

	Owner user.User `gorm:"foreignKey:OwnerID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// CarOwnership 车辆所有权区间（append-only 时间线）。
// 不变式：同一辆车任意时刻至多一条 ToDate 为 NULL 的记录，且区间互不重叠；
// 已关闭的区间除历史补录外不再修改。
type CarOwnership struct {
	ID       string     `gorm:"primaryKey;size:36"`
	CarID    string     `gorm:"index;size:36;not null"`
	OwnerID  string     `gorm:"index;size:36;not null"`
	FromDate time.Time  `gorm:"index;not null"`
	ToDate   *time.Time // NULL = 当前所有权

	Owner user.User `gorm:"foreignKey:OwnerID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TransferLog 过户审计记录：每次成功过户追加一条，之后不再修改。
type TransferLog struct {
	ID              string `gorm:"primaryKey;size:36"`
	CarID           string `gorm:"index;size:36;not null"`
	AdminID         string `gorm:"size:36;not null"`
	PreviousOwnerID string `gorm:"size:36"`
	NewOwnerID      string `gorm:"size:36;not null"`
	Reason          string `gorm:"size:255"`

	MoveOpenJobs       bool `gorm:"not null"`
	MoveUnpaidInvoices bool `gorm:"not null"`
	MovedJobsCount     int  `gorm:"not null;default:0"`
	MovedInvoicesCount int  `gorm:"not null;default:0"`

	Details datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time `gorm:"not null"`
}

// TransferDetails TransferLog.Details 的结构化内容。
type TransferDetails struct {
	TransferDate        time.Time `json:"transferDate"`
	MovedBookingIDs     []string  `json:"movedBookingIds,omitempty"`
	MovedQuoteIDs       []string  `json:"movedQuoteIds,omitempty"`
	TransferRequestedAt time.Time `json:"transferRequestedAt"`
}
