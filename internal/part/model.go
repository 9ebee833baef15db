package part

import "time"

// UoM 计量单位枚举。
type UoM string

const (
	UoMPiece  UoM = "pc"
	UoMSet    UoM = "set"
	UoMBottle UoM = "bottle"
	UoMCan    UoM = "can"
	UoMMeter  UoM = "meter"
	UoMRoll   UoM = "roll"
)

var allowedUoMs = map[UoM]bool{
	UoMPiece: true, UoMSet: true, UoMBottle: true,
	UoMCan: true, UoMMeter: true, UoMRoll: true,
}

// ValidUoM 是否是允许的计量单位。
func ValidUoM(u UoM) bool { return allowedUoMs[u] }

// Part 配件库存 GORM 模型。Price 单位为分。
type Part struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"size:128;not null"`
	Price        int64  `gorm:"not null;default:0"`
	Stock        int    `gorm:"not null;default:0"`
	Threshold    int    `gorm:"not null;default:0"` // 低于该值进入补货提醒
	UoM          UoM    `gorm:"column:uom;type:varchar(16);not null"`
	SerialNumber string `gorm:"size:64"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// MovementKind 库存流水方向。
type MovementKind string

const (
	MovementIn  MovementKind = "IN"
	MovementOut MovementKind = "OUT"
)

// StockMovement 出入库流水（append-only，字段不再修改）。
type StockMovement struct {
	ID        string       `gorm:"primaryKey;size:36"`
	PartID    string       `gorm:"index;size:36;not null"`
	Kind      MovementKind `gorm:"type:varchar(8);not null"`
	Quantity  int          `gorm:"not null"`
	ActorID   string       `gorm:"size:36"`
	CreatedAt time.Time    `gorm:"autoCreateTime"`
}
