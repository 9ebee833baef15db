package user

import (
	"time"
)

// 角色枚举（持久化为字符串，对应路由侧的权限控制）。
const (
	RoleAdmin    = "ADMIN"
	RoleCustomer = "CUSTOMER"
)

// User 是 users 表的 GORM 模型。
type User struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Name         string    `gorm:"size:64;not null"`
	Email        string    `gorm:"uniqueIndex;size:128;not null"`
	Phone        string    `gorm:"size:32"`
	PasswordHash string    `gorm:"size:128;not null"`
	PasswordSalt string    `gorm:"size:64;not null"`
	Role         string    `gorm:"size:16;not null"` // ADMIN / CUSTOMER
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// IsAdmin 判断是否管理员。
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
