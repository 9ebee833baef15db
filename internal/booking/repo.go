package booking

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

// NewRepo 创建仓储。过户事务内使用时直接传入事务句柄 tx。
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, b *Booking) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(b).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Booking, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var b Booking
	if err := db.Preload("Jobs").Preload("Quote").Preload("Quote.Billing").
		Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateStatus 根据状态机规则进行状态流转。
func (r *Repo) UpdateStatus(ctx context.Context, id string, to Status, now time.Time) (*Booking, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var b Booking
	if err := db.Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	if err := ApplyTransition(&b, to, now); err != nil {
		return nil, err
	}
	if err := db.Save(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// AdvanceJobStage 推进工单阶段（只进不退）。
func (r *Repo) AdvanceJobStage(ctx context.Context, jobID string, to JobStage) (*Job, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var j Job
	if err := db.Where("id = ?", jobID).First(&j).Error; err != nil {
		return nil, err
	}
	if !CanAdvanceStage(j.Stage, to) {
		return nil, fmt.Errorf("invalid job stage transition: %s -> %s", j.Stage, to)
	}
	j.Stage = to
	if err := db.Save(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// openBookingFilter “开放预约” = 状态为 PENDING/CONFIRMED，或存在未到 COMPLETION 阶段的工单。
func (r *Repo) openBookingFilter(db *gorm.DB, carID string) *gorm.DB {
	jobsNotDone := db.Session(&gorm.Session{NewDB: true}).Model(&Job{}).
		Select("booking_id").Where("stage <> ?", StageCompletion)
	return db.Model(&Booking{}).
		Where("car_id = ?", carID).
		Where("status IN ? OR id IN (?)", []Status{StatusPending, StatusConfirmed}, jobsNotDone)
}

// OpenBookingIDs 找出某辆车的全部开放预约（过户时的可迁移集合）。
func (r *Repo) OpenBookingIDs(ctx context.Context, carID string) ([]string, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var ids []string
	if err := r.openBookingFilter(db, carID).Order("created_at asc").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// MovableUnpaidQuoteIDs 找出可迁移的未付账单：
// billing.status = UNPAID 且所属预约是开放预约。
// 历史/已完结预约的账单永远不迁移，保证过往付款仍然归属原付款人。
func (r *Repo) MovableUnpaidQuoteIDs(ctx context.Context, carID string) ([]string, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	openBookings := r.openBookingFilter(db.Session(&gorm.Session{NewDB: true}), carID).Select("id")
	unpaid := db.Session(&gorm.Session{NewDB: true}).Model(&Billing{}).
		Select("quote_id").Where("status = ?", BillingUnpaid)

	var ids []string
	err := db.Model(&Quote{}).
		Where("booking_id IN (?)", openBookings).
		Where("id IN (?)", unpaid).
		Order("created_at asc").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ReassignBookingCustomers 批量改派预约的付款客户。只触碰给定 id 集合。
func (r *Repo) ReassignBookingCustomers(ctx context.Context, ids []string, newCustomerID string) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&Booking{}).Where("id IN ?", ids).
		Update("customer_id", newCustomerID).Error
}

// ReassignQuoteCustomers 批量改派账单抬头客户。只触碰给定 id 集合。
func (r *Repo) ReassignQuoteCustomers(ctx context.Context, ids []string, newCustomerID string) error {
	if len(ids) == 0 {
		return nil
	}
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&Quote{}).Where("id IN ?", ids).
		Update("customer_id", newCustomerID).Error
}

// HasUpcomingBooking 车辆是否还有未来的有效预约（删除车辆前的守卫）。
func (r *Repo) HasUpcomingBooking(ctx context.Context, carID string, now time.Time) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&Booking{}).
		Where("car_id = ?", carID).
		Where("scheduled_at >= ?", now).
		Where("status IN ?", []Status{StatusPending, StatusConfirmed}).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByCar 按车辆查询预约（历史视图），按预定时间倒序。
func (r *Repo) ListByCar(ctx context.Context, carID string, limit int) ([]Booking, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	var bookings []Booking
	err := db.Preload("Jobs").Preload("Quote").Preload("Quote.Billing").
		Preload("Quote.Customer").Preload("Customer").
		Where("car_id = ?", carID).
		Order("scheduled_at desc").Limit(limit).
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}
	return bookings, nil
}
