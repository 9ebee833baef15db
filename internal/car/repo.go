package car

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// Create 创建车辆并开出第一条所有权区间（同一时间戳，保证时间线无缝）。
func (r *Repo) Create(ctx context.Context, c *Car) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	now := time.Now()
	c.OwnerChangedAt = &now
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Create(&CarOwnership{
			ID:       uuid.NewString(),
			CarID:    c.ID,
			OwnerID:  c.OwnerID,
			FromDate: now,
		}).Error
	})
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Car, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var c Car
	if err := db.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) PlateExists(ctx context.Context, plateNo string) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var n int64
	if err := db.Model(&Car{}).Where("plate_no = ?", plateNo).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// List 支持按车主过滤 + 模糊搜索 + 分页。ownerID 为空表示全量（管理员列表）。
func (r *Repo) List(ctx context.Context, ownerID, search, sort string, offset, limit int) ([]Car, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	q := db.Model(&Car{})
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("brand LIKE ? OR model LIKE ? OR plate_no LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at desc"
	if sort == "id_asc" {
		order = "created_at asc"
	}
	var cars []Car
	if err := q.Preload("Owner").Order(order).Offset(offset).Limit(limit).Find(&cars).Error; err != nil {
		return nil, 0, err
	}
	return cars, total, nil
}

// UpdateDetails 车主更新非所有权字段（plate/brand/model/year/notes）。
// 返回是否命中（车不存在或不属于该车主时为 false）。
func (r *Repo) UpdateDetails(ctx context.Context, id, ownerID string, fields map[string]any) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Car{}).Where("id = ? AND owner_id = ?", id, ownerID).Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Where("id = ?", id).Delete(&Car{}).Error
}

// HasDuplicateIdentity 是否存在“另一辆车”占用了相同的车牌（或 VIN，如有）。
func (r *Repo) HasDuplicateIdentity(ctx context.Context, carID, plateNo, vin string) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Car{}).Where("id <> ?", carID)
	if vin != "" {
		q = q.Where("plate_no = ? OR vin = ?", plateNo, vin)
	} else {
		q = q.Where("plate_no = ?", plateNo)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// HasOverlappingOwnership 判断以 T 为起点开出新的当前区间是否会破坏无重叠不变式。
// 冲突条件：
//   - 任何已关闭区间的 to_date > T（新开区间 [T, ∞) 必然与其相交），或
//   - 任何开放区间的 from_date >= T（本次会把它关在 T，区间将为空或倒置）。
//
// 当前开放区间 from_date < T 的正常情况不算冲突：同一事务内它会被关闭在 T。
func (r *Repo) HasOverlappingOwnership(ctx context.Context, carID string, t time.Time) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&CarOwnership{}).
		Where("car_id = ?", carID).
		Where("(to_date IS NOT NULL AND to_date > ?) OR (to_date IS NULL AND from_date >= ?)", t, t).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateOwnerCAS 条件更新车主与并发令牌：仅当 owner_changed_at 仍等于事前读到的值
// 才生效，返回受影响行数。0 行 = 并发冲突，调用方整体回滚。
func (r *Repo) UpdateOwnerCAS(ctx context.Context, carID string, prevToken *time.Time, newOwnerID string, t time.Time) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	q := db.Model(&Car{}).Where("id = ?", carID)
	if prevToken == nil {
		q = q.Where("owner_changed_at IS NULL")
	} else {
		q = q.Where("owner_changed_at = ?", *prevToken)
	}
	res := q.Updates(map[string]any{
		"owner_id":         newOwnerID,
		"owner_changed_at": t,
	})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// UpdateOwner 无条件回写车主字段（过户事务末尾的幂等收尾写）。
func (r *Repo) UpdateOwner(ctx context.Context, carID, ownerID string, t time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&Car{}).Where("id = ?", carID).Updates(map[string]any{
		"owner_id":         ownerID,
		"owner_changed_at": t,
	}).Error
}

// CloseOpenOwnerships 把该车所有开放区间关闭在 T。
func (r *Repo) CloseOpenOwnerships(ctx context.Context, carID string, t time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Model(&CarOwnership{}).
		Where("car_id = ? AND to_date IS NULL", carID).
		Update("to_date", t).Error
}

func (r *Repo) CountOwnerships(ctx context.Context, carID string) (int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := db.Model(&CarOwnership{}).Where("car_id = ?", carID).Count(&n).Error
	return n, err
}

func (r *Repo) CreateOwnership(ctx context.Context, o *CarOwnership) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return db.Create(o).Error
}

// ListOwnerships 所有权时间线，按起始时间倒序。
func (r *Repo) ListOwnerships(ctx context.Context, carID string) ([]CarOwnership, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []CarOwnership
	err := db.Preload("Owner").
		Where("car_id = ?", carID).
		Order("from_date desc").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CreateTransferLog(ctx context.Context, l *TransferLog) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return db.Create(l).Error
}

// ListTransferLogs 过户审计记录，按时间倒序。
func (r *Repo) ListTransferLogs(ctx context.Context, carID string) ([]TransferLog, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var out []TransferLog
	err := db.Where("car_id = ?", carID).Order("created_at desc").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
