package part

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientStock 出库数量超过现存库存。
var ErrInsufficientStock = fmt.Errorf("insufficient stock")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, p *Part) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return db.Create(p).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Part, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Part
	if err := db.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context, search string, offset, limit int) ([]Part, int64, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	q := db.Model(&Part{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR serial_number LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var parts []Part
	if err := q.Order("name asc").Offset(offset).Limit(limit).Find(&parts).Error; err != nil {
		return nil, 0, err
	}
	return parts, total, nil
}

// UpdateDetails 更新名称/单价/阈值/单位/序列号；库存只走出入库接口。
func (r *Repo) UpdateDetails(ctx context.Context, id string, fields map[string]any) (bool, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return false, fmt.Errorf("repo db is nil")
	}
	res := db.Model(&Part{}).Where("id = ?", id).Updates(fields)
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
	return db.Where("id = ?", id).Delete(&Part{}).Error
}

// StockIn 入库：库存更新与流水写入在一个事务内完成。
// 库存用单条 UPDATE 累加，并发下不丢更新。
func (r *Repo) StockIn(ctx context.Context, id string, qty int, actorID string) (*Part, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be > 0")
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Part{}).Where("id = ?", id).
			Update("stock", gorm.Expr("stock + ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Create(&StockMovement{
			ID:       uuid.NewString(),
			PartID:   id,
			Kind:     MovementIn,
			Quantity: qty,
			ActorID:  actorID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// StockOut 出库：条件更新要求 stock >= qty，未命中即余量不足，不允许负库存。
func (r *Repo) StockOut(ctx context.Context, id string, qty int, actorID string) (*Part, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be > 0")
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Part{}).Where("id = ? AND stock >= ?", id, qty).
			Update("stock", gorm.Expr("stock - ?", qty))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 不存在或余量不足：再查一次区分两种情况
			var p Part
			if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
				return err
			}
			return ErrInsufficientStock
		}
		return tx.Create(&StockMovement{
			ID:       uuid.NewString(),
			PartID:   id,
			Kind:     MovementOut,
			Quantity: qty,
			ActorID:  actorID,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

// ListMovements 某配件的出入库流水，按时间倒序。
func (r *Repo) ListMovements(ctx context.Context, partID string, limit int) ([]StockMovement, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 50
	}
	var out []StockMovement
	err := db.Where("part_id = ?", partID).Order("created_at desc").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLowStock 库存不高于补货阈值的配件（采购提醒）。
func (r *Repo) ListLowStock(ctx context.Context) ([]Part, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var parts []Part
	err := db.Where("stock <= threshold").Order("stock asc").Find(&parts).Error
	if err != nil {
		return nil, err
	}
	return parts, nil
}
