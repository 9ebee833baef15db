package car

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/notification"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
)

// TransferInput 过户请求入参。
type TransferInput struct {
	CarID              string
	NewOwnerID         string
	MoveOpenJobs       bool
	MoveUnpaidInvoices bool
	Reason             string
	TransferDate       string // 可选；解析失败时静默回退为当前时间（沿用既有行为）
}

// TransferResult 过户成功的返回。
type TransferResult struct {
	Message            string   `json:"message"`
	TransferLogID      string   `json:"transferLogId"`
	MovedBookingIDs    []string `json:"movedBookingIds"`
	MovedQuoteIDs      []string `json:"movedQuoteIds"`
	MovedJobsCount     int      `json:"movedJobsCount"`
	MovedInvoicesCount int      `json:"movedInvoicesCount"`
}

// Transfer 执行一次车辆过户：
//
//	校验 → 条件更新（CAS）→ 关旧区间/补历史/开新区间 → 按需迁移预约与账单 → 追加审计
//
// 除通知外的全部步骤在一个数据库事务内完成；任何一步失败整体回滚，
// 不会出现半关区间或半迁移的中间态。重叠校验与 CAS 写在同一事务内，
// 并发竞争者最终由 CAS 判输，返回 409 让调用方重读重试。
func (s *Service) Transfer(ctx context.Context, actor Actor, in TransferInput) (*TransferResult, error) {
	// 入库前先校验 newOwnerId（缺失/非法直接拒绝，不碰数据库）
	newOwnerID := strings.TrimSpace(in.NewOwnerID)
	if newOwnerID == "" {
		return nil, Validationf("newOwnerId is required")
	}
	if _, err := uuid.Parse(newOwnerID); err != nil {
		return nil, Validationf("newOwnerId is required and must be a valid id")
	}

	c, err := s.repo.FindByID(ctx, in.CarID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("Car not found")
	}
	if err != nil {
		return nil, Internal(err)
	}

	// 仅管理员可过户（当前车主不能通过该入口自助过户）
	if !actor.IsAdmin() {
		return nil, Forbiddenf("Only admins may transfer car ownership")
	}

	newOwner, err := s.users.FindByID(ctx, newOwnerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("New owner not found")
	}
	if err != nil {
		return nil, Internal(err)
	}

	effective := resolveTransferDate(in.TransferDate, time.Now())
	return s.transferLoaded(ctx, actor, c, newOwner, in, effective)
}

// transferLoaded 基于事前读到的车辆快照执行过户事务。
// 快照里的 OwnerChangedAt 即 CAS 的比较值：如果别的请求在快照之后已改过车主，
// 条件更新命中 0 行，整个事务回滚并报并发冲突。
func (s *Service) transferLoaded(ctx context.Context, actor Actor, c *Car, newOwner *user.User, in TransferInput, effective time.Time) (*TransferResult, error) {
	prevToken := c.OwnerChangedAt
	prevOwnerID := c.OwnerID
	requestedAt := time.Now()

	var (
		movedBookingIDs = []string{}
		movedQuoteIDs   = []string{}
		transferLogID   string
	)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := NewRepo(tx)
		txBookings := booking.NewRepo(tx)

		// 冲突守卫与 CAS 写必须同属一个事务快照
		overlap, err := txRepo.HasOverlappingOwnership(ctx, c.ID, effective)
		if err != nil {
			return Internal(err)
		}
		if overlap {
			return Validationf("Transfer date would create overlapping ownership period. Please provide a valid transferDate that does not overlap existing ownerships.")
		}

		dup, err := txRepo.HasDuplicateIdentity(ctx, c.ID, c.PlateNo, c.VIN)
		if err != nil {
			return Internal(err)
		}
		if dup {
			return Validationf("Duplicate plate number or VIN detected on another car record. Please correct the identifiers before attempting the transfer.")
		}

		// 乐观并发：owner_changed_at 仍等于事前读到的值才允许改车主
		rows, err := txRepo.UpdateOwnerCAS(ctx, c.ID, prevToken, newOwner.ID, effective)
		if err != nil {
			return Internal(err)
		}
		if rows == 0 {
			return Conflictf("Ownership was modified by another admin. Please refresh and try again.")
		}

		// 把当前开放区间关闭在生效时刻
		if err := txRepo.CloseOpenOwnerships(ctx, c.ID, effective); err != nil {
			return Internal(err)
		}

		// 历史数据没有任何区间时，为前车主补一条完整区间，保证审计连续
		count, err := txRepo.CountOwnerships(ctx, c.ID)
		if err != nil {
			return Internal(err)
		}
		if count == 0 && prevOwnerID != "" {
			from := effective
			if prevToken != nil && prevToken.Before(effective) {
				from = *prevToken
			}
			to := effective
			if err := txRepo.CreateOwnership(ctx, &CarOwnership{
				CarID:    c.ID,
				OwnerID:  prevOwnerID,
				FromDate: from,
				ToDate:   &to,
			}); err != nil {
				return Internal(err)
			}
		}

		// 开出新车主的当前区间
		if err := txRepo.CreateOwnership(ctx, &CarOwnership{
			CarID:    c.ID,
			OwnerID:  newOwner.ID,
			FromDate: effective,
		}); err != nil {
			return Internal(err)
		}

		// 按管理员的选择迁移开放预约
		if in.MoveOpenJobs {
			ids, err := txBookings.OpenBookingIDs(ctx, c.ID)
			if err != nil {
				return Internal(err)
			}
			if len(ids) > 0 {
				if err := txBookings.ReassignBookingCustomers(ctx, ids, newOwner.ID); err != nil {
					return Internal(err)
				}
				movedBookingIDs = ids
			}
		}

		// 按管理员的选择迁移未付账单（仅限开放预约名下的）
		if in.MoveUnpaidInvoices {
			ids, err := txBookings.MovableUnpaidQuoteIDs(ctx, c.ID)
			if err != nil {
				return Internal(err)
			}
			if len(ids) > 0 {
				if err := txBookings.ReassignQuoteCustomers(ctx, ids, newOwner.ID); err != nil {
					return Internal(err)
				}
				movedQuoteIDs = ids
			}
		}

		// 幂等收尾写：车辆行最终反映新车主
		if err := txRepo.UpdateOwner(ctx, c.ID, newOwner.ID, effective); err != nil {
			return Internal(err)
		}

		details, err := json.Marshal(TransferDetails{
			TransferDate:        effective,
			MovedBookingIDs:     movedBookingIDs,
			MovedQuoteIDs:       movedQuoteIDs,
			TransferRequestedAt: requestedAt,
		})
		if err != nil {
			return Internal(err)
		}

		l := &TransferLog{
			CarID:              c.ID,
			AdminID:            actor.ID,
			PreviousOwnerID:    prevOwnerID,
			NewOwnerID:         newOwner.ID,
			Reason:             strings.TrimSpace(in.Reason),
			MoveOpenJobs:       in.MoveOpenJobs,
			MoveUnpaidInvoices: in.MoveUnpaidInvoices,
			MovedJobsCount:     len(movedBookingIDs),
			MovedInvoicesCount: len(movedQuoteIDs),
			Details:            details,
			CreatedAt:          effective,
		}
		if err := txRepo.CreateTransferLog(ctx, l); err != nil {
			return Internal(err)
		}
		transferLogID = l.ID
		return nil
	})
	if txErr != nil {
		var de *DomainError
		if errors.As(txErr, &de) {
			return nil, txErr
		}
		return nil, Internal(txErr)
	}

	// 事务已提交；通知是尽力而为，失败只记日志
	s.notifyTransfer(ctx, actor, c, newOwner, prevOwnerID, movedBookingIDs, movedQuoteIDs)

	return &TransferResult{
		Message:            "Car ownership transferred successfully",
		TransferLogID:      transferLogID,
		MovedBookingIDs:    movedBookingIDs,
		MovedQuoteIDs:      movedQuoteIDs,
		MovedJobsCount:     len(movedBookingIDs),
		MovedInvoicesCount: len(movedQuoteIDs),
	}, nil
}

func (s *Service) notifyTransfer(ctx context.Context, actor Actor, c *Car, newOwner *user.User, prevOwnerID string, movedBookingIDs, movedQuoteIDs []string) {
	if s.emitter == nil {
		return
	}

	meta := map[string]any{
		"carId":           c.ID,
		"transferBy":      actor.ID,
		"movedBookingIds": movedBookingIDs,
		"movedQuoteIds":   movedQuoteIDs,
	}

	batch := make([]notification.Message, 0, 2)
	if prevOwnerID != "" {
		batch = append(batch, notification.Message{
			UserID: prevOwnerID,
			Title:  fmt.Sprintf("Car %s transferred", c.PlateNo),
			Body: fmt.Sprintf("Your vehicle (plate %s) was transferred to %s. Admin moved %d open booking(s) and %d unpaid invoice(s) as requested.",
				c.PlateNo, newOwner.Name, len(movedBookingIDs), len(movedQuoteIDs)),
			Meta: meta,
		})
	}
	batch = append(batch, notification.Message{
		UserID: newOwner.ID,
		Title:  fmt.Sprintf("You are now owner of car %s", c.PlateNo),
		Body: fmt.Sprintf("You were made the owner of vehicle (plate %s) by admin %s. %d open booking(s) and %d unpaid invoice(s) were moved to you as requested.",
			c.PlateNo, actor.ID, len(movedBookingIDs), len(movedQuoteIDs)),
		Meta: meta,
	})

	if err := s.emitter.Emit(ctx, batch); err != nil && s.log != nil {
		s.log.Warnf("failed to create transfer notifications: %v", err)
	}
}

// transferDateLayouts 管理端允许提交的几种日期格式。
var transferDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// resolveTransferDate 解析管理员指定的生效时间；解析失败静默回退为 now。
func resolveTransferDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	for _, layout := range transferDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return now
}
