package car

import (
	"context"
	"errors"
	"time"

	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
)

// PartyView 历史视图里出现的人员投影。联系方式按隐私规则可能被抹掉。
type PartyView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// JobView 工单投影。
type JobView struct {
	ID    string           `json:"id"`
	Stage booking.JobStage `json:"stage"`
	Title string           `json:"title"`
}

// QuoteView 报价投影，带账单状态与账单抬头客户。
type QuoteView struct {
	ID            string     `json:"id"`
	Amount        int64      `json:"amount"`
	BillingStatus string     `json:"billingStatus,omitempty"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	Customer      *PartyView `json:"customer,omitempty"`
}

// BookingView 单条维修记录投影。
type BookingView struct {
	ID          string         `json:"id"`
	Status      booking.Status `json:"status"`
	ScheduledAt time.Time      `json:"scheduledAt"`
	Notes       string         `json:"notes,omitempty"`
	Customer    *PartyView     `json:"customer,omitempty"`
	Jobs        []JobView      `json:"jobs"`
	Quote       *QuoteView     `json:"quote,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// OwnershipView 所有权区间投影。ToDate 为空表示当前区间。
type OwnershipView struct {
	ID       string     `json:"id"`
	FromDate time.Time  `json:"fromDate"`
	ToDate   *time.Time `json:"toDate,omitempty"`
	Owner    *PartyView `json:"owner,omitempty"`
}

// CarHistory 历史视图聚合：维修记录 + 所有权时间线。
type CarHistory struct {
	Bookings   []BookingView   `json:"data"`
	Ownerships []OwnershipView `json:"ownerships"`
	CarOwnerID string          `json:"carOwnerId"`
}

// TransferLogView 过户审计记录投影（管理端）。
type TransferLogView struct {
	ID                 string     `json:"id"`
	Reason             string     `json:"reason,omitempty"`
	MoveOpenJobs       bool       `json:"moveOpenJobs"`
	MoveUnpaidInvoices bool       `json:"moveUnpaidInvoices"`
	MovedJobsCount     int        `json:"movedJobsCount"`
	MovedInvoicesCount int        `json:"movedInvoicesCount"`
	Details            any        `json:"details,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	Admin              *PartyView `json:"admin,omitempty"`
	PreviousOwner      *PartyView `json:"previousOwner,omitempty"`
	NewOwner           *PartyView `json:"newOwner,omitempty"`
}

// GetCarHistory 返回车辆的维修记录与所有权时间线。
// 只有管理员或当前车主可以查看。非管理员查看时，不属于本人的参与方
// 只保留姓名，邮箱/电话在投影阶段抹掉（绝不改动持久化记录）。
func (s *Service) GetCarHistory(ctx context.Context, actor Actor, carID string) (*CarHistory, error) {
	c, err := s.repo.FindByID(ctx, carID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFoundf("Car not found")
	}
	if err != nil {
		return nil, Internal(err)
	}

	if !actor.IsAdmin() && c.OwnerID != actor.ID {
		return nil, Forbiddenf("Access denied")
	}

	bookings, err := s.bookings.ListByCar(ctx, carID, 20)
	if err != nil {
		return nil, Internal(err)
	}
	ownerships, err := s.repo.ListOwnerships(ctx, carID)
	if err != nil {
		return nil, Internal(err)
	}

	h := &CarHistory{
		Bookings:   make([]BookingView, 0, len(bookings)),
		Ownerships: make([]OwnershipView, 0, len(ownerships)),
		CarOwnerID: c.OwnerID,
	}
	for i := range bookings {
		h.Bookings = append(h.Bookings, projectBooking(&bookings[i], actor))
	}
	for i := range ownerships {
		o := &ownerships[i]
		h.Ownerships = append(h.Ownerships, OwnershipView{
			ID:       o.ID,
			FromDate: o.FromDate,
			ToDate:   o.ToDate,
			Owner:    maskParty(&o.Owner, actor),
		})
	}
	return h, nil
}

// ListTransfers 过户审计记录（管理端）。
func (s *Service) ListTransfers(ctx context.Context, actor Actor, carID string) ([]TransferLogView, error) {
	if !actor.IsAdmin() {
		return nil, Forbiddenf("Only admins may view transfer logs")
	}
	logs, err := s.repo.ListTransferLogs(ctx, carID)
	if err != nil {
		return nil, Internal(err)
	}

	out := make([]TransferLogView, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		v := TransferLogView{
			ID:                 l.ID,
			Reason:             l.Reason,
			MoveOpenJobs:       l.MoveOpenJobs,
			MoveUnpaidInvoices: l.MoveUnpaidInvoices,
			MovedJobsCount:     l.MovedJobsCount,
			MovedInvoicesCount: l.MovedInvoicesCount,
			CreatedAt:          l.CreatedAt,
		}
		if len(l.Details) > 0 {
			v.Details = l.Details
		}
		v.Admin = s.lookupParty(ctx, l.AdminID)
		v.PreviousOwner = s.lookupParty(ctx, l.PreviousOwnerID)
		v.NewOwner = s.lookupParty(ctx, l.NewOwnerID)
		out = append(out, v)
	}
	return out, nil
}

// lookupParty 按 ID 查参与方；用户已被删除时返回只含 ID 的占位，审计记录不因此报错。
func (s *Service) lookupParty(ctx context.Context, id string) *PartyView {
	if id == "" {
		return nil
	}
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return &PartyView{ID: id}
	}
	return &PartyView{ID: u.ID, Name: u.Name, Email: u.Email}
}

// projectBooking 构造单条维修记录的视图并按需抹掉联系方式。
func projectBooking(b *booking.Booking, actor Actor) BookingView {
	v := BookingView{
		ID:          b.ID,
		Status:      b.Status,
		ScheduledAt: b.ScheduledAt,
		Notes:       b.Notes,
		Customer:    maskParty(&b.Customer, actor),
		Jobs:        make([]JobView, 0, len(b.Jobs)),
		CreatedAt:   b.CreatedAt,
	}
	for _, j := range b.Jobs {
		v.Jobs = append(v.Jobs, JobView{ID: j.ID, Stage: j.Stage, Title: j.Title})
	}
	if b.Quote != nil {
		q := &QuoteView{
			ID:       b.Quote.ID,
			Amount:   b.Quote.Amount,
			Customer: maskParty(&b.Quote.Customer, actor),
		}
		if b.Quote.Billing != nil {
			q.BillingStatus = string(b.Quote.Billing.Status)
			q.PaidAt = b.Quote.Billing.PaidAt
		}
		v.Quote = q
	}
	return v
}

// maskParty 非管理员且非本人时，抹掉邮箱/电话，保留姓名让历史仍可读。
func maskParty(u *user.User, actor Actor) *PartyView {
	if u == nil || u.ID == "" {
		return nil
	}
	p := &PartyView{ID: u.ID, Name: u.Name}
	if actor.IsAdmin() || u.ID == actor.ID {
		p.Email = u.Email
		p.Phone = u.Phone
	}
	return p
}
