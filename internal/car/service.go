package car

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/booking"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/common/logger"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/notification"
	"github.com/jasonceddy/2Loy-Car-Aircon-Services/internal/user"
	"gorm.io/gorm"
)

// Actor 当前请求者（从鉴权上下文得到）。
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == user.RoleAdmin
}

// Service 封装车辆领域的核心用例（不依赖 HTTP），便于复用和测试。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	users    *user.Repo
	bookings *booking.Repo
	emitter  notification.Emitter
	log      logger.Logger
}

func NewService(db *gorm.DB, emitter notification.Emitter, log logger.Logger) *Service {
	return &Service{
		db:       db,
		repo:     NewRepo(db),
		users:    user.NewRepo(db),
		bookings: booking.NewRepo(db),
		emitter:  emitter,
		log:      log,
	}
}

// CreateCarInput 创建车辆的入参。
type CreateCarInput struct {
	PlateNo string
	Brand   string
	Model   string
	Year    string
	Notes   string
}

// CreateCar 创建车辆并同时开出第一条所有权区间。
func (s *Service) CreateCar(ctx context.Context, actor Actor, in CreateCarInput) (*Car, error) {
	plate := strings.ToUpper(strings.TrimSpace(in.PlateNo))
	if plate == "" {
		return nil, Validationf("plateNo is required")
	}

	exists, err := s.repo.PlateExists(ctx, plate)
	if err != nil {
		return nil, Internal(err)
	}
	if exists {
		return nil, Validationf("Plate number already exists")
	}

	c := &Car{
		ID:      uuid.NewString(),
		PlateNo: plate,
		Brand:   strings.TrimSpace(in.Brand),
		Model:   strings.TrimSpace(in.Model),
		Year:    strings.TrimSpace(in.Year),
		Notes:   strings.TrimSpace(in.Notes),
		OwnerID: actor.ID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, Internal(err)
	}
	return c, nil
}

// ListCarsFilter 查询条件。OwnerID 为空表示全量（管理员列表）。
type ListCarsFilter struct {
	OwnerID string
	Search  string
	Sort    string
	Page    int
	Limit   int
}

func (s *Service) ListCars(ctx context.Context, f ListCarsFilter) ([]Car, int64, error) {
	page := f.Page
	if page <= 0 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	cars, total, err := s.repo.List(ctx, f.OwnerID, strings.TrimSpace(f.Search), f.Sort, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, Internal(err)
	}
	return cars, total, nil
}

// UpdateCarInput 更新非所有权字段的入参。
type UpdateCarInput struct {
	PlateNo string
	Brand   string
	Model   string
	Year    string
	Notes   string
}

// UpdateCar 车主更新本人车辆的非所有权字段。
func (s *Service) UpdateCar(ctx context.Context, actor Actor, carID string, in UpdateCarInput) error {
	fields := map[string]any{
		"plate_no": strings.ToUpper(strings.TrimSpace(in.PlateNo)),
		"brand":    strings.TrimSpace(in.Brand),
		"model":    strings.TrimSpace(in.Model),
		"year":     strings.TrimSpace(in.Year),
		"notes":    strings.TrimSpace(in.Notes),
	}
	ok, err := s.repo.UpdateDetails(ctx, carID, actor.ID, fields)
	if err != nil {
		return Internal(err)
	}
	if !ok {
		return NotFoundf("Car not found")
	}
	return nil
}

// DeleteCar 删除本人车辆。守卫：仍有未来有效预约的车辆不允许删除。
func (s *Service) DeleteCar(ctx context.Context, actor Actor, carID string) error {
	c, err := s.repo.FindByID(ctx, carID)
	if err == gorm.ErrRecordNotFound {
		return NotFoundf("Car not found")
	}
	if err != nil {
		return Internal(err)
	}
	if c.OwnerID != actor.ID {
		return NotFoundf("Car not found")
	}

	upcoming, err := s.bookings.HasUpcomingBooking(ctx, carID, time.Now())
	if err != nil {
		return Internal(err)
	}
	if upcoming {
		return Validationf("Car cannot be deleted because it has upcoming bookings")
	}

	if err := s.repo.Delete(ctx, carID); err != nil {
		return Internal(err)
	}
	return nil
}
