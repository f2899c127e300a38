package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
)

// ReservationExpiryJobParams configures the expired-lease cleanup job.
type ReservationExpiryJobParams struct {
	Logger *logger.Logger
	DB     *gorm.DB
	Now    func() time.Time
}

// NewReservationExpiryJob builds a hygiene job that flips long-expired
// RESERVED rows to RELEASED. Correctness does not depend on it: every engine
// operation already releases expired leases lazily on touch. This only keeps
// the table readable for operators.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &reservationExpiryJob{logg: params.Logger, db: params.DB, now: now}, nil
}

type reservationExpiryJob struct {
	logg *logger.Logger
	db   *gorm.DB
	now  func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	result := j.db.WithContext(ctx).
		Model(&models.VoucherReservation{}).
		Where("status = ? AND reservation_expires_at IS NOT NULL AND reservation_expires_at <= ?",
			enums.VoucherStatusReserved, j.now()).
		Updates(map[string]any{
			"status":                 enums.VoucherStatusReleased,
			"reservation_expires_at": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("release expired reservations: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		j.logg.Info(j.logg.WithField(ctx, "released", result.RowsAffected), "expired reservations released")
	}
	return nil
}
