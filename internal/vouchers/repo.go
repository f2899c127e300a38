package vouchers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	pkgerrors "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/errors"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
)

// Repository exposes persistence helpers for voucher reservations. The
// uniqueness constraint on redemption_code is the concurrency-control
// primitive for the whole engine; Create surfaces its violation as a typed
// conflict so callers can tell a race loss apart from a storage fault.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.VoucherReservation, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherReservation, error)
	Create(ctx context.Context, reservation *models.VoucherReservation) error
	Update(ctx context.Context, reservation *models.VoucherReservation) error
	TransitionFrom(ctx context.Context, reservation *models.VoucherReservation, fromStatus enums.VoucherStatus, fromExpiresAt *time.Time) error
	ListRedeemedSince(ctx context.Context, since time.Time, limit int) ([]models.VoucherReservation, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a voucher reservation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindByCode(ctx context.Context, code string) (*models.VoucherReservation, error) {
	var reservation models.VoucherReservation
	err := r.db.WithContext(ctx).
		Where("redemption_code = ?", code).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.VoucherReservation, error) {
	var reservation models.VoucherReservation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repositoryImpl) Create(ctx context.Context, reservation *models.VoucherReservation) error {
	err := r.db.WithContext(ctx).Create(reservation).Error
	if err != nil && isDuplicateCode(err) {
		return pkgerrors.Wrap(pkgerrors.CodeReservationConflict, err, "reservation already exists for this code")
	}
	return err
}

func (r *repositoryImpl) Update(ctx context.Context, reservation *models.VoucherReservation) error {
	return r.db.WithContext(ctx).Save(reservation).Error
}

// TransitionFrom writes the reservation back guarded on the (status, expiry)
// pair the caller observed when it loaded the row. Zero rows affected means a
// concurrent caller moved the row first; that loss surfaces as a typed
// conflict exactly like losing the Create race.
func (r *repositoryImpl) TransitionFrom(ctx context.Context, reservation *models.VoucherReservation, fromStatus enums.VoucherStatus, fromExpiresAt *time.Time) error {
	query := r.db.WithContext(ctx).
		Model(&models.VoucherReservation{}).
		Where("id = ? AND status = ?", reservation.ID, fromStatus)
	if fromExpiresAt == nil {
		query = query.Where("reservation_expires_at IS NULL")
	} else {
		query = query.Where("reservation_expires_at = ?", *fromExpiresAt)
	}

	res := query.Updates(map[string]any{
		"status":                 reservation.Status,
		"reservation_expires_at": reservation.ReservationExpiresAt,
		"redeemed_at":            reservation.RedeemedAt,
		"raw_payload":            reservation.RawPayload,
		"plan_slug":              reservation.PlanSlug,
		"product_token":          reservation.ProductToken,
		"plan_weeks":             reservation.PlanWeeks,
		"deal_name":              reservation.DealName,
		"option_title":           reservation.OptionTitle,
		"purchase_price":         reservation.PurchasePrice,
		"voucher_value":          reservation.VoucherValue,
		"currency":               reservation.Currency,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeReservationConflict, "reservation was updated by a concurrent request")
	}
	return nil
}

func (r *repositoryImpl) ListRedeemedSince(ctx context.Context, since time.Time, limit int) ([]models.VoucherReservation, error) {
	var reservations []models.VoucherReservation
	query := r.db.WithContext(ctx).
		Where("status = ? AND updated_at >= ?", enums.VoucherStatusRedeemed, since).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&reservations).Error; err != nil {
		return nil, err
	}
	return reservations, nil
}

// isDuplicateCode detects a redemption_code uniqueness violation on Postgres
// and on the sqlite driver the tests run against.
func isDuplicateCode(err error) bool {
	if pkgerrors.IsUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
