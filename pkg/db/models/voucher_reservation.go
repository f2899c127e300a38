package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
)

// VoucherReservation tracks the local lease over an externally-owned voucher.
// The redemption code is the true identity shared with the provider; the row
// id is the capability token handed to the caller of Lookup.
type VoucherReservation struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RedemptionCode       string              `gorm:"column:redemption_code;not null;uniqueIndex:uq_voucher_reservations_redemption_code"`
	Status               enums.VoucherStatus `gorm:"column:status;type:voucher_status;not null;default:'reserved'"`
	ReservationExpiresAt *time.Time          `gorm:"column:reservation_expires_at;type:timestamptz"`
	RedeemedAt           *time.Time          `gorm:"column:redeemed_at;type:timestamptz"`
	LinkedOrderID        *uuid.UUID          `gorm:"column:linked_order_id;type:uuid"`
	RawPayload           string              `gorm:"column:raw_payload;type:jsonb"`

	// Descriptive fields copied from catalog and provider at lookup time.
	PlanSlug      string          `gorm:"column:plan_slug;not null"`
	ProductToken  string          `gorm:"column:product_token;not null"`
	PlanWeeks     int             `gorm:"column:plan_weeks;not null"`
	DealName      string          `gorm:"column:deal_name;not null"`
	OptionTitle   string          `gorm:"column:option_title"`
	PurchasePrice decimal.Decimal `gorm:"column:purchase_price;type:numeric(12,2)"`
	VoucherValue  decimal.Decimal `gorm:"column:voucher_value;type:numeric(12,2)"`
	Currency      string          `gorm:"column:currency;type:char(3)"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Expired reports whether a RESERVED row's lease has lapsed at the given
// instant. Expiry is lazy: the row may still read `reserved` in storage.
func (v *VoucherReservation) Expired(now time.Time) bool {
	if v == nil || v.Status != enums.VoucherStatusReserved {
		return false
	}
	if v.ReservationExpiresAt == nil {
		return true
	}
	return !now.Before(*v.ReservationExpiresAt)
}
