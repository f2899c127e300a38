package vouchers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
)

// LookupResult is returned to a caller who now holds the lease. The
// reservation id is the capability token the caller must present to Redeem.
type LookupResult struct {
	ReservationID uuid.UUID      `json:"reservationId"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	Voucher       VoucherDetails `json:"voucher"`
}

// VoucherDetails carries the descriptive fields captured at lookup time.
type VoucherDetails struct {
	RedemptionCode string          `json:"redemptionCode"`
	PlanSlug       string          `json:"planSlug"`
	PlanWeeks      int             `json:"planWeeks"`
	DealName       string          `json:"dealName"`
	OptionTitle    string          `json:"optionTitle,omitempty"`
	PurchasePrice  decimal.Decimal `json:"purchasePrice"`
	VoucherValue   decimal.Decimal `json:"voucherValue"`
	Currency       string          `json:"currency,omitempty"`
}

// RedeemResult reports a completed redemption.
type RedeemResult struct {
	Status     enums.VoucherStatus `json:"status"`
	RedeemedAt time.Time           `json:"redeemedAt"`
}

func detailsFromModel(reservation *models.VoucherReservation) VoucherDetails {
	return VoucherDetails{
		RedemptionCode: reservation.RedemptionCode,
		PlanSlug:       reservation.PlanSlug,
		PlanWeeks:      reservation.PlanWeeks,
		DealName:       reservation.DealName,
		OptionTitle:    reservation.OptionTitle,
		PurchasePrice:  reservation.PurchasePrice,
		VoucherValue:   reservation.VoucherValue,
		Currency:       reservation.Currency,
	}
}
