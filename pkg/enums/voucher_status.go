package enums

import "fmt"

// VoucherStatus maps to the voucher_status enum in Postgres.
type VoucherStatus string

const (
	VoucherStatusReserved VoucherStatus = "reserved"
	VoucherStatusRedeemed VoucherStatus = "redeemed"
	VoucherStatusReleased VoucherStatus = "released"
)

var validVoucherStatuses = []VoucherStatus{
	VoucherStatusReserved,
	VoucherStatusRedeemed,
	VoucherStatusReleased,
}

// IsValid reports whether the value matches the canonical voucher status enum.
func (v VoucherStatus) IsValid() bool {
	for _, candidate := range validVoucherStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVoucherStatus converts the raw string to VoucherStatus.
func ParseVoucherStatus(value string) (VoucherStatus, error) {
	for _, candidate := range validVoucherStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher status %q", value)
}
