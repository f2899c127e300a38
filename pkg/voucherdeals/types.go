package voucherdeals

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Unit statuses as the provider reports them.
const (
	UnitStatusAvailable = "available"
	UnitStatusReserved  = "reserved"
	UnitStatusRedeemed  = "redeemed"
	UnitStatusRefunded  = "refunded"
)

// Error codes the provider returns in the errors array. UNKNOWN_ERROR is the
// ambiguous one: the provider may or may not have applied the write.
const (
	ErrCodeUnknown                = "UNKNOWN_ERROR"
	ErrCodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	ErrCodeResourceNotFound       = "RESOURCE_NOT_FOUND"
)

// Response is the provider's envelope for both unit lookups and redemption
// writes. A response can carry data and errors at the same time.
type Response struct {
	Data   []Unit     `json:"data"`
	Errors []APIError `json:"errors"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Unit struct {
	RedemptionCode string      `json:"redemptionCode"`
	Status         string      `json:"status"`
	RedeemedAt     Timestamp   `json:"redeemedAt"`
	UpdatedAt      Timestamp   `json:"updatedAt"`
	Deal           *DealInfo   `json:"dealInfo"`
	Option         *OptionInfo `json:"optionInfo"`
}

type DealInfo struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type OptionInfo struct {
	UUID          string `json:"uuid"`
	Title         string `json:"title"`
	PurchasePrice *Money `json:"purchasePrice"`
	Value         *Money `json:"value"`
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currencyCode"`
}

// Timestamp tolerates the handful of formats the provider has been observed
// emitting, plus null and empty string. Unparsable values decode to the zero
// time rather than failing the whole payload.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Time.UTC().Format(time.RFC3339) + `"`), nil
}

// Result pairs the HTTP outcome with the decoded payload. Body keeps the raw
// response bytes so callers can persist the provider's answer verbatim.
type Result struct {
	StatusCode int
	Body       []byte
	Payload    Response
}

// OK reports a clean success: 2xx status and an empty errors array.
func (r *Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300 && len(r.Payload.Errors) == 0
}

// Ambiguous reports whether the call failed with a non-2xx status and every
// returned error is UNKNOWN_ERROR, meaning the provider's state after the
// call cannot be inferred from the response. A 2xx response carrying errors
// is a definite answer, not an ambiguity.
func (r *Result) Ambiguous() bool {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return false
	}
	if len(r.Payload.Errors) == 0 {
		return false
	}
	for _, apiErr := range r.Payload.Errors {
		if apiErr.Code != ErrCodeUnknown {
			return false
		}
	}
	return true
}

func (r *Result) HasErrorCode(code string) bool {
	for _, apiErr := range r.Payload.Errors {
		if apiErr.Code == code {
			return true
		}
	}
	return false
}

// FirstUnit returns the first unit in the payload, or nil when the provider
// returned none.
func (r *Result) FirstUnit() *Unit {
	if len(r.Payload.Data) == 0 {
		return nil
	}
	return &r.Payload.Data[0]
}
