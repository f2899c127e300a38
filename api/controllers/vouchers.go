package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/api/responses"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/api/validators"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/vouchers"
	pkgerrors "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/errors"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
)

const maxVoucherCodeLen = 64

type voucherLookupRequest struct {
	Code string `json:"code" validate:"required"`
}

type voucherRedeemRequest struct {
	ReservationID string `json:"reservationId" validate:"required,uuid"`
}

type voucherLinkRequest struct {
	OrderID string `json:"orderId" validate:"required,uuid"`
}

// VoucherLookup validates the code against the plan catalog, checks the
// provider, and returns a reservation lease.
func VoucherLookup(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		var body voucherLookupRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		code := validators.SanitizeString(body.Code, maxVoucherCodeLen)
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithVoucherCode(ctx, code)
		}

		result, err := svc.Lookup(ctx, code)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// VoucherRedeem burns the reserved voucher at the provider.
func VoucherRedeem(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		var body voucherRedeemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReservationID(ctx, body.ReservationID)
		}

		result, err := svc.Redeem(ctx, body.ReservationID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// VoucherLinkOrder attaches the downstream order to a redeemed voucher.
func VoucherLinkOrder(svc vouchers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voucher service unavailable"))
			return
		}

		reservationID, err := uuid.Parse(chi.URLParam(r, "reservationId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid reservation id"))
			return
		}

		var body voucherLinkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(body.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidInput, err, "invalid order id"))
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithReservationID(ctx, reservationID.String())
		}

		if err := svc.LinkOrder(ctx, reservationID, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "linked"})
	}
}
