package vouchers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/config"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
	pkgerrors "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/errors"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/voucherdeals"
)

// Service is the reservation/redemption state machine:
// NONE -> RESERVED -> {REDEEMED, RELEASED}; RELEASED -> RESERVED via re-lookup;
// REDEEMED is a sink. Expiry is lazy: whichever operation next touches an
// expired RESERVED row releases it.
type Service interface {
	Lookup(ctx context.Context, code string) (*LookupResult, error)
	Redeem(ctx context.Context, rawReservationID string) (*RedeemResult, error)
	LinkOrder(ctx context.Context, reservationID, orderID uuid.UUID) error
}

type catalogRepository interface {
	FindByCode(ctx context.Context, code string) (*models.ProgramPlan, error)
}

type providerClient interface {
	FetchUnit(ctx context.Context, code string) (*voucherdeals.Result, error)
	RedeemUnit(ctx context.Context, code string, at time.Time) (*voucherdeals.Result, error)
}

type service struct {
	repo     Repository
	catalog  catalogRepository
	provider providerClient
	logg     *logger.Logger

	ttl            time.Duration
	redeemAttempts int
	redeemBackoff  time.Duration
	epsilon        time.Duration

	now func() time.Time
}

// NewService wires the voucher engine dependencies.
func NewService(repo Repository, catalog catalogRepository, provider providerClient, logg *logger.Logger, cfg config.ReservationConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "voucher repository required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "voucher provider client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	attempts := cfg.RedeemAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &service{
		repo:           repo,
		catalog:        catalog,
		provider:       provider,
		logg:           logg,
		ttl:            cfg.TTL,
		redeemAttempts: attempts,
		redeemBackoff:  cfg.RedeemBackoff,
		epsilon:        cfg.RedeemedAtEpsilon,
		now:            time.Now,
	}, nil
}

func (s *service) Lookup(ctx context.Context, code string) (*LookupResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "voucher code required")
	}
	ctx = s.logg.WithVoucherCode(ctx, code)

	// Catalog first: unknown prefixes never reach the provider.
	plan, err := s.catalog.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.FetchUnit(ctx, code)
	if err != nil {
		return nil, err
	}
	unit := result.FirstUnit()
	if unit == nil || result.HasErrorCode(voucherdeals.ErrCodeResourceNotFound) {
		s.logg.Info(ctx, "lookup: provider has no unit for code")
		return nil, pkgerrors.New(pkgerrors.CodeVoucherNotFound, "voucher not found at provider")
	}
	if !result.OK() {
		s.logg.Warn(ctx, fmt.Sprintf("lookup: provider returned status %d with errors", result.StatusCode))
		return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "voucher provider rejected the lookup")
	}
	if unit.Status != voucherdeals.UnitStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeVoucherUnavailable, unavailableMessage(unit))
	}

	now := s.now()
	existing, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}

	if existing != nil {
		if existing.LinkedOrderID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeVoucherUnavailable, "voucher is already attached to an order")
		}
		if existing.Status == enums.VoucherStatusRedeemed {
			return nil, pkgerrors.New(pkgerrors.CodeVoucherUnavailable, "voucher was already redeemed on this portal")
		}
		if existing.Status == enums.VoucherStatusReserved && !existing.Expired(now) {
			s.logg.Info(s.logg.WithReservationID(ctx, existing.ID.String()), "lookup: active lease held elsewhere")
			return nil, pkgerrors.New(pkgerrors.CodeReservationConflict, "voucher is currently reserved by another session")
		}

		// Lazy expiry: a stale RESERVED row or a RELEASED one moves straight
		// to a fresh lease in a single write, guarded on the state this
		// request observed. Concurrent lookups race on that guard and exactly
		// one wins.
		observedStatus := existing.Status
		observedExpiresAt := existing.ReservationExpiresAt

		expiresAt := now.Add(s.ttl)
		existing.Status = enums.VoucherStatusReserved
		existing.ReservationExpiresAt = &expiresAt
		applyUnit(existing, plan, unit, result.Body)
		if err := s.repo.TransitionFrom(ctx, existing, observedStatus, observedExpiresAt); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeReservationConflict) {
				s.logg.Info(s.logg.WithReservationID(ctx, existing.ID.String()), "lookup: lost renewal race")
				return nil, pkgerrors.New(pkgerrors.CodeReservationConflict, "voucher is currently reserved by another session")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew reservation")
		}
		s.logg.Info(s.logg.WithReservationID(ctx, existing.ID.String()), "lookup: reservation renewed")
		return &LookupResult{
			ReservationID: existing.ID,
			ExpiresAt:     expiresAt,
			Voucher:       detailsFromModel(existing),
		}, nil
	}

	expiresAt := now.Add(s.ttl)
	reservation := &models.VoucherReservation{
		RedemptionCode:       code,
		Status:               enums.VoucherStatusReserved,
		ReservationExpiresAt: &expiresAt,
	}
	applyUnit(reservation, plan, unit, result.Body)
	if err := s.repo.Create(ctx, reservation); err != nil {
		// A concurrent Lookup won the upsert race; the store's uniqueness
		// constraint is the arbiter, not an in-process lock.
		if pkgerrors.HasCode(err, pkgerrors.CodeReservationConflict) {
			s.logg.Info(ctx, "lookup: lost reservation race")
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reservation")
	}
	s.logg.Info(s.logg.WithReservationID(ctx, reservation.ID.String()), "lookup: reservation created")
	return &LookupResult{
		ReservationID: reservation.ID,
		ExpiresAt:     expiresAt,
		Voucher:       detailsFromModel(reservation),
	}, nil
}

func (s *service) Redeem(ctx context.Context, rawReservationID string) (*RedeemResult, error) {
	id, err := uuid.Parse(strings.TrimSpace(rawReservationID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "reservation id must be a valid identifier")
	}
	ctx = s.logg.WithReservationID(ctx, id.String())

	reservation, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if reservation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeReservationNotFound, "reservation not found")
	}
	ctx = s.logg.WithVoucherCode(ctx, reservation.RedemptionCode)

	now := s.now()
	if reservation.Expired(now) {
		observedExpiresAt := reservation.ReservationExpiresAt
		reservation.Status = enums.VoucherStatusReleased
		reservation.ReservationExpiresAt = nil
		err := s.repo.TransitionFrom(ctx, reservation, enums.VoucherStatusReserved, observedExpiresAt)
		if err != nil && !pkgerrors.HasCode(err, pkgerrors.CodeReservationConflict) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release expired reservation")
		}
		// A conflict here means a concurrent Lookup already re-leased the
		// row; either way this caller's lease is gone.
		s.logg.Info(ctx, "redeem: lease expired, reservation released")
		return nil, pkgerrors.New(pkgerrors.CodeReservationExpired, "reservation has expired, look the voucher up again")
	}
	if reservation.Status != enums.VoucherStatusReserved {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, fmt.Sprintf("reservation is %s, not reserved", reservation.Status))
	}

	// The lease was granted TTL before it expires; that instant anchors the
	// who-redeemed-it comparison when the provider's answer is ambiguous.
	leaseAcquiredAt := reservation.ReservationExpiresAt.Add(-s.ttl)

	for attempt := 1; attempt <= s.redeemAttempts; attempt++ {
		attemptCtx := s.logg.WithField(ctx, "attempt", attempt)

		result, err := s.provider.RedeemUnit(attemptCtx, reservation.RedemptionCode, s.now())
		if err != nil {
			return nil, err
		}

		if result.OK() {
			redeemedAt := s.now()
			if unit := result.FirstUnit(); unit != nil && !unit.RedeemedAt.Time.IsZero() {
				redeemedAt = unit.RedeemedAt.Time
			}
			if err := s.persistRedeemed(attemptCtx, reservation, redeemedAt, result.Body); err != nil {
				return nil, err
			}
			s.logg.Info(attemptCtx, "redeem: provider confirmed redemption")
			return &RedeemResult{Status: enums.VoucherStatusRedeemed, RedeemedAt: redeemedAt}, nil
		}

		if !result.Ambiguous() {
			if result.HasErrorCode(voucherdeals.ErrCodeInvalidStateTransition) {
				s.logg.Warn(attemptCtx, "redeem: provider reports voucher already redeemed")
				return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "voucher has already been redeemed")
			}
			s.logg.Warn(attemptCtx, fmt.Sprintf("redeem: provider returned terminal status %d", result.StatusCode))
			return nil, pkgerrors.New(pkgerrors.CodeProviderUnavailable, "voucher provider rejected the redemption")
		}

		// Ambiguity survived the client's own retries: the PATCH may or may
		// not have landed. Probe current status before deciding anything.
		s.logg.Warn(attemptCtx, "redeem: ambiguous provider response, probing status")
		outcome, probeErr := s.reconcileAmbiguous(attemptCtx, reservation, leaseAcquiredAt)
		if probeErr == nil && outcome != nil {
			return outcome, nil
		}
		if probeErr != nil && !pkgerrors.HasCode(probeErr, codeProbeUnresolved) {
			return nil, probeErr
		}

		if attempt < s.redeemAttempts {
			delay := time.Duration(attempt) * s.redeemBackoff
			s.logg.Info(attemptCtx, fmt.Sprintf("redeem: retrying after %s", delay))
			select {
			case <-ctx.Done():
				return nil, pkgerrors.Wrap(pkgerrors.CodeRedemptionIndeterminate, ctx.Err(), "redemption interrupted while unresolved")
			case <-time.After(delay):
			}
		}
	}

	s.logg.Error(ctx, "redeem: ambiguity unresolved after all attempts", nil)
	return nil, pkgerrors.New(pkgerrors.CodeRedemptionIndeterminate, "redemption outcome could not be determined, contact support before retrying")
}

// codeProbeUnresolved is internal to the redeem loop: the probe ran but the
// provider does not (yet) report the voucher as redeemed.
const codeProbeUnresolved pkgerrors.Code = "PROBE_UNRESOLVED"

// reconcileAmbiguous resolves an ambiguous PATCH by fetching current provider
// state. Returns a RedeemResult when our own write is judged to have landed,
// an AlreadyRedeemedElsewhere error when someone beat us to the voucher, or a
// probe-unresolved marker when the redeem loop should try again.
func (s *service) reconcileAmbiguous(ctx context.Context, reservation *models.VoucherReservation, leaseAcquiredAt time.Time) (*RedeemResult, error) {
	probe, err := s.provider.FetchUnit(ctx, reservation.RedemptionCode)
	if err != nil {
		s.logg.Error(ctx, "redeem: status probe failed", err)
		return nil, pkgerrors.New(codeProbeUnresolved, "status probe failed")
	}

	unit := probe.FirstUnit()
	if unit == nil || unit.Status != voucherdeals.UnitStatusRedeemed {
		s.logg.Info(ctx, "redeem: probe does not report redeemed")
		return nil, pkgerrors.New(codeProbeUnresolved, "provider does not report redeemed")
	}

	providerRedeemedAt := unit.RedeemedAt.Time
	if providerRedeemedAt.IsZero() {
		// No timestamp gives no evidence of a prior redeemer; claim the write.
		redeemedAt := s.now()
		if err := s.persistRedeemed(ctx, reservation, redeemedAt, probe.Body); err != nil {
			return nil, err
		}
		s.logg.Info(ctx, "redeem: probe reports redeemed without timestamp, treated as own write")
		return &RedeemResult{Status: enums.VoucherStatusRedeemed, RedeemedAt: redeemedAt}, nil
	}

	if providerRedeemedAt.Before(leaseAcquiredAt.Add(-s.epsilon)) {
		// Redeemed before this lease existed: someone else's write. Persist
		// REDEEMED locally anyway so the code is never attempted again.
		if err := s.persistRedeemed(ctx, reservation, providerRedeemedAt, probe.Body); err != nil {
			return nil, err
		}
		s.logg.Warn(ctx, fmt.Sprintf("redeem: provider redemption at %s predates lease at %s", providerRedeemedAt, leaseAcquiredAt))
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyRedeemedElsewhere, "voucher was redeemed outside this portal before your reservation")
	}

	if err := s.persistRedeemed(ctx, reservation, providerRedeemedAt, probe.Body); err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "redeem: ambiguous write confirmed as our own")
	return &RedeemResult{Status: enums.VoucherStatusRedeemed, RedeemedAt: providerRedeemedAt}, nil
}

func (s *service) LinkOrder(ctx context.Context, reservationID, orderID uuid.UUID) error {
	if reservationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "reservation id required")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidInput, "order id required")
	}
	ctx = s.logg.WithReservationID(ctx, reservationID.String())

	reservation, err := s.repo.FindByID(ctx, reservationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reservation")
	}
	if reservation == nil {
		return pkgerrors.New(pkgerrors.CodeReservationNotFound, "reservation not found")
	}
	if reservation.Status != enums.VoucherStatusRedeemed {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "only redeemed vouchers can be linked to an order")
	}
	if reservation.LinkedOrderID != nil {
		return pkgerrors.New(pkgerrors.CodeConflict, "voucher is already linked to an order")
	}

	reservation.LinkedOrderID = &orderID
	if err := s.repo.Update(ctx, reservation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link order")
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", orderID.String()), "voucher linked to order")
	return nil
}

func (s *service) persistRedeemed(ctx context.Context, reservation *models.VoucherReservation, redeemedAt time.Time, raw []byte) error {
	reservation.Status = enums.VoucherStatusRedeemed
	reservation.ReservationExpiresAt = nil
	reservation.RedeemedAt = &redeemedAt
	if len(raw) > 0 {
		reservation.RawPayload = string(raw)
	}
	if err := s.repo.Update(ctx, reservation); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist redemption")
	}
	return nil
}

func applyUnit(reservation *models.VoucherReservation, plan *models.ProgramPlan, unit *voucherdeals.Unit, raw []byte) {
	reservation.PlanSlug = plan.PlanSlug
	reservation.ProductToken = plan.ProductToken
	reservation.PlanWeeks = plan.PlanWeeks
	reservation.DealName = plan.DealName
	if unit.Deal != nil && unit.Deal.Name != "" {
		reservation.DealName = unit.Deal.Name
	}
	if unit.Option != nil {
		reservation.OptionTitle = unit.Option.Title
		if unit.Option.PurchasePrice != nil {
			reservation.PurchasePrice = unit.Option.PurchasePrice.Amount
			reservation.Currency = unit.Option.PurchasePrice.Currency
		}
		if unit.Option.Value != nil {
			reservation.VoucherValue = unit.Option.Value.Amount
		}
	}
	if len(raw) > 0 {
		reservation.RawPayload = string(raw)
	}
}

func unavailableMessage(unit *voucherdeals.Unit) string {
	if unit.Status == voucherdeals.UnitStatusRedeemed {
		if !unit.RedeemedAt.Time.IsZero() {
			return fmt.Sprintf("voucher was already redeemed at %s", unit.RedeemedAt.Time.UTC().Format(time.RFC3339))
		}
		return "voucher was already redeemed"
	}
	return fmt.Sprintf("voucher is %s and cannot be reserved", unit.Status)
}
