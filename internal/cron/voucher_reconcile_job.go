package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/internal/notifications"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/enums"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/logger"
	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/voucherdeals"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 7 * 24 * time.Hour
)

type redeemedLister interface {
	ListRedeemedSince(ctx context.Context, since time.Time, limit int) ([]models.VoucherReservation, error)
}

type adminLister interface {
	ListActiveAdmins(ctx context.Context) ([]models.User, error)
}

type unitFetcher interface {
	FetchUnit(ctx context.Context, code string) (*voucherdeals.Result, error)
}

type notifier interface {
	Notify(ctx context.Context, params notifications.NotifyParams) (*models.Notification, error)
}

// VoucherReconcileJobParams configures the voucher drift sweeper.
type VoucherReconcileJobParams struct {
	Logger       *logger.Logger
	VoucherRepo  redeemedLister
	UserRepo     adminLister
	Provider     unitFetcher
	Notification notifier
	Limit        int
	Lookback     time.Duration
	Now          func() time.Time
}

// NewVoucherReconcileJob builds the drift sweeper. It compares locally
// REDEEMED vouchers against provider truth and alerts every active admin on
// drift. It is read-only with respect to voucher state: fixing a discrepancy
// silently would mask the very condition it exists to surface.
func NewVoucherReconcileJob(params VoucherReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.VoucherRepo == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if params.UserRepo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Notification == nil {
		return nil, fmt.Errorf("notification service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	return &voucherReconcileJob{
		logg:         params.Logger,
		vouchers:     params.VoucherRepo,
		users:        params.UserRepo,
		provider:     params.Provider,
		notification: params.Notification,
		now:          now,
		limit:        limit,
		lookback:     lookback,
	}, nil
}

type voucherReconcileJob struct {
	logg         *logger.Logger
	vouchers     redeemedLister
	users        adminLister
	provider     unitFetcher
	notification notifier
	now          func() time.Time
	limit        int
	lookback     time.Duration
}

func (j *voucherReconcileJob) Name() string { return "voucher-reconcile" }

func (j *voucherReconcileJob) Run(ctx context.Context) error {
	since := j.now().Add(-j.lookback)
	redeemed, err := j.vouchers.ListRedeemedSince(ctx, since, j.limit)
	if err != nil {
		return fmt.Errorf("list redeemed vouchers: %w", err)
	}
	if len(redeemed) == 0 {
		j.logg.Info(ctx, "no redeemed vouchers in lookback window")
		return nil
	}

	admins, err := j.users.ListActiveAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list active admins: %w", err)
	}

	var errs error
	checked := 0
	drifted := 0
	for i := range redeemed {
		reservation := &redeemed[i]
		rowCtx := j.logg.WithVoucherCode(ctx, reservation.RedemptionCode)
		rowCtx = j.logg.WithReservationID(rowCtx, reservation.ID.String())

		drift, reason, err := j.checkVoucher(rowCtx, reservation)
		if err != nil {
			// One bad lookup must never abort the sweep of the remainder.
			j.logg.Error(rowCtx, "voucher reconciliation check failed", err)
			errs = multierr.Append(errs, fmt.Errorf("check %s: %w", reservation.RedemptionCode, err))
			continue
		}
		checked++
		if !drift {
			continue
		}
		drifted++
		j.logg.Warn(rowCtx, fmt.Sprintf("voucher drift: %s", reason))
		if err := j.alertAdmins(rowCtx, reservation, reason, admins); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": checked,
		"drifted": drifted,
		"total":   len(redeemed),
	}), "voucher reconciliation sweep complete")
	return errs
}

func (j *voucherReconcileJob) checkVoucher(ctx context.Context, reservation *models.VoucherReservation) (bool, string, error) {
	result, err := j.provider.FetchUnit(ctx, reservation.RedemptionCode)
	if err != nil {
		return false, "", err
	}
	unit := result.FirstUnit()
	if unit == nil {
		return true, "provider no longer has a unit for this code", nil
	}
	if unit.Status != voucherdeals.UnitStatusRedeemed {
		return true, fmt.Sprintf("provider reports status %q for a locally redeemed voucher", unit.Status), nil
	}
	return false, "", nil
}

func (j *voucherReconcileJob) alertAdmins(ctx context.Context, reservation *models.VoucherReservation, reason string, admins []models.User) error {
	var errs error
	related := reservation.ID
	for _, admin := range admins {
		_, err := j.notification.Notify(ctx, notifications.NotifyParams{
			UserID: admin.ID,
			Type:   enums.NotificationTypeVoucherMismatch,
			Title:  "Voucher reconciliation mismatch",
			Message: fmt.Sprintf(
				"Voucher %s (reservation %s) is redeemed locally but %s.",
				reservation.RedemptionCode, reservation.ID, reason,
			),
			RelatedEntityID: &related,
		})
		if err != nil {
			j.logg.Error(ctx, "failed to notify admin of voucher drift", err)
			errs = multierr.Append(errs, fmt.Errorf("notify admin %s: %w", admin.ID, err))
		}
	}
	return errs
}
