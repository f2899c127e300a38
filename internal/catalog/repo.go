package catalog

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/db/models"
	pkgerrors "github.com/nagui-mostafa/WeightLossClinic-sub000/pkg/errors"
)

// Repository resolves voucher codes to the clinic's program plans. The code
// prefix is the routing key: each plan owns a distinct prefix and the longest
// matching prefix wins.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*models.ProgramPlan, error)
	ListActive(ctx context.Context) ([]models.ProgramPlan, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) FindByCode(ctx context.Context, code string) (*models.ProgramPlan, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidInput, "voucher code required")
	}

	var plans []models.ProgramPlan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("length(code_prefix) DESC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}

	for i := range plans {
		if strings.HasPrefix(code, strings.ToUpper(plans[i].CodePrefix)) {
			return &plans[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnknownCode, "voucher code does not match any program plan")
}

func (r *repositoryImpl) ListActive(ctx context.Context) ([]models.ProgramPlan, error) {
	var plans []models.ProgramPlan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("plan_slug ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
