package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgramPlan maps a voucher code prefix to the clinic program it unlocks.
type ProgramPlan struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlanSlug     string    `gorm:"column:plan_slug;not null;unique"`
	ProductToken string    `gorm:"column:product_token;not null"`
	PlanWeeks    int       `gorm:"column:plan_weeks;not null"`
	DealName     string    `gorm:"column:deal_name;not null"`
	CodePrefix   string    `gorm:"column:code_prefix;not null;unique"`
	Active       bool      `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
