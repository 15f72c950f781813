package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FixedRate is a USD price per currency unit, locked for [CreatedAt, EndedAt).
// Rows are never updated once written.
type FixedRate struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	NetworkID uint            `json:"network_id" gorm:"column:network_id;not null;index"`
	Rate      decimal.Decimal `json:"rate" gorm:"column:rate;type:numeric(36,18);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at;not null"`
	EndedAt   time.Time       `json:"ended_at" gorm:"column:ended_at;not null"`
}

func (FixedRate) TableName() string {
	return "fixed_rates"
}

func (r *FixedRate) ActiveAt(now time.Time) bool {
	return now.Before(r.EndedAt)
}

// Remaining is the validity left at now, never negative.
func (r *FixedRate) Remaining(now time.Time) time.Duration {
	if d := r.EndedAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
