package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MarketUpdate is the append-only audit trail of buys: one row per buy,
// never updated or deleted once written. Sells do not write a row. HoldUntil records
// when the hold period (if any) on this trade's position expires, which
// the engine checks before permitting a sell against the same event.
//
// Confidence and Reasoning are optional free-text annotations carried
// over from the teacher's knowledge-system prediction comments, sanitized
// on the way in (see internal/ledger) since they are the only
// user-authored free text in the whole schema.
type MarketUpdate struct {
	gorm.Model
	ID         int64  `json:"id" gorm:"primary_key"`
	ExternalID string `json:"externalId" gorm:"uniqueIndex;not null"`

	UserID  int64 `json:"userId" gorm:"not null;index"`
	EventID int64 `json:"eventId" gorm:"not null;index"`

	Side string `json:"side" gorm:"not null"`

	PrevProb    decimal.Decimal `json:"prevProb" gorm:"type:numeric;not null"`
	NewProb     decimal.Decimal `json:"newProb" gorm:"type:numeric;not null"`
	SharesDelta decimal.Decimal `json:"sharesDelta" gorm:"type:numeric;not null"`

	StakeLedger int64     `json:"stakeLedger" gorm:"not null"`
	HoldUntil   time.Time `json:"holdUntil"`

	Confidence *float64 `json:"confidence,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
}

func (MarketUpdate) TableName() string {
	return "market_updates"
}

// HoldActive reports whether this update's hold period has not yet
// expired as of the given wall-clock time.
func (m *MarketUpdate) HoldActive(now time.Time) bool {
	return now.Before(m.HoldUntil)
}
