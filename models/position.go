package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserPosition is the authoritative record of one user's outstanding
// shares and staked ledger funds in one event. It is created on a user's
// first trade against an event (upserted via INSERT ... ON CONFLICT) and
// hard-deleted once the event resolves and payouts have been applied —
// there is nothing left to reconcile against after that point.
//
// Version is bumped on every mutation; it exists so a caller reading a
// position outside the locking transaction (e.g. for display) can detect
// a stale read, though the engine itself relies on row locks, not this
// counter, for correctness.
type UserPosition struct {
	gorm.Model
	ID      int64 `json:"id" gorm:"primary_key"`
	UserID  int64 `json:"userId" gorm:"not null;uniqueIndex:idx_user_event"`
	EventID int64 `json:"eventId" gorm:"not null;uniqueIndex:idx_user_event"`

	YesShares decimal.Decimal `json:"yesShares" gorm:"type:numeric;not null"`
	NoShares  decimal.Decimal `json:"noShares" gorm:"type:numeric;not null"`

	StakedYesLedger  int64 `json:"stakedYesLedger" gorm:"not null;default:0"`
	StakedNoLedger   int64 `json:"stakedNoLedger" gorm:"not null;default:0"`
	TotalStakedLedger int64 `json:"totalStakedLedger" gorm:"not null;default:0"`

	Version int64 `json:"version" gorm:"not null;default:1"`
}

func (UserPosition) TableName() string {
	return "user_positions"
}

// NewUserPosition returns a zeroed position ready for upsert on a user's
// first trade against an event.
func NewUserPosition(userID, eventID int64) UserPosition {
	return UserPosition{
		UserID:    userID,
		EventID:   eventID,
		YesShares: decimal.Zero,
		NoShares:  decimal.Zero,
		Version:   1,
	}
}

// SharesOn returns the share count recorded on the given side, as float64
// for use by internal/market and internal/lmsrmath.
func (p *UserPosition) SharesOn(side string) float64 {
	if side == "yes" {
		return p.YesShares.InexactFloat64()
	}
	return p.NoShares.InexactFloat64()
}

// StakedOn returns the staked ledger amount recorded on the given side.
func (p *UserPosition) StakedOn(side string) int64 {
	if side == "yes" {
		return p.StakedYesLedger
	}
	return p.StakedNoLedger
}
