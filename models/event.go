package models

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Outcome is the lifecycle state of an Event. The state machine is
// open -> resolved_yes | resolved_no, terminal once resolved.
type Outcome string

const (
	OutcomeOpen        Outcome = "open"
	OutcomeResolvedYes Outcome = "resolved_yes"
	OutcomeResolvedNo  Outcome = "resolved_no"
)

// Event is the envelope around one LMSR market: the accumulated share
// quantities (QYes, QNo), the liquidity parameter B, and the cached
// derived values (MarketProb, CumulativeCost) that make reads cheap. The
// cache is an optimization only — both are always recomputable from
// (QYes, QNo, B) and the transaction engine keeps them in lockstep with
// every mutation.
//
// QYes, QNo, B, MarketProb, and CumulativeCost are stored as
// shopspring/decimal so a NUMERIC column round-trips exactly for display;
// they are never the authoritative record of money (the integer ledger
// fields on UserAccount/UserPosition are) but drift-free storage avoids
// surprising a trader reading them back.
type Event struct {
	gorm.Model
	ID int64 `json:"id" gorm:"primary_key"`

	QuestionTitle string  `json:"questionTitle" gorm:"not null"`
	Description   string  `json:"description"`
	Category      string  `json:"category" gorm:"default:general;index"`

	Outcome     Outcome   `json:"outcome" gorm:"not null;default:open;index"`
	ClosingTime time.Time `json:"closingTime"`

	B              decimal.Decimal `json:"b" gorm:"type:numeric;not null"`
	QYes           decimal.Decimal `json:"qYes" gorm:"type:numeric;not null"`
	QNo            decimal.Decimal `json:"qNo" gorm:"type:numeric;not null"`
	MarketProb     decimal.Decimal `json:"marketProb" gorm:"type:numeric;not null"`
	CumulativeCost decimal.Decimal `json:"cumulativeCost" gorm:"type:numeric;not null"`

	// TotalTrades is engagement display data, carried over from the
	// teacher's knowledge-system fields and kept in lockstep by
	// SaveMarketState; never read by the ledger. Unique trader counts are
	// not cached on the row — they're derived from market_updates at read
	// time (see ledger.CountUniqueTraders) so there's no second counter to
	// keep in sync with the audit log.
	TotalTrades int64 `json:"totalTrades" gorm:"default:0"`
}

// TableName pins the table name explicitly, matching the teacher's
// convention of not relying on gorm's pluralization for domain nouns that
// could be ambiguous ("event" vs "events" is fine, but the rest of the
// schema follows suit for consistency).
func (Event) TableName() string {
	return "events"
}

// IsOpen reports whether trades are still permitted against this event.
func (e *Event) IsOpen() bool {
	return e.Outcome == OutcomeOpen
}

// NewEvent constructs an Event at q_yes = q_no = 0 with the given
// liquidity parameter, initial probability 0.5 (the LMSR starting price
// for a freshly opened binary market) and cached cost b*ln(2), the LMSR
// cost at the origin.
func NewEvent(title, description string, b float64, closingTime time.Time) Event {
	bd := decimal.NewFromFloat(b)
	return Event{
		QuestionTitle:  title,
		Description:    description,
		Outcome:        OutcomeOpen,
		ClosingTime:    closingTime,
		B:              bd,
		QYes:           decimal.Zero,
		QNo:            decimal.Zero,
		MarketProb:     decimal.NewFromFloat(0.5),
		CumulativeCost: decimal.NewFromFloat(b * math.Ln2),
	}
}

// EventState is the read-only projection returned by GetMarketState.
type EventState struct {
	EventID       int64   `json:"eventId"`
	MarketProb    float64 `json:"marketProb"`
	B             float64 `json:"b"`
	QYes          float64 `json:"qYes"`
	QNo           float64 `json:"qNo"`
	UniqueTraders int64   `json:"uniqueTraders"`
	TotalTrades   int64   `json:"totalTrades"`
}
