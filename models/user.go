package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// UserAccount is the authoritative holder of a trader's ledger balances and
// the (purely additive, non-monetary) reputation scores carried over from
// the teacher's agent-reputation system. BalanceLedger and StakedLedger are
// integer micro-RP and are the only fields the transaction engine treats as
// money; every other field is display/ranking data recomputed at
// resolution time and never gates a trade.
type UserAccount struct {
	gorm.Model
	ID       int64  `json:"id" gorm:"primary_key"`
	Username string `json:"username" gorm:"uniqueIndex;not null"`

	BalanceLedger  int64 `json:"balanceLedger" gorm:"not null;default:0"`
	StakedLedger   int64 `json:"stakedLedger" gorm:"not null;default:0"`
	InitialDeposit int64 `json:"initialDeposit" gorm:"not null;default:0"`

	// ResolutionNetLedger is the running Σ(resolution credits) −
	// Σ(resolution debits) term in P6's balance identity, updated once per
	// position by ledger.RecordResolutionAdjustment during resolve_event.
	// Buys and sells never touch it.
	ResolutionNetLedger int64 `json:"resolutionNetLedger" gorm:"not null;default:0"`

	// Reputation scores, 0-100, recomputed by Recalculate* below. Carried
	// over from the teacher's Agent model.
	AccuracyScore   float64 `json:"accuracyScore" gorm:"default:0"`
	EngagementScore float64 `json:"engagementScore" gorm:"default:0"`
	ActivityScore   float64 `json:"activityScore" gorm:"default:0"`
	CreatorScore    float64 `json:"creatorScore" gorm:"default:0"`
	CompositeScore  float64 `json:"compositeScore" gorm:"default:0"`

	TotalPredictions    int64 `json:"totalPredictions" gorm:"default:0"`
	CorrectPredictions  int64 `json:"correctPredictions" gorm:"default:0"`
	ResolvedPredictions int64 `json:"resolvedPredictions" gorm:"default:0"`
	CurrentStreak       int64 `json:"currentStreak" gorm:"default:0"`
	LongestStreak       int64 `json:"longestStreak" gorm:"default:0"`

	LastActiveAt    time.Time `json:"lastActiveAt"`
	DaysActiveMonth int64     `json:"daysActiveMonth" gorm:"default:0"`

	TotalFollowers int64 `json:"totalFollowers" gorm:"default:0"`
	TotalFollowing int64 `json:"totalFollowing" gorm:"default:0"`

	MarketsCreated      int64   `json:"marketsCreated" gorm:"default:0"`
	MarketEngagementAvg float64 `json:"marketEngagementAvg" gorm:"default:0"`
}

func (UserAccount) TableName() string {
	return "user_accounts"
}

// AvailableLedger returns the balance not currently tied up in open
// positions: BalanceLedger already excludes staked funds (the conditional
// deduction happens at buy time), so this is just BalanceLedger, exposed
// here so callers never have to reason about the relationship by hand.
func (u *UserAccount) AvailableLedger() int64 {
	return u.BalanceLedger
}

// RecalculateAccuracyScore derives a 0-100 score from the resolved-vs-correct
// prediction ratio. Returns 0 until at least one prediction has resolved,
// matching the teacher's convention of not rewarding untested traders.
func (u *UserAccount) RecalculateAccuracyScore() {
	if u.ResolvedPredictions == 0 {
		u.AccuracyScore = 0
		return
	}
	u.AccuracyScore = 100 * float64(u.CorrectPredictions) / float64(u.ResolvedPredictions)
}

// RecalculateEngagementScore blends follower count and market engagement
// into a single 0-100 figure using a log-damped follower term so that
// whale accounts don't dominate the scale.
func (u *UserAccount) RecalculateEngagementScore() {
	followerTerm := math.Log1p(float64(u.TotalFollowers)) * 10
	if followerTerm > 60 {
		followerTerm = 60
	}
	engagementTerm := u.MarketEngagementAvg
	if engagementTerm > 40 {
		engagementTerm = 40
	}
	u.EngagementScore = followerTerm + engagementTerm
}

// RecalculateActivityScore rewards recent, sustained participation: days
// active in the last month, capped at 30, scaled to 100.
func (u *UserAccount) RecalculateActivityScore() {
	days := u.DaysActiveMonth
	if days > 30 {
		days = 30
	}
	u.ActivityScore = 100 * float64(days) / 30
}

// RecalculateCreatorScore rewards market creation activity: 5 points per
// market created, capped at 100.
func (u *UserAccount) RecalculateCreatorScore() {
	score := float64(u.MarketsCreated) * 5
	if score > 100 {
		score = 100
	}
	u.CreatorScore = score
}

// RecalculateCompositeScore weights the four component scores: accuracy
// matters most since it reflects actual prediction quality, engagement and
// activity matter equally, and creator activity is a smaller bonus.
func (u *UserAccount) RecalculateCompositeScore() {
	u.CompositeScore = 0.5*u.AccuracyScore + 0.2*u.EngagementScore + 0.2*u.ActivityScore + 0.1*u.CreatorScore
}

// RecalculateAllScores runs every Recalculate* in dependency order. The
// transaction engine calls this once per affected user after an event
// resolves; it never runs mid-trade and never touches ledger fields.
func (u *UserAccount) RecalculateAllScores() {
	u.RecalculateAccuracyScore()
	u.RecalculateEngagementScore()
	u.RecalculateActivityScore()
	u.RecalculateCreatorScore()
	u.RecalculateCompositeScore()
}

// RecordStreak updates CurrentStreak/LongestStreak given whether the most
// recently resolved prediction was correct.
func (u *UserAccount) RecordStreak(correct bool) {
	if correct {
		u.CurrentStreak++
		if u.CurrentStreak > u.LongestStreak {
			u.LongestStreak = u.CurrentStreak
		}
		return
	}
	u.CurrentStreak = 0
}
