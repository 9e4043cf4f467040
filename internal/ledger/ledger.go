// Package ledger is the adapter between persisted storage and the f64
// math in internal/market and internal/lmsrmath. Every exported function
// takes an explicit *gorm.DB transaction handle and never opens its own
// transaction or calls Commit/Rollback — that is the transaction engine's
// job (internal/engine). This package is also the only one allowed to
// embed storage-specific query shape (locking clauses, upsert clauses).
package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
	"github.com/socialpredict/lmsrcore/internal/lmsrmath"
	"github.com/socialpredict/lmsrcore/models"
)

var reasoningPolicy = bluemonday.StrictPolicy()

// DecimalToFloat64 converts a persisted NUMERIC value to the f64 the math
// kernel operates on.
func DecimalToFloat64(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// Float64ToDecimal converts an f64 math result back to a NUMERIC value for
// storage. It rejects non-finite values the same way the ledger rejects
// them when converting to integer units.
func Float64ToDecimal(x float64) (decimal.Decimal, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", coreerr.ErrNonFinite, x)
	}
	return decimal.NewFromFloat(x), nil
}

// LoadEventForUpdate row-locks and reads the event, the required first
// step of every mutating trade.
func LoadEventForUpdate(tx *gorm.DB, eventID int64) (*models.Event, error) {
	var event models.Event
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", eventID).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, coreerr.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return &event, nil
}

// SaveMarketState persists the post-trade (q_yes, q_no, market_prob,
// cumulative_cost) four-tuple for an event.
func SaveMarketState(tx *gorm.DB, eventID int64, qYes, qNo, prob, cost float64) error {
	qYesDec, err := Float64ToDecimal(qYes)
	if err != nil {
		return err
	}
	qNoDec, err := Float64ToDecimal(qNo)
	if err != nil {
		return err
	}
	probDec, err := Float64ToDecimal(prob)
	if err != nil {
		return err
	}
	costDec, err := Float64ToDecimal(cost)
	if err != nil {
		return err
	}

	res := tx.Model(&models.Event{}).Where("id = ?", eventID).Updates(map[string]interface{}{
		"q_yes":           qYesDec,
		"q_no":            qNoDec,
		"market_prob":     probDec,
		"cumulative_cost": costDec,
		"total_trades":    gorm.Expr("total_trades + 1"),
	})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

// DeductBalance performs the conditional balance deduction: it only
// succeeds if the user's balance_ledger covers amountLedger. Returns
// false (no error) if the guard failed so the caller can surface
// ErrInsufficientFunds with trade context.
func DeductBalance(tx *gorm.DB, userID int64, amountLedger int64) (bool, error) {
	res := tx.Model(&models.UserAccount{}).
		Where("id = ? AND balance_ledger >= ?", userID, amountLedger).
		Updates(map[string]interface{}{
			"balance_ledger": gorm.Expr("balance_ledger - ?", amountLedger),
			"staked_ledger":  gorm.Expr("staked_ledger + ?", amountLedger),
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CreditBalance adds creditLedger to balance_ledger and subtracts
// stakeReduceLedger from staked_ledger; the update itself clamps
// staked_ledger at zero.
func CreditBalance(tx *gorm.DB, userID int64, creditLedger, stakeReduceLedger int64) error {
	res := tx.Model(&models.UserAccount{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"balance_ledger": gorm.Expr("balance_ledger + ?", creditLedger),
			"staked_ledger":  gorm.Expr("CASE WHEN staked_ledger > ? THEN staked_ledger - ? ELSE 0 END", stakeReduceLedger, stakeReduceLedger),
		})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	if res.RowsAffected == 0 {
		return coreerr.ErrUserNotFound
	}
	return nil
}

// RecordResolutionAdjustment accumulates the net resolution credit
// (creditLedger, the winning share value) minus the resolution debit
// (stakeReduceLedger, the stake released from staked_ledger) into the
// user's running resolution_net_ledger total. invariant.VerifyBalance
// checks balance_ledger+staked_ledger against initial_deposit plus this
// running total, matching the spec's P6 formula
// (initial + Σ resolution credits − Σ resolution debits) exactly, since
// CreditBalance's own balance/staked movement nets to creditLedger −
// stakeReduceLedger for every call made during resolve_event.
func RecordResolutionAdjustment(tx *gorm.DB, userID int64, creditLedger, stakeReduceLedger int64) error {
	net := creditLedger - stakeReduceLedger
	res := tx.Model(&models.UserAccount{}).Where("id = ?", userID).
		Update("resolution_net_ledger", gorm.Expr("resolution_net_ledger + ?", net))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

// LoadPosition reads a user's position on an event, if any. A missing row
// is not an error; callers treat it as a zero position.
func LoadPosition(tx *gorm.DB, userID, eventID int64) (*models.UserPosition, error) {
	var pos models.UserPosition
	err := tx.Where("user_id = ? AND event_id = ?", userID, eventID).First(&pos).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return &pos, nil
}

// UpsertPosition inserts or updates a user's position after a buy,
// incrementing the relevant shares/staked fields and bumping version.
func UpsertPosition(tx *gorm.DB, userID, eventID int64, side lmsrmath.Side, sharesDelta float64, stakeLedgerDelta int64) error {
	sharesDec, err := Float64ToDecimal(sharesDelta)
	if err != nil {
		return err
	}

	fresh := models.NewUserPosition(userID, eventID)
	updates := map[string]interface{}{
		"total_staked_ledger": gorm.Expr("user_positions.total_staked_ledger + ?", stakeLedgerDelta),
		"version":             gorm.Expr("user_positions.version + 1"),
	}
	switch side {
	case lmsrmath.Yes:
		fresh.YesShares = sharesDec
		fresh.StakedYesLedger = stakeLedgerDelta
		updates["yes_shares"] = gorm.Expr("user_positions.yes_shares + ?", sharesDec)
		updates["staked_yes_ledger"] = gorm.Expr("user_positions.staked_yes_ledger + ?", stakeLedgerDelta)
	case lmsrmath.No:
		fresh.NoShares = sharesDec
		fresh.StakedNoLedger = stakeLedgerDelta
		updates["no_shares"] = gorm.Expr("user_positions.no_shares + ?", sharesDec)
		updates["staked_no_ledger"] = gorm.Expr("user_positions.staked_no_ledger + ?", stakeLedgerDelta)
	}
	fresh.TotalStakedLedger = stakeLedgerDelta

	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_id"}},
		DoUpdates: clause.Assignments(updates),
	}).Create(&fresh)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

const positionEpsilon = 1e-9

// ReduceOrDeletePosition subtracts shares/stake from a position after a
// sell and deletes the row outright if both share fields have settled to
// (approximately) zero — there is nothing left to track.
func ReduceOrDeletePosition(tx *gorm.DB, pos *models.UserPosition, side lmsrmath.Side, shares float64, stakeLedger int64) error {
	switch side {
	case lmsrmath.Yes:
		pos.YesShares = pos.YesShares.Sub(decimal.NewFromFloat(shares))
		pos.StakedYesLedger -= stakeLedger
		if pos.StakedYesLedger < 0 {
			pos.StakedYesLedger = 0
		}
	case lmsrmath.No:
		pos.NoShares = pos.NoShares.Sub(decimal.NewFromFloat(shares))
		pos.StakedNoLedger -= stakeLedger
		if pos.StakedNoLedger < 0 {
			pos.StakedNoLedger = 0
		}
	}
	pos.TotalStakedLedger = pos.StakedYesLedger + pos.StakedNoLedger
	pos.Version++

	if math.Abs(pos.YesShares.InexactFloat64()) < positionEpsilon && math.Abs(pos.NoShares.InexactFloat64()) < positionEpsilon {
		if err := tx.Unscoped().Delete(&models.UserPosition{}, pos.ID).Error; err != nil {
			return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
		}
		return nil
	}

	res := tx.Model(&models.UserPosition{}).Where("id = ?", pos.ID).Updates(map[string]interface{}{
		"yes_shares":          pos.YesShares,
		"no_shares":           pos.NoShares,
		"staked_yes_ledger":   pos.StakedYesLedger,
		"staked_no_ledger":    pos.StakedNoLedger,
		"total_staked_ledger": pos.TotalStakedLedger,
		"version":             pos.Version,
	})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

// CountActiveHolds reports how many unexpired market_updates rows gate a
// sell for (userID, eventID) as of now.
func CountActiveHolds(tx *gorm.DB, userID, eventID int64, now time.Time) (int64, error) {
	var count int64
	err := tx.Model(&models.MarketUpdate{}).
		Where("user_id = ? AND event_id = ? AND hold_until > ?", userID, eventID, now).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return count, nil
}

// AuditEntry is the set of values the engine has on hand when it needs to
// append an audit record; kept distinct from models.MarketUpdate so
// callers don't have to populate gorm-only fields.
type AuditEntry struct {
	UserID      int64
	EventID     int64
	Side        lmsrmath.Side
	PrevProb    float64
	NewProb     float64
	StakeLedger int64
	SharesDelta float64
	HoldUntil   time.Time
	Confidence  *float64
	Reasoning   string
}

// AppendAudit writes an immutable MarketUpdate row, sanitizing the
// optional free-text Reasoning annotation (the only user-authored free
// text anywhere in the schema) and stamping a fresh external ID.
func AppendAudit(tx *gorm.DB, e AuditEntry) error {
	prevProbDec, err := Float64ToDecimal(e.PrevProb)
	if err != nil {
		return err
	}
	newProbDec, err := Float64ToDecimal(e.NewProb)
	if err != nil {
		return err
	}
	sharesDec, err := Float64ToDecimal(e.SharesDelta)
	if err != nil {
		return err
	}

	rec := models.MarketUpdate{
		ExternalID:  uuid.NewString(),
		UserID:      e.UserID,
		EventID:     e.EventID,
		Side:        e.Side.String(),
		PrevProb:    prevProbDec,
		NewProb:     newProbDec,
		SharesDelta: sharesDec,
		StakeLedger: e.StakeLedger,
		HoldUntil:   e.HoldUntil,
		Confidence:  e.Confidence,
		Reasoning:   reasoningPolicy.Sanitize(e.Reasoning),
	}
	if err := tx.Create(&rec).Error; err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}

// MarkResolved sets an event's outcome to a terminal state.
func MarkResolved(tx *gorm.DB, eventID int64, outcome models.Outcome) error {
	res := tx.Model(&models.Event{}).Where("id = ?", eventID).Update("outcome", outcome)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

// PositionsForEvent lists every position on an event, used by
// resolve_event to compute payouts before the rows are deleted.
func PositionsForEvent(tx *gorm.DB, eventID int64) ([]models.UserPosition, error) {
	var positions []models.UserPosition
	if err := tx.Where("event_id = ?", eventID).Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return positions, nil
}

// DeletePositionsForEvent hard-deletes every position on an event. Called
// only after resolution payouts have been credited.
func DeletePositionsForEvent(tx *gorm.DB, eventID int64) error {
	if err := tx.Unscoped().Where("event_id = ?", eventID).Delete(&models.UserPosition{}).Error; err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}

// CountUniqueTraders reports the number of distinct users who have ever
// traded an event, derived from the market_updates audit log rather than
// a cached counter on the event row.
func CountUniqueTraders(db *gorm.DB, eventID int64) (int64, error) {
	var count int64
	err := db.Model(&models.MarketUpdate{}).
		Where("event_id = ?", eventID).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return count, nil
}

// LoadUser reads a user account by ID without locking; UpdateMarket uses
// it to confirm the buying user exists.
func LoadUser(tx *gorm.DB, userID int64) (*models.UserAccount, error) {
	var user models.UserAccount
	err := tx.Where("id = ?", userID).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, coreerr.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return &user, nil
}

// IncrementTotalPredictions bumps a user's lifetime prediction count at
// buy time. This is reputation bookkeeping only; it never touches a
// ledger field. The engine returns its error like any other step of the
// buy, so a failure here rolls the trade back.
func IncrementTotalPredictions(tx *gorm.DB, userID int64) error {
	res := tx.Model(&models.UserAccount{}).Where("id = ?", userID).
		Update("total_predictions", gorm.Expr("total_predictions + 1"))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, res.Error)
	}
	return nil
}

// ApplyResolutionScoring updates a user's resolved/correct prediction
// counts and streak, then recomputes every reputation score. Called once
// per position during resolve_event, after the monetary credit for that
// position has already been applied.
func ApplyResolutionScoring(tx *gorm.DB, userID int64, correct bool) error {
	var user models.UserAccount
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return coreerr.ErrUserNotFound
		}
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}

	user.ResolvedPredictions++
	if correct {
		user.CorrectPredictions++
	}
	user.RecordStreak(correct)
	user.RecalculateAllScores()

	if err := tx.Model(&models.UserAccount{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"resolved_predictions": user.ResolvedPredictions,
		"correct_predictions":  user.CorrectPredictions,
		"current_streak":       user.CurrentStreak,
		"longest_streak":       user.LongestStreak,
		"accuracy_score":       user.AccuracyScore,
		"engagement_score":     user.EngagementScore,
		"activity_score":       user.ActivityScore,
		"creator_score":        user.CreatorScore,
		"composite_score":      user.CompositeScore,
	}).Error; err != nil {
		return fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return nil
}
