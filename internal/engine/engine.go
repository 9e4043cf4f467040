// Package engine is the transaction engine: it wraps every externally
// observable mutation (buy, sell, resolve) in a serializable transaction
// with bounded retry on conflict, and is the only package that sequences
// internal/ledger calls into the multi-step protocols described for each
// operation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/socialpredict/lmsrcore/internal/config"
	"github.com/socialpredict/lmsrcore/internal/coreerr"
	"github.com/socialpredict/lmsrcore/internal/ledger"
	"github.com/socialpredict/lmsrcore/internal/lmsrmath"
	"github.com/socialpredict/lmsrcore/internal/market"
	"github.com/socialpredict/lmsrcore/internal/metrics"
	"github.com/socialpredict/lmsrcore/models"
)

// Engine owns the database handle and configuration every transaction
// protocol needs. It holds no market state itself — every operation
// reads and writes through a single serializable transaction.
type Engine struct {
	db       *gorm.DB
	cfg      config.Config
	validate *validator.Validate

	limitersMu sync.Mutex
	limiters   map[int64]*rate.Limiter
}

// New constructs an Engine bound to db with the given configuration.
func New(db *gorm.DB, cfg config.Config) *Engine {
	return &Engine{
		db:       db,
		cfg:      cfg,
		validate: validator.New(),
		limiters: make(map[int64]*rate.Limiter),
	}
}

// limiterFor returns the per-event retry governor, creating it on first
// use. It exists to keep a single hot, contended event from retrying in
// a tight loop and starving other work on the connection pool.
func (e *Engine) limiterFor(eventID int64) *rate.Limiter {
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	lim, ok := e.limiters[eventID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(e.cfg.BaseRetryDelay), e.cfg.MaxRetryAttempts)
		e.limiters[eventID] = lim
	}
	return lim
}

// isRetryable reports whether err represents a serialization or deadlock
// conflict that the caller should retry with fresh state. Postgres
// reports these as SQLSTATE 40001 and 40P01; any other driver is
// classified by a conservative substring match on the error text.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "serialization failure") ||
		strings.Contains(lower, "deadlock") ||
		strings.Contains(lower, "could not serialize")
}

// withSerializableTx runs fn inside a SERIALIZABLE transaction, retrying
// on conflict with exponential backoff and jitter for at most
// cfg.MaxRetryAttempts attempts in total. Non-conflict errors (validation, business-rule failures)
// are returned immediately without retry. eventID scopes the per-event
// retry governor.
func (e *Engine) withSerializableTx(ctx context.Context, operation string, eventID int64, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetryAttempts; attempt++ {
		err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if tx.Dialector.Name() == "postgres" {
				if err := tx.Exec("SET TRANSACTION ISOLATION LEVEL SERIALIZABLE").Error; err != nil {
					return err
				}
			}
			return fn(tx)
		})

		if err == nil {
			metrics.ObserveAttempt(operation, "committed")
			metrics.ObserveDuration(operation, time.Since(start).Seconds())
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			metrics.ObserveAttempt(operation, "error")
			metrics.ObserveDuration(operation, time.Since(start).Seconds())
			return err
		}

		metrics.ObserveAttempt(operation, "conflict")
		metrics.ObserveConflict(operation)

		if attempt == e.cfg.MaxRetryAttempts {
			break
		}

		if err := e.limiterFor(eventID).Wait(ctx); err != nil {
			return err
		}
		delay := e.cfg.BaseRetryDelay * time.Duration(int64(1)<<uint(attempt-1))
		jitter := time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.ObserveRetriesExhausted(operation)
	metrics.ObserveDuration(operation, time.Since(start).Seconds())
	return fmt.Errorf("%w: %v", coreerr.ErrConflictAfterRetries, lastErr)
}

// UpdateMarketInput is the validated request for a buy.
type UpdateMarketInput struct {
	UserID     int64   `validate:"required,gt=0"`
	EventID    int64   `validate:"required,gt=0"`
	TargetProb float64 `validate:"gt=0,lt=1"`
	Stake      float64 `validate:"gt=0"`
	Confidence *float64
	Reasoning  string
}

// UpdateResult is the outcome of a committed buy.
type UpdateResult struct {
	PrevProb            float64
	NewProb             float64
	SharesAcquired      float64
	Side                string
	HoldUntil           time.Time
	ExpectedPayoutIfYes float64
	ExpectedPayoutIfNo  float64
}

// UpdateMarket executes a buy: the caller names a direction via
// TargetProb and an amount via Stake; the engine determines the actual
// side and share quantity from the current market state.
func (e *Engine) UpdateMarket(ctx context.Context, in UpdateMarketInput) (*UpdateResult, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidInputs, err)
	}

	var result *UpdateResult
	err := e.withSerializableTx(ctx, "buy", in.EventID, func(tx *gorm.DB) error {
		event, err := ledger.LoadEventForUpdate(tx, in.EventID)
		if err != nil {
			return err
		}
		if !event.IsOpen() {
			return coreerr.ErrEventClosed
		}
		if _, err := ledger.LoadUser(tx, in.UserID); err != nil {
			return err
		}

		b := ledger.DecimalToFloat64(event.B)
		qYes := ledger.DecimalToFloat64(event.QYes)
		qNo := ledger.DecimalToFloat64(event.QNo)

		m := market.FromState(qYes, qNo, b)
		prevProb := m.ProbYes()

		if in.TargetProb == prevProb {
			return fmt.Errorf("%w: target_prob equals current prob, no direction signal", coreerr.ErrInvalidInputs)
		}
		side := lmsrmath.Yes
		if in.TargetProb < prevProb {
			side = lmsrmath.No
		}

		stakeLedger, err := lmsrmath.ToLedger(in.Stake)
		if err != nil {
			return err
		}

		sharesDelta, cashDebitLedger, err := m.Buy(side, stakeLedger)
		if err != nil {
			return err
		}

		newProb := m.ProbYes()
		newCost := m.Cost()
		if err := ledger.SaveMarketState(tx, event.ID, m.QYes, m.QNo, newProb, newCost); err != nil {
			return err
		}

		ok, err := ledger.DeductBalance(tx, in.UserID, cashDebitLedger)
		if err != nil {
			return err
		}
		if !ok {
			return coreerr.ErrInsufficientFunds
		}

		holdUntil := time.Now().Add(e.cfg.HoldPeriod)
		if err := ledger.AppendAudit(tx, ledger.AuditEntry{
			UserID:      in.UserID,
			EventID:     in.EventID,
			Side:        side,
			PrevProb:    prevProb,
			NewProb:     newProb,
			StakeLedger: cashDebitLedger,
			SharesDelta: sharesDelta,
			HoldUntil:   holdUntil,
			Confidence:  in.Confidence,
			Reasoning:   in.Reasoning,
		}); err != nil {
			return err
		}

		if err := ledger.UpsertPosition(tx, in.UserID, in.EventID, side, sharesDelta, cashDebitLedger); err != nil {
			return err
		}

		if err := ledger.IncrementTotalPredictions(tx, in.UserID); err != nil {
			return err
		}

		expectedYes, expectedNo := 0.0, 0.0
		if side == lmsrmath.Yes {
			expectedYes = sharesDelta
		} else {
			expectedNo = sharesDelta
		}

		result = &UpdateResult{
			PrevProb:            prevProb,
			NewProb:             newProb,
			SharesAcquired:      sharesDelta,
			Side:                side.String(),
			HoldUntil:           holdUntil,
			ExpectedPayoutIfYes: expectedYes,
			ExpectedPayoutIfNo:  expectedNo,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SellSharesInput is the validated request for a sell.
type SellSharesInput struct {
	UserID  int64   `validate:"required,gt=0"`
	EventID int64   `validate:"required,gt=0"`
	Side    string  `validate:"required,oneof=yes no"`
	Amount  float64 `validate:"gt=0"`
}

// SellResult is the outcome of a committed sell.
type SellResult struct {
	Payout  float64
	NewProb float64
}

// SellShares executes a sell of the caller's outstanding shares on one
// side of an event, subject to the hold period and the caller's actual
// position.
func (e *Engine) SellShares(ctx context.Context, in SellSharesInput) (*SellResult, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrInvalidInputs, err)
	}
	side, err := lmsrmath.ParseSide(in.Side)
	if err != nil {
		return nil, err
	}

	var result *SellResult
	err = e.withSerializableTx(ctx, "sell", in.EventID, func(tx *gorm.DB) error {
		if e.cfg.EnableHoldPeriod {
			holds, err := ledger.CountActiveHolds(tx, in.UserID, in.EventID, time.Now())
			if err != nil {
				return err
			}
			if holds > 0 {
				return coreerr.ErrHoldPeriodActive
			}
		}

		event, err := ledger.LoadEventForUpdate(tx, in.EventID)
		if err != nil {
			return err
		}
		if !event.IsOpen() {
			return coreerr.ErrEventClosed
		}

		pos, err := ledger.LoadPosition(tx, in.UserID, in.EventID)
		if err != nil {
			return err
		}
		var sharesHeld float64
		var stakedSideLedger int64
		if pos != nil {
			sharesHeld = pos.SharesOn(side.String())
			stakedSideLedger = pos.StakedOn(side.String())
		}
		if sharesHeld < in.Amount {
			return coreerr.ErrInsufficientShares
		}

		b := ledger.DecimalToFloat64(event.B)
		qYes := ledger.DecimalToFloat64(event.QYes)
		qNo := ledger.DecimalToFloat64(event.QNo)
		m := market.FromState(qYes, qNo, b)

		payoutLedger, err := m.Sell(side, in.Amount)
		if err != nil {
			return err
		}

		newProb := m.ProbYes()
		newCost := m.Cost()
		if err := ledger.SaveMarketState(tx, event.ID, m.QYes, m.QNo, newProb, newCost); err != nil {
			return err
		}

		// Integer-first proportional stake unwind: convert amount and
		// sharesHeld to ledger-scale units before dividing so the result
		// never drifts from P7 by rounding in float space first.
		amountUnits, err := lmsrmath.ToLedger(in.Amount)
		if err != nil {
			return err
		}
		totalUnits, err := lmsrmath.ToLedger(sharesHeld)
		if err != nil {
			return err
		}
		var stakeUnwound int64
		if totalUnits > 0 {
			stakeUnwound = (stakedSideLedger * amountUnits) / totalUnits
		}

		if err := ledger.CreditBalance(tx, in.UserID, payoutLedger, stakeUnwound); err != nil {
			return err
		}
		if err := ledger.ReduceOrDeletePosition(tx, pos, side, in.Amount, stakeUnwound); err != nil {
			return err
		}

		result = &SellResult{
			Payout:  lmsrmath.FromLedger(payoutLedger),
			NewProb: newProb,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolveEvent settles every outstanding position on an event: winning
// shares are credited at full value, losing shares at zero, every
// position is deleted, and the event transitions to a terminal outcome.
func (e *Engine) ResolveEvent(ctx context.Context, eventID int64, outcomeYes bool) error {
	if eventID <= 0 {
		return fmt.Errorf("%w: event_id must be positive", coreerr.ErrInvalidInputs)
	}

	return e.withSerializableTx(ctx, "resolve", eventID, func(tx *gorm.DB) error {
		event, err := ledger.LoadEventForUpdate(tx, eventID)
		if err != nil {
			return err
		}
		if !event.IsOpen() {
			return coreerr.ErrEventClosed
		}

		positions, err := ledger.PositionsForEvent(tx, eventID)
		if err != nil {
			return err
		}

		for _, pos := range positions {
			var winningShares float64
			if outcomeYes {
				winningShares = pos.YesShares.InexactFloat64()
			} else {
				winningShares = pos.NoShares.InexactFloat64()
			}
			shareValueLedger, err := lmsrmath.ToLedger(winningShares)
			if err != nil {
				return err
			}
			if err := ledger.CreditBalance(tx, pos.UserID, shareValueLedger, pos.TotalStakedLedger); err != nil {
				return err
			}
			if err := ledger.RecordResolutionAdjustment(tx, pos.UserID, shareValueLedger, pos.TotalStakedLedger); err != nil {
				return err
			}
			// Reputation scoring is best-effort: it must never block or
			// revert the money movement above, so a failure here is logged
			// and swallowed rather than aborting the resolution.
			if err := ledger.ApplyResolutionScoring(tx, pos.UserID, winningShares > 0); err != nil {
				log.Printf("engine: resolve_event: scoring failed for user %d: %v", pos.UserID, err)
			}
		}

		if err := ledger.DeletePositionsForEvent(tx, eventID); err != nil {
			return err
		}

		outcome := models.OutcomeResolvedNo
		if outcomeYes {
			outcome = models.OutcomeResolvedYes
		}
		return ledger.MarkResolved(tx, eventID, outcome)
	})
}

// GetMarketState reads the current read-only projection of an event's
// market, outside of any transaction.
func (e *Engine) GetMarketState(ctx context.Context, eventID int64) (*models.EventState, error) {
	var event models.Event
	if err := e.db.WithContext(ctx).Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, coreerr.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	uniqueTraders, err := ledger.CountUniqueTraders(e.db.WithContext(ctx), eventID)
	if err != nil {
		return nil, err
	}
	return &models.EventState{
		EventID:       event.ID,
		MarketProb:    ledger.DecimalToFloat64(event.MarketProb),
		B:             ledger.DecimalToFloat64(event.B),
		QYes:          ledger.DecimalToFloat64(event.QYes),
		QNo:           ledger.DecimalToFloat64(event.QNo),
		UniqueTraders: uniqueTraders,
		TotalTrades:   event.TotalTrades,
	}, nil
}

// PositionView is the read-only shares projection returned by
// GetUserPosition.
type PositionView struct {
	YesShares float64 `json:"yesShares"`
	NoShares  float64 `json:"noShares"`
}

// GetUserPosition reads a user's outstanding shares on an event, outside
// of any transaction. A missing position reads as all-zero, not an
// error.
func (e *Engine) GetUserPosition(ctx context.Context, userID, eventID int64) (*PositionView, error) {
	var pos models.UserPosition
	err := e.db.WithContext(ctx).Where("user_id = ? AND event_id = ?", userID, eventID).First(&pos).Error
	if err == gorm.ErrRecordNotFound {
		return &PositionView{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrPersistence, err)
	}
	return &PositionView{
		YesShares: pos.YesShares.InexactFloat64(),
		NoShares:  pos.NoShares.InexactFloat64(),
	}, nil
}
