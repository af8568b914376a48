package quota

import (
	"context"
	"log"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/notify"
)

// DenyReason explains why a consume attempt was refused. Denials are results,
// not errors: callers map them to forbidden responses and never retry them.
type DenyReason string

const (
	ReasonPlanExpired    DenyReason = "plan_expired"
	ReasonQuotaExhausted DenyReason = "quota_exhausted"
)

// LowQuotaThreshold is the remaining-searches level at which the one-time
// low-quota notice goes out.
const LowQuotaThreshold = 3

// ConsumeResult is the outcome of a check-and-consume attempt. Remaining is
// models.UnlimitedSearches for uncapped accounts and only meaningful when
// Consumed is true. RealData reports whether the billing plan grants live
// vendor data or sandboxed results.
type ConsumeResult struct {
	Consumed  bool
	Reason    DenyReason
	Remaining int
	RealData  bool
}

// Enforcer is the single gate through which usage is consumed. Every
// quota-bearing operation calls CheckAndConsume exactly once per unit of
// work, regardless of how many result records that work returns.
type Enforcer struct {
	store    *database.Store
	ledger   *Ledger
	monitor  *Monitor
	notifier notify.Notifier
}

// NewEnforcer creates a quota enforcer.
func NewEnforcer(store *database.Store, ledger *Ledger, monitor *Monitor, notifier notify.Notifier) *Enforcer {
	return &Enforcer{store: store, ledger: ledger, monitor: monitor, notifier: notifier}
}

// CheckAndConsume resolves the caller to its billing account, applies lazy
// expiry, and attempts the atomic consume. A pooled enterprise seat never
// carries its own quota: everything resolves to the creating admin's ledger.
func (e *Enforcer) CheckAndConsume(ctx context.Context, callerID string) (ConsumeResult, error) {
	caller, err := e.store.GetAccountByID(ctx, callerID)
	if err != nil {
		return ConsumeResult{}, err
	}

	billing := caller
	if caller.IsPooledSeat() {
		billing, err = e.store.GetAccountByID(ctx, *caller.CreatedBy)
		if err != nil {
			return ConsumeResult{}, err
		}
	}

	ev, err := e.monitor.Refresh(ctx, billing, time.Now())
	if err != nil {
		return ConsumeResult{}, err
	}
	if ev.Expired {
		return ConsumeResult{Reason: ReasonPlanExpired}, nil
	}

	consumed, err := e.ledger.ConsumeOne(ctx, billing.ID)
	if err != nil {
		return ConsumeResult{}, err
	}
	if !consumed {
		// Includes the lost race where another caller took the last unit
		// between our expiry check and this attempt.
		return ConsumeResult{Reason: ReasonQuotaExhausted}, nil
	}

	after, err := e.ledger.Read(ctx, billing.ID)
	if err != nil {
		return ConsumeResult{}, err
	}
	remaining := after.Subscription.Remaining()

	if !after.Subscription.Unlimited() && remaining <= LowQuotaThreshold && !after.Subscription.LowQuotaNotified {
		won, err := e.store.ClaimLowQuotaNotice(ctx, billing.ID)
		if err != nil {
			log.Printf("[QUOTA] failed to claim low-quota notice for %s: %v", billing.ID, err)
		} else if won {
			e.notifier.LowQuota(ctx, after, remaining)
		}
	}

	return ConsumeResult{
		Consumed:  true,
		Remaining: remaining,
		RealData:  after.Subscription.CanAccessRealData,
	}, nil
}
