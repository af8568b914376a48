package quota

import (
	"context"
	"log"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
	"github.com/FraudLens-io/fraudlens/internal/notify"
)

// ReminderWindow is how long before a package lapses that the one-time
// expiry reminder goes out.
const ReminderWindow = 7 * 24 * time.Hour

// Evaluation is the computed time-based view of a subscription. Expired is
// what gating decisions must use: a package account can still carry an
// "active" status column after its window has lapsed.
type Evaluation struct {
	Expired       bool
	TrialLapsed   bool
	PackageLapsed bool
	ReminderDue   bool
}

// Evaluate computes the wall-clock subscription state. Pure: no store access,
// no side effects.
func Evaluate(sub models.Subscription, now time.Time) Evaluation {
	var ev Evaluation

	if sub.Status == models.StatusExpired || sub.Status == models.StatusCancelled {
		ev.Expired = true
	}

	if sub.Type == models.SubscriptionFreeTrial {
		if sub.TrialEndsAt != nil && now.After(*sub.TrialEndsAt) {
			ev.TrialLapsed = true
			ev.Expired = true
		}
	} else if sub.PackageEndsAt != nil {
		until := sub.PackageEndsAt.Sub(now)
		if until < 0 {
			ev.PackageLapsed = true
			ev.Expired = true
		} else if until <= ReminderWindow && !sub.ExpiryReminderSent {
			ev.ReminderDue = true
		}
	}

	return ev
}

// Monitor applies time-based subscription transitions lazily, on read paths.
// There is no background sweep: a dormant account's status column can lag
// reality until its next access, but every gating decision goes through
// Evaluate first, so the lag is never observable in behavior.
type Monitor struct {
	store    *database.Store
	notifier notify.Notifier
}

// NewMonitor creates an expiry monitor.
func NewMonitor(store *database.Store, notifier notify.Notifier) *Monitor {
	return &Monitor{store: store, notifier: notifier}
}

// Refresh evaluates the account's subscription at now and applies the side
// effects: lapsed trials get their status persisted, and a due reminder is
// sent at most once (the persisted flag is claimed with a conditional update,
// so concurrent reads cannot double-send). The account is updated in place to
// reflect persisted changes.
func (m *Monitor) Refresh(ctx context.Context, account *models.Account, now time.Time) (Evaluation, error) {
	ev := Evaluate(account.Subscription, now)

	if ev.TrialLapsed && account.Subscription.Status != models.StatusExpired {
		if err := m.store.MarkSubscriptionExpired(ctx, account.ID); err != nil {
			return ev, err
		}
		account.Subscription.Status = models.StatusExpired
	}

	if ev.ReminderDue {
		won, err := m.store.ClaimExpiryReminder(ctx, account.ID)
		if err != nil {
			// The reminder is best-effort; the gating result stands.
			log.Printf("[QUOTA] failed to claim expiry reminder for %s: %v", account.ID, err)
		} else if won {
			account.Subscription.ExpiryReminderSent = true
			m.notifier.ExpiryReminder(ctx, account)
		}
	}

	return ev, nil
}
