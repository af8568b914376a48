package quota

import (
	"context"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

// Ledger is the per-account usage-vs-limit state with its atomic mutation
// primitives. All mutations are single conditional statements against the
// store; there is no read-modify-write anywhere in this package.
type Ledger struct {
	store *database.Store
}

// NewLedger creates a ledger over the given store.
func NewLedger(store *database.Store) *Ledger {
	return &Ledger{store: store}
}

// Read returns the current account snapshot.
func (l *Ledger) Read(ctx context.Context, accountID string) (*models.Account, error) {
	return l.store.GetAccountByID(ctx, accountID)
}

// GrantCredits adds purchased search credits on top of the current limit and
// extends the package window. The usage counter is not reset.
func (l *Ledger) GrantCredits(ctx context.Context, accountID string, credits int, packageEndsAt time.Time) error {
	return l.store.GrantSearchCredits(ctx, accountID, credits, packageEndsAt)
}

// ResetPackage zeroes the usage counter and installs a new limit and window.
func (l *Ledger) ResetPackage(ctx context.Context, accountID string, subType models.SubscriptionType, limit int, packageEndsAt time.Time) error {
	return l.store.ResetSearchPackage(ctx, accountID, subType, limit, packageEndsAt)
}

// MarkExpired persists the expired subscription status.
func (l *Ledger) MarkExpired(ctx context.Context, accountID string) error {
	return l.store.MarkSubscriptionExpired(ctx, accountID)
}

// ConsumeOne atomically increments usage if the account is below its limit
// (or unlimited) and reports whether the increment happened. A false return
// with a nil error means the limit was already reached.
func (l *Ledger) ConsumeOne(ctx context.Context, accountID string) (bool, error) {
	return l.store.ConsumeSearch(ctx, accountID)
}
