package notify

import (
	"context"
	"log"

	"github.com/FraudLens-io/fraudlens/internal/models"
)

// Notifier dispatches one-shot account notifications. Callers gate every
// dispatch behind a persisted flag, so implementations do not need to
// deduplicate. Template rendering and delivery live outside this service.
type Notifier interface {
	ExpiryReminder(ctx context.Context, account *models.Account)
	LowQuota(ctx context.Context, account *models.Account, remaining int)
}

// LogNotifier writes notifications to the process log. It stands in for the
// mail pipeline in development and tests.
type LogNotifier struct{}

func (LogNotifier) ExpiryReminder(ctx context.Context, account *models.Account) {
	log.Printf("[NOTIFY] expiry reminder for account %s (%s)", account.ID, account.Email)
}

func (LogNotifier) LowQuota(ctx context.Context, account *models.Account, remaining int) {
	log.Printf("[NOTIFY] low quota for account %s (%s): %d searches left", account.ID, account.Email, remaining)
}
