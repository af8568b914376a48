package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
	"github.com/FraudLens-io/fraudlens/internal/quota"
)

// Outcome is the result of handling a payment notification.
type Outcome int

const (
	// OutcomeApplied means this delivery mutated the ledger.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means another delivery already handled (or is
	// handling) the same session; nothing was mutated.
	OutcomeAlreadyApplied
	// OutcomeDeferred means the payment was recorded against the enterprise
	// funding request because the admin account does not exist yet; the
	// ledger is populated later, at provisioning.
	OutcomeDeferred
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Grant windows.
const (
	// CreditWindowDays is how far a pay-as-you-go purchase extends the
	// package window.
	CreditWindowDays = 30
	// DefaultPackageDays is the fallback package window when the event does
	// not carry one.
	DefaultPackageDays = 30
	// EnterprisePackageDays is the window installed on an admin's ledger
	// when an enterprise funding request is applied.
	EnterprisePackageDays = 365
)

// Event is a normalized payment confirmation, from either the provider
// webhook or the client verify-on-return call. SessionID is the provider
// checkout session id; both paths deliver the same id, so whichever lands
// first wins and the other observes already-applied.
type Event struct {
	SessionID           string
	AccountID           string
	EnterpriseRequestID string
	AdminEmail          string
	Kind                models.PaymentEventKind
	AmountCents         int64
	Currency            string
	Credits             int
	PackageSearches     int
	PackageDays         int
}

// Validate checks the event targets the right identifier for its kind.
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errors.New("payment event missing session id")
	}
	switch e.Kind {
	case models.PaymentKindCredits:
		if e.AccountID == "" {
			return errors.New("credits event missing account id")
		}
		if e.Credits <= 0 {
			return errors.New("credits event missing credit amount")
		}
	case models.PaymentKindPackage:
		if e.AccountID == "" {
			return errors.New("package event missing account id")
		}
		if e.PackageSearches <= 0 {
			return errors.New("package event missing search allowance")
		}
	case models.PaymentKindEnterprise:
		if e.AdminEmail == "" {
			return errors.New("enterprise event missing admin email")
		}
	default:
		return fmt.Errorf("unknown payment event kind %q", e.Kind)
	}
	return nil
}

// Processor converts payment confirmations into ledger mutations exactly
// once per provider session. Redelivered, out-of-order or duplicate events
// are absorbed by the uniqueness constraint on the session id; there is no
// in-memory lock, so independent handler processes stay safe.
type Processor struct {
	store  *database.Store
	ledger *quota.Ledger
}

// NewProcessor creates a payment event processor.
func NewProcessor(store *database.Store, ledger *quota.Ledger) *Processor {
	return &Processor{store: store, ledger: ledger}
}

// Handle applies the event to the ledger at most once. The claim is made
// first, by inserting the event row under the unique session id; on a
// collision the row is re-claimed only if a previous attempt failed.
// Mutation errors mark the claim failed and surface as retryable so the
// provider redelivers.
func (p *Processor) Handle(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}

	record := &models.PaymentEvent{
		SessionID:       ev.SessionID,
		Kind:            ev.Kind,
		AmountCents:     ev.AmountCents,
		Currency:        ev.Currency,
		Credits:         ev.Credits,
		PackageSearches: ev.PackageSearches,
		PackageDays:     ev.PackageDays,
		Status:          models.PaymentEventProcessing,
	}
	if ev.AccountID != "" {
		record.AccountID = &ev.AccountID
	}
	if ev.EnterpriseRequestID != "" {
		record.EnterpriseRequestID = &ev.EnterpriseRequestID
	}
	if ev.AdminEmail != "" {
		record.AdminEmail = &ev.AdminEmail
	}

	if err := p.store.InsertPaymentEvent(ctx, record); err != nil {
		if !database.IsUniqueViolation(err) {
			return 0, fmt.Errorf("failed to record payment event: %w", err)
		}
		// Another delivery holds the session. Take over only if it failed.
		won, rerr := p.store.ReclaimFailedPaymentEvent(ctx, ev.SessionID)
		if rerr != nil {
			return 0, fmt.Errorf("failed to reclaim payment event: %w", rerr)
		}
		if !won {
			log.Printf("[PAYMENT] session %s already applied, skipping", ev.SessionID)
			return OutcomeAlreadyApplied, nil
		}
		log.Printf("[PAYMENT] retrying previously failed session %s", ev.SessionID)
	}

	outcome, err := p.apply(ctx, ev)
	if err != nil {
		if serr := p.store.SetPaymentEventStatus(ctx, ev.SessionID, models.PaymentEventFailed); serr != nil {
			log.Printf("[PAYMENT] failed to mark session %s failed: %v", ev.SessionID, serr)
		}
		return 0, fmt.Errorf("failed to apply payment for session %s: %w", ev.SessionID, err)
	}

	if err := p.store.SetPaymentEventStatus(ctx, ev.SessionID, models.PaymentEventCompleted); err != nil {
		return 0, fmt.Errorf("failed to complete payment event: %w", err)
	}
	log.Printf("[PAYMENT] session %s %s (%s)", ev.SessionID, outcome, ev.Kind)
	return outcome, nil
}

func (p *Processor) apply(ctx context.Context, ev Event) (Outcome, error) {
	now := time.Now()

	switch ev.Kind {
	case models.PaymentKindCredits:
		endsAt := now.AddDate(0, 0, CreditWindowDays)
		if err := p.ledger.GrantCredits(ctx, ev.AccountID, ev.Credits, endsAt); err != nil {
			return 0, err
		}
		return OutcomeApplied, nil

	case models.PaymentKindPackage:
		days := ev.PackageDays
		if days <= 0 {
			days = DefaultPackageDays
		}
		endsAt := now.AddDate(0, 0, days)
		if err := p.ledger.ResetPackage(ctx, ev.AccountID, models.SubscriptionPaidPackage, ev.PackageSearches, endsAt); err != nil {
			return 0, err
		}
		return OutcomeApplied, nil

	case models.PaymentKindEnterprise:
		return p.applyEnterprise(ctx, ev, now)

	default:
		return 0, fmt.Errorf("unknown payment event kind %q", ev.Kind)
	}
}

// applyEnterprise funds an enterprise admin identified by email. Payment can
// precede signup, so when no admin account exists yet the allowance stays on
// the funding request and the outcome is deferred; ApplyPendingAllowance
// finishes the job at provisioning time.
func (p *Processor) applyEnterprise(ctx context.Context, ev Event, now time.Time) (Outcome, error) {
	if ev.EnterpriseRequestID != "" {
		if err := p.store.MarkEnterpriseRequestPaid(ctx, ev.EnterpriseRequestID, ev.SessionID); err != nil {
			return 0, err
		}
	}

	admin, err := p.store.GetAdminByEmail(ctx, ev.AdminEmail)
	if errors.Is(err, database.ErrNotFound) {
		log.Printf("[PAYMENT] enterprise payment for %s deferred: no admin account yet", ev.AdminEmail)
		return OutcomeDeferred, nil
	}
	if err != nil {
		return 0, err
	}

	request, err := p.store.LatestPaidEnterpriseRequest(ctx, ev.AdminEmail)
	if err != nil {
		return 0, err
	}

	endsAt := now.AddDate(0, 0, EnterprisePackageDays)
	if err := p.ledger.ResetPackage(ctx, admin.ID, models.SubscriptionEnterprisePackage, request.AllowanceSearches, endsAt); err != nil {
		return 0, err
	}
	return OutcomeApplied, nil
}

// ApplyPendingAllowance populates a freshly provisioned admin's ledger from
// the latest paid funding request for its email, if one exists. Called at
// account provisioning to complete deferred enterprise payments.
func (p *Processor) ApplyPendingAllowance(ctx context.Context, admin *models.Account) error {
	request, err := p.store.LatestPaidEnterpriseRequest(ctx, admin.Email)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	endsAt := time.Now().AddDate(0, 0, EnterprisePackageDays)
	if err := p.ledger.ResetPackage(ctx, admin.ID, models.SubscriptionEnterprisePackage, request.AllowanceSearches, endsAt); err != nil {
		return err
	}
	log.Printf("[PAYMENT] applied pending enterprise allowance to admin %s", admin.ID)
	return nil
}
