package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FraudLens-io/fraudlens/internal/models"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	reminders []string
	lowQuota  []string
}

func (n *recordingNotifier) ExpiryReminder(_ context.Context, account *models.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminders = append(n.reminders, account.ID)
}

func (n *recordingNotifier) LowQuota(_ context.Context, account *models.Account, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowQuota = append(n.lowQuota, account.ID)
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		sub  models.Subscription
		want Evaluation
	}{
		{
			name: "active trial",
			sub: models.Subscription{
				Type:        models.SubscriptionFreeTrial,
				Status:      models.StatusActive,
				TrialEndsAt: ptrTime(now.Add(48 * time.Hour)),
			},
			want: Evaluation{},
		},
		{
			name: "lapsed trial",
			sub: models.Subscription{
				Type:        models.SubscriptionFreeTrial,
				Status:      models.StatusActive,
				TrialEndsAt: ptrTime(now.Add(-time.Minute)),
			},
			want: Evaluation{Expired: true, TrialLapsed: true},
		},
		{
			name: "cancelled subscription",
			sub: models.Subscription{
				Type:   models.SubscriptionPaidPackage,
				Status: models.StatusCancelled,
			},
			want: Evaluation{Expired: true},
		},
		{
			name: "package inside reminder window",
			sub: models.Subscription{
				Type:          models.SubscriptionPaidPackage,
				Status:        models.StatusActive,
				PackageEndsAt: ptrTime(now.Add(3 * 24 * time.Hour)),
			},
			want: Evaluation{ReminderDue: true},
		},
		{
			name: "package inside window but reminder already sent",
			sub: models.Subscription{
				Type:               models.SubscriptionPaidPackage,
				Status:             models.StatusActive,
				PackageEndsAt:      ptrTime(now.Add(3 * 24 * time.Hour)),
				ExpiryReminderSent: true,
			},
			want: Evaluation{},
		},
		{
			name: "package outside reminder window",
			sub: models.Subscription{
				Type:          models.SubscriptionPaidPackage,
				Status:        models.StatusActive,
				PackageEndsAt: ptrTime(now.Add(10 * 24 * time.Hour)),
			},
			want: Evaluation{},
		},
		{
			name: "lapsed package",
			sub: models.Subscription{
				Type:          models.SubscriptionPayAsYouGo,
				Status:        models.StatusActive,
				PackageEndsAt: ptrTime(now.Add(-time.Hour)),
			},
			want: Evaluation{Expired: true, PackageLapsed: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.sub, now))
		})
	}
}

func TestRefreshPersistsLapsedTrial(t *testing.T) {
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	monitor := NewMonitor(store, notifier)
	ctx := context.Background()

	account := createAccount(t, store, "lazy@example.com", models.RoleIndividual, nil)

	past := time.Now().Add(-time.Hour)
	_, err := store.DB().Exec(`UPDATE accounts SET trial_ends_at = ? WHERE id = ?`, past, account.ID)
	require.NoError(t, err)

	// No sweep has run; the stored status still says active.
	stale, err := store.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stale.Subscription.Status)

	ev, err := monitor.Refresh(ctx, stale, time.Now())
	require.NoError(t, err)
	assert.True(t, ev.Expired)
	assert.True(t, ev.TrialLapsed)

	persisted, err := store.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, persisted.Subscription.Status)
}

func TestRefreshSendsReminderOnce(t *testing.T) {
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	monitor := NewMonitor(store, notifier)
	ctx := context.Background()

	account := createAccount(t, store, "reminder@example.com", models.RoleIndividual, nil)

	endsAt := time.Now().Add(2 * 24 * time.Hour)
	_, err := store.DB().Exec(
		`UPDATE accounts SET subscription_type = ?, package_ends_at = ?, trial_ends_at = NULL WHERE id = ?`,
		models.SubscriptionPaidPackage, endsAt, account.ID,
	)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		fresh, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		_, err = monitor.Refresh(ctx, fresh, time.Now())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{account.ID}, notifier.reminders, "reminder must be sent exactly once")
}
