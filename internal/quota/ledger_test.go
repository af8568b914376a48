package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()

	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = ":memory:"

	store, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createAccount(t *testing.T, store *database.Store, email string, role models.Role, createdBy *string) *models.Account {
	t.Helper()

	account, err := store.CreateAccount(context.Background(), email, "hashed", role, createdBy, "tok-"+email)
	require.NoError(t, err)
	return account
}

func setLimit(t *testing.T, store *database.Store, accountID string, used, limit int) {
	t.Helper()

	_, err := store.DB().Exec(`UPDATE accounts SET searches_used = ?, search_limit = ? WHERE id = ?`, used, limit, accountID)
	require.NoError(t, err)
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	store := newTestStore(t)
	ledger := NewLedger(store)
	ctx := context.Background()

	account := createAccount(t, store, "race@example.com", models.RoleIndividual, nil)
	setLimit(t, store, account.ID, 0, 5)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.ConsumeOne(ctx, account.ID)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	consumed := 0
	for ok := range results {
		if ok {
			consumed++
		}
	}
	assert.Equal(t, 5, consumed, "exactly the limit must be consumed")

	after, err := ledger.Read(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Subscription.SearchesUsed, "usage must never exceed the limit")
}

func TestGrantCreditsExtendsLimit(t *testing.T) {
	store := newTestStore(t)
	ledger := NewLedger(store)
	ctx := context.Background()

	account := createAccount(t, store, "grant@example.com", models.RoleIndividual, nil)
	setLimit(t, store, account.ID, 5, 5)

	require.NoError(t, ledger.GrantCredits(ctx, account.ID, 20, time.Now().AddDate(0, 0, 30)))

	after, err := ledger.Read(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Subscription.SearchesUsed)
	assert.Equal(t, 25, after.Subscription.SearchLimit)
	assert.Equal(t, 20, after.Subscription.Remaining())
}

func TestResetPackageStartsFresh(t *testing.T) {
	store := newTestStore(t)
	ledger := NewLedger(store)
	ctx := context.Background()

	account := createAccount(t, store, "reset@example.com", models.RoleIndividual, nil)
	setLimit(t, store, account.ID, 9, 10)

	require.NoError(t, ledger.ResetPackage(ctx, account.ID, models.SubscriptionPaidPackage, 100, time.Now().AddDate(0, 0, 30)))

	after, err := ledger.Read(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Subscription.SearchesUsed)
	assert.Equal(t, 100, after.Subscription.SearchLimit)
	assert.Equal(t, models.SubscriptionPaidPackage, after.Subscription.Type)
}
