package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

// StoreTestSuite runs the store against an in-memory SQLite database.
type StoreTestSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *StoreTestSuite) SetupTest() {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = ":memory:"

	store, err := Open(cfg)
	require.NoError(s.T(), err, "store initialization should succeed")
	s.store = store
	s.ctx = context.Background()
}

func (s *StoreTestSuite) TearDownTest() {
	s.store.Close()
}

func (s *StoreTestSuite) createAccount(email string) *models.Account {
	account, err := s.store.CreateAccount(s.ctx, email, "hashed-password", models.RoleIndividual, nil, "tok-"+email)
	require.NoError(s.T(), err)
	return account
}

func (s *StoreTestSuite) TestCreateAndFetchAccount() {
	created := s.createAccount("alice@example.com")

	byID, err := s.store.GetAccountByID(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "alice@example.com", byID.Email)
	assert.Equal(s.T(), models.SubscriptionFreeTrial, byID.Subscription.Type)
	assert.Equal(s.T(), models.StatusActive, byID.Subscription.Status)
	assert.Equal(s.T(), models.TrialSearchLimit, byID.Subscription.SearchLimit)
	assert.Equal(s.T(), 0, byID.Subscription.SearchesUsed)
	require.NotNil(s.T(), byID.Subscription.TrialEndsAt)

	byEmail, err := s.store.GetAccountByEmail(s.ctx, "alice@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.ID, byEmail.ID)

	byToken, err := s.store.GetAccountByAPIToken(s.ctx, "tok-alice@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.ID, byToken.ID)
}

func (s *StoreTestSuite) TestDuplicateEmailIsUniqueViolation() {
	s.createAccount("dup@example.com")

	_, err := s.store.CreateAccount(s.ctx, "dup@example.com", "other", models.RoleIndividual, nil, "other-token")
	require.Error(s.T(), err)
	assert.True(s.T(), IsUniqueViolation(err))
}

func (s *StoreTestSuite) TestGetAccountNotFound() {
	_, err := s.store.GetAccountByID(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	_, err = s.store.GetAccountByAPIToken(s.ctx, "missing-token")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *StoreTestSuite) TestConsumeSearchStopsAtLimit() {
	account := s.createAccount("limit@example.com")

	_, err := s.store.DB().Exec(`UPDATE accounts SET search_limit = 2 WHERE id = ?`, account.ID)
	require.NoError(s.T(), err)

	for i := 0; i < 2; i++ {
		ok, err := s.store.ConsumeSearch(s.ctx, account.ID)
		require.NoError(s.T(), err)
		assert.True(s.T(), ok, "consume %d should succeed", i+1)
	}

	ok, err := s.store.ConsumeSearch(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok, "consume past the limit should be refused")

	after, err := s.store.GetAccountByID(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, after.Subscription.SearchesUsed)
}

func (s *StoreTestSuite) TestConsumeSearchUnlimited() {
	account := s.createAccount("unlimited@example.com")

	_, err := s.store.DB().Exec(`UPDATE accounts SET search_limit = ? WHERE id = ?`, models.UnlimitedSearches, account.ID)
	require.NoError(s.T(), err)

	for i := 0; i < 25; i++ {
		ok, err := s.store.ConsumeSearch(s.ctx, account.ID)
		require.NoError(s.T(), err)
		assert.True(s.T(), ok)
	}
}

func (s *StoreTestSuite) TestGrantSearchCreditsKeepsUsage() {
	account := s.createAccount("credits@example.com")

	for i := 0; i < 3; i++ {
		_, err := s.store.ConsumeSearch(s.ctx, account.ID)
		require.NoError(s.T(), err)
	}

	endsAt := time.Now().AddDate(0, 0, 30)
	require.NoError(s.T(), s.store.GrantSearchCredits(s.ctx, account.ID, 20, endsAt))

	after, err := s.store.GetAccountByID(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, after.Subscription.SearchesUsed, "usage must survive a top-up")
	assert.Equal(s.T(), models.TrialSearchLimit+20, after.Subscription.SearchLimit)
	assert.Equal(s.T(), models.SubscriptionPayAsYouGo, after.Subscription.Type)
	assert.Equal(s.T(), models.StatusActive, after.Subscription.Status)
	require.NotNil(s.T(), after.Subscription.PackageEndsAt)
}

func (s *StoreTestSuite) TestGrantSearchCreditsPreservesUnlimited() {
	account := s.createAccount("vip@example.com")

	_, err := s.store.DB().Exec(`UPDATE accounts SET search_limit = ? WHERE id = ?`,
		models.UnlimitedSearches, account.ID)
	require.NoError(s.T(), err)

	endsAt := time.Now().AddDate(0, 0, 30)
	require.NoError(s.T(), s.store.GrantSearchCredits(s.ctx, account.ID, 20, endsAt))

	after, err := s.store.GetAccountByID(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.UnlimitedSearches, after.Subscription.SearchLimit, "the sentinel must survive a top-up")
	assert.True(s.T(), after.Subscription.Unlimited())
	require.NotNil(s.T(), after.Subscription.PackageEndsAt)
}

func (s *StoreTestSuite) TestResetSearchPackageZeroesUsage() {
	account := s.createAccount("package@example.com")

	for i := 0; i < 4; i++ {
		_, err := s.store.ConsumeSearch(s.ctx, account.ID)
		require.NoError(s.T(), err)
	}

	endsAt := time.Now().AddDate(0, 0, 30)
	require.NoError(s.T(), s.store.ResetSearchPackage(s.ctx, account.ID, models.SubscriptionPaidPackage, 100, endsAt))

	after, err := s.store.GetAccountByID(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 0, after.Subscription.SearchesUsed)
	assert.Equal(s.T(), 100, after.Subscription.SearchLimit)
	assert.Equal(s.T(), models.SubscriptionPaidPackage, after.Subscription.Type)
	assert.True(s.T(), after.Subscription.CanAccessRealData)
	assert.False(s.T(), after.Subscription.LowQuotaNotified)
	assert.False(s.T(), after.Subscription.ExpiryReminderSent)
}

func (s *StoreTestSuite) TestNotificationClaimsAreOneShot() {
	account := s.createAccount("claims@example.com")

	won, err := s.store.ClaimExpiryReminder(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), won)

	won, err = s.store.ClaimExpiryReminder(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), won, "second claim must lose")

	won, err = s.store.ClaimLowQuotaNotice(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), won)

	won, err = s.store.ClaimLowQuotaNotice(s.ctx, account.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), won)
}

func (s *StoreTestSuite) TestRotateAPIToken() {
	account := s.createAccount("rotate@example.com")

	require.NoError(s.T(), s.store.RotateAPIToken(s.ctx, account.ID, "new-token"))

	_, err := s.store.GetAccountByAPIToken(s.ctx, "tok-rotate@example.com")
	assert.ErrorIs(s.T(), err, ErrNotFound, "old token must stop working")

	byToken, err := s.store.GetAccountByAPIToken(s.ctx, "new-token")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), account.ID, byToken.ID)
}

func (s *StoreTestSuite) TestPaymentEventSessionIsUnique() {
	account := s.createAccount("payer@example.com")

	event := &models.PaymentEvent{
		SessionID:   "cs_test_1",
		AccountID:   &account.ID,
		Kind:        models.PaymentKindCredits,
		AmountCents: 999,
		Currency:    "usd",
		Credits:     10,
		Status:      models.PaymentEventProcessing,
	}
	require.NoError(s.T(), s.store.InsertPaymentEvent(s.ctx, event))

	dup := &models.PaymentEvent{
		SessionID: "cs_test_1",
		AccountID: &account.ID,
		Kind:      models.PaymentKindCredits,
		Credits:   10,
		Status:    models.PaymentEventProcessing,
	}
	err := s.store.InsertPaymentEvent(s.ctx, dup)
	require.Error(s.T(), err)
	assert.True(s.T(), IsUniqueViolation(err))
}

func (s *StoreTestSuite) TestReclaimFailedPaymentEvent() {
	account := s.createAccount("reclaim@example.com")

	event := &models.PaymentEvent{
		SessionID: "cs_test_2",
		AccountID: &account.ID,
		Kind:      models.PaymentKindCredits,
		Credits:   5,
		Status:    models.PaymentEventProcessing,
	}
	require.NoError(s.T(), s.store.InsertPaymentEvent(s.ctx, event))

	won, err := s.store.ReclaimFailedPaymentEvent(s.ctx, "cs_test_2")
	require.NoError(s.T(), err)
	assert.False(s.T(), won, "a processing event must not be reclaimed")

	require.NoError(s.T(), s.store.SetPaymentEventStatus(s.ctx, "cs_test_2", models.PaymentEventFailed))

	won, err = s.store.ReclaimFailedPaymentEvent(s.ctx, "cs_test_2")
	require.NoError(s.T(), err)
	assert.True(s.T(), won)

	stored, err := s.store.GetPaymentEventBySession(s.ctx, "cs_test_2")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.PaymentEventProcessing, stored.Status)
}

func (s *StoreTestSuite) TestCompletedPaymentEventHasTimestamp() {
	account := s.createAccount("complete@example.com")

	event := &models.PaymentEvent{
		SessionID: "cs_test_3",
		AccountID: &account.ID,
		Kind:      models.PaymentKindCredits,
		Credits:   5,
		Status:    models.PaymentEventProcessing,
	}
	require.NoError(s.T(), s.store.InsertPaymentEvent(s.ctx, event))
	require.NoError(s.T(), s.store.SetPaymentEventStatus(s.ctx, "cs_test_3", models.PaymentEventCompleted))

	stored, err := s.store.GetPaymentEventBySession(s.ctx, "cs_test_3")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), models.PaymentEventCompleted, stored.Status)
	assert.NotNil(s.T(), stored.CompletedAt)
}

func (s *StoreTestSuite) TestEnterpriseRequestLifecycle() {
	request, err := s.store.CreateEnterpriseRequest(s.ctx, "boss@corp.com", 500, 10)
	require.NoError(s.T(), err)
	assert.False(s.T(), request.Paid)

	_, err = s.store.LatestPaidEnterpriseRequest(s.ctx, "boss@corp.com")
	assert.ErrorIs(s.T(), err, ErrNotFound, "unpaid requests must not resolve")

	require.NoError(s.T(), s.store.MarkEnterpriseRequestPaid(s.ctx, request.ID, "cs_ent_1"))

	paid, err := s.store.LatestPaidEnterpriseRequest(s.ctx, "boss@corp.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), request.ID, paid.ID)
	assert.True(s.T(), paid.Paid)
	assert.Equal(s.T(), 500, paid.AllowanceSearches)
	assert.Equal(s.T(), 10, paid.AllowanceUsers)
}

func (s *StoreTestSuite) TestCountSeats() {
	admin := s.createAccount("admin@corp.com")

	count, err := s.store.CountSeats(s.ctx, admin.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 0, count)

	for i, email := range []string{"seat1@corp.com", "seat2@corp.com"} {
		_, err := s.store.CreateAccount(s.ctx, email, "hash", models.RoleEnterpriseUser, &admin.ID, "seat-token-"+email)
		require.NoError(s.T(), err, "seat %d", i)
	}

	count, err = s.store.CountSeats(s.ctx, admin.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 2, count)
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}
