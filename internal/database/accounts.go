package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/models"
	"github.com/google/uuid"
)

const accountColumns = `id, email, password, role, created_by, api_auth_token,
	subscription_type, subscription_status, trial_ends_at, package_ends_at,
	searches_used, search_limit, can_access_real_data, low_quota_notified,
	expiry_reminder_sent, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	a := &models.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.Password, &a.Role, &a.CreatedBy, &a.APIAuthToken,
		&a.Subscription.Type, &a.Subscription.Status,
		&a.Subscription.TrialEndsAt, &a.Subscription.PackageEndsAt,
		&a.Subscription.SearchesUsed, &a.Subscription.SearchLimit,
		&a.Subscription.CanAccessRealData, &a.Subscription.LowQuotaNotified,
		&a.Subscription.ExpiryReminderSent,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAccount inserts a new account with free-trial defaults. CreatedBy is
// set only for enterprise_user seats.
func (s *Store) CreateAccount(ctx context.Context, email, hashedPassword string, role models.Role, createdBy *string, apiToken string) (*models.Account, error) {
	now := time.Now()
	trialEnds := now.AddDate(0, 0, models.TrialDays)

	a := &models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Password:     hashedPassword,
		Role:         role,
		CreatedBy:    createdBy,
		APIAuthToken: apiToken,
		Subscription: models.Subscription{
			Type:        models.SubscriptionFreeTrial,
			Status:      models.StatusActive,
			TrialEndsAt: &trialEnds,
			SearchLimit: models.TrialSearchLimit,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var query string
	if s.dialect == "postgres" {
		query = `INSERT INTO accounts
			(id, email, password, role, created_by, api_auth_token,
			 subscription_type, subscription_status, trial_ends_at,
			 searches_used, search_limit, can_access_real_data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, FALSE, $11, $12)`
	} else {
		query = `INSERT INTO accounts
			(id, email, password, role, created_by, api_auth_token,
			 subscription_type, subscription_status, trial_ends_at,
			 searches_used, search_limit, can_access_real_data, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`
	}

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Email, a.Password, a.Role, a.CreatedBy, a.APIAuthToken,
		a.Subscription.Type, a.Subscription.Status, a.Subscription.TrialEndsAt,
		a.Subscription.SearchLimit, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccountByID retrieves an account by id.
func (s *Store) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + accountColumns + " FROM accounts WHERE id = $1"
	} else {
		query = "SELECT " + accountColumns + " FROM accounts WHERE id = ?"
	}
	return scanAccount(s.db.QueryRowContext(ctx, query, id))
}

// GetAccountByEmail retrieves an account by email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + accountColumns + " FROM accounts WHERE email = $1"
	} else {
		query = "SELECT " + accountColumns + " FROM accounts WHERE email = ?"
	}
	return scanAccount(s.db.QueryRowContext(ctx, query, email))
}

// GetAccountByAPIToken resolves a partner bearer token to an account.
func (s *Store) GetAccountByAPIToken(ctx context.Context, token string) (*models.Account, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + accountColumns + " FROM accounts WHERE api_auth_token = $1"
	} else {
		query = "SELECT " + accountColumns + " FROM accounts WHERE api_auth_token = ?"
	}
	return scanAccount(s.db.QueryRowContext(ctx, query, token))
}

// GetAdminByEmail retrieves an enterprise_admin account by email.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*models.Account, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + accountColumns + " FROM accounts WHERE email = $1 AND role = $2"
	} else {
		query = "SELECT " + accountColumns + " FROM accounts WHERE email = ? AND role = ?"
	}
	return scanAccount(s.db.QueryRowContext(ctx, query, email, models.RoleEnterpriseAdmin))
}

// ListAccounts returns all accounts, newest first.
func (s *Store) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a := &models.Account{}
		err := rows.Scan(
			&a.ID, &a.Email, &a.Password, &a.Role, &a.CreatedBy, &a.APIAuthToken,
			&a.Subscription.Type, &a.Subscription.Status,
			&a.Subscription.TrialEndsAt, &a.Subscription.PackageEndsAt,
			&a.Subscription.SearchesUsed, &a.Subscription.SearchLimit,
			&a.Subscription.CanAccessRealData, &a.Subscription.LowQuotaNotified,
			&a.Subscription.ExpiryReminderSent,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CountSeats counts enterprise_user accounts created by the given admin.
func (s *Store) CountSeats(ctx context.Context, adminID string) (int, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT COUNT(*) FROM accounts WHERE created_by = $1 AND role = $2"
	} else {
		query = "SELECT COUNT(*) FROM accounts WHERE created_by = ? AND role = ?"
	}
	var count int
	err := s.db.QueryRowContext(ctx, query, adminID, models.RoleEnterpriseUser).Scan(&count)
	return count, err
}

// RotateAPIToken replaces the account's partner API token.
func (s *Store) RotateAPIToken(ctx context.Context, accountID, newToken string) error {
	var query string
	if s.dialect == "postgres" {
		query = "UPDATE accounts SET api_auth_token = $1, updated_at = $2 WHERE id = $3"
	} else {
		query = "UPDATE accounts SET api_auth_token = ?, updated_at = ? WHERE id = ?"
	}
	result, err := s.db.ExecContext(ctx, query, newToken, time.Now(), accountID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ConsumeSearch increments searches_used by one only if the account is below
// its limit (or unlimited). The condition and the increment are one statement:
// this is the serialization point that keeps searches_used <= search_limit
// under concurrent callers. Returns whether the increment happened.
func (s *Store) ConsumeSearch(ctx context.Context, accountID string) (bool, error) {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE accounts SET searches_used = searches_used + 1, updated_at = $1
			WHERE id = $2 AND (search_limit = -1 OR searches_used < search_limit)`
	} else {
		query = `UPDATE accounts SET searches_used = searches_used + 1, updated_at = ?
			WHERE id = ? AND (search_limit = -1 OR searches_used < search_limit)`
	}
	result, err := s.db.ExecContext(ctx, query, time.Now(), accountID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GrantSearchCredits adds purchased credits on top of the current limit,
// clears the one-shot notification flags and extends the package window.
// searches_used is left untouched. The -1 unlimited sentinel is never
// incremented; an unlimited account keeps it and only the window moves.
func (s *Store) GrantSearchCredits(ctx context.Context, accountID string, credits int, packageEndsAt time.Time) error {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE accounts SET
			search_limit = CASE WHEN search_limit = -1 THEN -1 ELSE search_limit + $1 END,
			subscription_type = $2,
			subscription_status = $3,
			package_ends_at = $4,
			low_quota_notified = FALSE,
			expiry_reminder_sent = FALSE,
			updated_at = $5
			WHERE id = $6`
	} else {
		query = `UPDATE accounts SET
			search_limit = CASE WHEN search_limit = -1 THEN -1 ELSE search_limit + ? END,
			subscription_type = ?,
			subscription_status = ?,
			package_ends_at = ?,
			low_quota_notified = 0,
			expiry_reminder_sent = 0,
			updated_at = ?
			WHERE id = ?`
	}
	result, err := s.db.ExecContext(ctx, query,
		credits, models.SubscriptionPayAsYouGo, models.StatusActive,
		packageEndsAt, time.Now(), accountID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ResetSearchPackage resets the counter and installs a fresh package limit
// and window. Used for paid packages and enterprise funding.
func (s *Store) ResetSearchPackage(ctx context.Context, accountID string, subType models.SubscriptionType, limit int, packageEndsAt time.Time) error {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE accounts SET
			searches_used = 0,
			search_limit = $1,
			subscription_type = $2,
			subscription_status = $3,
			package_ends_at = $4,
			can_access_real_data = TRUE,
			low_quota_notified = FALSE,
			expiry_reminder_sent = FALSE,
			updated_at = $5
			WHERE id = $6`
	} else {
		query = `UPDATE accounts SET
			searches_used = 0,
			search_limit = ?,
			subscription_type = ?,
			subscription_status = ?,
			package_ends_at = ?,
			can_access_real_data = 1,
			low_quota_notified = 0,
			expiry_reminder_sent = 0,
			updated_at = ?
			WHERE id = ?`
	}
	result, err := s.db.ExecContext(ctx, query,
		limit, subType, models.StatusActive, packageEndsAt, time.Now(), accountID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// MarkSubscriptionExpired persists the expired status.
func (s *Store) MarkSubscriptionExpired(ctx context.Context, accountID string) error {
	var query string
	if s.dialect == "postgres" {
		query = "UPDATE accounts SET subscription_status = $1, updated_at = $2 WHERE id = $3"
	} else {
		query = "UPDATE accounts SET subscription_status = ?, updated_at = ? WHERE id = ?"
	}
	result, err := s.db.ExecContext(ctx, query, models.StatusExpired, time.Now(), accountID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ClaimExpiryReminder flips expiry_reminder_sent from false to true and
// reports whether this caller won. Concurrent status reads race to send the
// reminder; only one claim succeeds.
func (s *Store) ClaimExpiryReminder(ctx context.Context, accountID string) (bool, error) {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE accounts SET expiry_reminder_sent = TRUE, updated_at = $1
			WHERE id = $2 AND expiry_reminder_sent = FALSE`
	} else {
		query = `UPDATE accounts SET expiry_reminder_sent = 1, updated_at = ?
			WHERE id = ? AND expiry_reminder_sent = 0`
	}
	result, err := s.db.ExecContext(ctx, query, time.Now(), accountID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ClaimLowQuotaNotice flips low_quota_notified from false to true, same
// one-shot semantics as ClaimExpiryReminder.
func (s *Store) ClaimLowQuotaNotice(ctx context.Context, accountID string) (bool, error) {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE accounts SET low_quota_notified = TRUE, updated_at = $1
			WHERE id = $2 AND low_quota_notified = FALSE`
	} else {
		query = `UPDATE accounts SET low_quota_notified = 1, updated_at = ?
			WHERE id = ? AND low_quota_notified = 0`
	}
	result, err := s.db.ExecContext(ctx, query, time.Now(), accountID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
