package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/models"
	"github.com/google/uuid"
)

const paymentEventColumns = `id, session_id, account_id, enterprise_request_id, admin_email,
	kind, amount_cents, currency, credits, package_searches, package_days,
	status, created_at, completed_at`

func scanPaymentEvent(row *sql.Row) (*models.PaymentEvent, error) {
	e := &models.PaymentEvent{}
	err := row.Scan(
		&e.ID, &e.SessionID, &e.AccountID, &e.EnterpriseRequestID, &e.AdminEmail,
		&e.Kind, &e.AmountCents, &e.Currency, &e.Credits, &e.PackageSearches,
		&e.PackageDays, &e.Status, &e.CreatedAt, &e.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// InsertPaymentEvent records a payment event. The UNIQUE constraint on
// session_id makes this the idempotency gate: a second insert for the same
// provider session fails with a unique violation.
func (s *Store) InsertPaymentEvent(ctx context.Context, e *models.PaymentEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = models.PaymentEventPending
	}

	var query string
	if s.dialect == "postgres" {
		query = `INSERT INTO payment_events
			(id, session_id, account_id, enterprise_request_id, admin_email,
			 kind, amount_cents, currency, credits, package_searches, package_days,
			 status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	} else {
		query = `INSERT INTO payment_events
			(id, session_id, account_id, enterprise_request_id, admin_email,
			 kind, amount_cents, currency, credits, package_searches, package_days,
			 status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.SessionID, e.AccountID, e.EnterpriseRequestID, e.AdminEmail,
		e.Kind, e.AmountCents, e.Currency, e.Credits, e.PackageSearches,
		e.PackageDays, e.Status, e.CreatedAt,
	)
	return err
}

// GetPaymentEventBySession retrieves a payment event by its provider session id.
func (s *Store) GetPaymentEventBySession(ctx context.Context, sessionID string) (*models.PaymentEvent, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + paymentEventColumns + " FROM payment_events WHERE session_id = $1"
	} else {
		query = "SELECT " + paymentEventColumns + " FROM payment_events WHERE session_id = ?"
	}
	return scanPaymentEvent(s.db.QueryRowContext(ctx, query, sessionID))
}

// ReclaimFailedPaymentEvent moves a failed event back to processing so a
// redelivery can retry it. Reports whether this caller won the claim.
func (s *Store) ReclaimFailedPaymentEvent(ctx context.Context, sessionID string) (bool, error) {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE payment_events SET status = $1
			WHERE session_id = $2 AND status = $3`
	} else {
		query = `UPDATE payment_events SET status = ?
			WHERE session_id = ? AND status = ?`
	}
	result, err := s.db.ExecContext(ctx, query,
		models.PaymentEventProcessing, sessionID, models.PaymentEventFailed)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SetPaymentEventStatus updates the processing status. Completed events also
// get a completion timestamp and are never updated again.
func (s *Store) SetPaymentEventStatus(ctx context.Context, sessionID string, status models.PaymentEventStatus) error {
	var query string
	var args []interface{}
	if status == models.PaymentEventCompleted {
		if s.dialect == "postgres" {
			query = "UPDATE payment_events SET status = $1, completed_at = $2 WHERE session_id = $3"
		} else {
			query = "UPDATE payment_events SET status = ?, completed_at = ? WHERE session_id = ?"
		}
		args = []interface{}{status, time.Now(), sessionID}
	} else {
		if s.dialect == "postgres" {
			query = "UPDATE payment_events SET status = $1 WHERE session_id = $2"
		} else {
			query = "UPDATE payment_events SET status = ? WHERE session_id = ?"
		}
		args = []interface{}{status, sessionID}
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// ListPaymentEvents returns all payment events, newest first.
func (s *Store) ListPaymentEvents(ctx context.Context) ([]*models.PaymentEvent, error) {
	query := "SELECT " + paymentEventColumns + " FROM payment_events ORDER BY created_at DESC"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		e := &models.PaymentEvent{}
		err := rows.Scan(
			&e.ID, &e.SessionID, &e.AccountID, &e.EnterpriseRequestID, &e.AdminEmail,
			&e.Kind, &e.AmountCents, &e.Currency, &e.Credits, &e.PackageSearches,
			&e.PackageDays, &e.Status, &e.CreatedAt, &e.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

const enterpriseRequestColumns = `id, admin_email, allowance_searches, allowance_users,
	paid, session_id, created_at, paid_at`

func scanEnterpriseRequest(row *sql.Row) (*models.EnterpriseRequest, error) {
	r := &models.EnterpriseRequest{}
	err := row.Scan(
		&r.ID, &r.AdminEmail, &r.AllowanceSearches, &r.AllowanceUsers,
		&r.Paid, &r.SessionID, &r.CreatedAt, &r.PaidAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// CreateEnterpriseRequest records a new enterprise funding request.
func (s *Store) CreateEnterpriseRequest(ctx context.Context, adminEmail string, allowanceSearches, allowanceUsers int) (*models.EnterpriseRequest, error) {
	r := &models.EnterpriseRequest{
		ID:                uuid.NewString(),
		AdminEmail:        adminEmail,
		AllowanceSearches: allowanceSearches,
		AllowanceUsers:    allowanceUsers,
		CreatedAt:         time.Now(),
	}

	var query string
	if s.dialect == "postgres" {
		query = `INSERT INTO enterprise_requests
			(id, admin_email, allowance_searches, allowance_users, paid, created_at)
			VALUES ($1, $2, $3, $4, FALSE, $5)`
	} else {
		query = `INSERT INTO enterprise_requests
			(id, admin_email, allowance_searches, allowance_users, paid, created_at)
			VALUES (?, ?, ?, ?, 0, ?)`
	}

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.AdminEmail, r.AllowanceSearches, r.AllowanceUsers, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetEnterpriseRequest retrieves a funding request by id.
func (s *Store) GetEnterpriseRequest(ctx context.Context, id string) (*models.EnterpriseRequest, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + enterpriseRequestColumns + " FROM enterprise_requests WHERE id = $1"
	} else {
		query = "SELECT " + enterpriseRequestColumns + " FROM enterprise_requests WHERE id = ?"
	}
	return scanEnterpriseRequest(s.db.QueryRowContext(ctx, query, id))
}

// MarkEnterpriseRequestPaid stamps the funding request as paid by the given
// provider session.
func (s *Store) MarkEnterpriseRequestPaid(ctx context.Context, id, sessionID string) error {
	var query string
	if s.dialect == "postgres" {
		query = `UPDATE enterprise_requests SET paid = TRUE, session_id = $1, paid_at = $2
			WHERE id = $3`
	} else {
		query = `UPDATE enterprise_requests SET paid = 1, session_id = ?, paid_at = ?
			WHERE id = ?`
	}
	result, err := s.db.ExecContext(ctx, query, sessionID, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// LatestPaidEnterpriseRequest returns the most recent paid funding request
// for an admin email. This is the admin's current allowance, re-read both at
// account provisioning and at seat-count checks.
func (s *Store) LatestPaidEnterpriseRequest(ctx context.Context, adminEmail string) (*models.EnterpriseRequest, error) {
	var query string
	if s.dialect == "postgres" {
		query = "SELECT " + enterpriseRequestColumns + ` FROM enterprise_requests
			WHERE admin_email = $1 AND paid = TRUE ORDER BY paid_at DESC LIMIT 1`
	} else {
		query = "SELECT " + enterpriseRequestColumns + ` FROM enterprise_requests
			WHERE admin_email = ? AND paid = 1 ORDER BY paid_at DESC LIMIT 1`
	}
	return scanEnterpriseRequest(s.db.QueryRowContext(ctx, query, adminEmail))
}
