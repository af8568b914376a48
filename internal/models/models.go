package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role identifies what kind of account this is.
type Role string

const (
	RoleIndividual      Role = "individual"
	RoleEnterpriseAdmin Role = "enterprise_admin"
	RoleEnterpriseUser  Role = "enterprise_user"
	RoleSubAdmin        Role = "sub_admin"
	RoleSuperAdmin      Role = "super_admin"
)

// SubscriptionType identifies how an account is billed.
type SubscriptionType string

const (
	SubscriptionFreeTrial         SubscriptionType = "free_trial"
	SubscriptionPayAsYouGo        SubscriptionType = "pay_as_you_go"
	SubscriptionPaidPackage       SubscriptionType = "paid_package"
	SubscriptionEnterprisePackage SubscriptionType = "enterprise_package"
)

// SubscriptionStatus is the persisted status field. Package accounts can
// still read "active" here after their window has lapsed; callers must
// check the computed expiry, not only this field.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// UnlimitedSearches is the sentinel search limit for unlimited plans.
const UnlimitedSearches = -1

// Trial defaults applied at registration.
const (
	TrialDays        = 7
	TrialSearchLimit = 10
)

// Account represents a billing account in the system.
type Account struct {
	ID           string `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	Password     string `json:"-" db:"password"`
	Role         Role   `json:"role" db:"role"`
	CreatedBy    *string `json:"created_by,omitempty" db:"created_by"`
	APIAuthToken string `json:"-" db:"api_auth_token"`

	Subscription Subscription `json:"subscription"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Subscription is the per-account quota ledger state.
type Subscription struct {
	Type               SubscriptionType   `json:"type" db:"subscription_type"`
	Status             SubscriptionStatus `json:"status" db:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	PackageEndsAt      *time.Time         `json:"package_ends_at,omitempty" db:"package_ends_at"`
	SearchesUsed       int                `json:"searches_used" db:"searches_used"`
	SearchLimit        int                `json:"search_limit" db:"search_limit"`
	CanAccessRealData  bool               `json:"can_access_real_data" db:"can_access_real_data"`
	LowQuotaNotified   bool               `json:"low_quota_notified" db:"low_quota_notified"`
	ExpiryReminderSent bool               `json:"expiry_reminder_sent" db:"expiry_reminder_sent"`
}

// Unlimited reports whether the account has no search cap.
func (s Subscription) Unlimited() bool {
	return s.SearchLimit == UnlimitedSearches
}

// Remaining returns the searches left, or UnlimitedSearches.
func (s Subscription) Remaining() int {
	if s.Unlimited() {
		return UnlimitedSearches
	}
	r := s.SearchLimit - s.SearchesUsed
	if r < 0 {
		r = 0
	}
	return r
}

// IsPooledSeat reports whether consumption is attributed to a creating admin.
func (a *Account) IsPooledSeat() bool {
	return a.Role == RoleEnterpriseUser && a.CreatedBy != nil && *a.CreatedBy != ""
}

// IsAdmin reports whether the account holds a staff role.
func (a *Account) IsAdmin() bool {
	return a.Role == RoleSubAdmin || a.Role == RoleSuperAdmin
}

// ValidatePassword checks if the provided password matches the account's password.
func (a *Account) ValidatePassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(password))
	return err == nil
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// PermissionSet is the role-derived capability set. It is computed by
// PermissionsFor wherever a role is assigned, never by a persistence hook.
type PermissionSet struct {
	CanSearch         bool
	CanManageSeats    bool
	CanViewAdminPanel bool
	CanModerate       bool
}

// PermissionsFor returns the capabilities granted by a role.
func PermissionsFor(role Role) PermissionSet {
	switch role {
	case RoleIndividual, RoleEnterpriseUser:
		return PermissionSet{CanSearch: true}
	case RoleEnterpriseAdmin:
		return PermissionSet{CanSearch: true, CanManageSeats: true}
	case RoleSubAdmin:
		return PermissionSet{CanSearch: true, CanViewAdminPanel: true}
	case RoleSuperAdmin:
		return PermissionSet{CanSearch: true, CanViewAdminPanel: true, CanModerate: true}
	default:
		return PermissionSet{}
	}
}

// PaymentEventKind identifies which ledger mutation a payment grants.
type PaymentEventKind string

const (
	PaymentKindCredits    PaymentEventKind = "credits"
	PaymentKindPackage    PaymentEventKind = "package"
	PaymentKindEnterprise PaymentEventKind = "enterprise"
)

// PaymentEventStatus tracks processing of a provider payment notification.
type PaymentEventStatus string

const (
	PaymentEventPending    PaymentEventStatus = "pending"
	PaymentEventProcessing PaymentEventStatus = "processing"
	PaymentEventCompleted  PaymentEventStatus = "completed"
	PaymentEventFailed     PaymentEventStatus = "failed"
	PaymentEventCancelled  PaymentEventStatus = "cancelled"
)

// PaymentEvent records one provider payment notification. SessionID is the
// provider checkout session id and is unique: it is the idempotency key that
// guarantees a payment is applied to the ledger at most once no matter how
// many times the webhook or the verify-on-return path delivers it.
type PaymentEvent struct {
	ID                  string             `json:"id" db:"id"`
	SessionID           string             `json:"session_id" db:"session_id"`
	AccountID           *string            `json:"account_id,omitempty" db:"account_id"`
	EnterpriseRequestID *string            `json:"enterprise_request_id,omitempty" db:"enterprise_request_id"`
	AdminEmail          *string            `json:"admin_email,omitempty" db:"admin_email"`
	Kind                PaymentEventKind   `json:"kind" db:"kind"`
	AmountCents         int64              `json:"amount_cents" db:"amount_cents"`
	Currency            string             `json:"currency" db:"currency"`
	Credits             int                `json:"credits" db:"credits"`
	PackageSearches     int                `json:"package_searches" db:"package_searches"`
	PackageDays         int                `json:"package_days" db:"package_days"`
	Status              PaymentEventStatus `json:"status" db:"status"`
	CreatedAt           time.Time          `json:"created_at" db:"created_at"`
	CompletedAt         *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// EnterpriseRequest is a funding request for an enterprise package. It is
// keyed by the admin's email, not an account id, because payment can arrive
// before the admin account exists. The latest paid request for an email is
// that admin's current allowance.
type EnterpriseRequest struct {
	ID                string     `json:"id" db:"id"`
	AdminEmail        string     `json:"admin_email" db:"admin_email"`
	AllowanceSearches int        `json:"allowance_searches" db:"allowance_searches"`
	AllowanceUsers    int        `json:"allowance_users" db:"allowance_users"`
	Paid              bool       `json:"paid" db:"paid"`
	SessionID         *string    `json:"session_id,omitempty" db:"session_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty" db:"paid_at"`
}
