package quota

import (
	"context"
	"errors"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

// SeatDenyReason explains why a seat creation was refused.
type SeatDenyReason string

const (
	SeatReasonNotAdmin           SeatDenyReason = "not_enterprise_admin"
	SeatReasonPlanExpired        SeatDenyReason = "plan_expired"
	SeatReasonQuotaExhausted     SeatDenyReason = "quota_exhausted"
	SeatReasonNoPaidRequest      SeatDenyReason = "no_paid_funding_request"
	SeatReasonAllowanceExhausted SeatDenyReason = "seat_allowance_exhausted"
)

// SeatResult is the outcome of a seat-creation check.
type SeatResult struct {
	Allowed bool
	Reason  SeatDenyReason
}

// AllowanceResolver enforces the seat-count allowance: how many pooled
// enterprise_user accounts an admin may create. The allowance is a separate
// entitlement from search quota and comes from the latest paid funding
// request for the admin's email.
type AllowanceResolver struct {
	store   *database.Store
	monitor *Monitor
}

// NewAllowanceResolver creates a seat allowance resolver.
func NewAllowanceResolver(store *database.Store, monitor *Monitor) *AllowanceResolver {
	return &AllowanceResolver{store: store, monitor: monitor}
}

// CanCreateUser checks, in order: the admin role, plan expiry, search quota
// headroom (a fully exhausted admin may not add seats even though seat
// creation itself consumes no search), and the seat count against the
// current allowance. Each failing check yields its own reason.
func (r *AllowanceResolver) CanCreateUser(ctx context.Context, adminID string) (SeatResult, error) {
	admin, err := r.store.GetAccountByID(ctx, adminID)
	if err != nil {
		return SeatResult{}, err
	}

	if admin.Role != models.RoleEnterpriseAdmin {
		return SeatResult{Reason: SeatReasonNotAdmin}, nil
	}

	ev, err := r.monitor.Refresh(ctx, admin, time.Now())
	if err != nil {
		return SeatResult{}, err
	}
	if ev.Expired {
		return SeatResult{Reason: SeatReasonPlanExpired}, nil
	}

	if !admin.Subscription.Unlimited() && admin.Subscription.SearchesUsed >= admin.Subscription.SearchLimit {
		return SeatResult{Reason: SeatReasonQuotaExhausted}, nil
	}

	request, err := r.store.LatestPaidEnterpriseRequest(ctx, admin.Email)
	if errors.Is(err, database.ErrNotFound) {
		return SeatResult{Reason: SeatReasonNoPaidRequest}, nil
	}
	if err != nil {
		return SeatResult{}, err
	}

	seats, err := r.store.CountSeats(ctx, adminID)
	if err != nil {
		return SeatResult{}, err
	}
	if seats >= request.AllowanceUsers {
		return SeatResult{Reason: SeatReasonAllowanceExhausted}, nil
	}

	return SeatResult{Allowed: true}, nil
}
