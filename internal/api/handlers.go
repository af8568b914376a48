package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/FraudLens-io/fraudlens/internal/auth"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/lookup"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

type statusResponse struct {
	Email         string     `json:"email"`
	Role          models.Role `json:"role"`
	Subscription  string     `json:"subscription"`
	Status        string     `json:"status"`
	SearchesUsed  int        `json:"searches_used"`
	SearchLimit   int        `json:"search_limit"`
	Remaining     int        `json:"remaining"`
	Unlimited     bool       `json:"unlimited"`
	Expired       bool       `json:"expired"`
	TrialEndsAt   *time.Time `json:"trial_ends_at,omitempty"`
	PackageEndsAt *time.Time `json:"package_ends_at,omitempty"`
}

// AccountStatusHandler returns the computed subscription snapshot. Reading
// status is a gating read: it applies lazy expiry and may trigger the one-time
// expiry reminder.
func (api *Api) AccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	account, err := api.Store.GetAccountByID(r.Context(), claims.AccountID)
	if err != nil {
		http.Error(w, "Account not found", http.StatusNotFound)
		return
	}

	// A pooled seat has no ledger of its own; its snapshot is the admin
	// pool, the same resolution consumption uses.
	billing := account
	if account.IsPooledSeat() {
		billing, err = api.Store.GetAccountByID(r.Context(), *account.CreatedBy)
		if err != nil {
			http.Error(w, "Failed to resolve billing account", http.StatusInternalServerError)
			return
		}
	}

	ev, err := api.monitor.Refresh(r.Context(), billing, time.Now())
	if err != nil {
		http.Error(w, "Failed to evaluate subscription", http.StatusInternalServerError)
		return
	}

	sub := billing.Subscription
	resp := statusResponse{
		Email:         account.Email,
		Role:          account.Role,
		Subscription:  string(sub.Type),
		Status:        string(sub.Status),
		SearchesUsed:  sub.SearchesUsed,
		SearchLimit:   sub.SearchLimit,
		Remaining:     sub.Remaining(),
		Unlimited:     sub.Unlimited(),
		Expired:       ev.Expired,
		TrialEndsAt:   sub.TrialEndsAt,
		PackageEndsAt: sub.PackageEndsAt,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type lookupRequest struct {
	Type  lookup.IndicatorType `json:"type"`
	Value string               `json:"value"`
}

type lookupResponse struct {
	Result    *lookup.Result `json:"result"`
	Remaining int            `json:"remaining"`
}

type denyResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// LookupHandler is the metered partner endpoint. Exactly one quota unit is
// consumed per request, regardless of result content; a denial consumes
// nothing.
func (api *Api) LookupHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if !models.PermissionsFor(account.Role).CanSearch {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// Validate before consuming so a malformed request never burns a unit.
	if !lookup.ValidIndicator(req.Type, req.Value) {
		http.Error(w, "Invalid lookup indicator", http.StatusBadRequest)
		return
	}

	res, err := api.enforcer.CheckAndConsume(r.Context(), account.ID)
	if err != nil {
		http.Error(w, "Failed to check quota", http.StatusInternalServerError)
		return
	}
	if !res.Consumed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(denyResponse{Error: "lookup denied", Reason: string(res.Reason)})
		return
	}

	result, err := api.lookups.Check(req.Type, req.Value, !res.RealData)
	if err != nil {
		http.Error(w, "Invalid lookup indicator", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lookupResponse{Result: result, Remaining: res.Remaining})
}

type createSeatRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateEnterpriseUserHandler provisions a pooled seat under the calling
// admin. The seat carries no quota of its own; its lookups bill the admin.
func (api *Api) CreateEnterpriseUserHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createSeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !auth.ValidateEmail(req.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}
	if !auth.ValidatePassword(req.Password) {
		http.Error(w, "Password does not meet requirements", http.StatusBadRequest)
		return
	}

	seat, err := api.allowance.CanCreateUser(r.Context(), claims.AccountID)
	if err != nil {
		http.Error(w, "Failed to check seat allowance", http.StatusInternalServerError)
		return
	}
	if !seat.Allowed {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(denyResponse{Error: "seat creation denied", Reason: string(seat.Reason)})
		return
	}

	hashed, err := models.HashPassword(req.Password)
	if err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	apiToken, err := auth.NewAPIToken()
	if err != nil {
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	adminID := claims.AccountID
	account, err := api.Store.CreateAccount(r.Context(), req.Email, hashed, models.RoleEnterpriseUser, &adminID, apiToken)
	if err != nil {
		if database.IsUniqueViolation(err) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(accountToResponse(account, true))
}

// ListAccountsHandler returns all accounts for the admin panel.
func (api *Api) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := api.Store.ListAccounts(r.Context())
	if err != nil {
		http.Error(w, "Failed to list accounts", http.StatusInternalServerError)
		return
	}

	// Do not return password hashes
	for _, a := range accounts {
		a.Password = ""
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// ListPaymentsHandler returns the payment event log for the admin panel.
func (api *Api) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	events, err := api.Store.ListPaymentEvents(r.Context())
	if err != nil {
		http.Error(w, "Failed to list payments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
