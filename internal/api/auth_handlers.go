package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/FraudLens-io/fraudlens/internal/auth"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountResponse struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	APIAuthToken string      `json:"api_auth_token,omitempty"`
}

func accountToResponse(a *models.Account, includeToken bool) accountResponse {
	resp := accountResponse{ID: a.ID, Email: a.Email, Role: a.Role}
	if includeToken {
		resp.APIAuthToken = a.APIAuthToken
	}
	return resp
}

// RegisterHandler creates an account on the free trial. If a paid enterprise
// funding request already exists for the email, the account is provisioned as
// its admin and the deferred allowance is applied immediately.
func (api *Api) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !auth.ValidateEmail(creds.Email) {
		http.Error(w, "Invalid email format", http.StatusBadRequest)
		return
	}

	if !auth.ValidatePassword(creds.Password) {
		http.Error(w, "Password does not meet requirements", http.StatusBadRequest)
		return
	}

	hashed, err := models.HashPassword(creds.Password)
	if err != nil {
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	apiToken, err := auth.NewAPIToken()
	if err != nil {
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	role := models.RoleIndividual
	pending, err := api.Store.LatestPaidEnterpriseRequest(r.Context(), creds.Email)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}
	if pending != nil {
		role = models.RoleEnterpriseAdmin
	}

	account, err := api.Store.CreateAccount(r.Context(), creds.Email, hashed, role, nil, apiToken)
	if err != nil {
		if database.IsUniqueViolation(err) {
			http.Error(w, "Email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	if role == models.RoleEnterpriseAdmin {
		if err := api.processor.ApplyPendingAllowance(r.Context(), account); err != nil {
			log.Printf("[API] failed to apply pending allowance for %s: %v", account.ID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(accountToResponse(account, true))
}

// LoginHandler verifies credentials and issues a JWT session token.
func (api *Api) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	account, err := api.Store.GetAccountByEmail(r.Context(), creds.Email)
	if err != nil || !account.ValidatePassword(creds.Password) {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	// An admin stuck on trial defaults means the deferred allowance was
	// never installed (registration logs and continues on that failure).
	// Re-derive it here so the account heals on its next login.
	if account.Role == models.RoleEnterpriseAdmin && account.Subscription.Type != models.SubscriptionEnterprisePackage {
		if err := api.processor.ApplyPendingAllowance(r.Context(), account); err != nil {
			log.Printf("[API] failed to apply pending allowance for %s: %v", account.ID, err)
		}
	}

	token, err := api.tokens.GenerateToken(account, api.sessionTTL)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":   token,
		"account": accountToResponse(account, false),
	})
}

// RotateTokenHandler replaces the caller's partner API token. The old token
// stops working as soon as the update lands.
func (api *Api) RotateTokenHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	newToken, err := auth.NewAPIToken()
	if err != nil {
		http.Error(w, "Failed to rotate token", http.StatusInternalServerError)
		return
	}

	if err := api.Store.RotateAPIToken(r.Context(), claims.AccountID, newToken); err != nil {
		http.Error(w, "Failed to rotate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"api_auth_token": newToken})
}
