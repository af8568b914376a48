package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/stripe/stripe-go/v79"

	"github.com/FraudLens-io/fraudlens/internal/models"
	"github.com/FraudLens-io/fraudlens/internal/payment"
)

// maxWebhookBytes bounds the webhook body read.
const maxWebhookBytes = int64(65536)

type checkoutRequest struct {
	Kind            models.PaymentEventKind `json:"kind"`
	AmountCents     int64                   `json:"amount_cents"`
	Currency        string                  `json:"currency"`
	Credits         int                     `json:"credits"`
	PackageSearches int                     `json:"package_searches"`
	PackageDays     int                     `json:"package_days"`
}

// CheckoutHandler starts a checkout session for a credits or package
// purchase by the authenticated account.
func (api *Api) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Kind != models.PaymentKindCredits && req.Kind != models.PaymentKindPackage {
		http.Error(w, "Kind must be credits or package", http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	id, url, err := api.provider.CreateCheckoutSession(payment.CheckoutParams{
		AccountID:       claims.AccountID,
		Kind:            req.Kind,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		Credits:         req.Credits,
		PackageSearches: req.PackageSearches,
		PackageDays:     req.PackageDays,
	})
	if err != nil {
		log.Printf("[API] checkout session failed for %s: %v", claims.AccountID, err)
		http.Error(w, "Failed to create checkout session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"session_id": id, "url": url})
}

// VerifySessionHandler is the client-return path: the browser lands back with
// a session id and we confirm payment directly with the provider. It feeds
// the same processor as the webhook, so whichever path runs second observes
// already-applied.
func (api *Api) VerifySessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	ev, err := api.provider.VerifySession(sessionID)
	if errors.Is(err, payment.ErrSessionNotPaid) {
		http.Error(w, "Payment not completed", http.StatusPaymentRequired)
		return
	}
	if err != nil {
		log.Printf("[API] session verification failed for %s: %v", sessionID, err)
		http.Error(w, "Failed to verify session", http.StatusBadRequest)
		return
	}

	outcome, err := api.processor.Handle(r.Context(), ev)
	if err != nil {
		log.Printf("[API] payment processing failed for %s: %v", sessionID, err)
		http.Error(w, "Failed to process payment", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"outcome": outcome.String()})
}

// StripeWebhookHandler is the provider notification path. The signature is
// verified before anything else; a mismatch gets a 400 with no side effects.
// Processing failures return 500 so the provider redelivers, which is safe
// because the processor is idempotent per session.
func (api *Api) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	event, err := api.provider.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Printf("[API] webhook signature verification failed: %v", err)
		http.Error(w, "Signature verification failed", http.StatusBadRequest)
		return
	}

	api.archiver.ArchivePayload(r.Context(), event.ID, body)

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("[API] webhook session unmarshal failed: %v", err)
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		ev, err := payment.EventFromSession(&sess)
		if err != nil {
			log.Printf("[API] webhook session %s rejected: %v", sess.ID, err)
			http.Error(w, "Invalid session metadata", http.StatusBadRequest)
			return
		}

		if _, err := api.processor.Handle(r.Context(), ev); err != nil {
			log.Printf("[API] webhook processing failed for %s: %v", sess.ID, err)
			http.Error(w, "Failed to process payment", http.StatusInternalServerError)
			return
		}

	default:
		log.Printf("[API] ignoring webhook event type %s", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

type enterpriseRequestBody struct {
	AdminEmail        string `json:"admin_email"`
	AllowanceSearches int    `json:"allowance_searches"`
	AllowanceUsers    int    `json:"allowance_users"`
	AmountCents       int64  `json:"amount_cents"`
	Currency          string `json:"currency"`
}

// CreateEnterpriseRequestHandler records an enterprise funding request and
// starts its checkout session. The request can be paid before the admin
// account exists; provisioning picks the allowance up later.
func (api *Api) CreateEnterpriseRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req enterpriseRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.AdminEmail == "" || req.AllowanceSearches <= 0 || req.AllowanceUsers <= 0 {
		http.Error(w, "admin_email, allowance_searches and allowance_users are required", http.StatusBadRequest)
		return
	}
	if req.AmountCents <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}

	request, err := api.Store.CreateEnterpriseRequest(r.Context(), req.AdminEmail, req.AllowanceSearches, req.AllowanceUsers)
	if err != nil {
		http.Error(w, "Failed to create enterprise request", http.StatusInternalServerError)
		return
	}

	id, url, err := api.provider.CreateCheckoutSession(payment.CheckoutParams{
		EnterpriseRequestID: request.ID,
		AdminEmail:          req.AdminEmail,
		Kind:                models.PaymentKindEnterprise,
		AmountCents:         req.AmountCents,
		Currency:            req.Currency,
	})
	if err != nil {
		log.Printf("[API] enterprise checkout failed for request %s: %v", request.ID, err)
		http.Error(w, "Failed to create checkout session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"request_id": request.ID,
		"session_id": id,
		"url":        url,
	})
}
