package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/payment"
)

const testWebhookSecret = "whsec_test_secret"

// fakeProvider satisfies PaymentProvider without network calls. Webhook
// signature verification is the real implementation so the reject-closed
// behavior is exercised.
type fakeProvider struct {
	sessions map[string]payment.Event
	created  []payment.CheckoutParams
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]payment.Event)}
}

func (f *fakeProvider) CreateCheckoutSession(p payment.CheckoutParams) (string, string, error) {
	f.created = append(f.created, p)
	id := fmt.Sprintf("cs_fake_%d", len(f.created))
	return id, "https://checkout.example.com/" + id, nil
}

func (f *fakeProvider) VerifySession(sessionID string) (payment.Event, error) {
	ev, ok := f.sessions[sessionID]
	if !ok {
		return payment.Event{}, payment.ErrSessionNotPaid
	}
	return ev, nil
}

func (f *fakeProvider) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, testWebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

func newTestApi(t *testing.T) (*Api, *fakeProvider) {
	t.Helper()

	cfg := &config.Config{APIPort: 0}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Auth.JWTSecret = "test-jwt-secret"
	cfg.Auth.SessionDuration = "1h"
	cfg.Stripe.WebhookSecret = testWebhookSecret

	store, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	provider := newFakeProvider()
	api, err := NewApi(cfg, store, provider, nil)
	require.NoError(t, err)
	return api, provider
}

func doJSON(t *testing.T, api *Api, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

// signWebhookPayload produces a Stripe-Signature header for the payload using
// the provider's documented scheme: v1 = HMAC-SHA256(secret, "t.payload").
func signWebhookPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

// checkoutCompletedPayload builds a checkout.session.completed webhook body.
func checkoutCompletedPayload(t *testing.T, sessionID string, metadata map[string]string, amountCents int64) []byte {
	t.Helper()

	payload, err := json.Marshal(map[string]interface{}{
		"id":   "evt_" + sessionID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":           sessionID,
				"object":       "checkout.session",
				"amount_total": amountCents,
				"currency":     "usd",
				"metadata":     metadata,
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func postWebhook(t *testing.T, api *Api, payload []byte, sigHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", sigHeader)

	rec := httptest.NewRecorder()
	api.Router.ServeHTTP(rec, req)
	return rec
}
