package payment

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/models"
)

// ErrSessionNotPaid is returned by VerifySession when the checkout session
// exists but the provider has not confirmed payment yet.
var ErrSessionNotPaid = errors.New("checkout session not paid")

// CheckoutParams describes the purchase a checkout session is created for.
// The purchase details travel in the session metadata and come back on the
// webhook, so the webhook handler never needs local state to interpret a
// confirmation.
type CheckoutParams struct {
	AccountID           string
	EnterpriseRequestID string
	AdminEmail          string
	Kind                models.PaymentEventKind
	AmountCents         int64
	Currency            string
	Credits             int
	PackageSearches     int
	PackageDays         int
	Description         string
}

// StripeClient wraps the Stripe checkout and webhook APIs.
type StripeClient struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeClient configures the global Stripe key and returns a client.
func NewStripeClient(cfg *config.Config) *StripeClient {
	stripe.Key = cfg.Stripe.SecretKey
	return &StripeClient{
		webhookSecret: cfg.Stripe.WebhookSecret,
		successURL:    cfg.Stripe.SuccessURL,
		cancelURL:     cfg.Stripe.CancelURL,
	}
}

// CreateCheckoutSession starts a one-time payment checkout session and
// returns its id and the hosted payment page URL.
func (c *StripeClient) CreateCheckoutSession(p CheckoutParams) (id, url string, err error) {
	currency := p.Currency
	if currency == "" {
		currency = "usd"
	}
	description := p.Description
	if description == "" {
		description = fmt.Sprintf("FraudLens %s purchase", p.Kind)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
	}

	params.AddMetadata("kind", string(p.Kind))
	if p.AccountID != "" {
		params.AddMetadata("account_id", p.AccountID)
	}
	if p.EnterpriseRequestID != "" {
		params.AddMetadata("enterprise_request_id", p.EnterpriseRequestID)
	}
	if p.AdminEmail != "" {
		params.AddMetadata("admin_email", p.AdminEmail)
	}
	if p.Credits > 0 {
		params.AddMetadata("credits", strconv.Itoa(p.Credits))
	}
	if p.PackageSearches > 0 {
		params.AddMetadata("package_searches", strconv.Itoa(p.PackageSearches))
	}
	if p.PackageDays > 0 {
		params.AddMetadata("package_days", strconv.Itoa(p.PackageDays))
	}

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// VerifySession fetches a checkout session from the provider and, if paid,
// returns the payment event it encodes. This is the client-return path; it
// feeds the same processor as the webhook, so double application is impossible.
func (c *StripeClient) VerifySession(sessionID string) (Event, error) {
	sess, err := session.Get(sessionID, nil)
	if err != nil {
		return Event{}, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return Event{}, ErrSessionNotPaid
	}
	return EventFromSession(sess)
}

// ConstructWebhookEvent verifies the webhook signature and parses the event.
// Callers must reject the request before reading any payload field when this
// returns an error.
func (c *StripeClient) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(
		payload,
		sigHeader,
		c.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
}

// EventFromSession decodes the purchase metadata stamped at checkout time
// back into a processor event.
func EventFromSession(sess *stripe.CheckoutSession) (Event, error) {
	kind := models.PaymentEventKind(sess.Metadata["kind"])

	ev := Event{
		SessionID:           sess.ID,
		AccountID:           sess.Metadata["account_id"],
		EnterpriseRequestID: sess.Metadata["enterprise_request_id"],
		AdminEmail:          sess.Metadata["admin_email"],
		Kind:                kind,
		AmountCents:         sess.AmountTotal,
		Currency:            string(sess.Currency),
	}

	var err error
	if raw := sess.Metadata["credits"]; raw != "" {
		if ev.Credits, err = strconv.Atoi(raw); err != nil {
			return Event{}, fmt.Errorf("invalid credits metadata %q: %w", raw, err)
		}
	}
	if raw := sess.Metadata["package_searches"]; raw != "" {
		if ev.PackageSearches, err = strconv.Atoi(raw); err != nil {
			return Event{}, fmt.Errorf("invalid package_searches metadata %q: %w", raw, err)
		}
	}
	if raw := sess.Metadata["package_days"]; raw != "" {
		if ev.PackageDays, err = strconv.Atoi(raw); err != nil {
			return Event{}, fmt.Errorf("invalid package_days metadata %q: %w", raw, err)
		}
	}

	if verr := ev.Validate(); verr != nil {
		return Event{}, verr
	}
	return ev, nil
}
