package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/stripe/stripe-go/v79"

	"github.com/FraudLens-io/fraudlens/internal/archive"
	"github.com/FraudLens-io/fraudlens/internal/auth"
	"github.com/FraudLens-io/fraudlens/internal/config"
	"github.com/FraudLens-io/fraudlens/internal/database"
	"github.com/FraudLens-io/fraudlens/internal/lookup"
	"github.com/FraudLens-io/fraudlens/internal/notify"
	"github.com/FraudLens-io/fraudlens/internal/payment"
	"github.com/FraudLens-io/fraudlens/internal/quota"
)

// PaymentProvider is the slice of the payment client the handlers need.
type PaymentProvider interface {
	CreateCheckoutSession(p payment.CheckoutParams) (id, url string, err error)
	VerifySession(sessionID string) (payment.Event, error)
	ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type Api struct {
	Config *config.Config
	Store  *database.Store
	Router *chi.Mux

	sessionTTL time.Duration
	tokens     *auth.TokenManager
	ledger     *quota.Ledger
	monitor    *quota.Monitor
	enforcer   *quota.Enforcer
	allowance  *quota.AllowanceResolver
	processor  *payment.Processor
	provider   PaymentProvider
	archiver   archive.Archiver
	lookups    *lookup.Service
}

// NewApi wires the API over an opened store. The provider and archiver are
// injected so tests can substitute them.
func NewApi(cfg *config.Config, store *database.Store, provider PaymentProvider, archiver archive.Archiver) (*Api, error) {
	if archiver == nil {
		archiver = archive.NopArchiver{}
	}

	sessionTTL := 24 * time.Hour
	if cfg.Auth.SessionDuration != "" {
		d, err := time.ParseDuration(cfg.Auth.SessionDuration)
		if err != nil {
			return nil, fmt.Errorf("invalid session duration %q: %w", cfg.Auth.SessionDuration, err)
		}
		sessionTTL = d
	}

	notifier := notify.LogNotifier{}
	ledger := quota.NewLedger(store)
	monitor := quota.NewMonitor(store, notifier)

	api := &Api{
		Config:     cfg,
		Store:      store,
		Router:     chi.NewRouter(),
		sessionTTL: sessionTTL,
		tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret),
		ledger:     ledger,
		monitor:    monitor,
		enforcer:   quota.NewEnforcer(store, ledger, monitor, notifier),
		allowance:  quota.NewAllowanceResolver(store, monitor),
		processor:  payment.NewProcessor(store, ledger),
		provider:   provider,
		archiver:   archiver,
		lookups:    lookup.NewService(),
	}

	api.setupRoutes()
	return api, nil
}

func (api *Api) setupRoutes() {
	r := api.Router
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Heartbeat("/heartbeat"))

	// Public routes
	r.Post("/auth/register", api.RegisterHandler)
	r.Post("/auth/login", api.LoginHandler)
	r.Post("/webhooks/stripe", api.StripeWebhookHandler)
	r.Post("/enterprise/requests", api.CreateEnterpriseRequestHandler)

	// Partner API, authenticated by opaque API token
	r.Group(func(r chi.Router) {
		r.Use(api.PartnerAuthMiddleware)
		r.Post("/v1/lookups", api.LookupHandler)
	})

	// First-party routes, authenticated by JWT session token
	r.Group(func(r chi.Router) {
		r.Use(api.SessionAuthMiddleware)
		r.Post("/auth/token/rotate", api.RotateTokenHandler)
		r.Get("/account/status", api.AccountStatusHandler)
		r.Post("/billing/checkout", api.CheckoutHandler)
		r.Get("/billing/verify", api.VerifySessionHandler)
		r.Post("/enterprise/users", api.CreateEnterpriseUserHandler)

		r.Group(func(r chi.Router) {
			r.Use(api.RequireAdminPanel)
			r.Get("/admin/accounts", api.ListAccountsHandler)
			r.Get("/admin/payments", api.ListPaymentsHandler)
		})
	})
}

// Serve runs the HTTP server with CORS in front of the router.
func (api *Api) Serve() error {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "https://*.fraudlens.io"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", api.Router)

	addr := fmt.Sprintf(":%d", api.Config.APIPort)
	log.Printf("[API] listening on %s", addr)
	return http.ListenAndServe(addr, r)
}
