package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campusmart/campusmart-backend/api/controllers"
	"github.com/campusmart/campusmart-backend/api/middleware"
	"github.com/campusmart/campusmart-backend/internal/checkout"
	"github.com/campusmart/campusmart-backend/internal/disputes"
	"github.com/campusmart/campusmart-backend/internal/ledger"
	"github.com/campusmart/campusmart-backend/internal/notifications"
	"github.com/campusmart/campusmart-backend/internal/orders"
	"github.com/campusmart/campusmart-backend/pkg/auth"
	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/enums"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	pkgredis "github.com/campusmart/campusmart-backend/pkg/redis"
)

// Dependencies is everything the HTTP surface needs. Nil services answer
// with an INTERNAL envelope; nil stores disable idempotency and rate limits.
type Dependencies struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Metrics  http.Handler
	Verifier *auth.Verifier
	Resolver middleware.IdentityResolver

	Idempotency pkgredis.IdempotencyStore
	RateCounter middleware.RateCounter

	Checkout      checkout.Service
	Orders        orders.Service
	Disputes      disputes.Service
	Ledger        ledger.Service
	Notifications notifications.Service
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL, cfg.App.IsDev()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	verifyPolicy := middleware.RateLimitPolicy{
		Name:   "payments_verify",
		Window: cfg.Paystack.VerifyRateWindow,
		Limit:  cfg.Paystack.VerifyRateLimit,
	}
	r.With(middleware.RateLimit(verifyPolicy, deps.RateCounter, logg)).
		Get("/payments/verify", controllers.PaymentsVerify(deps.Checkout, cfg.App.FrontendURL, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(deps.Verifier, deps.Resolver, logg),
			middleware.Idempotency(deps.Idempotency, logg),
		)

		r.Post("/checkout", controllers.CheckoutInitialize(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Post("/confirm-delivery", controllers.ConfirmDelivery(deps.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.Orders, logg))
		})

		r.Route("/riders", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleRider))
			r.Post("/accept-order", controllers.RiderAcceptOrder(deps.Orders, logg))
			r.Post("/update-status", controllers.RiderUpdateStatus(deps.Orders, logg))
			r.Post("/dispute-picked-up", controllers.RiderDisputePickedUp(deps.Disputes, logg))
			r.Get("/available-orders", controllers.RiderAvailableOrders(deps.Orders, logg))
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", controllers.ListMyDisputes(deps.Disputes, logg))
			r.Post("/", controllers.OpenDispute(deps.Disputes, logg))
			r.Get("/{disputeId}", controllers.GetDispute(deps.Disputes, logg))
			r.Get("/{disputeId}/messages", controllers.ListDisputeMessages(deps.Disputes, logg))
			r.Post("/{disputeId}/messages", controllers.PostDisputeMessage(deps.Disputes, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalances(deps.Ledger, logg))
			r.Get("/transactions", controllers.WalletTransactions(deps.Ledger, logg))
			r.Post("/withdrawals", controllers.WalletWithdraw(deps.Ledger, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/disputes", controllers.AdminListDisputes(deps.Disputes, logg))
			r.Get("/disputes/{disputeId}", controllers.GetDispute(deps.Disputes, logg))
			r.Post("/disputes/{disputeId}/resolve", controllers.AdminResolveDispute(deps.Disputes, logg))
			r.Post("/disputes/{disputeId}/pickup", controllers.AdminDisputePickup(deps.Disputes, logg))
			r.Post("/orders/{orderId}/cancel", controllers.AdminCancelOrder(deps.Orders, logg))
			r.Get("/ledger/{userId}/reconcile", controllers.AdminReconcileLedger(deps.Ledger, logg))
		})
	})

	return r
}
