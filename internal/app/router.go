package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tokoflow/tokoflow/internal/accounting"
	"github.com/tokoflow/tokoflow/internal/allocation"
	"github.com/tokoflow/tokoflow/internal/chat"
	"github.com/tokoflow/tokoflow/internal/customers"
	"github.com/tokoflow/tokoflow/internal/delivery"
	"github.com/tokoflow/tokoflow/internal/inventory"
	"github.com/tokoflow/tokoflow/internal/invoicing"
	"github.com/tokoflow/tokoflow/internal/orders"
	"github.com/tokoflow/tokoflow/internal/otp"
	"github.com/tokoflow/tokoflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AccountingHandler *accounting.Handler
	InventoryHandler  *inventory.Handler
	AllocationHandler *allocation.Handler
	OrdersHandler     *orders.Handler
	InvoicingHandler  *invoicing.Handler
	CustomersHandler  *customers.Handler
	DeliveryHandler   *delivery.Handler
	ChatHandler       *chat.Handler
	OTPHandler        *otp.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with the default middleware chain
// and every module mounted under /api/v1.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(api chi.Router) {
		params.InventoryHandler.MountRoutes(api)
		params.AllocationHandler.MountRoutes(api)
		params.OrdersHandler.MountRoutes(api)
		params.InvoicingHandler.MountRoutes(api)
		params.AccountingHandler.MountRoutes(api)
		params.CustomersHandler.MountRoutes(api)
		params.DeliveryHandler.MountRoutes(api)
		params.ChatHandler.MountRoutes(api)
		params.OTPHandler.MountRoutes(api)
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(api)
		}
	})

	return r
}
