package router

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/servizo/api/internal/config"
	"github.com/servizo/api/internal/database"
	"github.com/servizo/api/internal/enum"
	"github.com/servizo/api/internal/handler"
	mw "github.com/servizo/api/internal/middleware"
	"github.com/servizo/api/internal/payment"
	"github.com/servizo/api/internal/service"
	"github.com/servizo/api/internal/ws"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// New creates a Chi router with all application routes wired up.
// Applies authentication and role-based middleware as needed.
func New(cfg *config.Config, pool *pgxpool.Pool, hub *ws.Hub, gateway *payment.Stripe) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return servertiming.Middleware(next, nil)
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Server-Timing"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Services
	publisher := ws.NewPublisher(hub)
	categoryService := service.NewCategoryService(pool, func(db database.DBTX) service.CategoryStore {
		return database.New(db)
	})
	menuService := service.NewMenuService(pool, func(db database.DBTX) service.MenuStore {
		return database.New(db)
	})
	orderService := service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, publisher)
	tableService := service.NewTableService(pool, func(db database.DBTX) service.TableStore {
		return database.New(db)
	}, publisher)
	paymentService := service.NewPaymentService(pool, func(db database.DBTX) service.PaymentStore {
		return database.New(db)
	}, gateway, cfg.Currency, publisher)
	userService := service.NewUserService(pool, func(db database.DBTX) service.UserStore {
		return database.New(db)
	})
	queries := database.New(pool)

	// Handlers
	authHandler := handler.NewAuthHandler(queries, userService, cfg.JWTSecret)
	categoryHandler := handler.NewCategoryHandler(categoryService)
	menuHandler := handler.NewMenuHandler(menuService, categoryService)
	orderHandler := handler.NewOrderHandler(orderService)
	tableHandler := handler.NewTableHandler(tableService)
	paymentHandler := handler.NewPaymentHandler(paymentService, gateway, cfg.StripePublishableKey, cfg.Currency)
	userHandler := handler.NewUserHandler(queries, userService, menuService)
	reportsHandler := handler.NewReportsHandler(queries, reportLocation(cfg.Timezone))

	// Public routes
	r.Get("/health", handler.Health(pool, Version))
	authHandler.RegisterRoutes(r)
	categoryHandler.RegisterPublicRoutes(r)
	menuHandler.RegisterPublicRoutes(r)
	paymentHandler.RegisterPublicRoutes(r)

	// Guests follow their own table without an account.
	r.Get("/ws/tables/{num}", ws.ServeTable(hub))

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		userHandler.RegisterMeRoutes(r)
		orderHandler.RegisterRoutes(r)
		paymentHandler.RegisterRoutes(r)

		// Floor staff
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleWaiter, enum.UserRoleManager, enum.UserRoleAdmin))
			r.Get("/ws/orders", ws.ServeOrders(hub))
			orderHandler.RegisterStaffRoutes(r)
			tableHandler.RegisterStaffRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleWaiter))
			userHandler.RegisterShiftRoutes(r)
		})

		// Catalog and floor management
		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleManager, enum.UserRoleAdmin))
			r.Route("/categories", categoryHandler.RegisterRoutes)
			r.Route("/items", menuHandler.RegisterRoutes)
			tableHandler.RegisterManagerRoutes(r)
			orderHandler.RegisterManagerRoutes(r)
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			r.Route("/users", userHandler.RegisterRoutes)
		})
	})

	log.Println("Router initialized with all handlers")
	return r
}

func reportLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("WARN: unknown TIMEZONE %q, reports use UTC: %v", name, err)
		return time.UTC
	}
	return loc
}
