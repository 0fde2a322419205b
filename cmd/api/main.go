package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/georgemunganga/shop-backend/internal/config"
	"github.com/georgemunganga/shop-backend/internal/events"
	"github.com/georgemunganga/shop-backend/internal/infra/memstore"
	"github.com/georgemunganga/shop-backend/internal/infra/mq"
	"github.com/georgemunganga/shop-backend/internal/infra/postgres"
	"github.com/georgemunganga/shop-backend/internal/infra/redis"
	"github.com/georgemunganga/shop-backend/internal/logging"
	"github.com/georgemunganga/shop-backend/internal/modules/auth"
	"github.com/georgemunganga/shop-backend/internal/modules/customer"
	"github.com/georgemunganga/shop-backend/internal/modules/inventory"
	"github.com/georgemunganga/shop-backend/internal/modules/order"
	"github.com/georgemunganga/shop-backend/internal/modules/payment"
)

func main() {
	app := &cli.App{
		Name:  "shop-api",
		Usage: "order management backend",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll back instead of applying"},
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to apply (0 = all)"},
				},
				Action: migrate,
			},
			{
				Name:  "create-admin",
				Usage: "create an administrator account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
				},
				Action: createAdmin,
			},
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logrus.WithError(err).Fatal("shop-api failed")
	}
}

// application holds everything wired from the configuration.
type application struct {
	cfg      *config.Config
	log      *logrus.Logger
	db       *postgres.DB
	closers  []func() error
	router   chi.Router
	customer customer.Service
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("shutdown")
		}
	}
}

func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	a := &application{cfg: cfg, log: log}

	var (
		customerRepo customer.Repository
		productRepo  inventory.Repository
		orderRepo    order.Repository
		invTx        inventory.Transactor
		orderTx      order.Transactor
		idempotency  order.IdempotencyStore
	)
	dispatcher := events.Fanout{events.NewLogDispatcher(log)}

	switch cfg.StorageDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
		customerRepo = customer.NewPostgresRepository(db)
		productRepo = inventory.NewPostgresRepository(db)
		orderRepo = order.NewPostgresRepository(db)
		invTx, orderTx = db, db
	default:
		store := memstore.New()
		customerRepo = customer.NewMemoryRepository(store)
		productRepo = inventory.NewMemoryRepository(store)
		orderRepo = order.NewMemoryRepository(store)
		invTx, orderTx = store, store
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.AMQPURL != "" {
		pub, err := mq.Dial(cfg.AMQPURL, cfg.EventExchange, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		dispatcher = append(dispatcher, pub)
	}

	if cfg.RedisAddr != "" {
		pool, err := redis.NewPool(cfg.RedisAddr, 10)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		idempotency = redis.NewIdempotencyStore(pool, cfg.IdempotencyTTL)
	} else {
		idempotency = order.NewMemoryIdempotencyStore()
	}

	stock := inventory.NewStock(productRepo, invTx)
	a.customer = customer.NewService(customerRepo)
	authService := auth.NewService(customerRepo, cfg.JWTSecret, cfg.JWTTTL)
	inventoryService := inventory.NewService(productRepo, stock, invTx, dispatcher, log.WithField("module", "inventory"), cfg.DefaultCurrency)
	orderService := order.NewService(order.Dependencies{
		Orders:          orderRepo,
		Customers:       customerRepo,
		Stock:           stock,
		Tx:              orderTx,
		Dispatcher:      dispatcher,
		Idempotency:     idempotency,
		Log:             log.WithField("module", "order"),
		DefaultCurrency: cfg.DefaultCurrency,
	})
	paymentService := payment.NewService(orderService, log.WithField("module", "payment"))

	customerHandler := customer.NewHandler(a.customer)
	authHandler := auth.NewHandler(authService)
	inventoryHandler := inventory.NewHandler(inventoryService)
	orderHandler := order.NewHandler(orderService)
	paymentHandler := payment.NewHandler(paymentService)

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	// ── Public ──────────────────────────────────────────────
	customerHandler.RegisterRoutes(router)
	authHandler.RegisterRoutes(router)
	inventoryHandler.RegisterRoutes(router)

	// ── Customers ───────────────────────────────────────────
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authService))
		orderHandler.RegisterRoutes(r)
	})

	// ── Administration ──────────────────────────────────────
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authService))
		r.Use(auth.RequireRole(customer.RoleAdmin))
		inventoryHandler.RegisterAdminRoutes(r)
		orderHandler.RegisterAdminRoutes(r)
		paymentHandler.RegisterRoutes(r)
	})

	a.router = router
	return a, nil
}

func serve(c *cli.Context) error {
	a, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.WithField("addr", srv.Addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	case <-c.Context.Done():
	}

	a.log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Wrap(srv.Shutdown(ctx), "graceful shutdown")
}

func migrate(c *cli.Context) error {
	a, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer a.close()
	if a.db == nil {
		return errors.New("migrate requires STORAGE_DRIVER=postgres")
	}
	return a.db.Migrate(c.Bool("down"), c.Int("steps"))
}

func createAdmin(c *cli.Context) error {
	a, err := bootstrap(c.Context)
	if err != nil {
		return err
	}
	defer a.close()
	admin, err := a.customer.CreateAdmin(c.Context, c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	a.log.WithField("customer_id", admin.ID).Info("admin created")
	return nil
}
