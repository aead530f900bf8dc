package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/cache"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/keyvault"
	"github.com/keymint/keymint/internal/mailer"
	"github.com/keymint/keymint/internal/payment"
	"github.com/keymint/keymint/internal/pricing"
	"github.com/keymint/keymint/internal/repository"
	appvalidator "github.com/keymint/keymint/internal/validator"
	"github.com/keymint/keymint/internal/vcs"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/riandyrn/otelchi"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
)

var (
	version = vcs.Version()
)

type Application struct {
	config    Config
	logger    *slog.Logger
	db        *pgxpool.Pool
	redis     redis.UniversalClient
	validator *validator.Validate
	mailer    mailer.Mailer
	sealer    *keyvault.Sealer
	pricer    *pricing.Resolver

	cartRepo     domain.CartRepository
	productRepo  domain.ProductRepository
	checkoutRepo domain.CheckoutRepository
	orderRepo    domain.OrderRepository
	keyPoolRepo  domain.KeyPoolRepository
	walletRepo   domain.WalletRepository

	gateways map[domain.Gateway]domain.PaymentGateway
}

type Config struct {
	Port             int
	Env              string
	DB               DBConfig
	Redis            RedisConfig
	Cache            CacheConfig
	SMTP             SMTPConfig
	PayPal           PayPalConfig
	Stripe           StripeConfig
	Fees             FeesConfig
	KeyVaultKey      string
	OtelCollectorUrl string
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type CacheConfig struct {
	TTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type PayPalConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type FeesConfig struct {
	Percent string
	Flat    string
}

func Run() error {
	var cfg Config

	flag.IntVar(&cfg.Port, "port", 3000, "server port")
	flag.StringVar(&cfg.Env, "env", "dev", "Environment (dev|staging|prod)")

	flag.StringVar(&cfg.DB.DSN, "db-dsn", "", "PostgreSQL DSN")
	flag.IntVar(&cfg.DB.MaxOpenConns, "db-max-open-conns", 25, "PostgreSQL max open connections")
	flag.DurationVar(&cfg.DB.MaxIdleTime, "db-max-idle-time", 15*time.Minute, "PostgreSQL max idle time for connections")

	flag.StringVar(&cfg.Redis.URL, "redis-url", "", "Redis URL")
	flag.IntVar(&cfg.Redis.MaxOpenConns, "redis-max-open-conns", 25, "Redis max open connections")
	flag.IntVar(&cfg.Redis.MaxIdleConns, "redis-max-idle-conns", 10, "Redis max idle connections")
	flag.DurationVar(&cfg.Redis.MaxIdleTime, "redis-max-idle-time", 2*time.Minute, "Redis max idle time for connections")

	flag.DurationVar(&cfg.Cache.TTL, "cache-ttl", time.Minute, "Pricing cache TTL")

	flag.StringVar(&cfg.SMTP.Host, "smtp-host", "sandbox.smtp.mailtrap.io", "SMTP host")
	flag.IntVar(&cfg.SMTP.Port, "smtp-port", 2525, "SMTP port")
	flag.StringVar(&cfg.SMTP.Username, "smtp-username", "", "SMTP username")
	flag.StringVar(&cfg.SMTP.Password, "smtp-password", "", "SMTP password")
	flag.StringVar(&cfg.SMTP.Sender, "smtp-sender", "KeyMint <no-reply@keymint.io>", "SMTP sender")

	flag.StringVar(&cfg.PayPal.BaseURL, "paypal-base-url", "https://api-m.sandbox.paypal.com", "PayPal API base URL")
	flag.StringVar(&cfg.PayPal.ClientID, "paypal-client-id", "", "PayPal client id")
	flag.StringVar(&cfg.PayPal.ClientSecret, "paypal-client-secret", "", "PayPal client secret")
	flag.StringVar(&cfg.PayPal.WebhookSecret, "paypal-webhook-secret", "", "PayPal webhook secret")

	flag.StringVar(&cfg.Stripe.SecretKey, "stripe-key", "", "Stripe secret key")
	flag.StringVar(&cfg.Stripe.WebhookSecret, "stripe-webhook-secret", "", "Stripe webhook secret")
	flag.StringVar(&cfg.Stripe.SuccessURL, "stripe-success-url", "https://example.com/success.html", "Stripe payment success page")
	flag.StringVar(&cfg.Stripe.CancelURL, "stripe-cancel-url", "https://example.com/cancel.html", "Stripe payment cancel page")

	flag.StringVar(&cfg.Fees.Percent, "fee-percent", "3", "Handling fee percentage of the discounted total")
	flag.StringVar(&cfg.Fees.Flat, "fee-flat", "0.30", "Flat handling fee amount")

	flag.StringVar(&cfg.KeyVaultKey, "keyvault-key", "", "Hex-encoded 256-bit key for license payload encryption")
	flag.StringVar(&cfg.OtelCollectorUrl, "otel-collector-url", "", "OpenTelemetry collector URL")

	displayVersion := flag.Bool("version", false, "Display version and exit")

	flag.Parse()

	if *displayVersion {
		fmt.Printf("Version:\t%s\n", version)
		os.Exit(0)
	}

	stripe.Key = cfg.Stripe.SecretKey

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	feePolicy, err := parseFeePolicy(cfg)
	if err != nil {
		return err
	}

	sealer, err := keyvault.NewSealer(cfg.KeyVaultKey)
	if err != nil {
		return err
	}

	db, err := NewDatabasePool(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := NewRedisClient(cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	pricingCache := cache.NewRedisCache(redisClient, cfg.Cache.TTL)

	flashDealRepo := repository.NewPostgresFlashDealRepository(db)
	trendingOfferRepo := repository.NewPostgresTrendingOfferRepository(db)
	bundleDealRepo := repository.NewPostgresBundleDealRepository(db)
	couponRepo := repository.NewPostgresCouponRepository(db)
	subscriptionRepo := repository.NewPostgresSubscriptionRepository(db)

	pricer := pricing.NewResolver(
		flashDealRepo,
		trendingOfferRepo,
		bundleDealRepo,
		couponRepo,
		subscriptionRepo,
		pricingCache,
		feePolicy,
	)

	app := NewApp(
		cfg,
		logger,
		db,
		redisClient,
		appvalidator.NewValidator(),
		mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender),
		sealer,
		pricer,
		repository.NewRedisCartRepository(redisClient),
		repository.NewPostgresProductRepository(db),
		repository.NewPostgresCheckoutRepository(db),
		repository.NewPostgresOrderRepository(db),
		repository.NewPostgresKeyPoolRepository(db),
		repository.NewPostgresWalletRepository(db),
		newGateways(cfg),
	)

	shutdownTelemetry, err := app.InitTelemetry()
	if err != nil {
		return err
	}
	defer shutdownTelemetry(context.Background())

	return app.run()
}

func NewApp(
	cfg Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	redisClient redis.UniversalClient,
	v *validator.Validate,
	m mailer.Mailer,
	sealer *keyvault.Sealer,
	pricer *pricing.Resolver,
	cartRepo domain.CartRepository,
	productRepo domain.ProductRepository,
	checkoutRepo domain.CheckoutRepository,
	orderRepo domain.OrderRepository,
	keyPoolRepo domain.KeyPoolRepository,
	walletRepo domain.WalletRepository,
	gateways map[domain.Gateway]domain.PaymentGateway) *Application {

	return &Application{
		config:       cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		validator:    v,
		mailer:       m,
		sealer:       sealer,
		pricer:       pricer,
		cartRepo:     cartRepo,
		productRepo:  productRepo,
		checkoutRepo: checkoutRepo,
		orderRepo:    orderRepo,
		keyPoolRepo:  keyPoolRepo,
		walletRepo:   walletRepo,
		gateways:     gateways,
	}
}

func parseFeePolicy(cfg Config) (pricing.FeePolicy, error) {
	percent, err := decimal.NewFromString(cfg.Fees.Percent)
	if err != nil {
		return pricing.FeePolicy{}, fmt.Errorf("invalid fee-percent %q: %w", cfg.Fees.Percent, err)
	}

	flat, err := decimal.NewFromString(cfg.Fees.Flat)
	if err != nil {
		return pricing.FeePolicy{}, fmt.Errorf("invalid fee-flat %q: %w", cfg.Fees.Flat, err)
	}

	return pricing.FeePolicy{Percent: percent, Flat: flat}, nil
}

func newGateways(cfg Config) map[domain.Gateway]domain.PaymentGateway {
	gateways := make(map[domain.Gateway]domain.PaymentGateway)

	if cfg.PayPal.ClientID != "" {
		gateways[domain.GatewayPayPal] = payment.NewPayPalGateway(
			cfg.PayPal.BaseURL,
			cfg.PayPal.ClientID,
			cfg.PayPal.ClientSecret,
			cfg.PayPal.WebhookSecret,
		)
	}

	if cfg.Stripe.SecretKey != "" {
		gateways[domain.GatewayStripe] = payment.NewStripeGateway(
			cfg.Stripe.WebhookSecret,
			cfg.Stripe.SuccessURL,
			cfg.Stripe.CancelURL,
		)
	}

	return gateways
}

func NewRedisClient(cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Redis.URL,
		MaxIdleConns:    cfg.Redis.MaxIdleConns,
		MaxActiveConns:  cfg.Redis.MaxOpenConns,
		ConnMaxIdleTime: cfg.Redis.MaxIdleTime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := rdb.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	err = redisotel.InstrumentTracing(rdb)
	if err != nil {
		return nil, err
	}

	err = redisotel.InstrumentMetrics(rdb)
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func NewDatabasePool(cfg Config) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(cfg.DB.DSN)
	if err != nil {
		return nil, err
	}

	config.MaxConnIdleTime = cfg.DB.MaxIdleTime
	config.MaxConns = int32(cfg.DB.MaxOpenConns)
	config.ConnConfig.Tracer = otelpgx.NewTracer()

	db, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err = db.Ping(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (app *Application) run() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", app.config.Port),
		Handler:      app.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(app.logger.Handler(), slog.LevelDebug),
	}

	shutdownError := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		app.logger.Info("shutting down server", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)
		if err != nil {
			shutdownError <- err
		}

		shutdownError <- nil
	}()

	app.logger.Info("starting server", "addr", srv.Addr, "env", app.config.Env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdownError
	if err != nil {
		return err
	}

	app.logger.Info("stopped server", "addr", srv.Addr)

	return nil
}

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)

	r.Use(middleware.RequestID)
	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(app.requestLogger)
	r.Use(app.recoverPanic)
	r.Use(app.authenticate)

	r.Route("/checkout/sessions", func(r chi.Router) {
		r.Post("/", app.CreateCheckoutSessionHandler)

		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", app.GetCheckoutSessionHandler)
			r.Delete("/", app.CancelCheckoutSessionHandler)
			r.Post("/payment", app.StartPaymentHandler)
			r.Post("/capture", app.CaptureCheckoutHandler)
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/paypal", app.PayPalWebhookHandler)
		r.Post("/stripe", app.StripeWebhookHandler)
	})

	r.With(app.requireAuthentication).Route("/orders", func(r chi.Router) {
		r.Get("/", app.GetUserOrdersHandler)
		r.Get("/{orderId}", app.GetOrderHandler)
		r.Post("/{orderId}/refund", app.RefundOrderHandler)
	})

	r.With(app.requireAuthentication).Route("/wallet", func(r chi.Router) {
		r.Get("/", app.GetWalletHandler)
		r.Get("/transactions", app.GetWalletTransactionsHandler)
	})

	r.Get("/health", app.GetHealth)

	return r
}
