package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/keymint/keymint/internal/app"
	"github.com/keymint/keymint/internal/cache"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/keyvault"
	"github.com/keymint/keymint/internal/mailer"
	"github.com/keymint/keymint/internal/payment"
	"github.com/keymint/keymint/internal/pricing"
	"github.com/keymint/keymint/internal/repository"
	appvalidator "github.com/keymint/keymint/internal/validator"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const vaultKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type TestApp struct {
	App     *app.Application
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Mailer  *mailer.MockMailer
	Sealer  *keyvault.Sealer
	Gateway *stubGateway

	Checkout domain.CheckoutRepository
	Orders   domain.OrderRepository
	KeyPool  domain.KeyPoolRepository
	Wallets  domain.WalletRepository
}

func newTestApp(cfg app.Config) (*TestApp, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	validator := appvalidator.NewValidator()
	mockMailer := mailer.NewMockMailer()

	sealer, err := keyvault.NewSealer(cfg.KeyVaultKey)
	if err != nil {
		return nil, err
	}

	db, err := app.NewDatabasePool(cfg)
	if err != nil {
		return nil, err
	}

	redisClient, err := app.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	pricer := pricing.NewResolver(
		repository.NewPostgresFlashDealRepository(db),
		repository.NewPostgresTrendingOfferRepository(db),
		repository.NewPostgresBundleDealRepository(db),
		repository.NewPostgresCouponRepository(db),
		repository.NewPostgresSubscriptionRepository(db),
		cache.NewRedisCache(redisClient, cfg.Cache.TTL),
		pricing.FeePolicy{
			Percent: decimal.RequireFromString(cfg.Fees.Percent),
			Flat:    decimal.RequireFromString(cfg.Fees.Flat),
		},
	)

	checkoutRepo := repository.NewPostgresCheckoutRepository(db)
	orderRepo := repository.NewPostgresOrderRepository(db)
	keyPoolRepo := repository.NewPostgresKeyPoolRepository(db)
	walletRepo := repository.NewPostgresWalletRepository(db)

	gateway := &stubGateway{}

	application := app.NewApp(
		cfg,
		logger,
		db,
		redisClient,
		validator,
		mockMailer,
		sealer,
		pricer,
		repository.NewRedisCartRepository(redisClient),
		repository.NewPostgresProductRepository(db),
		checkoutRepo,
		orderRepo,
		keyPoolRepo,
		walletRepo,
		map[domain.Gateway]domain.PaymentGateway{
			domain.GatewayPayPal: gateway,
		},
	)

	return &TestApp{
		App:      application,
		DB:       db,
		Redis:    redisClient,
		Mailer:   mockMailer,
		Sealer:   sealer,
		Gateway:  gateway,
		Checkout: checkoutRepo,
		Orders:   orderRepo,
		KeyPool:  keyPoolRepo,
		Wallets:  walletRepo,
	}, nil
}

const stubSignature = "stub-valid-signature"

// stubGateway stands in for the external payment rail. CreateOrder hands out
// sequential gateway order ids and VerifyWebhook replays the posted JSON as a
// capture event, so tests drive the reconciler with ordinary HTTP requests.
type stubGateway struct {
	mu      sync.Mutex
	counter int
}

type stubWebhookEvent struct {
	EventType string `json:"eventType"`
	OrderID   string `json:"orderId"`
	CaptureID string `json:"captureId"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func (g *stubGateway) CreateOrder(ctx context.Context, session *domain.CheckoutSession) (*domain.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++
	id := fmt.Sprintf("GW-%d", g.counter)

	return &domain.GatewayOrder{
		ID:          id,
		ApprovalURL: "https://pay.example.com/approve/" + id,
	}, nil
}

func (g *stubGateway) VerifyWebhook(payload []byte, signatureHeader string) (*domain.CaptureEvent, error) {
	if signatureHeader != stubSignature {
		return nil, payment.ErrInvalidSignature
	}

	var event stubWebhookEvent

	err := json.Unmarshal(payload, &event)
	if err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if event.Amount != "" {
		amount, err = decimal.NewFromString(event.Amount)
		if err != nil {
			return nil, err
		}
	}

	return &domain.CaptureEvent{
		Gateway:   domain.GatewayPayPal,
		EventType: event.EventType,
		OrderID:   event.OrderID,
		CaptureID: event.CaptureID,
		Amount:    amount,
		Currency:  event.Currency,
	}, nil
}

// LastGatewayOrderID returns the most recently issued gateway order id.
func (g *stubGateway) LastGatewayOrderID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return fmt.Sprintf("GW-%d", g.counter)
}
