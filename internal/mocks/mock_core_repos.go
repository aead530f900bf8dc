package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockProductRepo struct {
	mock.Mock
	domain.ProductRepository
}

func (m *MockProductRepo) GetByIds(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*domain.Product), args.Error(1)
}

func (m *MockProductRepo) SyncKeyCounters(ctx context.Context, productID int64) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

type MockCartRepo struct {
	mock.Mock
	domain.CartRepository
}

func (m *MockCartRepo) GetById(ctx context.Context, cartID string) (*domain.CartSnapshot, error) {
	args := m.Called(ctx, cartID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CartSnapshot), args.Error(1)
}

type MockCheckoutRepo struct {
	mock.Mock
	domain.CheckoutRepository
}

func (m *MockCheckoutRepo) Create(ctx context.Context, session *domain.CheckoutSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockCheckoutRepo) GetById(ctx context.Context, id uuid.UUID) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutRepo) GetByGatewayOrderId(ctx context.Context, gateway domain.Gateway, gatewayOrderID string) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, gateway, gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockCheckoutRepo) ExpireIfDue(ctx context.Context, id uuid.UUID) (domain.CheckoutStatus, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.CheckoutStatus), args.Error(1)
}

func (m *MockCheckoutRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockCheckoutRepo) AttachGatewayOrder(ctx context.Context, id uuid.UUID, gateway domain.Gateway, gatewayOrderID string) error {
	args := m.Called(ctx, id, gateway, gatewayOrderID)
	return args.Error(0)
}

type MockOrderRepo struct {
	mock.Mock
	domain.OrderRepository
}

func (m *MockOrderRepo) Settle(ctx context.Context, params domain.SettleParams) (*domain.Order, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepo) GetById(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepo) GetByGatewayIds(ctx context.Context, gateway domain.Gateway, gatewayOrderID, gatewayCaptureID string) (*domain.Order, error) {
	args := m.Called(ctx, gateway, gatewayOrderID, gatewayCaptureID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

func (m *MockOrderRepo) GetByUserId(ctx context.Context, userID int64, pagination domain.Pagination) ([]domain.Order, *domain.Metadata, error) {
	args := m.Called(ctx, userID, pagination)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]domain.Order), args.Get(1).(*domain.Metadata), args.Error(2)
}

func (m *MockOrderRepo) ClaimFulfillment(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderRepo) Complete(ctx context.Context, orderID uuid.UUID) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockOrderRepo) Refund(ctx context.Context, params domain.RefundParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

type MockKeyPoolRepo struct {
	mock.Mock
	domain.KeyPoolRepository
}

func (m *MockKeyPoolRepo) Allocate(ctx context.Context, productID int64, quantity int, orderID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, productID, quantity, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockKeyPoolRepo) GetByOrderId(ctx context.Context, orderID uuid.UUID) ([]domain.LicenseKey, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LicenseKey), args.Error(1)
}

func (m *MockKeyPoolRepo) Add(ctx context.Context, productID int64, payloads [][]byte) ([]uuid.UUID, error) {
	args := m.Called(ctx, productID, payloads)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockWalletRepo struct {
	mock.Mock
	domain.WalletRepository
}

func (m *MockWalletRepo) GetByUserId(ctx context.Context, userID int64) (*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepo) Debit(ctx context.Context, userID int64, amount decimal.Decimal, orderID uuid.UUID) error {
	args := m.Called(ctx, userID, amount, orderID)
	return args.Error(0)
}

func (m *MockWalletRepo) Credit(ctx context.Context, userID int64, amount decimal.Decimal, orderID uuid.UUID, refundRef string) error {
	args := m.Called(ctx, userID, amount, orderID, refundRef)
	return args.Error(0)
}

func (m *MockWalletRepo) GetTransactions(ctx context.Context, userID int64, pagination domain.Pagination) ([]domain.WalletTransaction, *domain.Metadata, error) {
	args := m.Called(ctx, userID, pagination)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).([]domain.WalletTransaction), args.Get(1).(*domain.Metadata), args.Error(2)
}

type MockPaymentGateway struct {
	mock.Mock
	domain.PaymentGateway
}

func (m *MockPaymentGateway) CreateOrder(ctx context.Context, session *domain.CheckoutSession) (*domain.GatewayOrder, error) {
	args := m.Called(ctx, session)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOrder), args.Error(1)
}

func (m *MockPaymentGateway) VerifyWebhook(payload []byte, signatureHeader string) (*domain.CaptureEvent, error) {
	args := m.Called(payload, signatureHeader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CaptureEvent), args.Error(1)
}
