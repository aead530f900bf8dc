package mocks

import (
	"context"
	"time"

	"github.com/keymint/keymint/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockFlashDealRepo struct {
	mock.Mock
	domain.FlashDealRepository
}

func (m *MockFlashDealRepo) GetActiveByProduct(ctx context.Context, productID int64, at time.Time) (*domain.FlashDeal, error) {
	args := m.Called(ctx, productID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FlashDeal), args.Error(1)
}

type MockTrendingOfferRepo struct {
	mock.Mock
	domain.TrendingOfferRepository
}

func (m *MockTrendingOfferRepo) GetActiveByProduct(ctx context.Context, productID int64, at time.Time) (*domain.TrendingOffer, error) {
	args := m.Called(ctx, productID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TrendingOffer), args.Error(1)
}

type MockBundleDealRepo struct {
	mock.Mock
	domain.BundleDealRepository
}

func (m *MockBundleDealRepo) GetActiveForProducts(ctx context.Context, productIDs []int64) (*domain.BundleDeal, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BundleDeal), args.Error(1)
}

type MockCouponRepo struct {
	mock.Mock
	domain.CouponRepository
}

func (m *MockCouponRepo) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Coupon), args.Error(1)
}

type MockSubscriptionRepo struct {
	mock.Mock
	domain.SubscriptionRepository
}

func (m *MockSubscriptionRepo) GetActiveByUser(ctx context.Context, userID int64, at time.Time) (*domain.Subscription, error) {
	args := m.Called(ctx, userID, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}
