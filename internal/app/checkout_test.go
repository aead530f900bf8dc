package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/cache"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/mocks"
	"github.com/keymint/keymint/internal/pricing"
	"github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testCartID = "cart-7f3a"

type CheckoutTestSuite struct {
	suite.Suite
	app              *Application
	cartRepo         *mocks.MockCartRepo
	productRepo      *mocks.MockProductRepo
	checkoutRepo     *mocks.MockCheckoutRepo
	walletRepo       *mocks.MockWalletRepo
	flashDealRepo    *mocks.MockFlashDealRepo
	trendingRepo     *mocks.MockTrendingOfferRepo
	bundleRepo       *mocks.MockBundleDealRepo
	couponRepo       *mocks.MockCouponRepo
	subscriptionRepo *mocks.MockSubscriptionRepo
	stripeGateway    *mocks.MockPaymentGateway
}

func (s *CheckoutTestSuite) SetupTest() {
	s.cartRepo = new(mocks.MockCartRepo)
	s.productRepo = new(mocks.MockProductRepo)
	s.checkoutRepo = new(mocks.MockCheckoutRepo)
	s.walletRepo = new(mocks.MockWalletRepo)
	s.flashDealRepo = new(mocks.MockFlashDealRepo)
	s.trendingRepo = new(mocks.MockTrendingOfferRepo)
	s.bundleRepo = new(mocks.MockBundleDealRepo)
	s.couponRepo = new(mocks.MockCouponRepo)
	s.subscriptionRepo = new(mocks.MockSubscriptionRepo)
	s.stripeGateway = new(mocks.MockPaymentGateway)

	pricer := pricing.NewResolver(
		s.flashDealRepo,
		s.trendingRepo,
		s.bundleRepo,
		s.couponRepo,
		s.subscriptionRepo,
		cache.NoopCache{},
		pricing.FeePolicy{Percent: decimal.NewFromInt(3), Flat: decimal.RequireFromString("0.30")},
	)

	s.app = newTestApplication(s.T(), func(a *Application) {
		a.cartRepo = s.cartRepo
		a.productRepo = s.productRepo
		a.checkoutRepo = s.checkoutRepo
		a.walletRepo = s.walletRepo
		a.pricer = pricer
		a.gateways[domain.GatewayStripe] = s.stripeGateway
	})
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutTestSuite))
}

func (s *CheckoutTestSuite) testCart() *domain.CartSnapshot {
	return &domain.CartSnapshot{
		ID: testCartID,
		Items: []domain.CartItem{
			{ProductID: 1, SellerID: 7, Quantity: 2},
		},
	}
}

func (s *CheckoutTestSuite) testProducts() map[int64]*domain.Product {
	return map[int64]*domain.Product{
		1: {
			ID:            1,
			SellerID:      7,
			Name:          "Hyper Engine",
			Price:         decimal.NewFromInt(50),
			Currency:      "USD",
			TotalKeys:     10,
			AvailableKeys: 5,
		},
	}
}

// expectNoDeals stubs the discount lookups so pricing resolves to the plain
// catalog price.
func (s *CheckoutTestSuite) expectNoDeals() {
	s.flashDealRepo.On("GetActiveByProduct", mock.Anything, int64(1), mock.Anything).
		Return(nil, domain.ErrRecordNotFound)
	s.trendingRepo.On("GetActiveByProduct", mock.Anything, int64(1), mock.Anything).
		Return(nil, domain.ErrRecordNotFound)
	s.bundleRepo.On("GetActiveForProducts", mock.Anything, mock.Anything).
		Return(nil, domain.ErrRecordNotFound)
}

func (s *CheckoutTestSuite) TestCreateCheckoutSessionHandler() {
	guestEmail := types.Email("buyer@example.com")

	tests := []struct {
		name           string
		body           api.CreateCheckoutSessionRequest
		userID         int64
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
		checkResponse  func(resp api.CheckoutSessionResponse)
	}{
		{
			name:           "should fail validation when cart id is missing",
			body:           api.CreateCheckoutSessionRequest{PaymentMethod: "paypal", GuestEmail: &guestEmail},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "is required",
		},
		{
			name:           "should fail validation for an unknown payment method",
			body:           api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "iou", GuestEmail: &guestEmail},
			wantStatus:     http.StatusUnprocessableEntity,
			wantErrMessage: "must be one of: wallet card paypal wallet+card",
		},
		{
			name:           "should fail when a guest checkout has no email",
			body:           api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal"},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "guestEmail is required for guest checkouts",
		},
		{
			name:           "should fail when an authenticated user sends a guest email",
			body:           api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			userID:         42,
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "guestEmail cannot be combined with an authenticated user",
		},
		{
			name:           "should fail when a guest requests a wallet payment",
			body:           api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "wallet", GuestEmail: &guestEmail},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "wallet payments require an authenticated user",
		},
		{
			name:           "should fail when a card payment names no gateway",
			body:           api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "card", GuestEmail: &guestEmail},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "gateway is required for card payments",
		},
		{
			name: "should fail when the cart does not exist",
			body: api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(nil, domain.ErrCartNotFound)
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: domain.ErrCartNotFound.Error(),
		},
		{
			name: "should fail when the cart is empty",
			body: api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).
					Return(&domain.CartSnapshot{ID: testCartID}, nil)
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "cart is empty",
		},
		{
			name: "should fail when a cart product left the catalog",
			body: api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).
					Return(map[int64]*domain.Product{}, nil)
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "product 1 is no longer available",
		},
		{
			name: "should fail when the key pool cannot cover the quantity",
			body: api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			setupMocks: func() {
				products := s.testProducts()
				products[1].AvailableKeys = 1

				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(products, nil)
			},
			wantStatus:     http.StatusConflict,
			wantErrMessage: "not enough keys available for Hyper Engine",
		},
		{
			name: "should fail when the coupon is invalid",
			body: api.CreateCheckoutSessionRequest{
				CartId:        testCartID,
				PaymentMethod: "paypal",
				GuestEmail:    &guestEmail,
				CouponCode:    ptr("NOPE-123"),
			},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(s.testProducts(), nil)
				s.expectNoDeals()
				s.couponRepo.On("GetByCode", mock.Anything, "NOPE-123").Return(nil, domain.ErrRecordNotFound)
			},
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: fmt.Sprintf("%v: unknown code", domain.ErrCouponInvalid),
		},
		{
			name: "should create a guest paypal session priced from the catalog",
			body: api.CreateCheckoutSessionRequest{CartId: testCartID, PaymentMethod: "paypal", GuestEmail: &guestEmail},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(s.testProducts(), nil)
				s.expectNoDeals()

				s.checkoutRepo.On("Create", mock.Anything, mock.MatchedBy(func(session *domain.CheckoutSession) bool {
					return session.UserID == 0 &&
						session.Email == "buyer@example.com" &&
						session.Gateway == domain.GatewayPayPal
				})).Return(nil)
			},
			wantStatus: http.StatusCreated,
			checkResponse: func(resp api.CheckoutSessionResponse) {
				s.Equal("pending", resp.Status)
				s.Equal("paypal", resp.PaymentMethod)
				s.True(resp.Subtotal.Equal(decimal.NewFromInt(100)))
				s.True(resp.HandlingFee.Equal(decimal.RequireFromString("3.30")))
				s.True(resp.GrandTotal.Equal(decimal.RequireFromString("103.30")))
				s.True(resp.WalletAmount.IsZero())
				s.True(resp.CardAmount.Equal(decimal.RequireFromString("103.30")))
				s.Len(resp.Items, 1)
				s.True(resp.Items[0].DiscountedPrice.Equal(decimal.NewFromInt(50)))
			},
		},
		{
			name: "should apply a coupon before the handling fee",
			body: api.CreateCheckoutSessionRequest{
				CartId:        testCartID,
				PaymentMethod: "paypal",
				GuestEmail:    &guestEmail,
				CouponCode:    ptr("SAVE10"),
			},
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(s.testProducts(), nil)
				s.expectNoDeals()

				s.couponRepo.On("GetByCode", mock.Anything, "SAVE10").Return(&domain.Coupon{
					ID:          9,
					Code:        "SAVE10",
					DiscountPct: decimal.NewFromInt(10),
					ExpiresAt:   time.Now().Add(24 * time.Hour),
				}, nil)

				s.checkoutRepo.On("Create", mock.Anything, mock.MatchedBy(func(session *domain.CheckoutSession) bool {
					return session.CouponID == 9 && session.CouponCode == "SAVE10"
				})).Return(nil)
			},
			wantStatus: http.StatusCreated,
			checkResponse: func(resp api.CheckoutSessionResponse) {
				s.True(resp.CouponDiscount.Equal(decimal.NewFromInt(10)))
				s.True(resp.TotalAmount.Equal(decimal.NewFromInt(90)))
				s.True(resp.HandlingFee.Equal(decimal.RequireFromString("3.00")))
				s.True(resp.GrandTotal.Equal(decimal.RequireFromString("93.00")))
			},
		},
		{
			name: "should split wallet+card by the available balance",
			body: api.CreateCheckoutSessionRequest{
				CartId:        testCartID,
				PaymentMethod: "wallet+card",
				Gateway:       ptr("stripe"),
			},
			userID: 42,
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(s.testProducts(), nil)
				s.expectNoDeals()
				s.subscriptionRepo.On("GetActiveByUser", mock.Anything, int64(42), mock.Anything).
					Return(nil, domain.ErrRecordNotFound)

				s.walletRepo.On("GetByUserId", mock.Anything, int64(42)).
					Return(&domain.Wallet{UserID: 42, Balance: decimal.NewFromInt(40)}, nil)

				s.checkoutRepo.On("Create", mock.Anything, mock.MatchedBy(func(session *domain.CheckoutSession) bool {
					return session.UserID == 42 && session.Email == "user42@example.com"
				})).Return(nil)
			},
			wantStatus: http.StatusCreated,
			checkResponse: func(resp api.CheckoutSessionResponse) {
				s.True(resp.WalletAmount.Equal(decimal.NewFromInt(40)))
				s.True(resp.CardAmount.Equal(decimal.RequireFromString("63.30")))
			},
		},
		{
			name: "should charge the full amount on the card when the wallet is missing",
			body: api.CreateCheckoutSessionRequest{
				CartId:        testCartID,
				PaymentMethod: "wallet+card",
				Gateway:       ptr("stripe"),
			},
			userID: 42,
			setupMocks: func() {
				s.cartRepo.On("GetById", mock.Anything, testCartID).Return(s.testCart(), nil)
				s.productRepo.On("GetByIds", mock.Anything, []int64{1}).Return(s.testProducts(), nil)
				s.expectNoDeals()
				s.subscriptionRepo.On("GetActiveByUser", mock.Anything, int64(42), mock.Anything).
					Return(nil, domain.ErrRecordNotFound)

				s.walletRepo.On("GetByUserId", mock.Anything, int64(42)).Return(nil, domain.ErrWalletNotFound)

				s.checkoutRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			wantStatus: http.StatusCreated,
			checkResponse: func(resp api.CheckoutSessionResponse) {
				s.True(resp.WalletAmount.IsZero())
				s.True(resp.CardAmount.Equal(decimal.RequireFromString("103.30")))
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.cartRepo.AssertExpectations(s.T())
			defer s.productRepo.AssertExpectations(s.T())
			defer s.checkoutRepo.AssertExpectations(s.T())
			defer s.walletRepo.AssertExpectations(s.T())
			defer s.couponRepo.AssertExpectations(s.T())

			if tt.setupMocks != nil {
				tt.setupMocks()
			}

			w, r := executeRequest(s.T(), http.MethodPost, "/checkout/sessions", tt.body)
			if tt.userID != 0 {
				r = asUser(r, tt.userID, fmt.Sprintf("user%d@example.com", tt.userID))
			}

			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			if tt.checkResponse != nil {
				var resp api.CheckoutSessionResponse
				err := json.NewDecoder(w.Body).Decode(&resp)
				s.Require().NoError(err, "Failed to decode response")

				tt.checkResponse(resp)
			}

			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: tt.wantErrMessage,
			})
		})
	}
}

func (s *CheckoutTestSuite) TestGetCheckoutSessionHandler() {
	sessionID := uuid.New()

	tests := []struct {
		name           string
		url            string
		userID         int64
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name:           "should fail for a malformed session id",
			url:            "/checkout/sessions/not-a-uuid",
			wantStatus:     http.StatusBadRequest,
			wantErrMessage: "invalid sessionId",
		},
		{
			name: "should return 404 for an unknown session",
			url:  "/checkout/sessions/" + sessionID.String(),
			setupMocks: func() {
				s.checkoutRepo.On("ExpireIfDue", mock.Anything, sessionID).
					Return(domain.CheckoutStatus(""), domain.ErrRecordNotFound)
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "The requested resource not found",
		},
		{
			name:   "should hide another user's session",
			url:    "/checkout/sessions/" + sessionID.String(),
			userID: 2,
			setupMocks: func() {
				s.checkoutRepo.On("ExpireIfDue", mock.Anything, sessionID).
					Return(domain.CheckoutStatusPending, nil)
				s.checkoutRepo.On("GetById", mock.Anything, sessionID).
					Return(&domain.CheckoutSession{ID: sessionID, UserID: 1, Status: domain.CheckoutStatusPending}, nil)
			},
			wantStatus:     http.StatusNotFound,
			wantErrMessage: "The requested resource not found",
		},
		{
			name: "should return an expired session with its effective status",
			url:  "/checkout/sessions/" + sessionID.String(),
			setupMocks: func() {
				s.checkoutRepo.On("ExpireIfDue", mock.Anything, sessionID).
					Return(domain.CheckoutStatusExpired, nil)
				s.checkoutRepo.On("GetById", mock.Anything, sessionID).
					Return(&domain.CheckoutSession{ID: sessionID, Status: domain.CheckoutStatusExpired}, nil)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.checkoutRepo.AssertExpectations(s.T())

			if tt.setupMocks != nil {
				tt.setupMocks()
			}

			w, r := executeRequest(s.T(), http.MethodGet, tt.url, nil)
			if tt.userID != 0 {
				r = asUser(r, tt.userID, "")
			}

			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: tt.wantErrMessage,
			})
		})
	}
}

func (s *CheckoutTestSuite) TestCancelCheckoutSessionHandler() {
	sessionID := uuid.New()

	tests := []struct {
		name           string
		setupMocks     func()
		wantStatus     int
		wantErrMessage string
	}{
		{
			name: "should fail when the session already left pending",
			setupMocks: func() {
				s.checkoutRepo.On("GetById", mock.Anything, sessionID).
					Return(&domain.CheckoutSession{ID: sessionID, Status: domain.CheckoutStatusPaid}, nil)
				s.checkoutRepo.On("Cancel", mock.Anything, sessionID).Return(domain.ErrSessionNotPayable)
			},
			wantStatus:     http.StatusConflict,
			wantErrMessage: "checkout session can no longer be cancelled",
		},
		{
			name: "should cancel a pending session",
			setupMocks: func() {
				s.checkoutRepo.On("GetById", mock.Anything, sessionID).
					Return(&domain.CheckoutSession{ID: sessionID, Status: domain.CheckoutStatusPending}, nil)
				s.checkoutRepo.On("Cancel", mock.Anything, sessionID).Return(nil)
			},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()

			defer s.checkoutRepo.AssertExpectations(s.T())

			if tt.setupMocks != nil {
				tt.setupMocks()
			}

			w, r := executeRequest(s.T(), http.MethodDelete, "/checkout/sessions/"+sessionID.String(), nil)

			s.app.Routes().ServeHTTP(w, r)

			s.Equal(tt.wantStatus, w.Code)

			checkErrorResponse(s.T(), w, struct {
				wantStatus     int
				wantErrMessage string
			}{
				wantStatus:     tt.wantStatus,
				wantErrMessage: tt.wantErrMessage,
			})
		})
	}
}
