package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/keymint/keymint/api"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/keyvault"
	"github.com/keymint/keymint/internal/mailer"
	"github.com/keymint/keymint/internal/mocks"
	"github.com/keymint/keymint/internal/validator"
)

const testVaultKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func newTestApplication(t *testing.T, opts ...func(*Application)) *Application {
	sealer, err := keyvault.NewSealer(testVaultKey)
	if err != nil {
		t.Fatal(err)
	}

	app := &Application{
		validator:    validator.NewValidator(),
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		mailer:       &mailer.MockMailer{},
		sealer:       sealer,
		cartRepo:     &mocks.MockCartRepo{},
		productRepo:  &mocks.MockProductRepo{},
		checkoutRepo: &mocks.MockCheckoutRepo{},
		orderRepo:    &mocks.MockOrderRepo{},
		keyPoolRepo:  &mocks.MockKeyPoolRepo{},
		walletRepo:   &mocks.MockWalletRepo{},
		gateways:     map[domain.Gateway]domain.PaymentGateway{},
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader

	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

// asUser attaches the identity headers the upstream API gateway would set.
func asUser(r *http.Request, userID int64, email string) *http.Request {
	r.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	if email != "" {
		r.Header.Set("X-User-Email", email)
	}

	return r
}

func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt struct {
	wantStatus     int
	wantErrMessage string
}) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	switch tt.wantStatus {
	case http.StatusUnprocessableEntity:
		var validationResp api.ValidationErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&validationResp); err != nil {
			t.Fatalf("Failed to decode validation error response: %v", err)
		}

		errorSet := make(map[string]bool)
		for _, vErr := range validationResp.ValidationErrors {
			errorSet[vErr.Issue] = true
		}

		if !errorSet[tt.wantErrMessage] {
			t.Errorf("Expected validation error message '%s' not found in response", tt.wantErrMessage)
		}

	default:
		var errorResp api.ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&errorResp); err != nil {
			t.Fatalf("Failed to decode error response: %v", err)
		}

		if tt.wantErrMessage != "" && errorResp.Message != tt.wantErrMessage {
			t.Errorf("Error message = %v, want %v", errorResp.Message, tt.wantErrMessage)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
