package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/keymint/keymint/internal/domain"
	"github.com/stretchr/testify/require"
)

func prepareRequest(method, path string, body io.Reader, headers map[string]string) (*http.Request, error) {
	req := httptest.NewRequest(method, path, body)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func userHeaders(userID int64, email string) map[string]string {
	return map[string]string{
		"X-User-ID":    strconv.FormatInt(userID, 10),
		"X-User-Email": email,
	}
}

func jsonBody(t testing.TB, v any) io.Reader {
	data, err := json.Marshal(v)
	require.NoError(t, err)

	return bytes.NewReader(data)
}

func doRequest(t testing.TB, testApp *TestApp, method, path string, body io.Reader, headers map[string]string) *http.Response {
	req, err := prepareRequest(method, path, body, headers)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	testApp.App.Routes().ServeHTTP(rec, req)

	return rec.Result()
}

func decodeResponse[T any](t testing.TB, res *http.Response) T {
	defer res.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))

	return v
}

func compareResponse(t *testing.T, body io.Reader, expectedResponse string) {
	var actual map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&actual))

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedResponse), &expected))

	// ignore indeterministic fields while comparing
	opts := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		return k == "timestamp" || k == "requestId" || k == "createdAt" || k == "expiresAt" || k == "id"
	})

	if diff := cmp.Diff(expected, actual, opts); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func seedProduct(t testing.TB, testApp *TestApp, id, sellerID int64, name, price string, keyCount int) {
	ctx := context.Background()

	_, err := testApp.DB.Exec(ctx, `
		INSERT INTO products (id, seller_id, name, price, currency)
		VALUES ($1, $2, $3, $4, 'USD')`,
		id, sellerID, name, price)
	require.NoError(t, err)

	if keyCount == 0 {
		return
	}

	payloads := make([][]byte, 0, keyCount)
	for i := range keyCount {
		sealed, err := testApp.Sealer.Seal(fmt.Sprintf("KEY-%d-%04d", id, i))
		require.NoError(t, err)
		payloads = append(payloads, sealed)
	}

	_, err = testApp.KeyPool.Add(ctx, id, payloads)
	require.NoError(t, err)
}

func seedWallet(t testing.TB, testApp *TestApp, userID int64, balance string) {
	_, err := testApp.DB.Exec(context.Background(), `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)`,
		userID, balance)
	require.NoError(t, err)
}

func seedCoupon(t testing.TB, testApp *TestApp, code string, discountPct string) {
	_, err := testApp.DB.Exec(context.Background(), `
		INSERT INTO coupons (code, discount_pct, max_uses, min_subtotal, expires_at)
		VALUES ($1, $2, 100, 0, $3)`,
		code, discountPct, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
}

func seedCart(t testing.TB, testApp *TestApp, cartID string, items []domain.CartItem) {
	snapshot := domain.CartSnapshot{
		Items:     items,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(snapshot)
	require.NoError(t, err)

	err = testApp.Redis.Set(context.Background(), "cart:"+cartID, data, time.Hour).Err()
	require.NoError(t, err)
}

// insertPaidOrder writes a settled session and its order directly, for tests that
// exercise the repositories below the HTTP surface.
func insertPaidOrder(t testing.TB, testApp *TestApp, orderID uuid.UUID, userID int64, amount string) {
	ctx := context.Background()
	sessionID := uuid.New()

	_, err := testApp.DB.Exec(ctx, `
		INSERT INTO checkout_sessions
			(id, user_id, currency, subtotal, total_amount, grand_total, wallet_amount, card_amount,
			payment_method, status, expires_at)
		VALUES ($1, $2, 'USD', $3, $3, $3, $3, 0, 'wallet', 'paid', now() + interval '30 minutes')`,
		sessionID, userID, amount)
	require.NoError(t, err)

	_, err = testApp.DB.Exec(ctx, `
		INSERT INTO orders
			(id, checkout_session_id, user_id, currency, amount, wallet_amount,
			payment_status, order_status)
		VALUES ($1, $2, $3, 'USD', $4, $4, 'paid', 'processing')`,
		orderID, sessionID, userID, amount)
	require.NoError(t, err)
}

func countRows(t testing.TB, testApp *TestApp, query string, args ...any) int {
	var count int
	err := testApp.DB.QueryRow(context.Background(), query, args...).Scan(&count)
	require.NoError(t, err)

	return count
}
