package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/auth/scope"
	"github.com/smallbiznis/hyperion/internal/auth/token"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/observability"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
	"github.com/smallbiznis/hyperion/internal/userdeletion"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakePayments implements the handful of calls the handlers under test make.
type fakePayments struct {
	paydomain.Service

	balance    int64
	scanErr    error
	scanned    paydomain.ScanInfo
	scanStore  snowflake.ID
	confirmErr error
	confirmed  int
	page       pagination.Pagination
	receipt    []byte
}

func (f *fakePayments) StoreScan(_ context.Context, _ snowflake.ID, storeID snowflake.ID, info paydomain.ScanInfo) (*paydomain.Transaction, error) {
	f.scanned = info
	f.scanStore = storeID
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return &paydomain.Transaction{ID: uuid.New(), Total: info.Total, Status: paydomain.TransactionConfirmed}, nil
}

func (f *fakePayments) Register(context.Context, snowflake.ID) error {
	return paydomain.ErrAlreadyRegistered
}

func (f *fakePayments) History(_ context.Context, _ snowflake.ID, page pagination.Pagination) (paydomain.HistoryResponse, error) {
	f.page = page
	return paydomain.HistoryResponse{Entries: []paydomain.HistoryEntry{}}, nil
}

func (f *fakePayments) ConfirmTransfer(context.Context, paydomain.TransferCallback) (*paydomain.Transfer, error) {
	f.confirmed++
	return nil, f.confirmErr
}

func (f *fakePayments) InitTransfer(_ context.Context, _ snowflake.ID, req paydomain.InitTransferRequest) (*paydomain.Transfer, error) {
	return &paydomain.Transfer{
		ID:                 uuid.New(),
		Type:               paydomain.TransferTypeCheckout,
		TransferIdentifier: "chk-secret",
		WalletID:           uuid.New(),
		Total:              req.Amount,
	}, nil
}

func (f *fakePayments) Receipt(context.Context, snowflake.ID, uuid.UUID) ([]byte, error) {
	return f.receipt, nil
}

func (f *fakePayments) WalletBalance(context.Context, snowflake.ID) (int64, error) {
	return f.balance, nil
}

const testWebhookSecret = "whsec-test"

type testEnv struct {
	router   *gin.Engine
	codec    *token.Codec
	clock    *clock.FakeClock
	payments *fakePayments
	server   *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		ClientURL:            "https://hyperion.example.org/",
		AccessTokenSecretKey: []byte("0123456789abcdef0123456789abcdef"),
		AccessTokenExpire:    30 * time.Minute,

		MyECLPayTransferWebhookSecret: []byte(testWebhookSecret),
	}
	codec := token.NewCodec(cfg, clk)
	payments := &fakePayments{receipt: []byte("%PDF-1.3 fake")}
	registry := userdeletion.NewRegistry(userdeletion.Params{
		Checkers: []userdeletion.Checker{userdeletion.NewWalletChecker(payments)},
		Log:      zap.NewNop(),
	})

	s := NewServer(ServerParams{
		Gin:      NewEngine(observability.Config{LogLevel: "info"}, nil),
		Cfg:      cfg,
		Codec:    codec,
		Payments: payments,
		Deletion: registry,
		Log:      zap.NewNop(),
	})
	registerRoutes(s)
	return &testEnv{router: s.Engine(), codec: codec, clock: clk, payments: payments, server: s}
}

func (e *testEnv) bearer(t *testing.T, subject string, scopes ...scope.Scope) string {
	t.Helper()
	raw, err := e.codec.SignAccessToken(subject, scopes, "")
	require.NoError(t, err)
	return "Bearer " + raw
}

func (e *testEnv) do(method, path, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) callback(body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/myeclpay/transfer/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(TransferSignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signedCallback(body string) *httptest.ResponseRecorder {
	return e.callback(body, SignTransferCallback([]byte(testWebhookSecret), []byte(body)))
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Detail
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBearerRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/myeclpay/users/me/wallet/history", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	require.Equal(t, "Not authenticated", detail(t, rec))

	rec = env.do(http.MethodGet, "/myeclpay/users/me/wallet/history", "Bearer not-a-jwt", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Could not validate credentials", detail(t, rec))

	rec = env.do(http.MethodGet, "/myeclpay/users/me/wallet/history", env.bearer(t, "42", scope.OpenID), "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Unauthorized, token does not contain the required scopes", detail(t, rec))

	expired := env.bearer(t, "42", scope.API)
	env.clock.Advance(31 * time.Minute)
	rec = env.do(http.MethodGet, "/myeclpay/users/me/wallet/history", expired, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Token expired", detail(t, rec))

	rec = env.do(http.MethodGet, "/myeclpay/users/me/wallet/history", env.bearer(t, "not-a-user", scope.API), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHistoryBindsPagination(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/myeclpay/users/me/wallet/history?page_size=5&page_token=abc", env.bearer(t, "42", scope.API), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 5, env.payments.page.PageSize)
	require.Equal(t, "abc", env.payments.page.PageToken)
}

func TestStoreScanOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	auth := env.bearer(t, "42", scope.API)
	body := `{"id":"` + uuid.NewString() + `","tot":250,"iat":"2026-03-01T12:00:00Z","key":"` + uuid.NewString() + `","store":true,"signature":"c2ln"}`

	rec := env.do(http.MethodPost, "/myeclpay/stores/1234/scan", auth, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, snowflake.ID(1234), env.payments.scanStore)
	require.Equal(t, int64(250), env.payments.scanned.Total)
	require.True(t, env.payments.scanned.Store)
	require.Equal(t, "c2ln", env.payments.scanned.Signature)
	require.Equal(t, "2026-03-01T12:00:00Z", env.payments.scanned.RawIssuedAt)

	env.payments.scanErr = paydomain.ErrQRCodeAlreadyUsed
	rec = env.do(http.MethodPost, "/myeclpay/stores/1234/scan", auth, body)
	require.Equal(t, paydomain.ErrQRCodeAlreadyUsed.Status, rec.Code)
	require.Equal(t, paydomain.ErrQRCodeAlreadyUsed.Message, detail(t, rec))

	env.payments.scanErr = ratelimit.ErrLockTimeout
	rec = env.do(http.MethodPost, "/myeclpay/stores/1234/scan", auth, body)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = env.do(http.MethodPost, "/myeclpay/stores/abc/scan", auth, body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(http.MethodPost, "/myeclpay/stores/1234/scan", auth, `{"tot":"many"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDomainErrorsKeepDetailBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/myeclpay/users/me/register", env.bearer(t, "42", scope.API), "")
	require.Equal(t, paydomain.ErrAlreadyRegistered.Status, rec.Code)
	require.Equal(t, paydomain.ErrAlreadyRegistered.Message, detail(t, rec))
}

func TestReceiptIsPDF(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	rec := env.do(http.MethodGet, "/myeclpay/transactions/"+id.String()+"/receipt", env.bearer(t, "42", scope.API), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), id.String())
	require.Equal(t, "%PDF-1.3 fake", rec.Body.String())
}

func TestTransferCallbackIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	rec := env.signedCallback(`{"checkout_id":"chk-1","paid_amount":1000}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	env.payments.confirmErr = paydomain.ErrTransferAlreadyApplied
	rec = env.signedCallback(`{"checkout_id":"chk-1","paid_amount":1000}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	env.payments.confirmErr = paydomain.ErrTransferNotFound
	rec = env.signedCallback(`{"checkout_id":"chk-2","paid_amount":1000}`)
	require.Equal(t, paydomain.ErrTransferNotFound.Status, rec.Code)

	rec = env.signedCallback(`{"paid_amount":1000}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, 3, env.payments.confirmed)
}

func TestTransferCallbackRequiresSignature(t *testing.T) {
	env := newTestEnv(t)
	body := `{"checkout_id":"chk-1","paid_amount":1000}`

	rec := env.callback(body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid callback signature", detail(t, rec))

	forged := SignTransferCallback([]byte("guessed"), []byte(body))
	rec = env.callback(body, forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.callback(body, "not-hex")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// A signature lifted from another body does not carry over.
	other := SignTransferCallback([]byte(testWebhookSecret), []byte(`{"checkout_id":"chk-1","paid_amount":1}`))
	rec = env.callback(body, other)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Zero(t, env.payments.confirmed)
}

func TestTransferCallbackRefusedWithoutSecret(t *testing.T) {
	env := newTestEnv(t)
	env.server.cfg.MyECLPayTransferWebhookSecret = nil

	rec := env.signedCallback(`{"checkout_id":"chk-1","paid_amount":1000}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Zero(t, env.payments.confirmed)
}

func TestInitTransferHidesCheckoutKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/myeclpay/transfer/init", env.bearer(t, "42", scope.API), `{"amount":500}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotContains(t, rec.Body.String(), "chk-secret")
	require.NotContains(t, rec.Body.String(), "transfer_identifier")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body["id"])
	require.EqualValues(t, 500, body["total"])
}

func TestDeletionCheck(t *testing.T) {
	env := newTestEnv(t)
	auth := env.bearer(t, "42", scope.API)

	rec := env.do(http.MethodGet, "/users/me/deletion-check", auth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"can_delete":true,"reasons":[]}`, rec.Body.String())

	env.payments.balance = 150
	rec = env.do(http.MethodGet, "/users/me/deletion-check", auth, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body deletionCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.CanDelete)
	require.Len(t, body.Reasons, 1)
	require.Equal(t, "myeclpay", body.Reasons[0].Module)
}
