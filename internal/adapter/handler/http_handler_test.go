package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/core/ledger"
	"github.com/rl1809/kitties/internal/core/service"
)

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) CreateKitty(ctx context.Context, origin domain.Origin, dna domain.DNA, price uint32) error {
	args := m.Called(ctx, origin, dna, price)
	return args.Error(0)
}

func (m *mockRegistry) TransferKitty(ctx context.Context, origin domain.Origin, dna domain.DNA, to domain.AccountID) error {
	args := m.Called(ctx, origin, dna, to)
	return args.Error(0)
}

func (m *mockRegistry) GetKitty(ctx context.Context, dna domain.DNA) (*domain.Kitty, error) {
	args := m.Called(ctx, dna)
	kitty, _ := args.Get(0).(*domain.Kitty)
	return kitty, args.Error(1)
}

func (m *mockRegistry) KittiesOf(ctx context.Context, owner domain.AccountID) ([]domain.DNA, error) {
	args := m.Called(ctx, owner)
	list, _ := args.Get(0).([]domain.DNA)
	return list, args.Error(1)
}

func (m *mockRegistry) KittyCount(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func setupRouter(registry KittyRegistry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHTTPHandler(registry).RegisterRoutes(r)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateKittyHandler(t *testing.T) {
	dna := domain.DNA{0xca, 0xfe}
	origin := domain.Origin{Account: "alice", Token: "abcd"}
	kitty := &domain.Kitty{DNA: dna, Price: 10, Gender: domain.GenderMale, Owner: "alice", CreatedAt: 1}

	registry := &mockRegistry{}
	registry.On("CreateKitty", mock.Anything, origin, dna, uint32(10)).Return(nil).Once()
	registry.On("GetKitty", mock.Anything, dna).Return(kitty, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/kitties", strings.NewReader(`{"dna":"cafe","price":10}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account", "alice")
	req.Header.Set("Authorization", "Macaroon abcd")
	rec := httptest.NewRecorder()
	setupRouter(registry).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	require.Equal(t, "cafe", data["dna"])
	require.Equal(t, "Male", data["gender"])
	registry.AssertExpectations(t)
}

func TestCreateKittyHandlerValidation(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"dna":`},
		{"missing dna", `{"price":10}`},
		{"non hex dna", `{"dna":"zz","price":10}`},
		{"oversized dna", fmt.Sprintf(`{"dna":"%s","price":10}`, strings.Repeat("ab", MaxDNASize+1))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registry := &mockRegistry{}
			req := httptest.NewRequest(http.MethodPost, "/api/kitties", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			setupRouter(registry).ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, false, decodeBody(t, rec)["success"])
			registry.AssertNotCalled(t, "CreateKitty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateKittyHandlerErrors(t *testing.T) {
	testCases := []struct {
		err     error
		status  int
		message string
	}{
		{service.ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
		{service.ErrPriceTooLow, http.StatusBadRequest, "PriceTooLow"},
		{service.ErrAlreadyExisted, http.StatusConflict, "AlreadyExisted"},
		{fmt.Errorf("%w: %w", service.ErrOutOfBound, ledger.ErrCapacityExceeded), http.StatusUnprocessableEntity, "OutOfBound"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}

	for _, tc := range testCases {
		t.Run(tc.message, func(t *testing.T) {
			registry := &mockRegistry{}
			registry.On("CreateKitty", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tc.err)

			req := httptest.NewRequest(http.MethodPost, "/api/kitties", strings.NewReader(`{"dna":"01","price":1}`))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			setupRouter(registry).ServeHTTP(rec, req)

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, tc.message, decodeBody(t, rec)["message"])
		})
	}
}

func TestTransferKittyHandler(t *testing.T) {
	dna := domain.DNA{0x01}

	t.Run("success", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("TransferKitty", mock.Anything, domain.Origin{Account: "alice"}, dna, domain.AccountID("bob")).
			Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/kitties/01/transfer", strings.NewReader(`{"to":"bob"}`))
		req.Header.Set("X-Account", "alice")
		rec := httptest.NewRecorder()
		setupRouter(registry).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		registry.AssertExpectations(t)
	})

	t.Run("missing recipient", func(t *testing.T) {
		registry := &mockRegistry{}
		req := httptest.NewRequest(http.MethodPost, "/api/kitties/01/transfer", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		setupRouter(registry).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("path identity wins over body", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("TransferKitty", mock.Anything, domain.Origin{Account: "alice"}, dna, domain.AccountID("bob")).
			Return(nil).Once()

		body := `{"dna":"ff","to":"bob"}`
		req := httptest.NewRequest(http.MethodPost, "/api/kitties/01/transfer", strings.NewReader(body))
		req.Header.Set("X-Account", "alice")
		rec := httptest.NewRecorder()
		setupRouter(registry).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "01", decodeBody(t, rec)["data"].(map[string]any)["dna"])
		registry.AssertExpectations(t)
	})

	t.Run("not owner", func(t *testing.T) {
		registry := &mockRegistry{}
		registry.On("TransferKitty", mock.Anything, mock.Anything, dna, domain.AccountID("dave")).
			Return(service.ErrNotOwner)

		req := httptest.NewRequest(http.MethodPost, "/api/kitties/01/transfer", strings.NewReader(`{"to":"dave"}`))
		req.Header.Set("X-Account", "carol")
		rec := httptest.NewRecorder()
		setupRouter(registry).ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, "NotOwner", decodeBody(t, rec)["message"])
	})
}

func TestQueryHandlers(t *testing.T) {
	dna := domain.DNA{0x0a}
	registry := &mockRegistry{}
	registry.On("GetKitty", mock.Anything, dna).
		Return(&domain.Kitty{DNA: dna, Price: 3, Owner: "alice"}, nil)
	registry.On("GetKitty", mock.Anything, domain.DNA{0x0b}).Return(nil, service.ErrNoneExisted)
	registry.On("KittiesOf", mock.Anything, domain.AccountID("alice")).Return([]domain.DNA{dna}, nil)
	registry.On("KittyCount", mock.Anything).Return(uint64(4), nil)
	router := setupRouter(registry)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kitties/0a", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", decodeBody(t, rec)["data"].(map[string]any)["owner"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/kitties/0b", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/owners/alice/kitties", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, []any{"0a"}, data["kitties"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 4, decodeBody(t, rec)["data"].(map[string]any)["count"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPAndGRPCShareRegistry(t *testing.T) {
	dna := domain.DNA{0x02}
	registry := &mockRegistry{}
	registry.On("CreateKitty", mock.Anything, domain.Origin{Account: "alice"}, dna, uint32(7)).Return(nil).Once()
	registry.On("GetKitty", mock.Anything, dna).
		Return(&domain.Kitty{DNA: dna, Price: 7, Gender: domain.GenderFemale, Owner: "alice"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/kitties", strings.NewReader(`{"dna":"02","price":7}`))
	req.Header.Set("X-Account", "alice")
	rec := httptest.NewRecorder()
	setupRouter(registry).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	resp, err := NewGRPCHandler(registry).GetKitty(context.Background(), &GetKittyRequest{DNA: "02"})
	require.NoError(t, err)
	require.Equal(t, "alice", string(resp.Kitty.Owner))
	registry.AssertExpectations(t)
}
