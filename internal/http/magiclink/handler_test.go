package magiclink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magiclink/internal/domain/models"
	"magiclink/internal/lib/logger/handlers/slogdiscard"
	"magiclink/internal/services/magiclink"
)

type exchangeCall struct {
	action models.Action
	token  string
}

type fakeExchanger struct {
	calls    []exchangeCall
	exchange *magiclink.Exchange
	err      error
}

func (f *fakeExchanger) Exchange(_ context.Context, action models.Action, token string) (*magiclink.Exchange, error) {
	f.calls = append(f.calls, exchangeCall{action: action, token: token})
	return f.exchange, f.err
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRouter(t *testing.T, exchanger Exchanger, errorURL string) (http.Handler, *prometheus.Registry) {
	t.Helper()

	redirects, err := magiclink.NewRedirects("https://app.example/cb", errorURL)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	router := chi.NewRouter()
	Register(router, slogdiscard.NewDiscardLogger(), reg, exchanger, redirects)

	return router, reg
}

func get(router http.Handler, query url.Values) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path+"?"+query.Encode(), nil))
	return rec
}

func TestMagicLink_LoginRedirect(t *testing.T) {
	token := uuid.NewString()
	exchanger := &fakeExchanger{exchange: &magiclink.Exchange{
		Action:       models.ActionLogin,
		Account:      &models.Account{ID: "account-1"},
		RefreshToken: token,
	}}
	router, _ := newRouter(t, exchanger, "")

	rec := get(router, url.Values{"token": {token}})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example/cb?refresh_token="+token, rec.Header().Get("Location"))
	require.Len(t, exchanger.calls, 1)
	assert.Equal(t, exchangeCall{action: models.ActionLogin, token: token}, exchanger.calls[0])
}

func TestMagicLink_ActionParsing(t *testing.T) {
	tests := []struct {
		action string
		want   models.Action
	}{
		{action: "register", want: models.ActionRegister},
		{action: "login", want: models.ActionLogin},
		{action: "Register", want: models.ActionLogin},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			exchanger := &fakeExchanger{exchange: &magiclink.Exchange{RefreshToken: "rt"}}
			router, _ := newRouter(t, exchanger, "")

			rec := get(router, url.Values{"token": {uuid.NewString()}, "action": {tt.action}})

			assert.Equal(t, http.StatusFound, rec.Code)
			require.Len(t, exchanger.calls, 1)
			assert.Equal(t, tt.want, exchanger.calls[0].action)
		})
	}
}

func TestMagicLink_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{name: "missing token", query: url.Values{}},
		{name: "empty token", query: url.Values{"token": {""}}},
		{name: "not a uuid", query: url.Values{"token": {"not-a-uuid"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &fakeExchanger{}
			router, _ := newRouter(t, exchanger, "https://app.example/err")

			rec := get(router, tt.query)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, exchanger.calls)

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, "VALIDATION_ERROR", body.Error.Code)
		})
	}
}

func TestMagicLink_InvalidTicketRedirectsToErrorURL(t *testing.T) {
	exchanger := &fakeExchanger{err: fmt.Errorf("magiclink.Exchange: %w", magiclink.ErrInvalidTicket)}
	router, reg := newRouter(t, exchanger, "https://app.example/err")

	rec := get(router, url.Values{"token": {uuid.NewString()}, "action": {"register"}})

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://app.example/err", rec.Header().Get("Location"))

	count, err := testutil.GatherAndCount(reg, "magiclink_exchanges_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMagicLink_InvalidTokenWithoutErrorURL(t *testing.T) {
	exchanger := &fakeExchanger{err: fmt.Errorf("magiclink.Exchange: %w", magiclink.ErrInvalidToken)}
	router, _ := newRouter(t, exchanger, "")

	rec := get(router, url.Values{"token": {uuid.NewString()}})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))

	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	assert.Equal(t, "invalid or expired token", body.Error.Message)
}

func TestMagicLink_InfrastructureErrorIsMasked(t *testing.T) {
	errStore := errors.New("dial tcp 10.0.0.7:5432: connection refused")

	t.Run("activation failure with error url", func(t *testing.T) {
		exchanger := &fakeExchanger{err: fmt.Errorf("%w: %w", magiclink.ErrActivationFailed, errStore)}
		router, _ := newRouter(t, exchanger, "https://app.example/err")

		rec := get(router, url.Values{"token": {uuid.NewString()}, "action": {"register"}})

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://app.example/err", rec.Header().Get("Location"))
	})

	t.Run("activation failure without error url", func(t *testing.T) {
		exchanger := &fakeExchanger{err: fmt.Errorf("%w: %w", magiclink.ErrActivationFailed, errStore)}
		router, _ := newRouter(t, exchanger, "")

		rec := get(router, url.Values{"token": {uuid.NewString()}, "action": {"register"}})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})

	t.Run("lookup failure", func(t *testing.T) {
		exchanger := &fakeExchanger{err: errStore}
		router, _ := newRouter(t, exchanger, "https://app.example/err")

		rec := get(router, url.Values{"token": {uuid.NewString()}})

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}
