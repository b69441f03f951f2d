package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diagnosis/signnatural-api/internal/domain"
	"github.com/diagnosis/signnatural-api/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.SetDefault(logger.Discard())
}

func TestFromError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.Invalid("email is required"), http.StatusBadRequest, CodeInvalidInput},
		{"email taken", domain.ErrEmailTaken, http.StatusConflict, CodeEmailExists},
		{"already verified", domain.ErrAlreadyVerified, http.StatusConflict, CodeAlreadyVerified},
		{"mismatch", domain.ErrCodeMismatch, http.StatusBadRequest, CodeInvalidCode},
		{"no code", domain.ErrCodeNotFound, http.StatusBadRequest, CodeCodeNotFound},
		{"not verified", domain.ErrEmailNotVerified, http.StatusForbidden, CodeEmailNotVerified},
		{"bad credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, CodeUnauthorized},
		{"delivery", fmt.Errorf("%w: smtp down", domain.ErrDelivery), http.StatusBadGateway, CodeDeliveryFailed},
		{"missing notification", domain.ErrNotificationNotFound, http.StatusNotFound, CodeNotFound},
		{"wrapped", fmt.Errorf("failed: %w", domain.ErrEmailTaken), http.StatusConflict, CodeEmailExists},
		{"unknown", errors.New("pq: connection refused"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FromError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)

			assert.Equal(t, tc.status, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Code)
			assert.NotContains(t, body.Error, "connection refused")
		})
	}
}

func TestFromError_ValidationMessageIsUnprefixed(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, httptest.NewRequest(http.MethodPost, "/", nil), domain.Invalid("password must be at least 6 characters"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "password must be at least 6 characters", body.Error)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
