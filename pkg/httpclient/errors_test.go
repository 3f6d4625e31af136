package httpclient

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
)

func response(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError_StructuredNotFound(t *testing.T) {
	err := ParseResponseError(response(http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"product p-1 not found"}}`), "catalog")

	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Contains(t, err.Error(), "catalog: product p-1 not found")
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

func TestParseResponseError_Mapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, apperrors.ErrInvalidInput},
		{http.StatusConflict, apperrors.ErrConflict},
		{http.StatusUnauthorized, apperrors.ErrUnauthorized},
		{http.StatusForbidden, apperrors.ErrForbidden},
		{http.StatusBadGateway, apperrors.ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := ParseResponseError(response(tt.status, `plain text`), "catalog")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseResponseError_OtherStatusKeepsCode(t *testing.T) {
	err := ParseResponseError(response(http.StatusTooManyRequests, `{"error":{"code":"RATE_LIMITED","message":"slow down"}}`), "catalog")

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "RATE_LIMITED", appErr.Code)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Status)
}
