package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/justin-elyphant/elyphant-v1-sub002/pkg/errors"
)

// downstreamError mirrors the error envelope written by httputil.WriteError.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and maps it
// to an AppError that keeps the downstream semantics.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	message := string(body)
	code := ""
	var env downstreamError
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		message, code = env.Error.Message, env.Error.Code
	}
	return mapStatus(resp.StatusCode, code, fmt.Sprintf("%s: %s", service, message), service)
}

func mapStatus(status int, code, message, service string) error {
	switch {
	case status == http.StatusNotFound:
		return &apperrors.AppError{Code: "NOT_FOUND", Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(message)
	case status == http.StatusConflict:
		return apperrors.Conflict(message)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(message)
	case status >= 500:
		return apperrors.Unavailable(service, fmt.Errorf("status %d: %s", status, message))
	default:
		if code == "" {
			code = "DOWNSTREAM_ERROR"
		}
		return &apperrors.AppError{Code: code, Message: message, Status: status}
	}
}
