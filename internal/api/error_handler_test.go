package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

func TestHTTPErrorHandler_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"validation", domain.NewValidationError("newEmail", "invalid email format"), http.StatusBadRequest, "newEmail: invalid email format"},
		{"empty batch", domain.ErrEmptyBatch, http.StatusBadRequest, "batch cannot be empty"},
		{"too large", fmt.Errorf("%w: 501 students, limit is 500", domain.ErrBatchTooLarge), http.StatusBadRequest, "batch exceeds maximum size: 501 students, limit is 500"},
		{"account", fmt.Errorf("get account: %w", domain.ErrAccountNotFound), http.StatusNotFound, "account not found"},
		{"profile", domain.ErrProfileNotFound, http.StatusNotFound, "profile not found"},
		{"conflict", fmt.Errorf("change email: %w", domain.ErrEmailConflict), http.StatusConflict, "email already in use"},
		{"token", domain.ErrInvalidToken, http.StatusUnauthorized, "invalid token"},
		{"credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, "access forbidden"},
		{"echo", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, "invalid payload"},
		{"infrastructure", domain.Infrastructure("ping", errors.New("dial tcp: refused")), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

			NewHTTPErrorHandler(zerolog.Nop())(tc.err, c)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["error"] != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, body["error"])
			}
		})
	}
}
