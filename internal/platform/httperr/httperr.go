// Package httperr maps the service error taxonomy onto HTTP statuses so the
// engine handlers stay free of category switches.
package httperr

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/labstack/echo/v4"
)

// Status resolves the HTTP status for a service error. An explicit code on
// the error wins; otherwise the category decides.
func Status(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return http.StatusInternalServerError
	}
	if rich.Code > 0 {
		return rich.Code
	}
	switch rich.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a service error into an echo HTTPError carrying the
// mapped status and the original message.
func ToHTTP(err error) *echo.HTTPError {
	return echo.NewHTTPError(Status(err), err.Error())
}
