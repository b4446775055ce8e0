package payment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediledger/nexus/internal/platform/auth"
)

// Handler exposes the caller's cumulative earnings.
type Handler struct {
	ledger Ledger
}

func NewHandler(ledger Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/earnings", h.GetEarnings)
}

type earningsResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

func (h *Handler) GetEarnings(c echo.Context) error {
	ctx := c.Request().Context()
	account := auth.UserIDFromContext(ctx)
	balance, err := h.ledger.Balance(ctx, account)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, earningsResponse{Account: account.String(), Balance: balance})
}
