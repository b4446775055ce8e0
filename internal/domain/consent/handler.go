package consent

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mediledger/nexus/internal/platform/auth"
	"github.com/mediledger/nexus/internal/platform/httperr"
	"github.com/mediledger/nexus/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/consents", h.CreateConsent)
	api.GET("/consents", h.ListConsents)
	api.GET("/consents/:id", h.GetConsent)
	api.POST("/consents/:id/activate", h.ActivateConsent)
	api.POST("/consents/:id/renew", h.AutoRenewConsent)
	api.POST("/consents/:id/revoke", h.RevokeConsent)
	api.POST("/consents/:id/data-grants", h.GrantDataAccess)
	api.GET("/consents/:id/data-grants", h.ListSubGrants)
	api.DELETE("/consents/:id/data-grants/:requester/:dataType", h.RevokeDataAccess)
	api.POST("/consents/:id/payments", h.PayCompensation)
	api.GET("/consents/:id/data-access/:requester/:dataType", h.CheckDataAccess)
}

type createConsentRequest struct {
	Provider      uuid.UUID `json:"provider"`
	DataTypes     []string  `json:"data_types"`
	DurationHours int64     `json:"duration_hours"`
	RateUnit      int64     `json:"rate_unit"`
	Purpose       string    `json:"purpose"`
	PrivacyLevel  string    `json:"privacy_level"`
	AutoRenewal   bool      `json:"auto_renewal"`
}

func (h *Handler) CreateConsent(c echo.Context) error {
	var req createConsentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.CreateConsent(c.Request().Context(), caller, req.Provider, req.DataTypes,
		req.DurationHours, req.RateUnit, req.Purpose, req.PrivacyLevel, req.AutoRenewal)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"consent_id": id.String()})
}

func (h *Handler) GetConsent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetConsent(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListConsents returns the caller's agreements; ?role=provider switches to
// the provider-side view.
func (h *Handler) ListConsents(c echo.Context) error {
	pg := pagination.FromContext(c)
	caller := auth.UserIDFromContext(c.Request().Context())

	var (
		items []*Agreement
		total int
		err   error
	)
	if c.QueryParam("role") == "provider" {
		items, total, err = h.svc.ListConsentsByProvider(c.Request().Context(), caller, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListConsentsByPatient(c.Request().Context(), caller, pg.Limit, pg.Offset)
	}
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ActivateConsent(c echo.Context) error {
	return h.transition(c, h.svc.ActivateConsent)
}

func (h *Handler) AutoRenewConsent(c echo.Context) error {
	return h.transition(c, h.svc.AutoRenewConsent)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, caller, consentID uuid.UUID) error) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := fn(c.Request().Context(), caller, id); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type revokeConsentRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) RevokeConsent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req revokeConsentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RevokeConsent(c.Request().Context(), caller, id, req.Reason); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type dataGrantRequest struct {
	Requester uuid.UUID `json:"requester"`
	DataType  string    `json:"data_type"`
}

func (h *Handler) GrantDataAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req dataGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.GrantDataAccess(c.Request().Context(), caller, id, req.Requester, req.DataType); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RevokeDataAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requester, err := uuid.Parse(c.Param("requester"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid requester")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RevokeDataAccess(c.Request().Context(), caller, id, requester, c.Param("dataType")); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListSubGrants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	grants, err := h.svc.ListSubGrants(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, grants)
}

type payCompensationRequest struct {
	DataType    string `json:"data_type"`
	AccessHours int64  `json:"access_hours"`
	Amount      int64  `json:"amount"`
}

func (h *Handler) PayCompensation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req payCompensationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.PayCompensation(c.Request().Context(), caller, id, req.DataType, req.AccessHours, req.Amount); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CheckDataAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	requester, err := uuid.Parse(c.Param("requester"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid requester")
	}
	d, err := h.svc.CheckDataAccess(c.Request().Context(), id, requester, c.Param("dataType"))
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
