package registry

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mediledger/nexus/internal/platform/auth"
	"github.com/mediledger/nexus/internal/platform/httperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/registry/roles", h.AddRole)
	api.DELETE("/registry/roles", h.RemoveRole)
	api.GET("/registry/roles/:role", h.ListMembers)
}

type roleRequest struct {
	Identity uuid.UUID `json:"identity"`
	Role     string    `json:"role"`
}

func (h *Handler) AddRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.AddRole(c.Request().Context(), caller, req.Identity, Role(req.Role)); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RemoveRole(c echo.Context) error {
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RemoveRole(c.Request().Context(), caller, req.Identity, Role(req.Role)); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListMembers(c echo.Context) error {
	members, err := h.svc.ListMembers(c.Request().Context(), Role(c.Param("role")))
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, members)
}
