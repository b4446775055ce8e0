package vault

import (
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
	api.POST("/records", h.CreateRecord)
	api.GET("/records", h.ListRecords)
	api.GET("/records/:id", h.GetRecord)
	api.DELETE("/records/:id", h.DeactivateRecord)
	api.POST("/records/:id/grants", h.GrantAccess)
	api.GET("/records/:id/grants", h.ListGrants)
	api.DELETE("/records/:id/grants/:grantee", h.RevokeAccess)
	api.POST("/records/:id/emergency-grants", h.GrantEmergencyAccess)
	api.GET("/records/:id/access/:who", h.CheckAccess)
}

type createRecordRequest struct {
	RecordType      string `json:"record_type"`
	ContentRef      string `json:"content_ref"`
	IntegrityDigest string `json:"integrity_digest"`
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var req createRecordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.CreateRecord(c.Request().Context(), caller, req.RecordType, req.ContentRef, req.IntegrityDigest)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"record_id": id.String()})
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	caller := auth.UserIDFromContext(c.Request().Context())
	items, total, err := h.svc.ListRecordsByOwner(c.Request().Context(), caller, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeactivateRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.DeactivateRecord(c.Request().Context(), caller, id); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type grantRequest struct {
	Grantee       uuid.UUID `json:"grantee"`
	Level         string    `json:"level"`
	DurationHours int64     `json:"duration_hours"`
}

func (h *Handler) GrantAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.GrantAccess(c.Request().Context(), caller, id, req.Grantee, AccessLevel(req.Level), req.DurationHours); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListGrants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	grants, err := h.svc.ListGrants(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, grants)
}

func (h *Handler) RevokeAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	grantee, err := uuid.Parse(c.Param("grantee"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grantee")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RevokeAccess(c.Request().Context(), caller, id, grantee); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type emergencyGrantRequest struct {
	Requester     uuid.UUID `json:"requester"`
	EmergencyType string    `json:"emergency_type"`
}

func (h *Handler) GrantEmergencyAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req emergencyGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.GrantEmergencyAccess(c.Request().Context(), caller, id, req.Requester, req.EmergencyType); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CheckAccess(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	who, err := uuid.Parse(c.Param("who"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid identity")
	}
	decision, err := h.svc.CheckAccess(c.Request().Context(), id, who)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, decision)
}
