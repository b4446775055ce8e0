package emergency

import (
	"net/http"
	"strconv"

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
	api.POST("/emergency/profiles", h.CreateProfile)
	api.PUT("/emergency/profiles", h.UpdateProfile)
	api.GET("/emergency/profiles/:patient", h.GetProfile)
	api.DELETE("/emergency/profiles", h.DeactivateProfile)
	api.POST("/emergency/requests", h.RequestAccess)
	api.GET("/emergency/requests", h.ListRequests)
	api.GET("/emergency/requests/:id", h.GetRequest)
	api.POST("/emergency/requests/:id/grant", h.GrantAccess)
	api.DELETE("/emergency/access/:patient/:requester", h.RevokeAccess)
	api.GET("/emergency/access/:patient/:requester", h.CheckAccess)
}

type profileRequest struct {
	BloodType        string   `json:"blood_type"`
	Allergies        []string `json:"allergies"`
	Medications      []string `json:"medications"`
	Conditions       []string `json:"conditions"`
	EmergencyContact string   `json:"emergency_contact"`
	InsuranceRef     string   `json:"insurance_ref"`
}

func (r profileRequest) toProfile() Profile {
	return Profile{
		BloodType:        r.BloodType,
		Allergies:        r.Allergies,
		Medications:      r.Medications,
		Conditions:       r.Conditions,
		EmergencyContact: r.EmergencyContact,
		InsuranceRef:     r.InsuranceRef,
	}
}

func (h *Handler) CreateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.CreateEmergencyProfile(c.Request().Context(), caller, req.toProfile())
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"profile_id": id.String()})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.UpdateEmergencyProfile(c.Request().Context(), caller, req.toProfile()); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetProfile(c echo.Context) error {
	patient, err := uuid.Parse(c.Param("patient"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient")
	}
	p, err := h.svc.GetProfile(c.Request().Context(), patient)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeactivateProfile(c echo.Context) error {
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.DeactivateProfile(c.Request().Context(), caller); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type accessRequest struct {
	Patient       uuid.UUID `json:"patient"`
	EmergencyType string    `json:"emergency_type"`
	Location      string    `json:"location"`
	UrgencyLevel  int       `json:"urgency_level"`
}

func (h *Handler) RequestAccess(c echo.Context) error {
	var req accessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.RequestEmergencyAccess(c.Request().Context(), caller, req.Patient, req.EmergencyType, req.Location, req.UrgencyLevel)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	request, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, request)
}

func (h *Handler) GetRequest(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	request, err := h.svc.GetRequest(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, request)
}

func (h *Handler) ListRequests(c echo.Context) error {
	patient, err := uuid.Parse(c.QueryParam("patient"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRequestsByPatient(c.Request().Context(), patient, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GrantAccess(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.GrantEmergencyAccess(c.Request().Context(), caller, id); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RevokeAccess(c echo.Context) error {
	patient, requester, err := pairParams(c)
	if err != nil {
		return err
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.RevokeEmergencyAccess(c.Request().Context(), caller, patient, requester); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CheckAccess(c echo.Context) error {
	patient, requester, err := pairParams(c)
	if err != nil {
		return err
	}
	d, err := h.svc.CheckEmergencyAccess(c.Request().Context(), patient, requester)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func pairParams(c echo.Context) (patient, requester uuid.UUID, err error) {
	patient, err = uuid.Parse(c.Param("patient"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient")
	}
	requester, err = uuid.Parse(c.Param("requester"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid requester")
	}
	return patient, requester, nil
}
