package research

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
	api.POST("/studies", h.CreateStudy)
	api.GET("/studies", h.ListStudies)
	api.GET("/studies/:id", h.GetStudy)
	api.POST("/studies/:id/join", h.JoinStudy)
	api.POST("/studies/:id/leave", h.LeaveStudy)
	api.GET("/studies/:id/participants", h.ListParticipants)
	api.POST("/studies/:id/contributions", h.ContributeData)
	api.GET("/studies/:id/contributions", h.ListContributions)
	api.POST("/studies/:id/contributions/:contributionId/validate", h.ValidateAndPayContribution)
	api.POST("/studies/:id/complete", h.CompleteStudy)
	api.POST("/studies/:id/pause", h.PauseStudy)
	api.POST("/studies/:id/resume", h.ResumeStudy)
}

type createStudyRequest struct {
	DataTypes        []string `json:"data_types"`
	UnitCompensation int64    `json:"unit_compensation"`
	Capacity         int      `json:"capacity"`
	DurationWeeks    int      `json:"duration_weeks"`
}

func (h *Handler) CreateStudy(c echo.Context) error {
	var req createStudyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	id, err := h.svc.CreateStudy(c.Request().Context(), caller, req.DataTypes, req.UnitCompensation, req.Capacity, req.DurationWeeks)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"study_id": id.String()})
}

func (h *Handler) GetStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	study, err := h.svc.GetStudy(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, study)
}

func (h *Handler) ListStudies(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListStudies(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type joinStudyRequest struct {
	DataTypeConsents []string `json:"data_type_consents"`
}

func (h *Handler) JoinStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req joinStudyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.JoinStudy(c.Request().Context(), caller, id, req.DataTypeConsents); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) LeaveStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.LeaveStudy(c.Request().Context(), caller, id); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListParticipants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	participants, err := h.svc.ListParticipants(c.Request().Context(), id)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, participants)
}

type contributeRequest struct {
	DataType   string `json:"data_type"`
	ContentRef string `json:"content_ref"`
	Value      int64  `json:"value"`
}

func (h *Handler) ContributeData(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req contributeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	contributionID, err := h.svc.ContributeData(c.Request().Context(), caller, id, req.DataType, req.ContentRef, req.Value)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"contribution_id": contributionID.String()})
}

func (h *Handler) ListContributions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListContributions(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return httperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type validateRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) ValidateAndPayContribution(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	contributionID, err := uuid.Parse(c.Param("contributionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid contribution id")
	}
	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.ValidateAndPayContribution(c.Request().Context(), caller, id, contributionID, req.Amount); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CompleteStudy(c echo.Context) error {
	return h.transition(c, h.svc.CompleteStudy)
}

func (h *Handler) ResumeStudy(c echo.Context) error {
	return h.transition(c, h.svc.ResumeStudy)
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) PauseStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req pauseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	caller := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.PauseStudy(c.Request().Context(), caller, id, req.Reason); err != nil {
		return httperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) transition(c echo.Context, fn func(ctx context.Context, caller, studyID uuid.UUID) error) error {
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
