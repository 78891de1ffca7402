package settings

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-settings/internal/handler"
	"github.com/jwalitptl/clinic-settings/internal/middleware"
	"github.com/jwalitptl/clinic-settings/internal/model"
	settingsService "github.com/jwalitptl/clinic-settings/internal/service/settings"
	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
)

type SettingsServicer interface {
	Open(ctx context.Context, clinicID int64) (*model.EditSession, error)
	Get(ctx context.Context, clinicID int64, id uuid.UUID) (*model.EditSession, error)
	Update(ctx context.Context, clinicID int64, id uuid.UUID, patch model.Patch) (*model.EditSession, settingsService.Changes, error)
	Changes(ctx context.Context, clinicID int64, id uuid.UUID) (settingsService.Changes, error)
	Save(ctx context.Context, clinicID int64, id uuid.UUID) (*settingsService.SaveResult, error)
	Reset(ctx context.Context, clinicID int64, id uuid.UUID) (*model.EditSession, error)
	Close(ctx context.Context, clinicID int64, id uuid.UUID) error
}

type Handler struct {
	service SettingsServicer
}

func NewHandler(service SettingsServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/settings/sessions")
	{
		sessions.POST("", h.OpenSession)
		sessions.GET("/:id", h.GetSession)
		sessions.PATCH("/:id", h.UpdateSession)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.GET("/:id/changes", h.GetChanges)
		sessions.POST("/:id/save", h.SaveSession)
		sessions.POST("/:id/reset", h.ResetSession)
	}
}

// sessionResponse is a session plus the sections currently dirty in it.
type sessionResponse struct {
	*model.EditSession
	Changes settingsService.Changes `json:"changes"`
}

func newSessionResponse(s *model.EditSession) sessionResponse {
	return sessionResponse{
		EditSession: s,
		Changes:     changesOrEmpty(settingsService.DetectChanges(s.Snapshot.Current, s.Snapshot.Original)),
	}
}

type changesResponse struct {
	HasChanges bool                    `json:"has_changes"`
	Changes    settingsService.Changes `json:"changes"`
}

func newChangesResponse(c settingsService.Changes) changesResponse {
	return changesResponse{HasChanges: c.Any(), Changes: changesOrEmpty(c)}
}

type saveResponse struct {
	Status  model.SaveStatus `json:"status"`
	Summary string           `json:"summary,omitempty"`
	*settingsService.SaveResult
}

func changesOrEmpty(c settingsService.Changes) settingsService.Changes {
	if c == nil {
		return settingsService.Changes{}
	}
	return c
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid session ID", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) OpenSession(c *gin.Context) {
	session, err := h.service.Open(c.Request.Context(), middleware.ClinicID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(newSessionResponse(session)))
}

func (h *Handler) GetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.Get(c.Request.Context(), middleware.ClinicID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(newSessionResponse(session)))
}

func (h *Handler) UpdateSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var patch model.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid patch body", err))
		return
	}

	session, changes, err := h.service.Update(c.Request.Context(), middleware.ClinicID(c), id, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessionResponse{
		EditSession: session,
		Changes:     changesOrEmpty(changes),
	}))
}

func (h *Handler) GetChanges(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	changes, err := h.service.Changes(c.Request.Context(), middleware.ClinicID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(newChangesResponse(changes)))
}

// SaveSession answers 200 when every dirty domain saved, 207 when some did
// and 502 when none did. The report is returned in all three cases.
func (h *Handler) SaveSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	result, err := h.service.Save(c.Request.Context(), middleware.ClinicID(c), id)
	if result == nil {
		if err == nil {
			err = apperrors.NewInternal(nil)
		}
		_ = c.Error(err)
		return
	}

	status := result.Report.Status()
	resp := saveResponse{Status: status, SaveResult: result}
	if err != nil {
		resp.Summary = result.Report.Summary()
	}

	switch status {
	case model.SaveStatusSuccess:
		c.JSON(http.StatusOK, handler.NewSuccessResponse(resp))
	case model.SaveStatusPartialFailure:
		c.JSON(http.StatusMultiStatus, &handler.Response{
			Status:  "partial_failure",
			Message: resp.Summary,
			Data:    resp,
		})
	default:
		c.JSON(http.StatusBadGateway, &handler.Response{
			Status:  "error",
			Message: resp.Summary,
			Data:    resp,
		})
	}
}

func (h *Handler) ResetSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	session, err := h.service.Reset(c.Request.Context(), middleware.ClinicID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(newSessionResponse(session)))
}

func (h *Handler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.service.Close(c.Request.Context(), middleware.ClinicID(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
