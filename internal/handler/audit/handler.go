package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-settings/internal/handler"
	"github.com/jwalitptl/clinic-settings/internal/middleware"
	"github.com/jwalitptl/clinic-settings/internal/model"
	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
)

type AuditServicer interface {
	List(ctx context.Context, clinicID int64, limit int) ([]*model.SaveRecord, error)
}

type Handler struct {
	service AuditServicer
}

func NewHandler(service AuditServicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings/saves", h.ListSaves)
}

// ListSaves returns the caller's clinic save records, newest first.
func (h *Handler) ListSaves(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = c.Error(apperrors.NewBadRequest("invalid limit", err))
			return
		}
		limit = n
	}

	records, err := h.service.List(c.Request.Context(), middleware.ClinicID(c), limit)
	if err != nil {
		_ = c.Error(apperrors.NewInternal(err))
		return
	}
	if records == nil {
		records = []*model.SaveRecord{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(records))
}
