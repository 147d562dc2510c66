package handlers

import (
	goerrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liverlink/liverlink-backend/internal/logger"
	apperrors "github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/services"
)

type AllocationHandler struct {
	log     *logger.Logger
	actions services.ActionService
}

func NewAllocationHandler(log *logger.Logger, actions services.ActionService) *AllocationHandler {
	return &AllocationHandler{
		log:     log.With("handler", "AllocationHandler"),
		actions: actions,
	}
}

// GET /api/runs/:id
func (h *AllocationHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}

	snap, err := h.actions.Snapshot(c.Request.Context(), runID)
	if err != nil {
		h.respondActionError(c, err)
		return
	}
	RespondOK(c, snap)
}

// GET /api/runs
func (h *AllocationHandler) ListRuns(c *gin.Context) {
	snaps, err := h.actions.History(c.Request.Context(), parseLimit(c, 20))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"runs": snaps})
}

type contactRequest struct {
	CandidateID uuid.UUID `json:"candidate_id" binding:"required"`
	Message     string    `json:"message"`
}

// POST /api/runs/:id/contact
func (h *AllocationHandler) ContactCandidate(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	snap, err := h.actions.Contact(c.Request.Context(), runID, req.CandidateID, req.Message)
	if err != nil {
		h.respondActionError(c, err)
		return
	}
	RespondOK(c, snap)
}

type acceptRequest struct {
	CandidateID uuid.UUID `json:"candidate_id" binding:"required"`
}

// POST /api/runs/:id/accept
func (h *AllocationHandler) AcceptCandidate(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	var req acceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	snap, err := h.actions.Accept(c.Request.Context(), runID, req.CandidateID)
	if err != nil {
		h.respondActionError(c, err)
		return
	}
	RespondOK(c, snap)
}

func (h *AllocationHandler) respondActionError(c *gin.Context, err error) {
	switch {
	case goerrors.Is(err, apperrors.ErrRunNotFound):
		RespondError(c, http.StatusNotFound, "run_not_found", err)
	case goerrors.Is(err, apperrors.ErrCandidateNotRanked):
		RespondError(c, http.StatusUnprocessableEntity, "candidate_not_ranked", err)
	case goerrors.Is(err, apperrors.ErrAlreadyAllocated):
		RespondError(c, http.StatusConflict, "already_allocated", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
