package handlers

import (
	goerrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liverlink/liverlink-backend/internal/logger"
	apperrors "github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/services"
	"github.com/liverlink/liverlink-backend/internal/types"
)

type DonorHandler struct {
	log        *logger.Logger
	donorRepo  repos.DonorRepo
	allocation services.AllocationService
	actions    services.ActionService
}

func NewDonorHandler(log *logger.Logger, donorRepo repos.DonorRepo, allocation services.AllocationService, actions services.ActionService) *DonorHandler {
	return &DonorHandler{
		log:        log.With("handler", "DonorHandler"),
		donorRepo:  donorRepo,
		allocation: allocation,
		actions:    actions,
	}
}

type createDonorRequest struct {
	QRCodeID            string `json:"qr_code_id" binding:"required"`
	Organ               string `json:"organ" binding:"required"`
	BloodType           string `json:"blood_type" binding:"required"`
	Age                 int    `json:"age"`
	CauseOfDeath        string `json:"cause_of_death"`
	CrossmatchScore     int    `json:"crossmatch_score"`
	ProcurementHospital string `json:"procurement_hospital"`
	ArrivalETAMin       int    `json:"arrival_eta_min"`
}

// POST /api/donors
func (h *DonorHandler) CreateDonor(c *gin.Context) {
	var req createDonorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	now := time.Now()
	donor := &types.Donor{
		ID:                  uuid.New(),
		QRCodeID:            strings.TrimSpace(req.QRCodeID),
		Organ:               strings.TrimSpace(req.Organ),
		BloodType:           strings.TrimSpace(req.BloodType),
		Age:                 req.Age,
		CauseOfDeath:        req.CauseOfDeath,
		CrossmatchScore:     req.CrossmatchScore,
		ProcurementHospital: req.ProcurementHospital,
		ArrivalETAMin:       req.ArrivalETAMin,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if _, err := h.donorRepo.Create(c.Request.Context(), nil, []*types.Donor{donor}); err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"donor": donor})
}

// GET /api/donors
func (h *DonorHandler) ListDonors(c *gin.Context) {
	donors, err := h.donorRepo.List(c.Request.Context(), nil, parseLimit(c, 50))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"donors": donors})
}

// GET /api/donors/:qr
func (h *DonorHandler) GetDonorByQR(c *gin.Context) {
	donor, err := h.donorRepo.GetByQRCodeID(c.Request.Context(), nil, c.Param("qr"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if donor == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}
	RespondOK(c, gin.H{"donor": donor})
}

// GET /api/donors/:qr/run
// Latest allocation run for the donor; nil history is a 404.
func (h *DonorHandler) GetLatestRunByQR(c *gin.Context) {
	ctx := c.Request.Context()

	donor, err := h.donorRepo.GetByQRCodeID(ctx, nil, c.Param("qr"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if donor == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}

	snap, err := h.actions.LatestForDonor(ctx, donor.ID)
	if err != nil {
		if goerrors.Is(err, apperrors.ErrRunNotFound) {
			RespondError(c, http.StatusNotFound, "run_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	RespondOK(c, snap)
}

// POST /api/donors/:qr/allocate
// Scanning a donor's QR code enqueues a new allocation run.
func (h *DonorHandler) AllocateByQR(c *gin.Context) {
	ctx := c.Request.Context()

	donor, err := h.donorRepo.GetByQRCodeID(ctx, nil, c.Param("qr"))
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if donor == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}

	run, err := h.allocation.EnqueueForDonor(ctx, donor)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}

	h.log.Info("Allocation run enqueued", "run_id", run.ID, "qr_code_id", donor.QRCodeID)
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}
