package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/liverlink/liverlink-backend/internal/logger"
	apperrors "github.com/liverlink/liverlink-backend/internal/pkg/errors"
	"github.com/liverlink/liverlink-backend/internal/repos"
	"github.com/liverlink/liverlink-backend/internal/types"
)

type PatientHandler struct {
	log         *logger.Logger
	patientRepo repos.PatientRepo
}

func NewPatientHandler(log *logger.Logger, patientRepo repos.PatientRepo) *PatientHandler {
	return &PatientHandler{
		log:         log.With("handler", "PatientHandler"),
		patientRepo: patientRepo,
	}
}

type createPatientRequest struct {
	Name      string `json:"name" binding:"required"`
	BloodType string `json:"blood_type" binding:"required"`
	Phone     string `json:"phone"`

	UrgencyIndex  int     `json:"urgency_index"`
	HLAMatch      int     `json:"hla_match"`
	AntibodyLevel int     `json:"antibody_level"`
	DistanceKM    float64 `json:"distance_km"`
	ICUAvailable  bool    `json:"icu_available"`
	ORAvailable   bool    `json:"or_available"`

	HCC                 bool `json:"hcc"`
	Diabetes            bool `json:"diabetes"`
	RenalFailure        bool `json:"renal_failure"`
	VentilatorDependent bool `json:"ventilator_dependent"`

	Age                 int     `json:"age"`
	Comorbidities       int     `json:"comorbidities"`
	Bilirubin           float64 `json:"bilirubin"`
	INR                 float64 `json:"inr"`
	Creatinine          float64 `json:"creatinine"`
	AscitesGrade        int     `json:"ascites_grade"`
	EncephalopathyGrade int     `json:"encephalopathy_grade"`
	HospitalizedLast7d  bool    `json:"hospitalized_last_7d"`
	WaitlistDays        int     `json:"waitlist_days"`
}

// POST /api/patients
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}

	now := time.Now()
	patient := &types.Patient{
		ID:                  uuid.New(),
		Name:                strings.TrimSpace(req.Name),
		BloodType:           strings.TrimSpace(req.BloodType),
		Phone:               strings.TrimSpace(req.Phone),
		UrgencyIndex:        req.UrgencyIndex,
		HLAMatch:            req.HLAMatch,
		AntibodyLevel:       req.AntibodyLevel,
		DistanceKM:          req.DistanceKM,
		ICUAvailable:        req.ICUAvailable,
		ORAvailable:         req.ORAvailable,
		HCC:                 req.HCC,
		Diabetes:            req.Diabetes,
		RenalFailure:        req.RenalFailure,
		VentilatorDependent: req.VentilatorDependent,
		Age:                 req.Age,
		Comorbidities:       req.Comorbidities,
		Bilirubin:           req.Bilirubin,
		INR:                 req.INR,
		Creatinine:          req.Creatinine,
		AscitesGrade:        req.AscitesGrade,
		EncephalopathyGrade: req.EncephalopathyGrade,
		HospitalizedLast7d:  req.HospitalizedLast7d,
		WaitlistDays:        req.WaitlistDays,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if _, err := h.patientRepo.Create(c.Request.Context(), nil, []*types.Patient{patient}); err != nil {
		RespondError(c, http.StatusInternalServerError, "create_failed", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"patient": patient})
}

// GET /api/patients
func (h *PatientHandler) ListWaitlist(c *gin.Context) {
	patients, err := h.patientRepo.ListWaitlist(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"patients": patients})
}

// GET /api/patients/:id
func (h *PatientHandler) GetPatient(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	patient, err := h.patientRepo.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "get_failed", err)
		return
	}
	if patient == nil {
		RespondError(c, http.StatusNotFound, "not_found", apperrors.ErrNotFound)
		return
	}
	RespondOK(c, gin.H{"patient": patient})
}

func parseLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
