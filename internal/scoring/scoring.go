package scoring

import "math"

// Composite score weights. Fixed policy constants; they sum to 1.0.
const (
	WeightUrgency        = 0.35
	WeightSurvival       = 0.25
	WeightImmunological  = 0.12
	WeightDistance       = 0.10
	WeightReadiness      = 0.10
	WeightRiskAdjustment = 0.08
)

// Risk flag penalties subtracted from the risk-adjustment sub-score.
const (
	PenaltyHCC                 = 0.20
	PenaltyDiabetes            = 0.10
	PenaltyRenalFailure        = 0.15
	PenaltyVentilatorDependent = 0.25
)

const (
	maxUrgencyIndex = 40.0
	maxDistanceKM   = 1000.0

	icuUnavailableScore = 0.3
	orUnavailableScore  = 0.5
)

// Breakdown holds the six sub-scores, each in [0,1], plus the weighted
// composite. It is embedded verbatim in the persisted ranked list.
type Breakdown struct {
	Urgency        float64 `json:"urgency"`
	Survival       float64 `json:"survival"`
	Immunological  float64 `json:"immunological"`
	Distance       float64 `json:"distance"`
	Readiness      float64 `json:"readiness"`
	RiskAdjustment float64 `json:"risk_adjustment"`
	Composite      float64 `json:"composite"`
}

// Input is one candidate's markers plus the donor-relative distance. The
// survival probability comes from the external estimator and is already in
// [0,1].
type Input struct {
	UrgencyIndex        int
	SurvivalProbability float64
	HLAMatchPercent     int
	AntibodyLevel       int
	DistanceKM          float64
	ICUAvailable        bool
	ORAvailable         bool

	HCC                 bool
	Diabetes            bool
	RenalFailure        bool
	VentilatorDependent bool
}

// Score computes the full breakdown for one candidate. Pure and
// deterministic: identical inputs always produce identical outputs.
func Score(in Input) Breakdown {
	b := Breakdown{
		Urgency:        clamp01(float64(in.UrgencyIndex) / maxUrgencyIndex),
		Survival:       clamp01(in.SurvivalProbability),
		Immunological:  immunological(in.HLAMatchPercent, in.AntibodyLevel),
		Distance:       distance(in.DistanceKM),
		Readiness:      readiness(in.ICUAvailable, in.ORAvailable),
		RiskAdjustment: riskAdjustment(in),
	}
	b.Composite = WeightUrgency*b.Urgency +
		WeightSurvival*b.Survival +
		WeightImmunological*b.Immunological +
		WeightDistance*b.Distance +
		WeightReadiness*b.Readiness +
		WeightRiskAdjustment*b.RiskAdjustment
	return b
}

func immunological(hlaMatchPercent, antibodyLevel int) float64 {
	hla := clamp01(float64(hlaMatchPercent) / 100.0)
	antibody := 1.0 - clamp01(float64(antibodyLevel)/100.0)
	return (hla + antibody) / 2.0
}

func distance(km float64) float64 {
	return 1.0 - math.Min(math.Max(km, 0), maxDistanceKM)/maxDistanceKM
}

func readiness(icuAvailable, orAvailable bool) float64 {
	icu := icuUnavailableScore
	if icuAvailable {
		icu = 1.0
	}
	or := orUnavailableScore
	if orAvailable {
		or = 1.0
	}
	return (icu + or) / 2.0
}

func riskAdjustment(in Input) float64 {
	penalty := 0.0
	if in.HCC {
		penalty += PenaltyHCC
	}
	if in.Diabetes {
		penalty += PenaltyDiabetes
	}
	if in.RenalFailure {
		penalty += PenaltyRenalFailure
	}
	if in.VentilatorDependent {
		penalty += PenaltyVentilatorDependent
	}
	return math.Max(0.0, 1.0-penalty)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
