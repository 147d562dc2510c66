package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/liverlink/liverlink-backend/internal/logger"
	"github.com/liverlink/liverlink-backend/internal/utils"
)

// Features is the clinical feature vector the survival model expects. Field
// names match the inference service contract.
type Features struct {
	MELD                float64 `json:"meld"`
	Age                 float64 `json:"age"`
	Comorbidities       float64 `json:"comorbidities"`
	Bilirubin           float64 `json:"bilirubin"`
	INR                 float64 `json:"inr"`
	Creatinine          float64 `json:"creatinine"`
	AscitesGrade        float64 `json:"ascites_grade"`
	EncephalopathyGrade float64 `json:"encephalopathy_grade"`
	HospitalizedLast7d  float64 `json:"hospitalized_last_7d"`
}

// Client calls the survival inference service. The model itself is a black
// box; the only contract is a probability in [0,1] per feature vector.
type Client interface {
	PredictSurvival(ctx context.Context, features Features) (float64, error)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func ConfigFromEnv(log *logger.Logger) Config {
	return Config{
		BaseURL: strings.TrimSpace(os.Getenv("PREDICTOR_URL")),
		Timeout: time.Duration(utils.GetEnvAsInt("PREDICTOR_TIMEOUT_SECONDS", 10, log)) * time.Second,
	}
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv(log))
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("missing PREDICTOR_URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &client{
		log:        log.With("client", "PredictorClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

type predictRequest struct {
	Features Features `json:"features"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
}

func (c *client) PredictSurvival(ctx context.Context, features Features) (float64, error) {
	payload, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/predict", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("predictor request: %w", err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return 0, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("predictor http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("predictor decode error: %w", err)
	}
	if out.Probability < 0 || out.Probability > 1 {
		return 0, fmt.Errorf("predictor returned probability out of range: %v", out.Probability)
	}
	return out.Probability, nil
}
