package crisis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mindline/platform/pkg/logging"
)

// Risk levels reported by the analyzer.
const (
	RiskNormal    = "Normal"
	RiskDepressed = "Depressed"
	RiskSuicidal  = "Suicidal"
)

// Assessment is the analyzer verdict for a single message. Escalate is the
// only field the coordinator acts on; the rest is carried for audit and UI.
type Assessment struct {
	RiskLevel  string  `json:"risk_level"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Escalate   bool    `json:"escalate"`
}

// Detector evaluates a patient message for crisis signals.
type Detector interface {
	Assess(ctx context.Context, text string) (Assessment, error)
}

var suicidalKeywords = []string{
	"suicide", "kill myself", "end my life", "want to die", "better off dead",
	"end it all", "take my own life", "not worth living", "wish i was dead",
}

var depressedKeywords = []string{
	"hopeless", "worthless", "useless", "burden", "hate myself",
	"severely depressed", "can't go on", "no point", "empty inside",
}

// KeywordDetector is the fallback keyword matcher. Only suicidal-tier
// matches trigger an escalation.
type KeywordDetector struct{}

// NewKeywordDetector creates a keyword detector.
func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{}
}

// Assess matches the message against the keyword tiers.
func (d *KeywordDetector) Assess(ctx context.Context, text string) (Assessment, error) {
	lower := strings.ToLower(text)

	for _, kw := range suicidalKeywords {
		if strings.Contains(lower, kw) {
			return Assessment{RiskLevel: RiskSuicidal, Confidence: 0.9, Method: "fallback", Escalate: true}, nil
		}
	}
	for _, kw := range depressedKeywords {
		if strings.Contains(lower, kw) {
			return Assessment{RiskLevel: RiskDepressed, Confidence: 0.8, Method: "fallback"}, nil
		}
	}
	return Assessment{RiskLevel: RiskNormal, Confidence: 0.7, Method: "fallback"}, nil
}

// ServiceDetector calls the external risk-analyzer service and falls back to
// keyword matching when the service is unreachable or answers badly.
type ServiceDetector struct {
	baseURL  string
	client   *http.Client
	fallback *KeywordDetector
	logger   *logging.Logger
}

// NewServiceDetector creates a detector backed by the risk-analyzer service.
func NewServiceDetector(baseURL string, timeout time.Duration, logger *logging.Logger) *ServiceDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ServiceDetector{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		fallback: NewKeywordDetector(),
		logger:   logger,
	}
}

// Assess asks the analyzer service; keyword fallback on any failure.
func (d *ServiceDetector) Assess(ctx context.Context, text string) (Assessment, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Assessment{}, fmt.Errorf("crisis: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/analyze-risk", bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("crisis: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("crisis: analyzer unreachable, using keyword fallback", "error", err)
		return d.fallback.Assess(ctx, text)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("crisis: analyzer returned error, using keyword fallback", "status", resp.StatusCode)
		return d.fallback.Assess(ctx, text)
	}

	var result Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		d.logger.Warn("crisis: bad analyzer response, using keyword fallback", "error", err)
		return d.fallback.Assess(ctx, text)
	}
	result.Escalate = result.RiskLevel == RiskSuicidal
	return result, nil
}

var (
	_ Detector = (*KeywordDetector)(nil)
	_ Detector = (*ServiceDetector)(nil)
)
