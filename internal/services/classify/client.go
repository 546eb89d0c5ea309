package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/civicstack/grievance-backend/internal/domain/enums"
)

// ErrUnavailable means the classifier did not produce a usable answer in
// time. Callers fall back to defaults rather than failing the submission.
var ErrUnavailable = errors.New("classifier unavailable")

// Result is the classifier verdict for a complaint: routing, triage and
// fraud signals.
type Result struct {
	Department string         `json:"department"`
	Confidence float64        `json:"confidence"`
	Summary    string         `json:"summary"`
	Priority   enums.Priority `json:"priority"`
	RiskScore  float64        `json:"risk_score"`
	IsFake     bool           `json:"is_fake"`
	FakeNotes  []string       `json:"fake_notes"`
}

type classifyRequest struct {
	Text      string   `json:"text"`
	Images    []string `json:"images,omitempty"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
}

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// Classify sends the complaint to the classifier. The HTTP client's timeout
// bounds the call; any transport or non-200 failure maps to ErrUnavailable.
func (c *Client) Classify(ctx context.Context, text string, images []string, lat, lon float64) (Result, error) {
	if c.http == nil {
		return Result{}, fmt.Errorf("http client is nil")
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("complaint text is required")
	}

	body, err := json.Marshal(classifyRequest{
		Text:      text,
		Images:    images,
		Latitude:  lat,
		Longitude: lon,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("classifier request failed", zap.Error(err))
		return Result{}, ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("classifier returned non-200", zap.Int("status", resp.StatusCode))
		return Result{}, ErrUnavailable
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.log.Warn("classifier response decode failed", zap.Error(err))
		return Result{}, ErrUnavailable
	}

	if strings.TrimSpace(result.Department) == "" {
		result.Department = "General"
	}
	if !result.Priority.Valid() {
		result.Priority = enums.PriorityMedium
	}

	return result, nil
}
