package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/abhisek/mca/internal/llm"
	"github.com/abhisek/mca/internal/pattern"
)

// maxReplyBytes caps how much of a reply body is read.
const maxReplyBytes = 64 << 10

// predictSchema is the /predict reply contract.
var predictSchema = &llm.Schema{
	Name: "svm-predict-reply",
	Definition: map[string]any{
		"type":     "object",
		"required": []any{"probabilities"},
		"properties": map[string]any{
			"probabilities": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
				"propertyNames":        map[string]any{"enum": []any{"A", "B", "C", "D", "E", "F"}},
			},
			"pattern":    map[string]any{"type": "string"},
			"confidence": map[string]any{"type": "number"},
		},
	},
}

type predictRequest struct {
	Signals map[string]float64 `json:"signals"`
}

type predictReply struct {
	Probabilities map[string]float64 `mapstructure:"probabilities"`
	Pattern       string             `mapstructure:"pattern"`
	Confidence    float64            `mapstructure:"confidence"`
}

// HTTPClassifier calls a score-based classification service:
// POST {base}/predict with signals on the 0–3 rubric scale, and
// GET {base}/health.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// HTTPOption configures an HTTPClassifier.
type HTTPOption func(*HTTPClassifier)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPClassifier) { h.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPClassifier) { h.headers[key] = value }
}

func NewHTTPClassifier(baseURL string, opts ...HTTPOption) *HTTPClassifier {
	h := &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		headers: map[string]string{},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *HTTPClassifier) Classify(ctx context.Context, s pattern.Signals) (pattern.Distribution, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(predictRequest{Signals: s.RubricScale()})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	raw, err := h.do(ctx, http.MethodPost, "/predict", body)
	if err != nil {
		return nil, unavailable("predict", err)
	}
	if err := llm.ValidateJSON(predictSchema, raw); err != nil {
		return nil, unavailable("predict", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, unavailable("predict", err)
	}
	var reply predictReply
	if err := mapstructure.Decode(generic, &reply); err != nil {
		return nil, unavailable("predict", fmt.Errorf("decode reply: %w", err))
	}

	d := make(pattern.Distribution, len(reply.Probabilities))
	for label, p := range reply.Probabilities {
		d[pattern.Pattern(label)] = p
	}
	out, err := checked(d)
	if err != nil {
		return nil, unavailable("predict", err)
	}
	return out, nil
}

// Health reports whether the service answers GET /health with 2xx.
func (h *HTTPClassifier) Health(ctx context.Context) error {
	if _, err := h.do(ctx, http.MethodGet, "/health", nil); err != nil {
		return unavailable("health", err)
	}
	return nil
}

func (h *HTTPClassifier) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: HTTP %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
