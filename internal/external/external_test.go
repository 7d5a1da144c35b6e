package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mca/internal/llm"
	"github.com/abhisek/mca/internal/pattern"
)

var passive = pattern.Signals{
	TaskDecomposition: 0.1, GoalClarity: 0.1, StrategyPlanning: 0.1, RoleDefinition: 0.1,
	ProgressTracking: 0.1, VerificationRate: 0.1, TrustCalibration: 0.1,
	QualityEvaluation: 0.1, RiskAwareness: 0.1, CapabilityJudgment: 0.1,
	IterationRate: 0.1, ToolSwitching: 0.1,
}

func svmServer(t *testing.T, status int, reply string, seen *predictRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.WriteHeader(status)
		w.Write([]byte(reply))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClassifier(t *testing.T) {
	var seen predictRequest
	srv := svmServer(t, 200, `{"pattern":"F","confidence":0.6,"probabilities":{"A":0.05,"B":0.05,"C":0.1,"D":0.05,"E":0.05,"F":0.7}}`, &seen)
	c := NewHTTPClassifier(srv.URL+"/", WithHeader("X-Api-Key", "secret"))

	d, err := c.Classify(context.Background(), passive)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, d[pattern.F], 1e-9)
	assert.InDelta(t, 1.0, d.Sum(), 1e-9)

	// Signals go out on the rubric scale.
	assert.InDelta(t, 0.3, seen.Signals["p1"], 1e-9)
	assert.Len(t, seen.Signals, 12)

	assert.NoError(t, c.Health(context.Background()))
}

func TestHTTPClassifierRenormalizesPartialReply(t *testing.T) {
	srv := svmServer(t, 200, `{"probabilities":{"A":0.2,"F":0.6}}`, nil)
	d, err := NewHTTPClassifier(srv.URL, WithHeader("X-Api-Key", "secret")).Classify(context.Background(), passive)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, d[pattern.F], 1e-9)
	assert.Zero(t, d[pattern.C])
}

func TestHTTPClassifierFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
	}{
		{"server error", 500, `{}`},
		{"not json", 200, `<html>`},
		{"missing probabilities", 200, `{"pattern":"A"}`},
		{"unknown label", 200, `{"probabilities":{"Z":1}}`},
		{"probability above one", 200, `{"probabilities":{"A":1.5}}`},
		{"mass above one", 200, `{"probabilities":{"A":0.9,"B":0.9}}`},
		{"zero mass", 200, `{"probabilities":{"A":0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := svmServer(t, tt.status, tt.reply, nil)
			_, err := NewHTTPClassifier(srv.URL, WithHeader("X-Api-Key", "secret")).Classify(context.Background(), passive)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestHTTPClassifierTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPClassifier(srv.URL).Classify(ctx, passive)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClassifierRejectsBadSignals(t *testing.T) {
	bad := passive
	bad.VerificationRate = 1.2
	_, err := NewHTTPClassifier("http://unused").Classify(context.Background(), bad)
	assert.ErrorIs(t, err, pattern.ErrMalformedInput)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClassifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClassifier(url)
	_, err := c.Classify(context.Background(), passive)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.Health(context.Background()), ErrUnavailable)
}

func TestLLMClassifier(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockJSON(map[string]float64{
		"A": 0.05, "B": 0.05, "C": 0.1, "D": 0.05, "E": 0.05, "F": 0.7,
	}))
	c := NewLLMClassifier(mock, nil)

	d, err := c.Classify(context.Background(), passive)
	require.NoError(t, err)
	top, p, _, _ := d.Top()
	assert.Equal(t, pattern.F, top)
	assert.InDelta(t, 0.7, p, 1e-9)

	require.Equal(t, 1, mock.CallCount())
	req := mock.Calls[0]
	assert.Equal(t, "pattern-distribution", req.Schema.Name)
	assert.Contains(t, req.Messages[0].Content, "m2 (quality checking): 0.10")
	assert.Contains(t, req.Messages[0].Content, "query ratio: 0.90")
}

func TestLLMClassifierFailures(t *testing.T) {
	tests := []struct {
		name string
		resp llm.MockResponse
	}{
		{"provider down", llm.MockResponse{Err: &llm.ErrProviderUnavailable{Err: errors.New("down")}}},
		{"missing label", llm.MockJSON(map[string]float64{"A": 1})},
		{"mass above one", llm.MockJSON(map[string]float64{"A": 0.9, "B": 0.9, "C": 0, "D": 0, "E": 0, "F": 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLLMClassifier(llm.NewMockProvider(tt.resp), nil).Classify(context.Background(), passive)
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	c, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(Config{Kind: KindHTTP}, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Kind: "svm"}, nil, nil)
	assert.Error(t, err)

	c, err = New(Config{Kind: KindHTTP, BaseURL: "http://svm:5000", Options: map[string]any{
		"headers": map[string]any{"X-Api-Key": "secret"},
	}}, nil, nil)
	require.NoError(t, err)
	h := c.(*HTTPClassifier)
	assert.Equal(t, "secret", h.headers["X-Api-Key"])
	assert.Equal(t, 2*DefaultTimeout, h.client.Timeout)

	_, err = New(Config{Kind: KindLLM}, nil, nil)
	assert.Error(t, err)

	c, err = New(Config{Kind: KindLLM, Options: map[string]any{"max_tokens": 512, "temperature": 0.2}}, llm.NewMockProvider(), nil)
	require.NoError(t, err)
	lc := c.(*LLMClassifier)
	assert.Equal(t, 512, lc.maxTokens)
	assert.InDelta(t, 0.2, lc.temperature, 1e-9)

	_, err = New(Config{Kind: KindLLM, Options: map[string]any{"max_tokens": "many"}}, llm.NewMockProvider(), nil)
	assert.Error(t, err)
}
