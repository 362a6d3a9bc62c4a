package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
)

// Config configures a ChatOracle.
type Config struct {
	// BaseURL of an OpenAI-compatible backend, without /v1.
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds each HTTP round trip (default: 60s).
	Timeout time.Duration

	// Temperature for decisions and assessments (default: 0.3). Replies
	// use ReplyTemperature (default: 0.7).
	Temperature      float64
	ReplyTemperature float64
}

// ChatOracle implements Oracle on the /v1/chat/completions API. Decisions
// and assessments request JSON object output.
type ChatOracle struct {
	httpClient *http.Client
	cfg        Config
}

var _ Oracle = (*ChatOracle)(nil)

// NewChatOracle creates a ChatOracle.
func NewChatOracle(cfg Config) *ChatOracle {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.ReplyTemperature == 0 {
		cfg.ReplyTemperature = 0.7
	}
	return &ChatOracle{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Decide asks the backend for the next decision.
func (o *ChatOracle) Decide(ctx context.Context, req *DecideRequest) (*Decision, error) {
	text, err := o.complete(ctx, "decide", []chatMessage{
		{Role: "system", Content: buildDecidePrompt(req)},
		{Role: "user", Content: req.Instruction},
	}, true, o.cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return ParseDecision(text)
}

// Assess asks the backend to judge the chain.
func (o *ChatOracle) Assess(ctx context.Context, req *AssessRequest) (*Assessment, error) {
	text, err := o.complete(ctx, "assess", []chatMessage{
		{Role: "system", Content: buildAssessPrompt(req)},
	}, true, o.cfg.Temperature)
	if err != nil {
		return nil, err
	}
	return ParseAssessment(text)
}

// Respond answers without capabilities.
func (o *ChatOracle) Respond(ctx context.Context, req *ReplyRequest) (string, error) {
	return o.complete(ctx, "respond", []chatMessage{
		{Role: "system", Content: buildRespondPrompt(req)},
		{Role: "user", Content: req.Instruction},
	}, false, o.cfg.ReplyTemperature)
}

// Synthesize writes the final reply from the chain's results.
func (o *ChatOracle) Synthesize(ctx context.Context, req *ReplyRequest) (string, error) {
	return o.complete(ctx, "synthesize", []chatMessage{
		{Role: "system", Content: buildSynthesizePrompt(req)},
	}, false, o.cfg.ReplyTemperature)
}

func (o *ChatOracle) complete(ctx context.Context, op string, msgs []chatMessage, jsonMode bool, temperature float64) (text string, err error) {
	ctx, span := observability.StartClientSpan(ctx, "oracle."+op, observability.AttrOracleOp.String(op))
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.OracleRequestsTotal.WithLabelValues(op, status).Inc()
		observability.OracleLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}()

	body := chatRequest{Model: o.cfg.Model, Messages: msgs, Temperature: temperature}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal oracle request: %w", err)
	}

	debug.Trace(debug.Oracle, "oracle request", "operation", op, "body", string(data))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: backend returned HTTP %d%s", ErrUnavailable, resp.StatusCode, errorMessage(resp.Body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformed)
	}

	text = cr.Choices[0].Message.Content
	debug.Trace(debug.Oracle, "oracle reply", "operation", op, "content", text)
	debug.Log(debug.Oracle, "oracle call", "operation", op, "duration", time.Since(start), "chars", len(text))
	return text, nil
}

func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var ce chatError
	if json.Unmarshal(data, &ce) == nil && ce.Error.Message != "" {
		return ": " + ce.Error.Message
	}
	return ""
}
