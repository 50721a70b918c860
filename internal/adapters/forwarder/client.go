package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/metrics"
	"github.com/mikey/agenda-relay/internal/utils"
)

// DefaultTimeout bounds a single forward request
const DefaultTimeout = 60 * time.Second

// maxResponseSize caps how much of the service response is read
const maxResponseSize = 1 << 20

// Request is the JSON document posted to the scheduling service
type Request struct {
	From    string   `json:"from"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	Cc      []string `json:"cc"`
	To      []string `json:"to"`
}

// HTTPForwarder is an implementation of the core.Forwarder interface posting JSON over HTTP
type HTTPForwarder struct {
	client        *http.Client
	endpoint      string
	userAgent     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewHTTPForwarder creates a new forwarder for the given endpoint
func NewHTTPForwarder(
	endpoint string,
	timeout time.Duration,
	userAgent string,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *HTTPForwarder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &HTTPForwarder{
		client:        &http.Client{Timeout: timeout},
		endpoint:      endpoint,
		userAgent:     userAgent,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Forward posts the message and classifies the answer
func (f *HTTPForwarder) Forward(ctx context.Context, msg *core.ParsedMessage) *core.ForwardResult {
	started := time.Now()
	result := f.forward(ctx, msg)
	result.Duration = time.Since(started)

	metrics.ForwardDuration.WithLabelValues(string(result.Outcome)).Observe(result.Duration.Seconds())
	return result
}

func (f *HTTPForwarder) forward(ctx context.Context, msg *core.ParsedMessage) *core.ForwardResult {
	payload, err := json.Marshal(f.newRequest(msg))
	if err != nil {
		return transportError(fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(payload))
	if err != nil {
		return transportError(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Error("Forward request failed", zap.String("endpoint", f.endpoint), zap.Error(err))
		return transportError(err)
	}
	defer resp.Body.Close()

	fields := f.decodeResponse(resp)
	return Classify(resp.StatusCode, fields, msg.Subject)
}

func (f *HTTPForwarder) newRequest(msg *core.ParsedMessage) Request {
	req := Request{
		From:    msg.ForwardAddress(),
		Subject: msg.Subject,
		Body:    f.textProcessor.TruncateText(msg.Body, f.maxBodySize),
		Cc:      msg.Cc,
		To:      msg.To,
	}
	// Always send arrays, never null
	if req.Cc == nil {
		req.Cc = []string{}
	}
	if req.To == nil {
		req.To = []string{}
	}
	return req
}

// decodeResponse returns the JSON object of a response.
// Non-JSON content types and undecodable bodies yield an empty object.
func (f *HTTPForwarder) decodeResponse(resp *http.Response) map[string]any {
	fields := map[string]any{}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(contentType, "application/json") {
		f.logger.Debug("Non-JSON response from scheduling service",
			zap.Int("status", resp.StatusCode),
			zap.String("content_type", contentType))
		return fields
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		f.logger.Warn("Failed to read response body", zap.Error(err))
		return fields
	}
	if err := json.Unmarshal(body, &fields); err != nil {
		f.logger.Warn("Failed to decode JSON response", zap.Error(err), zap.Int("status", resp.StatusCode))
		return map[string]any{}
	}
	return fields
}

// Classify interprets a service response; the first matching rule wins:
// accepted 200, conflict, missing data, unauthorized domain, everything else is an error.
func Classify(statusCode int, fields map[string]any, subject string) *core.ForwardResult {
	result := &core.ForwardResult{
		StatusCode: statusCode,
		Details:    map[string]string{},
	}
	reason := core.Reason(stringField(fields, "reason"))

	switch {
	case statusCode == http.StatusOK && fields["success"] == true:
		result.Accepted = true
		result.Outcome = core.OutcomeSuccess
		result.Reason = core.ReasonNone
		result.Details[core.DetailTitle] = fieldOr(fields, "title", subject)
		result.Details[core.DetailDate] = fieldOr(fields, "date", "?")
		result.Details[core.DetailLocation] = fieldOr(fields, "location", "?")
	case reason == core.ReasonConflict:
		result.Outcome = core.OutcomeConflict
		result.Reason = core.ReasonConflict
		result.Details[core.DetailLocation] = fieldOr(fields, "location", "?")
		result.Details[core.DetailDate] = fieldOr(fields, "date", "?")
	case reason == core.ReasonMissingDateTime || reason == core.ReasonMissingRoom:
		result.Outcome = core.OutcomeRejected
		result.Reason = reason
	case reason == core.ReasonUnauthorizedDomain:
		result.Outcome = core.OutcomeRejected
		result.Reason = core.ReasonUnauthorizedDomain
	default:
		result.Outcome = core.OutcomeError
		result.Reason = core.ReasonOtherError
		result.Details[core.DetailError] = fieldOr(fields, "error", fmt.Sprintf("HTTP %d", statusCode))
	}
	return result
}

func transportError(err error) *core.ForwardResult {
	return &core.ForwardResult{
		Outcome: core.OutcomeError,
		Reason:  core.ReasonOtherError,
		Details: map[string]string{core.DetailError: err.Error()},
	}
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func fieldOr(fields map[string]any, key, fallback string) string {
	if s := stringField(fields, key); s != "" {
		return s
	}
	return fallback
}
