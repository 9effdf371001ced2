package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/fetcher"
	"github.com/crawlkit/browserfetch/internal/fetcher/metrics"
	"github.com/crawlkit/browserfetch/pkg/types"
)

// HardTimeout bounds how long one fetch may run before it is cancelled.
type HardTimeout struct {
	Max time.Duration
}

// FetchWireRequest is the JSON body of POST /fetch.
type FetchWireRequest struct {
	RequestID    string            `json:"request_id,omitempty"`
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         []byte            `json:"body,omitempty"`
	BodyEncoding string            `json:"body_encoding,omitempty"`
	ContextName  string            `json:"context_name,omitempty"`
	Context      *ContextWireSpec  `json:"context,omitempty"`
	PageMethods  []PageMethodSpec  `json:"page_methods,omitempty"`
	Timeout      types.Duration    `json:"timeout,omitempty"`
}

// ContextWireSpec describes a browsing context to create on first reference.
type ContextWireSpec struct {
	UserDataDir       string        `json:"user_data_dir,omitempty"`
	UserAgent         string        `json:"user_agent,omitempty"`
	IgnoreHTTPSErrors *bool         `json:"ignore_https_errors,omitempty"`
	BypassCSP         *bool         `json:"bypass_csp,omitempty"`
	JavaScriptEnabled *bool         `json:"javascript_enabled,omitempty"`
	Viewport          *ViewportSpec `json:"viewport,omitempty"`
}

// ViewportSpec sets the context viewport dimensions.
type ViewportSpec struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageMethodSpec is one scripted page action requested over the wire.
type PageMethodSpec struct {
	Name string        `json:"name"`
	Args []interface{} `json:"args,omitempty"`
}

// FetchWireResponse is the JSON body answered by POST /fetch.
type FetchWireResponse struct {
	RequestID string      `json:"request_id"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	URL       string      `json:"url,omitempty"`
	Status    int         `json:"status,omitempty"`
	Headers   http.Header `json:"headers,omitempty"`
	Body      []byte      `json:"body,omitempty"`
	Encoding  string      `json:"encoding,omitempty"`

	Redirects types.RedirectInfo `json:"redirects"`

	IPAddress  string `json:"ip_address,omitempty"`
	ServerPort int    `json:"server_port,omitempty"`

	FromDownload      bool   `json:"from_download,omitempty"`
	SuggestedFilename string `json:"suggested_filename,omitempty"`

	PageMethodResults []interface{} `json:"page_method_results,omitempty"`

	LatencySeconds float64 `json:"latency_seconds"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	OpenContexts int    `json:"open_contexts"`
	OpenPages    int    `json:"open_pages"`
}

// writeJSONResponse writes a JSON response with proper error handling
func writeJSONResponse(ctx *fasthttp.RequestCtx, statusCode int, response interface{}, path string, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) {
	body, err := json.Marshal(response)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"error":"Failed to marshal response"}`)
		ctx.SetContentType("application/json")
		metricsCollector.RecordHTTPRequest(path, "500")
		logger.Error("Failed to marshal JSON response",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	ctx.SetStatusCode(statusCode)
	ctx.SetBody(body)
	ctx.SetContentType("application/json")
	metricsCollector.RecordHTTPRequest(path, fmt.Sprintf("%d", statusCode))
}

// writeErrorResponse writes an error response with consistent formatting.
// errorCategory feeds the metrics collector (validation, fetch, timeout, internal).
func writeErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, errorMsg, requestID, path string, metricsCollector *metrics.MetricsCollector, errorCategory string, logger *zap.Logger) {
	resp := FetchWireResponse{
		RequestID: requestID,
		Success:   false,
		Error:     errorMsg,
	}

	writeJSONResponse(ctx, statusCode, resp, path, metricsCollector, logger)

	switch errorCategory {
	case "validation":
		metricsCollector.RecordValidationError()
	case "internal":
		metricsCollector.RecordInternalError()
	case "timeout":
		metricsCollector.RecordTimeoutError()
	case "fetch":
		metricsCollector.RecordFetchErrorMetric()
	}
}

// HandleFetch processes POST /fetch requests
func HandleFetch(ctx *fasthttp.RequestCtx, f *fetcher.Fetcher, metricsCollector *metrics.MetricsCollector, hardTimeout *HardTimeout, logger *zap.Logger) {
	startTime := time.Now().UTC()

	var wireReq FetchWireRequest
	if err := json.Unmarshal(ctx.PostBody(), &wireReq); err != nil {
		writeErrorResponse(ctx, fasthttp.StatusBadRequest, "Invalid JSON body", "", "/fetch", metricsCollector, "validation", logger)
		logger.Warn("Invalid request body",
			zap.String("url", string(ctx.RequestURI())),
			zap.Error(err))
		return
	}

	if wireReq.URL == "" {
		writeErrorResponse(ctx, fasthttp.StatusBadRequest, "url field is required", wireReq.RequestID, "/fetch", metricsCollector, "validation", logger)
		return
	}
	if wireReq.RequestID == "" {
		wireReq.RequestID = uuid.NewString()
	}

	req := buildFetchRequest(&wireReq)

	timeout := hardTimeout.Max
	if wireReq.Timeout > 0 && time.Duration(wireReq.Timeout) < timeout {
		timeout = time.Duration(wireReq.Timeout)
	}
	fetchCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Starting fetch request",
		zap.String("request_id", wireReq.RequestID),
		zap.String("url", wireReq.URL),
		zap.String("context", req.EffectiveContext()),
		zap.Duration("timeout", timeout))

	resp, err := f.Fetch(fetchCtx, req)
	duration := time.Since(startTime).Seconds()

	if fetchCtx.Err() == context.DeadlineExceeded {
		errorMsg := fmt.Sprintf("Hard timeout exceeded (%v)", timeout)
		writeErrorResponse(ctx, fasthttp.StatusGatewayTimeout, errorMsg, wireReq.RequestID, "/fetch", metricsCollector, "timeout", logger)
		logger.Error("Fetch hard timeout",
			zap.String("request_id", wireReq.RequestID),
			zap.String("url", wireReq.URL),
			zap.Duration("hard_timeout", timeout),
			zap.Float64("duration", duration))
		return
	}

	if err != nil {
		status := fasthttp.StatusBadGateway
		category := "fetch"
		switch {
		case errors.Is(err, fetcher.ErrConfiguration):
			status = fasthttp.StatusBadRequest
			category = "validation"
		case errors.Is(err, fetcher.ErrPoolClosed), errors.Is(err, fetcher.ErrBrowserGone),
			errors.Is(err, fetcher.ErrLaunchFailed):
			status = fasthttp.StatusServiceUnavailable
			category = "internal"
		}
		writeErrorResponse(ctx, status, fmt.Sprintf("Fetch failed: %v", err), wireReq.RequestID, "/fetch", metricsCollector, category, logger)
		logger.Error("Fetch failed",
			zap.String("request_id", wireReq.RequestID),
			zap.String("url", wireReq.URL),
			zap.Error(err))
		return
	}

	wireResp := FetchWireResponse{
		RequestID:         resp.RequestID,
		Success:           true,
		URL:               resp.URL,
		Status:            resp.Status,
		Headers:           resp.Headers,
		Body:              resp.Body,
		Encoding:          resp.Encoding,
		Redirects:         resp.Redirects,
		IPAddress:         resp.IPAddress,
		ServerPort:        resp.ServerPort,
		FromDownload:      resp.FromDownload,
		SuggestedFilename: resp.SuggestedFilename,
		LatencySeconds:    resp.Latency.Seconds(),
	}
	for _, method := range req.PageMethods {
		wireResp.PageMethodResults = append(wireResp.PageMethodResults, method.Result)
	}

	writeJSONResponse(ctx, fasthttp.StatusOK, wireResp, "/fetch", metricsCollector, logger)

	logger.Info("Fetch successful",
		zap.String("request_id", resp.RequestID),
		zap.String("url", resp.URL),
		zap.Int("status", resp.Status),
		zap.Int("body_bytes", len(resp.Body)),
		zap.Int("redirects", resp.Redirects.Count),
		zap.Bool("from_download", resp.FromDownload),
		zap.Float64("duration", duration))
}

// buildFetchRequest converts the wire form into the fetcher's request type.
func buildFetchRequest(wireReq *FetchWireRequest) *types.FetchRequest {
	headers := make(http.Header, len(wireReq.Headers))
	for name, value := range wireReq.Headers {
		headers.Set(name, value)
	}

	req := &types.FetchRequest{
		RequestID:    wireReq.RequestID,
		URL:          wireReq.URL,
		Method:       wireReq.Method,
		Headers:      headers,
		Body:         wireReq.Body,
		BodyEncoding: wireReq.BodyEncoding,
		ContextName:  wireReq.ContextName,
		ContextSpec:  wireReq.Context.ToContextSpec(),
	}
	for _, spec := range wireReq.PageMethods {
		req.PageMethods = append(req.PageMethods, types.NewPageMethod(spec.Name, spec.Args...))
	}
	return req
}

// HandleHealth returns the current health status and pool statistics
func HandleHealth(ctx *fasthttp.RequestCtx, f *fetcher.Fetcher, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) {
	contexts, pages := f.Pool().Counts()

	resp := HealthResponse{
		Status:       "ok",
		OpenContexts: contexts,
		OpenPages:    pages,
	}

	writeJSONResponse(ctx, fasthttp.StatusOK, resp, "/health", metricsCollector, logger)
}

// HandleStats returns the flat counter registry as JSON
func HandleStats(ctx *fasthttp.RequestCtx, f *fetcher.Fetcher, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) {
	writeJSONResponse(ctx, fasthttp.StatusOK, f.Stats().Snapshot(), "/stats", metricsCollector, logger)
}
