package service

import (
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/internal/fetcher"
	"github.com/crawlkit/browserfetch/internal/fetcher/metrics"
)

// CreateHTTPHandler creates the main HTTP request handler with routing
func CreateHTTPHandler(f *fetcher.Fetcher, metricsCollector *metrics.MetricsCollector, hardTimeout *HardTimeout, logger *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		switch {
		case method == "POST" && path == "/fetch":
			HandleFetch(ctx, f, metricsCollector, hardTimeout, logger)
		case method == "GET" && path == "/health":
			HandleHealth(ctx, f, metricsCollector, logger)
		case method == "GET" && path == "/stats":
			HandleStats(ctx, f, metricsCollector, logger)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("Not Found")
			metricsCollector.RecordHTTPRequest(path, "404")
		}
	}
}
