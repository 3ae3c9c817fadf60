// Package observability provides monitoring and debugging capabilities for
// the turn-execution engine through metrics, structured logging, and
// distributed tracing.
//
// # Overview
//
//  1. Metrics - node/provider/tool counters and histograms via Prometheus
//  2. Logging - structured logs correlated by turn_id/node_id, with redaction
//  3. Tracing - one span per turn, one per node, one per provider/tool call
//
// # Metrics
//
//	metrics := observability.NewMetrics()
//	metrics.TurnStarted()
//	start := time.Now()
//	metrics.RecordNode("router", "ok", time.Since(start).Seconds())
//	metrics.RecordProviderRequest("ollama", "qwen2.5:7b", "success", 1.2)
//	metrics.RecordToolExecution("world_apply_ops", "success", 0.01)
//	metrics.TurnEnded("ok", time.Since(turnStart).Seconds())
//
// # Logging
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx := observability.AddTurnID(context.Background(), turnID)
//	ctx = observability.AddNodeID(ctx, "router")
//	logger.Info(ctx, "node started")
//	logger.Error(ctx, "provider request failed", "error", err) // api keys in err are redacted
//
// # Tracing
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName: "turnengine",
//	    Endpoint:    "localhost:4317",
//	})
//	defer shutdown(context.Background())
//
//	ctx, turnSpan := tracer.TraceTurn(ctx, turnID)
//	defer turnSpan.End()
//	ctx, nodeSpan := tracer.TraceNode(ctx, "router")
//	defer nodeSpan.End()
//	ctx, reqSpan := tracer.TraceProviderRequest(ctx, "ollama", "qwen2.5:7b")
//	defer reqSpan.End()
//
// # Security
//
// Logging redacts provider API keys, bearer tokens, JWTs, and sensitive map
// keys (password, secret, api_key, token, authorization) before they reach
// any sink.
package observability
