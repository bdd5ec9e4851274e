package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clawgate/clawgate/internal/app"
	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/ctxkeys"
	"github.com/clawgate/clawgate/internal/metrics"
	"github.com/clawgate/clawgate/internal/provider"
	"github.com/clawgate/clawgate/internal/routing"
)

type handlers struct {
	app *app.App
}

// attemptFailure records one failed attempt, surfaced in the 502 body
// when every attempt is exhausted.
type attemptFailure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// chatCompletions implements POST /v1/chat/completions: parse, route,
// and run the attempt-order dispatcher loop.
func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chat.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error(), "invalid_request")
		return
	}

	traceID := uuid.NewString()
	ctx := ctxkeys.WithTraceID(r.Context(), traceID)

	var span trace.Span
	ctx, span = h.app.Tracer.Start(ctx, "chat_completion",
		trace.WithAttributes(attribute.String("clawgate.trace_id", traceID)))
	defer span.End()

	modelRequested := req.Model
	if modelRequested == "" {
		modelRequested = "auto"
	}

	health := h.app.Registry.HealthSnapshot()
	decision := h.decide(modelRequested, req, health, r.Header)
	span.SetAttributes(
		attribute.String("clawgate.routing.layer", string(decision.Layer)),
		attribute.String("clawgate.routing.rule", decision.RuleName),
		attribute.String("clawgate.routing.provider", decision.ProviderName),
	)

	attemptOrder := routing.BuildAttemptOrder(decision.ProviderName, h.app.Config.FallbackChain)

	var failures []attemptFailure
	for i, name := range attemptOrder {
		backend, ok := h.app.Registry.Get(name)
		if !ok {
			// Only the chosen provider's absence is worth reporting; an
			// unconfigured fallback-chain entry is simply not a candidate.
			if i == 0 {
				failures = append(failures, attemptFailure{Provider: name, Error: "not configured"})
			}
			continue
		}

		// The chosen (first) attempt is always tried regardless of
		// health; every later candidate is skipped while unhealthy.
		if i > 0 && !backend.Health().Healthy {
			continue
		}

		ok = h.tryAttempt(ctx, w, backend, &req, decision, traceID, &failures)
		if ok {
			return
		}
	}

	writeExhausted(w, failures)
}

// decide applies the direct-routing bypass (a requested model exactly
// naming a configured provider) before falling through to the routing
// engine.
func (h *handlers) decide(modelRequested string, req chat.ChatRequest, health routing.HealthSnapshot, headers map[string][]string) routing.Decision {
	if modelRequested != "auto" && h.app.Registry.Has(modelRequested) {
		return routing.DirectDecision(modelRequested)
	}

	ctx := routing.BuildContext(req.Messages, modelRequested, req.HasTools(), headers, health)
	return h.app.Router.Route(ctx)
}

// tryAttempt runs one provider attempt. It returns true once a response
// (a decoded completion or a stream) has been written to w, and false
// when the attempt failed and the next candidate should be tried.
func (h *handlers) tryAttempt(
	ctx context.Context,
	w http.ResponseWriter,
	backend provider.Provider,
	req *chat.ChatRequest,
	decision routing.Decision,
	traceID string,
	failures *[]attemptFailure,
) bool {
	start := time.Now()
	resp, stream, err := backend.Complete(ctx, req)
	if err != nil {
		h.logAttempt(ctx, traceID, backend.Name(), decision, 0, 0, 0, 0, time.Since(start), false, err.Error())
		*failures = append(*failures, attemptFailure{Provider: backend.Name(), Error: truncateErr(err)})
		return false
	}

	if stream != nil {
		h.writeStream(ctx, w, backend.Name(), decision, traceID, start, stream)
		return true
	}

	// The provider header names the backend that actually served the
	// request, which differs from decision.ProviderName once the
	// dispatcher has fallen through to a later attempt.
	w.Header().Set("X-ClawGate-Provider", backend.Name())
	w.Header().Set("X-ClawGate-Layer", string(decision.Layer))
	w.Header().Set("X-ClawGate-Rule", decision.RuleName)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)

	h.logAttempt(ctx, traceID, backend.Name(), decision,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
		resp.Usage.CacheHitTokens, resp.Usage.CacheMissTokens,
		time.Since(start), true, "")

	return true
}

// writeStream pumps SSE frames to the client as they arrive. A client
// disconnect cancels r.Context(), which was passed into
// backend.Complete, so the upstream stream is torn down with it.
func (h *handlers) writeStream(ctx context.Context, w http.ResponseWriter, providerName string, decision routing.Decision, traceID string, start time.Time, stream <-chan provider.StreamChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("X-ClawGate-Provider", providerName)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	success := true
	errDetail := ""

	for chunk := range stream {
		if chunk.Err != nil {
			success = false
			errDetail = chunk.Err.Error()
			break
		}
		if _, err := w.Write(chunk.Data); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	// Streaming responses carry no decoded usage block to attribute
	// cost against; the attempt is still logged for latency/routing
	// visibility with zero token/cost fields.
	h.logAttempt(ctx, traceID, providerName, decision, 0, 0, 0, 0, time.Since(start), success, errDetail)
}

func (h *handlers) logAttempt(ctx context.Context, traceID, providerName string, decision routing.Decision, promptTokens, completionTokens, cacheHit, cacheMiss int, latency time.Duration, success bool, errText string) {
	pc, ok := h.app.Config.Providers[providerName]
	cost := 0.0
	if ok {
		cost = metrics.CalcCost(promptTokens, completionTokens, pc.Pricing, cacheHit, cacheMiss)
	}

	if h.app.Metrics != nil {
		h.app.Metrics.LogRequest(ctx, metrics.RequestLogEntry{
			TraceID:          traceID,
			Timestamp:        time.Now(),
			Provider:         providerName,
			Model:            pc.Model,
			Layer:            string(decision.Layer),
			RuleName:         decision.RuleName,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CacheHitTokens:   cacheHit,
			CacheMissTokens:  cacheMiss,
			CostUSD:          cost,
			LatencyMS:        latency.Milliseconds(),
			Success:          success,
			Error:            truncateString(errText, 500),
		})
	}

	h.app.Process.RoutingLayer.WithLabelValues(string(decision.Layer)).Inc()
	h.app.Process.ProviderLatency.WithLabelValues(providerName).Observe(latency.Seconds())
	healthy := 0.0
	if backend, ok := h.app.Registry.Get(providerName); ok && backend.Health().Healthy {
		healthy = 1.0
	}
	h.app.Process.ProviderHealthy.WithLabelValues(providerName).Set(healthy)
}

func writeExhausted(w http.ResponseWriter, failures []attemptFailure) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":  "all provider attempts failed",
			"type":     "provider_error",
			"attempts": failures,
		},
	})
}

func writeError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}

func truncateErr(err error) string {
	return truncateString(err.Error(), 500)
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
