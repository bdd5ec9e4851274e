// Package openai implements the openai-compat dialect: requests and
// responses are passed through close to verbatim, since the upstream
// already speaks the OpenAI chat-completions shape.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/clawerr"
	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/provider"
	"go.uber.org/zap"
)

// Backend is the openai-compat Provider Backend.
type Backend struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	timeout   time.Duration

	httpClient *http.Client
	health     *provider.Health
	logger     *zap.Logger
}

func NewBackend(cfg config.ProviderConfig, healthMaxFailures int, logger *zap.Logger) *Backend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultProviderTimeout
	}
	return &Backend{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		timeout:    timeout,
		httpClient: provider.NewHTTPClient(config.DefaultMaxConnsPerHost, config.DefaultProviderConnectTimeout),
		health:     provider.NewHealth(healthMaxFailures),
		logger:     logger,
	}
}

func (b *Backend) Name() string    { return b.name }
func (b *Backend) Dialect() string { return config.DialectOpenAICompat }
func (b *Backend) Health() provider.Snapshot {
	return b.health.Snapshot()
}
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// wireMessage is the outbound message shape: content is always a plain
// string, enforcing the null-content invariant before serialization.
type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []chat.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

func toWireMessages(msgs []chat.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{
			Role:       m.Role,
			Content:    m.Text(),
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func (b *Backend) buildRequestBody(req *chat.ChatRequest) ([]byte, error) {
	model := req.Model
	if model == "" || model == "auto" {
		model = b.model
	}
	maxTokens := b.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": toWireMessages(req.Messages),
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
	}
	if req.Stream {
		body["stream"] = true
	}
	for k, v := range req.ExtraBody {
		body[k] = v
	}

	return json.Marshal(body)
}

func (b *Backend) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if strings.Contains(strings.ToLower(b.baseURL), "openrouter") {
		req.Header.Set("HTTP-Referer", "https://clawgate.local")
		req.Header.Set("X-Title", "ClawGate")
	}
}

// wireUsage mirrors the upstream's usage block, including the
// prompt-cache hit/miss extensions some openai-compat upstreams report.
type wireUsage struct {
	PromptTokens          int `json:"prompt_tokens"`
	CompletionTokens      int `json:"completion_tokens"`
	TotalTokens           int `json:"total_tokens"`
	PromptCacheHitTokens  int `json:"prompt_cache_hit_tokens"`
	PromptCacheMissTokens int `json:"prompt_cache_miss_tokens"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

func (b *Backend) Complete(ctx context.Context, req *chat.ChatRequest) (*chat.ChatResponse, <-chan provider.StreamChunk, error) {
	payload, err := b.buildRequestBody(req)
	if err != nil {
		return nil, nil, clawerr.New(clawerr.CodeInvalidRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, nil, clawerr.New(clawerr.CodeInvalidRequest, err.Error())
	}
	b.buildHeaders(httpReq)

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		classified := provider.ClassifyTransportError(b.name, err)
		b.health.RecordFailure(classified.Message)
		return nil, nil, classified
	}

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		detail := provider.TruncateDetail(body, 500)
		b.health.RecordFailure(detail)
		return nil, nil, clawerr.ProviderErrorFromStatus(b.name, resp.StatusCode, detail)
	}

	if req.Stream {
		ch := make(chan provider.StreamChunk)
		go b.streamLines(cancel, resp, start, ch)
		return nil, ch, nil
	}

	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		b.health.RecordFailure(err.Error())
		return nil, nil, clawerr.New(clawerr.CodeProviderError, "reading upstream response: "+err.Error()).WithProvider(b.name)
	}

	chatResp, err := b.toClawgateResponse(body, start)
	if err != nil {
		b.health.RecordFailure(err.Error())
		return nil, nil, err
	}
	b.health.RecordSuccess(time.Since(start))

	return chatResp, nil, nil
}

// toClawgateResponse builds the dual view of an upstream success: the
// full decoded body with _clawgate overlaid, passed through to the
// client untouched otherwise, plus the typed fields (usage for cost
// accounting, choices for the classifier's text extraction) the
// gateway reads internally.
func (b *Backend) toClawgateResponse(body []byte, start time.Time) (*chat.ChatResponse, error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return nil, clawerr.New(clawerr.CodeProviderError, "decoding upstream response: "+err.Error()).WithProvider(b.name)
	}
	var passthrough map[string]interface{}
	if err := json.Unmarshal(body, &passthrough); err != nil {
		return nil, clawerr.New(clawerr.CodeProviderError, "decoding upstream response: "+err.Error()).WithProvider(b.name)
	}
	if passthrough == nil {
		// A literal JSON null body decodes without error; keep the
		// overlay below from writing into a nil map.
		passthrough = map[string]interface{}{}
	}

	choices := make([]chat.ChatChoice, 0, len(wr.Choices))
	for _, c := range wr.Choices {
		choices = append(choices, chat.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: chat.Message{
				Role:       c.Message.Role,
				Content:    jsonString(c.Message.Content),
				Name:       c.Message.Name,
				ToolCalls:  c.Message.ToolCalls,
				ToolCallID: c.Message.ToolCallID,
			},
		})
	}

	meta := chat.ClawgateMeta{
		Provider:        b.name,
		Model:           wr.Model,
		LatencyMS:       time.Since(start).Milliseconds(),
		CacheHitTokens:  wr.Usage.PromptCacheHitTokens,
		CacheMissTokens: wr.Usage.PromptCacheMissTokens,
	}
	passthrough["_clawgate"] = meta

	return &chat.ChatResponse{
		ID:      wr.ID,
		Object:  wr.Object,
		Created: wr.Created,
		Model:   wr.Model,
		Choices: choices,
		Usage: chat.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
			CacheHitTokens:   wr.Usage.PromptCacheHitTokens,
			CacheMissTokens:  wr.Usage.PromptCacheMissTokens,
		},
		Clawgate:    meta,
		Passthrough: passthrough,
	}, nil
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

// streamLines re-emits each received line with a trailing newline, per
// the streaming contract: the first received chunk triggers
// record_success measured from request start to first byte.
func (b *Backend) streamLines(cancel context.CancelFunc, resp *http.Response, start time.Time, ch chan<- provider.StreamChunk) {
	defer cancel()
	defer resp.Body.Close()
	defer close(ch)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	first := true
	for scanner.Scan() {
		if first {
			b.health.RecordSuccess(time.Since(start))
			first = false
		}
		// Copy out of the scanner's buffer: the receiver may still be
		// holding the chunk when the next Scan overwrites it.
		raw := scanner.Bytes()
		line := make([]byte, len(raw)+1)
		copy(line, raw)
		line[len(raw)] = '\n'
		select {
		case ch <- provider.StreamChunk{Data: line}:
		case <-resp.Request.Context().Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		ch <- provider.StreamChunk{Err: fmt.Errorf("stream read: %w", err)}
	}
}
