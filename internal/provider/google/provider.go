// Package google implements the google-genai dialect: message roles and
// system prompts are reshaped into Gemini's generateContent request
// shape, and the response is translated back into OpenAI shape.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/clawerr"
	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/provider"
	"go.uber.org/zap"
)

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

func (b *Backend) Name() string              { return b.name }
func (b *Backend) Dialect() string           { return config.DialectGoogleGenAI }
func (b *Backend) Health() provider.Snapshot { return b.health.Snapshot() }
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

type genPart struct {
	Text string `json:"text"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genRequest struct {
	Contents          []genContent      `json:"contents"`
	SystemInstruction *genContent       `json:"systemInstruction,omitempty"`
	GenerationConfig  *genConfig        `json:"generationConfig,omitempty"`
}

type genConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// buildRequest translates the messages array per the google-genai
// dialect rules: role=system folds into a single systemInstruction
// (last one wins), role=assistant becomes role "model", everything else
// becomes role "user".
func (b *Backend) buildRequest(req *chat.ChatRequest) genRequest {
	var gr genRequest
	var systemText string
	haveSystem := false

	for _, m := range req.Messages {
		text := m.Text()
		switch m.Role {
		case chat.RoleSystem:
			systemText = text
			haveSystem = true
		case chat.RoleAssistant:
			gr.Contents = append(gr.Contents, genContent{Role: "model", Parts: []genPart{{Text: text}}})
		default:
			gr.Contents = append(gr.Contents, genContent{Role: "user", Parts: []genPart{{Text: text}}})
		}
	}

	if haveSystem {
		gr.SystemInstruction = &genContent{Parts: []genPart{{Text: systemText}}}
	}

	maxTokens := b.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if req.Temperature != nil || maxTokens > 0 {
		gr.GenerationConfig = &genConfig{Temperature: req.Temperature, MaxOutputTokens: maxTokens}
	}

	return gr
}

type genUsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	TotalTokenCount         int `json:"totalTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type genCandidate struct {
	Content genContent `json:"content"`
}

type genResponse struct {
	Candidates    []genCandidate   `json:"candidates"`
	UsageMetadata genUsageMetadata `json:"usageMetadata"`
}

func (b *Backend) Complete(ctx context.Context, req *chat.ChatRequest) (*chat.ChatResponse, <-chan provider.StreamChunk, error) {
	model := req.Model
	if model == "" || model == "auto" {
		model = b.model
	}

	gr := b.buildRequest(req)
	payload, err := json.Marshal(gr)
	if err != nil {
		return nil, nil, clawerr.New(clawerr.CodeInvalidRequest, err.Error())
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", b.baseURL, model, url.QueryEscape(b.apiKey))

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, clawerr.New(clawerr.CodeInvalidRequest, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		classified := provider.ClassifyTransportError(b.name, err)
		b.health.RecordFailure(classified.Message)
		return nil, nil, classified
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		detail := provider.TruncateDetail(body, 500)
		b.health.RecordFailure(detail)
		return nil, nil, clawerr.ProviderErrorFromStatus(b.name, resp.StatusCode, detail)
	}

	var gresp genResponse
	if err := json.NewDecoder(resp.Body).Decode(&gresp); err != nil {
		b.health.RecordFailure(err.Error())
		return nil, nil, clawerr.New(clawerr.CodeProviderError, "decoding upstream response: "+err.Error()).WithProvider(b.name)
	}
	b.health.RecordSuccess(time.Since(start))

	chatResp := b.toClawgateResponse(gresp, model, start)

	if req.Stream {
		return nil, singleChunkStream(chatResp), nil
	}
	return chatResp, nil, nil
}

// singleChunkStream wraps a fully-buffered response as a one-frame SSE
// sequence. Gemini's native streamGenerateContent endpoint uses a
// different framing than the SSE-line passthrough the openai-compat and
// anthropic-compat dialects use; rather than plumb a second wire format
// through the dispatcher, a google-genai backend satisfies stream=true
// by emitting the complete response as a single "data:" frame followed
// by "data: [DONE]", preserving the HTTP contract (text/event-stream,
// the provider header) for callers that always request streaming.
func singleChunkStream(resp *chat.ChatResponse) <-chan provider.StreamChunk {
	ch := make(chan provider.StreamChunk, 2)
	body, err := json.Marshal(resp)
	if err != nil {
		ch <- provider.StreamChunk{Err: err}
		close(ch)
		return ch
	}
	ch <- provider.StreamChunk{Data: append(append([]byte("data: "), body...), '\n')}
	ch <- provider.StreamChunk{Data: []byte("data: [DONE]\n")}
	close(ch)
	return ch
}

func (b *Backend) toClawgateResponse(gresp genResponse, model string, start time.Time) *chat.ChatResponse {
	var text strings.Builder
	if len(gresp.Candidates) > 0 {
		for _, p := range gresp.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}

	cacheHit := gresp.UsageMetadata.CachedContentTokenCount
	cacheMiss := gresp.UsageMetadata.PromptTokenCount - cacheHit
	if cacheMiss < 0 {
		cacheMiss = 0
	}

	contentJSON, _ := json.Marshal(text.String())

	return &chat.ChatResponse{
		ID:      fmt.Sprintf("clawgate-google-%d", start.Unix()),
		Object:  "chat.completion",
		Created: start.Unix(),
		Model:   model,
		Choices: []chat.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      chat.Message{Role: chat.RoleAssistant, Content: contentJSON},
		}},
		Usage: chat.ChatUsage{
			PromptTokens:     gresp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gresp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gresp.UsageMetadata.TotalTokenCount,
			CacheHitTokens:   cacheHit,
			CacheMissTokens:  cacheMiss,
		},
		Clawgate: chat.ClawgateMeta{
			Provider:        b.name,
			Model:           model,
			LatencyMS:       time.Since(start).Milliseconds(),
			CacheHitTokens:  cacheHit,
			CacheMissTokens: cacheMiss,
		},
	}
}
