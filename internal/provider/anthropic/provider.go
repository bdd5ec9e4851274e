// Package anthropic implements the anthropic-compat dialect: x-api-key
// auth, a top-level system field rather than a system message, and SSE
// streaming whose upstream message_start/content_block_delta/message_stop
// event lines are passed through to the client as-is.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
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

const anthropicVersion = "2023-06-01"
const defaultMaxTokens = 4096

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
func (b *Backend) Dialect() string           { return config.DialectAnthropicCompat }
func (b *Backend) Health() provider.Snapshot { return b.health.Snapshot() }
func (b *Backend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeToolResultMessage struct {
	Role    string                `json:"role"`
	Content []claudeToolResultBlk `json:"content"`
}

type claudeToolResultBlk struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []interface{}   `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// buildRequest extracts the last system message to a top-level field
// (last one wins) and converts tool-role messages into a user message
// carrying a tool_result content block.
func (b *Backend) buildRequest(req *chat.ChatRequest) claudeRequest {
	var system string
	var wire []interface{}

	for _, m := range req.Messages {
		text := m.Text()
		switch m.Role {
		case chat.RoleSystem:
			system = text
		case chat.RoleTool:
			wire = append(wire, claudeToolResultMessage{
				Role: "user",
				Content: []claudeToolResultBlk{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   text,
				}},
			})
		default:
			wire = append(wire, claudeMessage{Role: m.Role, Content: text})
		}
	}

	model := req.Model
	if model == "" || model == "auto" {
		model = b.model
	}

	maxTokens := b.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return claudeRequest{
		Model:       model,
		Messages:    wire,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}

func (b *Backend) buildHeaders(r *http.Request) {
	r.Header.Set("x-api-key", b.apiKey)
	r.Header.Set("anthropic-version", anthropicVersion)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Accept", "application/json")
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeResponse struct {
	ID         string               `json:"id"`
	Model      string               `json:"model"`
	StopReason string               `json:"stop_reason"`
	Content    []claudeContentBlock `json:"content"`
	Usage      claudeUsage          `json:"usage"`
}

func (b *Backend) Complete(ctx context.Context, req *chat.ChatRequest) (*chat.ChatResponse, <-chan provider.StreamChunk, error) {
	cr := b.buildRequest(req)
	payload, err := json.Marshal(cr)
	if err != nil {
		return nil, nil, clawerr.New(clawerr.CodeInvalidRequest, err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/messages", bytes.NewReader(payload))
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
		go b.streamSSE(cancel, resp, start, ch)
		return nil, ch, nil
	}

	defer cancel()
	defer resp.Body.Close()

	var cresp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cresp); err != nil {
		b.health.RecordFailure(err.Error())
		return nil, nil, clawerr.New(clawerr.CodeProviderError, "decoding upstream response: "+err.Error()).WithProvider(b.name)
	}
	b.health.RecordSuccess(time.Since(start))

	return b.toClawgateResponse(cresp, start), nil, nil
}

func (b *Backend) toClawgateResponse(cresp claudeResponse, start time.Time) *chat.ChatResponse {
	var text strings.Builder
	for _, block := range cresp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	contentJSON, _ := json.Marshal(text.String())

	return &chat.ChatResponse{
		ID:      cresp.ID,
		Object:  "chat.completion",
		Created: start.Unix(),
		Model:   cresp.Model,
		Choices: []chat.ChatChoice{{
			Index:        0,
			FinishReason: cresp.StopReason,
			Message:      chat.Message{Role: chat.RoleAssistant, Content: contentJSON},
		}},
		Usage: chat.ChatUsage{
			PromptTokens:     cresp.Usage.InputTokens,
			CompletionTokens: cresp.Usage.OutputTokens,
			TotalTokens:      cresp.Usage.InputTokens + cresp.Usage.OutputTokens,
		},
		Clawgate: chat.ClawgateMeta{
			Provider:  b.name,
			Model:     cresp.Model,
			LatencyMS: time.Since(start).Milliseconds(),
		},
	}
}

// streamSSE re-emits each line of the upstream's SSE stream ("event:",
// "data:" and blank separator lines alike) with a trailing newline,
// mirroring the openai-compat passthrough contract;
// the first received event of any type triggers record_success.
func (b *Backend) streamSSE(cancel context.CancelFunc, resp *http.Response, start time.Time, ch chan<- provider.StreamChunk) {
	defer cancel()
	defer resp.Body.Close()
	defer close(ch)

	reader := bufio.NewReader(resp.Body)
	first := true
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if first {
				b.health.RecordSuccess(time.Since(start))
				first = false
			}
			select {
			case ch <- provider.StreamChunk{Data: []byte(strings.TrimRight(line, "\r\n") + "\n")}:
			case <-resp.Request.Context().Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				ch <- provider.StreamChunk{Err: err}
			}
			return
		}
	}
}
