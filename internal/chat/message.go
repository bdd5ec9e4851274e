// Package chat holds the OpenAI-shaped request/response types shared by
// the routing engine, the provider backends, and the HTTP surface, plus
// the null-content flattening helpers every dialect translation path
// depends on.
package chat

import "encoding/json"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message mirrors one entry of an OpenAI-shape "messages" array. Content
// is left as a json.RawMessage because the wire format is polymorphic:
// a plain string, null, or an array of multimodal parts. Use Text() to
// obtain the flattened, always-non-nil string form.
type Message struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSchema describes one entry of the request's "tools" array.
type ToolSchema struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// contentPart is one element of a multimodal content array; only the
// text parts contribute to the flattened string, per the null-content
// invariant (non-text elements, e.g. image_url, contribute "").
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Text returns the message's content flattened to a plain string,
// enforcing the null-content invariant: a JSON null or absent content
// field yields "", a plain string is returned as-is, and a multimodal
// array is flattened by concatenating each element's text field (with
// non-text elements contributing the empty string). Malformed content
// also yields "" rather than panicking or erroring - routing and dialect
// translation must never fail on account of this field.
func (m Message) Text() string {
	return FlattenContent(m.Content)
}

// FlattenContent applies the null-content invariant to a raw JSON
// "content" value of any shape.
func FlattenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var asNull interface{}
	if err := json.Unmarshal(raw, &asNull); err == nil && asNull == nil {
		return ""
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		out := ""
		for _, p := range parts {
			out += p.Text
		}
		return out
	}

	return ""
}

// ChatRequest is the parsed body of POST /v1/chat/completions.
// ExtraBody collects every top-level key beyond the known ones, so
// OpenAI extensions the gateway doesn't model (response_format,
// reasoning effort knobs, vendor parameters) are forwarded to
// openai-compat upstreams rather than dropped.
type ChatRequest struct {
	Model       string                 `json:"model,omitempty"`
	Messages    []Message              `json:"messages"`
	Stream      bool                   `json:"stream,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	MaxTokens   *int                   `json:"max_tokens,omitempty"`
	Tools       []ToolSchema           `json:"tools,omitempty"`
	ExtraBody   map[string]interface{} `json:"-"`
}

// chatRequestAlias avoids recursing back into ChatRequest.UnmarshalJSON.
type chatRequestAlias ChatRequest

func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	var alias chatRequestAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range []string{"model", "messages", "stream", "temperature", "max_tokens", "tools"} {
		delete(raw, known)
	}
	if len(raw) > 0 {
		alias.ExtraBody = make(map[string]interface{}, len(raw))
		for k, v := range raw {
			var val interface{}
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			alias.ExtraBody[k] = val
		}
	}

	*r = ChatRequest(alias)
	return nil
}

// ChatUsage reports token accounting for a completion, including
// prompt-cache hit/miss counts when the upstream supports them.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	CacheHitTokens   int `json:"-"`
	CacheMissTokens  int `json:"-"`
}

// ClawgateMeta is the "_clawgate" annotation block attached to every
// non-streaming response.
type ClawgateMeta struct {
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	LatencyMS       int64  `json:"latency_ms"`
	CacheHitTokens  int    `json:"cache_hit_tokens"`
	CacheMissTokens int    `json:"cache_miss_tokens"`
}

// ChatChoice is one entry of a ChatResponse's "choices" array.
type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the OpenAI-shape response returned to the caller.
//
// The typed fields are what the gateway itself reads (usage accounting,
// the classifier's Text() extraction). Passthrough, when non-nil, is
// the upstream's fully decoded response body with the _clawgate block
// overlaid; MarshalJSON emits it instead of the typed fields, so an
// openai-compat upstream's response reaches the client as-is - unknown
// fields, tool_calls and all - rather than re-typed through the narrow
// struct. Translating dialects leave Passthrough nil and are serialized
// from the typed fields they construct.
type ChatResponse struct {
	ID       string       `json:"id"`
	Object   string       `json:"object"`
	Created  int64        `json:"created"`
	Model    string       `json:"model"`
	Choices  []ChatChoice `json:"choices"`
	Usage    ChatUsage    `json:"usage"`
	Clawgate ClawgateMeta `json:"_clawgate"`

	Passthrough map[string]interface{} `json:"-"`
}

// chatResponseAlias avoids recursing back into ChatResponse.MarshalJSON.
type chatResponseAlias ChatResponse

func (r ChatResponse) MarshalJSON() ([]byte, error) {
	if r.Passthrough != nil {
		return json.Marshal(r.Passthrough)
	}
	return json.Marshal(chatResponseAlias(r))
}

// HasTools reports whether the request carries any tool definitions,
// feeding the routing context's tool-presence flag.
func (r *ChatRequest) HasTools() bool {
	return len(r.Tools) > 0
}
