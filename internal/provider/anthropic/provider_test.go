package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clawgate/clawgate/internal/chat"
	"github.com/clawgate/clawgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestBackend_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var body claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "be terse", body.System)
		assert.Equal(t, defaultMaxTokens, body.MaxTokens)

		json.NewEncoder(w).Encode(claudeResponse{
			ID: "msg-1", Model: "claude-x", StopReason: "end_turn",
			Content: []claudeContentBlock{{Type: "text", Text: "hi there"}},
			Usage:   claudeUsage{InputTokens: 10, OutputTokens: 4},
		})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{
		Name: "claude", BaseURL: server.URL, APIKey: "test-key", Model: "claude-x",
	}, 3, zap.NewNop())

	resp, stream, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: rawString("be terse")},
			{Role: chat.RoleUser, Content: rawString("hi")},
		},
	})
	require.NoError(t, err)
	assert.Nil(t, stream)
	require.NotNil(t, resp)
	assert.Equal(t, "hi there", resp.Choices[0].Message.Text())
	assert.Equal(t, 14, resp.Usage.TotalTokens)
	assert.True(t, b.Health().Healthy)
}

func TestBackend_Complete_ToolResultMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &raw))
		msgs := raw["messages"].([]interface{})
		last := msgs[len(msgs)-1].(map[string]interface{})
		assert.Equal(t, "user", last["role"])
		content := last["content"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "tool_result", content["type"])
		assert.Equal(t, "call-1", content["tool_use_id"])

		json.NewEncoder(w).Encode(claudeResponse{ID: "m", Content: []claudeContentBlock{{Type: "text", Text: "ok"}}})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	_, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: rawString("do a thing")},
			{Role: chat.RoleTool, ToolCallID: "call-1", Content: rawString("42")},
		},
	})
	require.NoError(t, err)
}

func TestBackend_Complete_NullContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(claudeResponse{ID: "m"})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	resp, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: json.RawMessage("null")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Choices[0].Message.Text())
}

func TestBackend_Complete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"slow down"}`)
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "k"}, 1, zap.NewNop())
	_, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: rawString("hi")}},
	})
	require.Error(t, err)
	assert.False(t, b.Health().Healthy)
}

func TestBackend_Complete_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\ndata: {}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"hi\"}}\n\n")
		fmt.Fprint(w, "event: message_stop\ndata: {}\n\n")
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "claude", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	resp, stream, err := b.Complete(context.Background(), &chat.ChatRequest{
		Stream:   true,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: rawString("hi")}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp)

	var n int
	for c := range stream {
		require.NoError(t, c.Err)
		n++
	}
	assert.True(t, n > 0)
	assert.True(t, b.Health().Healthy)
}
