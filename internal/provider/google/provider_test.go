package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
		assert.True(t, strings.Contains(r.URL.Path, "gemini-flash:generateContent"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))

		var body genRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "be terse", body.SystemInstruction.Parts[0].Text)
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "user", body.Contents[0].Role)

		json.NewEncoder(w).Encode(genResponse{
			Candidates: []genCandidate{{Content: genContent{Parts: []genPart{{Text: "hi there"}}}}},
			UsageMetadata: genUsageMetadata{
				PromptTokenCount: 10, CandidatesTokenCount: 4, TotalTokenCount: 14, CachedContentTokenCount: 3,
			},
		})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{
		Name: "gemini-flash", BaseURL: server.URL, APIKey: "secret", Model: "gemini-flash",
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
	assert.Equal(t, 3, resp.Usage.CacheHitTokens)
	assert.Equal(t, 7, resp.Usage.CacheMissTokens)
	assert.True(t, b.Health().Healthy)
}

func TestBackend_Complete_AssistantRoleBecomesModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body genRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 2)
		assert.Equal(t, "user", body.Contents[0].Role)
		assert.Equal(t, "model", body.Contents[1].Role)
		json.NewEncoder(w).Encode(genResponse{})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "g", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	_, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: rawString("hi")},
			{Role: chat.RoleAssistant, Content: rawString("hello")},
		},
	})
	require.NoError(t, err)
}

func TestBackend_Complete_NullContentNoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(genResponse{})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "g", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	resp, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: json.RawMessage("null")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Choices[0].Message.Text())
}

func TestBackend_Complete_StreamWrapsSingleFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(genResponse{
			Candidates: []genCandidate{{Content: genContent{Parts: []genPart{{Text: "ok"}}}}},
		})
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "g", BaseURL: server.URL, APIKey: "k"}, 3, zap.NewNop())
	resp, stream, err := b.Complete(context.Background(), &chat.ChatRequest{
		Stream:   true,
		Messages: []chat.Message{{Role: chat.RoleUser, Content: rawString("hi")}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp)

	var chunks []string
	for c := range stream {
		require.NoError(t, c.Err)
		chunks = append(chunks, string(c.Data))
	}
	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0], "\"ok\"")
	assert.Equal(t, "data: [DONE]\n", chunks[1])
}

func TestBackend_Complete_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"forbidden"}`))
	}))
	t.Cleanup(server.Close)

	b := NewBackend(config.ProviderConfig{Name: "g", BaseURL: server.URL, APIKey: "k"}, 1, zap.NewNop())
	_, _, err := b.Complete(context.Background(), &chat.ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: rawString("hi")}},
	})
	require.Error(t, err)
	assert.False(t, b.Health().Healthy)
}
