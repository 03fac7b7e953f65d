package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsOptions(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"ok\":true}  "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL + "/", APIKey: "key", Model: "m"}, time.Second)
	out, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, CompletionOptions{
		Temperature: 0.1,
		MaxTokens:   300,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)

	assert.Equal(t, "m", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	assert.Equal(t, 300, got.MaxTokens)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestCompleteErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL}, time.Second)
	_, err := client.Complete(context.Background(), nil, CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL}, time.Second)
	_, err := client.Complete(context.Background(), nil, CompletionOptions{})
	assert.EqualError(t, err, "empty llm choices")
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, ExtractJSON(`Sure! {"a":1} hope that helps`))
	assert.Equal(t, "not json", ExtractJSON(" not json "))
}
