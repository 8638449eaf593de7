package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSummarizer(t *testing.T, reply string) (*OpenAISummarizer, *openai.ChatCompletionRequest) {
	t.Helper()

	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":%q}}]}`, reply)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("key")
	cfg.BaseURL = srv.URL + "/v1"
	return newSummarizer(cfg, "Summarize.", true), &got
}

func TestSummarize(t *testing.T) {
	s, req := newTestSummarizer(t, "Denim is back. Designers love it. And the")

	got, err := s.Summarize(context.Background(), "long article text")
	require.NoError(t, err)

	assert.Equal(t, "Denim is back. Designers love it.", got)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "Summarize.", req.Messages[0].Content)
	assert.Equal(t, "long article text", req.Messages[1].Content)
}

func TestSummarize_Disabled(t *testing.T) {
	s := newSummarizer(openai.DefaultConfig(""), "Summarize.", false)

	got, err := s.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompleteSentences(t *testing.T) {
	assert.Equal(t, "One. Two.", completeSentences(" One. Two. "))
	assert.Equal(t, "One.", completeSentences("One. Two"))
	assert.Equal(t, "no period", completeSentences("no period"))
}
