package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"governance-agent/internal/logger"
	"governance-agent/internal/models"
	"governance-agent/internal/retry"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, reply string, status *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if status != nil {
			if code := atomic.LoadInt32(status); code != 0 {
				w.WriteHeader(int(code))
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]any{"message": "upstream overloaded", "type": "server_error"},
				})
				return
			}
		}
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
}

func newTestLLM(url string) *LLM {
	l := NewLLM(url, "sk-test", "gpt-test", time.Second, logger.Nop())
	l.policy = retry.Policy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 1}
	return l
}

func TestLLMClassify(t *testing.T) {
	srv := chatServer(t, "```json\n{\"intent\":\"vote\",\"proposalId\":\"AIP-42\",\"choice\":\"for\"}\n```", nil)
	defer srv.Close()

	res, err := newTestLLM(srv.URL).Classify(context.Background(), "I support the LTV change", testProposals)
	require.NoError(t, err)
	assert.Equal(t, Result{Intent: KindVote, ProposalID: "0x8f2a1c9d", Choice: "for"}, *res)
}

func TestLLMClassifyQuestionDefaultsToText(t *testing.T) {
	srv := chatServer(t, `{"intent":"question"}`, nil)
	defer srv.Close()

	res, err := newTestLLM(srv.URL).Classify(context.Background(), "why now?", nil)
	require.NoError(t, err)
	assert.Equal(t, KindQuestion, res.Intent)
	assert.Equal(t, "why now?", res.Question)
}

func TestLLMRankAndSummarize(t *testing.T) {
	srv := chatServer(t, `{"ranking":["uni-7","0x8f2a1c9d"]}`, nil)
	defer srv.Close()
	l := newTestLLM(srv.URL)

	ids, err := l.RankProposals(context.Background(), []models.Vote{{Choice: "yes", ProposalTitle: "x"}}, testProposals)
	require.NoError(t, err)
	assert.Equal(t, []string{"uni-7", "0x8f2a1c9d"}, ids)

	sum, err := l.Summarize(context.Background(), "long text")
	require.NoError(t, err)
	assert.Contains(t, sum, "ranking")
}

func TestLLMServerErrorFallsBackToRules(t *testing.T) {
	status := int32(http.StatusServiceUnavailable)
	srv := chatServer(t, "", &status)
	defer srv.Close()

	_, err := newTestLLM(srv.URL).Classify(context.Background(), "Vote YES on uni-7", testProposals)
	require.Error(t, err)
	assert.True(t, retry.IsStatus(err, http.StatusServiceUnavailable))

	f := NewFallback(newTestLLM(srv.URL), NewRules(), logger.Nop())
	res, err := f.Classify(context.Background(), "Vote YES on uni-7", testProposals)
	require.NoError(t, err)
	assert.Equal(t, KindVote, res.Intent)
	assert.Equal(t, "uni-7", res.ProposalID)

	ans, err := f.Answer(context.Background(), "?", nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, ans)
}

func TestLLMRejectionIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "bad key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	_, err := newTestLLM(srv.URL).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, retry.IsStatus(err, http.StatusUnauthorized))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	cut := truncate("aé€b", 3)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, "aé...", cut)
	assert.Equal(t, "...", truncate("€€", 2))
}
