package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"governance-agent/internal/models"
	"governance-agent/internal/retry"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// LLM talks to an OpenAI-compatible chat completions endpoint. Besides
// classification it summarizes proposals and ranks them for a user.
type LLM struct {
	client *openai.Client
	model  string
	policy retry.Policy
	log    *zap.SugaredLogger
}

// NewLLM builds the client. baseURL includes the API version path, e.g.
// https://api.openai.com/v1.
func NewLLM(baseURL, apiKey, model string, timeout time.Duration, log *zap.SugaredLogger) *LLM {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &LLM{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		policy: retry.Default,
		log:    log.Named("llm"),
	}
}

func (l *LLM) complete(ctx context.Context, system, user string, maxTokens int, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: l.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var out openai.ChatCompletionResponse
	err := retry.Do(ctx, l.policy, func() error {
		resp, err := l.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyAPIError(err)
		}
		out = resp
		return nil
	})
	if err != nil {
		return "", xerrors.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", xerrors.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// classifyAPIError maps go-openai errors onto retry status errors so 429 and
// 5xx are retried and other rejections are not.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return retry.CheckStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return retry.CheckStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	return err
}

const classifyPrompt = `You are a DAO governance assistant. A user replied to a governance digest email.
Decide what they want. Reply with a JSON object:
{"intent": "vote" | "question" | "show_more" | "unknown", "proposalId": string, "choice": string, "question": string}
- vote: the user casts a vote. proposalId must be one of the listed ids when the user refers to one; choice is the option they picked in their own words (e.g. "yes", "against"). Leave a field empty when the user did not state it.
- question: the user asks about a proposal or governance in general. Put the question in "question" and the proposal id if one is referenced.
- show_more: the user wants to see more proposals.
- unknown: anything else.`

func formatProposals(proposals []models.Proposal) string {
	if len(proposals) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, p := range proposals {
		fmt.Fprintf(&b, "- id=%s title=%q protocol=%s choices=[%s]\n", p.ID, p.Title, p.Protocol, strings.Join(p.Choices, ", "))
	}
	return b.String()
}

func (l *LLM) Classify(ctx context.Context, text string, proposals []models.Proposal) (*Result, error) {
	user := fmt.Sprintf("Open proposals:\n%s\nReply:\n%s", formatProposals(proposals), text)
	raw, err := l.complete(ctx, classifyPrompt, user, 300, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Intent     string `json:"intent"`
		ProposalID string `json:"proposalId"`
		Choice     string `json:"choice"`
		Question   string `json:"question"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, xerrors.Errorf("decode classification %q: %w", raw, err)
	}
	res := &Result{
		Intent:     ParseKind(parsed.Intent),
		ProposalID: matchProposal(parsed.ProposalID, proposals),
		Choice:     strings.TrimSpace(parsed.Choice),
		Question:   strings.TrimSpace(parsed.Question),
	}
	if res.Intent == KindQuestion && res.Question == "" {
		res.Question = strings.TrimSpace(text)
	}
	l.log.Debugw("classified reply", "intent", res.Intent, "proposal_id", res.ProposalID, "choice", res.Choice)
	return res, nil
}

const answerPrompt = `You are a helpful DAO governance assistant answering a user's email.
Answer in plain text, at most a few short paragraphs. If you do not know, say so.`

func (l *LLM) Answer(ctx context.Context, question string, proposal *models.Proposal, history []models.Vote) (string, error) {
	var b strings.Builder
	if proposal != nil {
		fmt.Fprintf(&b, "Proposal %s: %s (%s)\nChoices: %s\n", proposal.ID, proposal.Title, proposal.Protocol, strings.Join(proposal.Choices, ", "))
		if proposal.Content != "" {
			fmt.Fprintf(&b, "Details:\n%s\n", truncate(proposal.Content, 4000))
		} else if proposal.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", proposal.Summary)
		}
	}
	if len(history) > 0 {
		b.WriteString("The user's recent votes:\n")
		b.WriteString(formatHistory(history))
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return l.complete(ctx, answerPrompt, b.String(), 500, false)
}

const summaryPrompt = `You are an expert in DAO governance. Summarize the proposal in one or two sentences.
Focus on what it changes and what a vote for or against would mean.`

// Summarize returns a short summary of a proposal body.
func (l *LLM) Summarize(ctx context.Context, content string) (string, error) {
	return l.complete(ctx, summaryPrompt, truncate(content, 6000), 150, false)
}

const rankPrompt = `You rank DAO governance proposals for one user based on their voting history.
Reply with a JSON object {"ranking": [proposal ids, most relevant first]} using only the listed ids.`

// RankProposals orders proposal ids by expected interest to the user.
func (l *LLM) RankProposals(ctx context.Context, history []models.Vote, proposals []models.Proposal) ([]string, error) {
	user := fmt.Sprintf("Voting history:\n%s\nProposals:\n%s", formatHistory(history), formatProposals(proposals))
	raw, err := l.complete(ctx, rankPrompt, user, 400, true)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Ranking []string `json:"ranking"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return nil, xerrors.Errorf("decode ranking %q: %w", raw, err)
	}
	if len(parsed.Ranking) == 0 {
		return nil, xerrors.Errorf("empty ranking")
	}
	return parsed.Ranking, nil
}

func formatHistory(history []models.Vote) string {
	var b strings.Builder
	for _, v := range history {
		fmt.Fprintf(&b, "- %s on %q (%s)\n", v.Choice, v.ProposalTitle, v.Protocol)
	}
	return b.String()
}

// extractJSON strips markdown fences some models wrap around JSON.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
