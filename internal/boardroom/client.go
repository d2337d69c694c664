// Package boardroom is a client for the governance proposal aggregator.
package boardroom

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"governance-agent/internal/models"
	"governance-agent/internal/retry"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// ErrNotFound is returned for unknown proposals.
var ErrNotFound = errors.New("proposal not found in aggregator")

// Client fetches proposals and caches per-wallet pending lists for a short
// time, since digests, show-more replies and the API ask for the same
// wallet in bursts.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	policy  retry.Policy
	log     *zap.SugaredLogger

	mu    sync.RWMutex
	cache map[string]walletEntry // lowercased wallet -> pending proposals
	ttl   time.Duration
	now   func() time.Time
}

type walletEntry struct {
	proposals []models.Proposal
	fetched   time.Time
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		policy:  retry.Default,
		log:     log.Named("boardroom"),
		cache:   map[string]walletEntry{},
		ttl:     5 * time.Minute,
		now:     time.Now,
	}
}

type apiProposal struct {
	ID             string   `json:"id"`
	RefID          string   `json:"refId"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	Protocol       string   `json:"protocol"`
	Adapter        string   `json:"adapter"`
	Proposer       string   `json:"proposer"`
	CurrentState   string   `json:"currentState"`
	StartTimestamp int64    `json:"startTimestamp"`
	EndTimestamp   int64    `json:"endTimestamp"`
	Choices        []string `json:"choices"`
}

type listResponse struct {
	Data []apiProposal `json:"data"`
}

type singleResponse struct {
	Data *apiProposal `json:"data"`
}

func (p apiProposal) toModel(wallet string) models.Proposal {
	return models.Proposal{
		ID:             p.ID,
		RefID:          p.RefID,
		Title:          p.Title,
		Content:        p.Content,
		Protocol:       p.Protocol,
		Adapter:        p.Adapter,
		Proposer:       p.Proposer,
		Status:         p.CurrentState,
		StartTimestamp: p.StartTimestamp,
		EndTimestamp:   p.EndTimestamp,
		Choices:        models.StringList(p.Choices),
		WalletAddress:  wallet,
	}
}

// PendingProposals returns proposals the wallet has not voted on yet.
func (c *Client) PendingProposals(ctx context.Context, wallet string) ([]models.Proposal, error) {
	key := strings.ToLower(wallet)

	// Fast path: cached
	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.fetched) <= c.ttl {
		return cloneProposals(entry.proposals), nil
	}

	var resp listResponse
	if err := c.getJSON(ctx, "/voters/"+url.PathEscape(wallet)+"/pendingVotes", &resp); err != nil {
		return nil, xerrors.Errorf("fetch pending proposals for %s: %w", wallet, err)
	}

	out := make([]models.Proposal, 0, len(resp.Data))
	for _, p := range resp.Data {
		if p.ID == "" {
			continue
		}
		out = append(out, p.toModel(wallet))
	}

	c.mu.Lock()
	c.cache[key] = walletEntry{proposals: out, fetched: c.now()}
	c.mu.Unlock()
	c.log.Debugw("fetched pending proposals", "wallet", wallet, "count", len(out))
	return cloneProposals(out), nil
}

// Proposal fetches a single proposal by id.
func (c *Client) Proposal(ctx context.Context, id string) (*models.Proposal, error) {
	var resp singleResponse
	err := c.getJSON(ctx, "/proposals/"+url.PathEscape(id), &resp)
	if retry.IsStatus(err, http.StatusNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, xerrors.Errorf("fetch proposal %s: %w", id, err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, ErrNotFound
	}
	p := resp.Data.toModel("")
	return &p, nil
}

// Invalidate drops the cached list for wallet.
func (c *Client) Invalidate(wallet string) {
	c.mu.Lock()
	delete(c.cache, strings.ToLower(wallet))
	c.mu.Unlock()
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("key", c.apiKey)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return retry.CheckStatus(resp.StatusCode, readSnippet(resp.Body))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(xerrors.Errorf("decode %s: %w", path, err))
		}
		return nil
	})
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func cloneProposals(in []models.Proposal) []models.Proposal {
	out := make([]models.Proposal, len(in))
	copy(out, in)
	return out
}
