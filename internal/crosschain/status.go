package crosschain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/xerrors"
)

// StatusAPI reads message state from the bridge explorer API.
type StatusAPI struct {
	baseURL string
	client  *http.Client
}

func NewStatusAPI(baseURL string, client *http.Client) *StatusAPI {
	if client == nil {
		client = http.DefaultClient
	}
	return &StatusAPI{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type messageResponse struct {
	MessageID           string `json:"messageId"`
	State               string `json:"state"`
	DestTransactionHash string `json:"destTransactionHash"`
}

// Get returns the message status. A message the explorer has not indexed
// yet is reported as pending.
func (s *StatusAPI) Get(ctx context.Context, messageID string) (*MessageStatus, error) {
	if messageID == "" {
		return nil, xerrors.Errorf("empty message id")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/messages/"+url.PathEscape(messageID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("query message %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &MessageStatus{Status: StatusPending}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("query message %s: unexpected status %d", messageID, resp.StatusCode)
	}

	var out messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, xerrors.Errorf("decode message %s: %w", messageID, err)
	}
	return &MessageStatus{
		Status:            parseState(out.State),
		DestinationTxHash: out.DestTransactionHash,
	}, nil
}

func parseState(state string) Status {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "SUCCESS", "EXECUTED":
		return StatusExecuted
	case "FAILURE", "FAILED":
		return StatusFailed
	default:
		return StatusPending
	}
}
