package crosschain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/xerrors"
)

// Relayer talks to the smart-wallet relayer that sponsors gas and forwards
// the message to the bridge router on the source chain.
type Relayer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewRelayer(baseURL, apiKey string, client *http.Client) *Relayer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Relayer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type relayRequest struct {
	SourceChain         string `json:"sourceChain"`
	DestinationChain    string `json:"destinationChain"`
	DestinationSelector string `json:"destinationSelector"`
	SmartWallet         string `json:"smartWallet"`
	Data                string `json:"data"`
	Sponsored           bool   `json:"sponsored"`
}

type relayResponse struct {
	MessageID string `json:"messageId"`
	TxHash    string `json:"txHash"`
	Error     string `json:"error"`
}

// RelayError is a non-2xx answer from the relayer.
type RelayError struct {
	StatusCode int
	Message    string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relayer rejected message (%d): %s", e.StatusCode, e.Message)
}

// Relay submits one message. It never retries: a retry after an ambiguous
// failure could put the same vote on-chain twice.
func (r *Relayer) Relay(ctx context.Context, req SubmitRequest, data []byte) (*Submission, error) {
	body, err := json.Marshal(relayRequest{
		SourceChain:         req.SourceChain,
		DestinationChain:    req.DestinationChain,
		DestinationSelector: strconv.FormatUint(req.DestinationSelector, 10),
		SmartWallet:         req.Payload.Voter.Hex(),
		Data:                hexutil.Encode(data),
		Sponsored:           true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/relay", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, xerrors.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, xerrors.Errorf("read relay response: %w", err)
	}

	var out relayResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &RelayError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out.MessageID == "" {
		return nil, xerrors.Errorf("relayer response has no message id")
	}
	return &Submission{MessageID: out.MessageID, TxHash: out.TxHash}, nil
}
