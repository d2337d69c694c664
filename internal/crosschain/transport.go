// Package crosschain submits vote messages through a gas-sponsoring
// smart-wallet relayer and tracks them across the message-passing bridge
// until they execute on the destination chain.
package crosschain

import (
	"context"
	"net/http"
	"time"

	"governance-agent/internal/config"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Status is the bridge-reported state of a message.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

// SubmitRequest is one cross-chain vote message.
type SubmitRequest struct {
	SourceChain         string
	DestinationChain    string
	DestinationSelector uint64
	Payload             VotePayload
	// IdempotencyKey is unique per logical vote submission; relayers that
	// support it drop duplicates carrying the same key.
	IdempotencyKey string
}

// Submission is what the relayer hands back for an accepted message.
type Submission struct {
	MessageID string
	TxHash    string // source-chain transaction
}

// MessageStatus is the bridge view of a message.
type MessageStatus struct {
	Status            Status
	DestinationTxHash string
}

// Receipt is the destination-chain outcome of an executed message.
type Receipt struct {
	Success     bool
	BlockNumber uint64
}

// ErrNoRelayer is returned by Submit when no relayer endpoint is configured.
var ErrNoRelayer = xerrors.New("relayer is not configured")

// Transport is the contract the vote pipeline depends on.
type Transport interface {
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	GetStatus(ctx context.Context, messageID string) (*MessageStatus, error)
	// GetDestinationReceipt returns nil, nil while the receipt is not yet
	// available on the destination chain.
	GetDestinationReceipt(ctx context.Context, txHash, chain string) (*Receipt, error)
}

// Client implements Transport over the relayer HTTP API, the bridge
// explorer API and per-chain RPC endpoints.
type Client struct {
	relayer  *Relayer
	status   *StatusAPI
	receipts *ReceiptReader
	log      *zap.SugaredLogger
}

var _ Transport = (*Client)(nil)

// NewClient builds the transport. Without RELAYER_URL the client can still
// track messages but Submit fails with ErrNoRelayer.
func NewClient(cfg config.Config, log *zap.SugaredLogger) (*Client, error) {
	if cfg.CCIPAPIURL == "" {
		return nil, xerrors.Errorf("CCIP_API_URL is required")
	}
	httpc := &http.Client{Timeout: cfg.ExternalCallTimeout + 5*time.Second}
	log = log.Named("crosschain")
	c := &Client{
		status:   NewStatusAPI(cfg.CCIPAPIURL, httpc),
		receipts: NewReceiptReader(cfg.Chains, log),
		log:      log,
	}
	if cfg.RelayerURL != "" {
		c.relayer = NewRelayer(cfg.RelayerURL, cfg.RelayerKey, httpc)
	} else {
		log.Warnw("RELAYER_URL not set, vote submission is disabled")
	}
	return c, nil
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if c.relayer == nil {
		return nil, ErrNoRelayer
	}
	data, err := req.Payload.Encode()
	if err != nil {
		return nil, xerrors.Errorf("encode vote payload: %w", err)
	}
	sub, err := c.relayer.Relay(ctx, req, data)
	if err != nil {
		return nil, err
	}
	c.log.Debugw("relayer accepted vote message",
		"message_id", sub.MessageID, "tx_hash", sub.TxHash,
		"destination_chain", req.DestinationChain, "idempotency_key", req.IdempotencyKey)
	return sub, nil
}

func (c *Client) GetStatus(ctx context.Context, messageID string) (*MessageStatus, error) {
	return c.status.Get(ctx, messageID)
}

func (c *Client) GetDestinationReceipt(ctx context.Context, txHash, chain string) (*Receipt, error) {
	return c.receipts.Get(ctx, txHash, chain)
}

// Close releases cached chain connections.
func (c *Client) Close() {
	c.receipts.Close()
}
