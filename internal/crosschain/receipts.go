package crosschain

import (
	"context"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"sync"

	"governance-agent/internal/config"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	rpccoretypes "github.com/cometbft/cometbft/rpc/core/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

type evmReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

type cosmosTxClient interface {
	Tx(ctx context.Context, hash []byte, prove bool) (*rpccoretypes.ResultTx, error)
}

// ReceiptReader looks up destination transactions on EVM chains through
// JSON-RPC and on Cosmos chains through CometBFT RPC. Connections are dialed
// on first use and kept per chain.
type ReceiptReader struct {
	chains map[string]config.ChainConfig
	log    *zap.SugaredLogger

	mu     sync.Mutex
	evm    map[string]evmReceiptClient
	cosmos map[string]cosmosTxClient

	dialEVM    func(ctx context.Context, rawurl string) (evmReceiptClient, error)
	dialCosmos func(rawurl string) (cosmosTxClient, error)
}

func NewReceiptReader(chains map[string]config.ChainConfig, log *zap.SugaredLogger) *ReceiptReader {
	return &ReceiptReader{
		chains: chains,
		log:    log,
		evm:    map[string]evmReceiptClient{},
		cosmos: map[string]cosmosTxClient{},
		dialEVM: func(ctx context.Context, rawurl string) (evmReceiptClient, error) {
			return ethclient.DialContext(ctx, rawurl)
		},
		dialCosmos: func(rawurl string) (cosmosTxClient, error) {
			// rpchttp.New takes RPC base URL and WS path separately
			return rpchttp.New(rawurl, "/websocket")
		},
	}
}

// Get returns the receipt of txHash on chain, or nil while it is not
// available yet.
func (r *ReceiptReader) Get(ctx context.Context, txHash, chain string) (*Receipt, error) {
	if strings.TrimSpace(txHash) == "" {
		return nil, nil
	}
	cc, ok := r.chains[chain]
	if !ok {
		return nil, xerrors.Errorf("unknown chain %q", chain)
	}
	if cc.RPCURL == "" {
		return nil, xerrors.Errorf("no RPC endpoint configured for chain %q", chain)
	}

	switch cc.Kind {
	case config.ChainKindCosmos:
		return r.cosmosReceipt(ctx, cc, txHash)
	default:
		return r.evmReceipt(ctx, cc, txHash)
	}
}

func (r *ReceiptReader) evmReceipt(ctx context.Context, cc config.ChainConfig, txHash string) (*Receipt, error) {
	if !isHexHash(txHash) {
		return nil, xerrors.Errorf("malformed transaction hash %q", txHash)
	}
	client, err := r.evmClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	rcpt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Errorf("fetch receipt %s on %s: %w", txHash, cc.Name, err)
	}
	out := &Receipt{Success: rcpt.Status == types.ReceiptStatusSuccessful}
	if rcpt.BlockNumber != nil {
		out.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	return out, nil
}

// CometBFT's /tx handler answers an unindexed hash with
// fmt.Errorf("tx (%X) not found", hash), which reaches JSON-RPC clients only
// as text in the RPC error data.
var txNotFound = regexp.MustCompile(`tx \([0-9A-Fa-f]*\) not found`)

func isTxNotFound(err error) bool {
	return txNotFound.MatchString(err.Error())
}

func (r *ReceiptReader) cosmosReceipt(ctx context.Context, cc config.ChainConfig, txHash string) (*Receipt, error) {
	hash, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(txHash, "0x"), "0X"))
	if err != nil {
		return nil, xerrors.Errorf("malformed transaction hash %q: %w", txHash, err)
	}
	client, err := r.cosmosClient(cc)
	if err != nil {
		return nil, err
	}
	res, err := client.Tx(ctx, hash, false)
	if err != nil {
		if isTxNotFound(err) {
			return nil, nil
		}
		return nil, xerrors.Errorf("fetch tx %s on %s: %w", txHash, cc.Name, err)
	}
	return &Receipt{
		Success:     res.TxResult.Code == 0,
		BlockNumber: uint64(res.Height),
	}, nil
}

func (r *ReceiptReader) evmClient(ctx context.Context, cc config.ChainConfig) (evmReceiptClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.evm[cc.Name]; ok {
		return c, nil
	}
	c, err := r.dialEVM(ctx, cc.RPCURL)
	if err != nil {
		return nil, xerrors.Errorf("dial %s rpc: %w", cc.Name, err)
	}
	r.evm[cc.Name] = c
	r.log.Debugw("connected to chain rpc", "chain", cc.Name, "kind", cc.Kind)
	return c, nil
}

func (r *ReceiptReader) cosmosClient(cc config.ChainConfig) (cosmosTxClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cosmos[cc.Name]; ok {
		return c, nil
	}
	c, err := r.dialCosmos(cc.RPCURL)
	if err != nil {
		return nil, xerrors.Errorf("create %s rpc client: %w", cc.Name, err)
	}
	r.cosmos[cc.Name] = c
	r.log.Debugw("connected to chain rpc", "chain", cc.Name, "kind", cc.Kind)
	return c, nil
}

// Close drops all cached connections.
func (r *ReceiptReader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.evm {
		if closer, ok := c.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(r.evm, name)
	}
	for name := range r.cosmos {
		delete(r.cosmos, name)
	}
}

func isHexHash(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 2*common.HashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
