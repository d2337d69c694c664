package governance

import (
	"strings"

	"go.uber.org/zap"
)

// ChainRouter picks the destination chain for a proposal's protocol.
type ChainRouter struct {
	protocols map[string]string
	fallback  string
	log       *zap.SugaredLogger
}

func NewChainRouter(protocols map[string]string, fallback string, log *zap.SugaredLogger) *ChainRouter {
	m := make(map[string]string, len(protocols))
	for k, v := range protocols {
		m[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &ChainRouter{protocols: m, fallback: fallback, log: log}
}

// Route returns the chain name for protocol. Unknown protocols go to the
// fallback chain; usedFallback is true in that case and a warning is logged
// because it means the routing table is missing an entry.
func (r *ChainRouter) Route(protocol string) (chain string, usedFallback bool) {
	if c, ok := r.protocols[strings.ToLower(strings.TrimSpace(protocol))]; ok {
		return c, false
	}
	r.log.Warnw("no chain mapping for protocol, using fallback chain",
		"protocol", protocol, "fallback_chain", r.fallback)
	return r.fallback, true
}
