// Package protocoltestutils builds in-memory nodes for protocol flow tests.
package protocoltestutils

import (
	"testing"
	"time"

	"github.com/pointdag/pointdagd/app/protocol/flowcontext"
	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
)

// ConsensusConfig returns the consensus parameters of the network of peers.
func ConsensusConfig(peers *testutils.TestPeers) *consensus.Config {
	weights := make(map[externalapi.PeerID]uint64)
	for _, peer := range peers.Peers() {
		weights[peer] = 1
	}
	config := consensus.DefaultConfig(weights)
	config.NetworkName = "testnet"
	config.GenesisTime = testutils.GenesisTime
	config.RetentionRounds = 8
	config.CommitHistoryRounds = 16
	return config
}

// FlowConfig returns flow parameters with short intervals.
func FlowConfig() *flowcontext.Config {
	cfg := flowcontext.DefaultConfig()
	cfg.RetentionRounds = 8
	cfg.RoundTimeout = 200 * time.Millisecond
	cfg.QueryTimeout = time.Second
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 10 * time.Millisecond
	return cfg
}

// NewDomain creates the domain of the peer at index, keeping the DAG in memory.
func NewDomain(t testing.TB, peers *testutils.TestPeers, index int) domain.Domain {
	t.Helper()

	domainInstance, err := domain.New(ConsensusConfig(peers), nil, peers.KeyPairs[index], 1<<20, 1<<16)
	if err != nil {
		t.Fatalf("domain.New: %+v", err)
	}
	return domainInstance
}

// NewFlowContext creates the flow context of the peer at index over netAdapter.
func NewFlowContext(t testing.TB, cfg *flowcontext.Config, peers *testutils.TestPeers, index int,
	netAdapter netadapter.NetAdapter) *flowcontext.FlowContext {

	t.Helper()

	metricsInstance, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics.New: %+v", err)
	}
	return flowcontext.New(cfg, NewDomain(t, peers, index), netAdapter, metricsInstance)
}
