package domain_test

import (
	"testing"

	"github.com/pointdag/pointdagd/domain"
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"github.com/pointdag/pointdagd/infrastructure/db/database/ldb"
)

func TestNew(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	weights := make(map[externalapi.PeerID]uint64)
	for _, peer := range peers.Peers() {
		weights[peer] = 1
	}
	consensusConfig := consensus.DefaultConfig(weights)
	consensusConfig.MaxPayloadBytes = 100

	db, err := ldb.NewInMemoryLevelDB()
	if err != nil {
		t.Fatalf("NewInMemoryLevelDB: %+v", err)
	}
	defer db.Close()

	domainInstance, err := domain.New(consensusConfig, db, peers.KeyPairs[0], 1000, 500)
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	if domainInstance.Consensus().LocalPeer() != peers.KeyPairs[0].PeerID() {
		t.Fatalf("unexpected local peer %s", domainInstance.Consensus().LocalPeer())
	}
	if _, _, ok := domainInstance.Consensus().GetPoint(domainInstance.Consensus().Genesis().ID()); !ok {
		t.Fatalf("genesis is not stored")
	}

	// Payloads are capped by the point payload limit.
	if err := domainInstance.InputBuffer().Push(make([]byte, 101)); err == nil {
		t.Fatalf("expected a payload over the point limit to be rejected")
	}
	if err := domainInstance.InputBuffer().Push(make([]byte, 100)); err != nil {
		t.Fatalf("Push: %+v", err)
	}
}
