package broadcaster_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pointdag/pointdagd/app/protocol/flows/broadcaster"
	"github.com/pointdag/pointdagd/app/protocol/protocoltestutils"
	"github.com/pointdag/pointdagd/domain/consensus/model"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter"
)

// peerScript answers the call-th signature query of a peer, starting at 1.
type peerScript func(call int) appmessage.Response

type scriptedNetAdapter struct {
	scripts map[externalapi.PeerID]peerScript

	lock             sync.Mutex
	broadcasts       map[externalapi.PeerID]int
	signatureQueries map[externalapi.PeerID]int
}

func newScriptedNetAdapter(scripts map[externalapi.PeerID]peerScript) *scriptedNetAdapter {
	return &scriptedNetAdapter{
		scripts:          scripts,
		broadcasts:       make(map[externalapi.PeerID]int),
		signatureQueries: make(map[externalapi.PeerID]int),
	}
}

func (a *scriptedNetAdapter) Query(ctx context.Context, peer externalapi.PeerID,
	request appmessage.Request) (appmessage.Response, error) {

	a.lock.Lock()
	defer a.lock.Unlock()

	switch request.(type) {
	case *appmessage.MsgBroadcastQuery:
		a.broadcasts[peer]++
		return appmessage.NewMsgBroadcastResponse(), nil
	case *appmessage.MsgSignatureQuery:
		a.signatureQueries[peer]++
		return a.scripts[peer](a.signatureQueries[peer]), nil
	}
	return nil, errors.Errorf("unexpected request %s", request.Command())
}

func (a *scriptedNetAdapter) counts(peer externalapi.PeerID) (broadcasts int, signatureQueries int) {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.broadcasts[peer], a.signatureQueries[peer]
}

func (a *scriptedNetAdapter) SetHandler(netadapter.Handler) {}
func (a *scriptedNetAdapter) Start() error                  { return nil }
func (a *scriptedNetAdapter) Stop() error                   { return nil }

func TestBroadcastCollectsEvidence(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	patient, forgetful, refusing := peers.Peers()[1], peers.Peers()[2], peers.Peers()[3]

	var point *externalapi.Point
	sign := func(peer externalapi.PeerID) appmessage.Response {
		signature, err := peers.KeyPair(peer).Sign(point.Digest)
		if err != nil {
			t.Errorf("Sign: %+v", err)
		}
		return appmessage.NewMsgSignatureGiven(signature)
	}
	adapter := newScriptedNetAdapter(map[externalapi.PeerID]peerScript{
		patient: func(call int) appmessage.Response {
			if call == 1 {
				return appmessage.NewMsgSignatureTryLater()
			}
			return sign(patient)
		},
		forgetful: func(call int) appmessage.Response {
			if call == 1 {
				return appmessage.NewMsgSignatureNoPoint()
			}
			return sign(forgetful)
		},
		refusing: func(int) appmessage.Response {
			return appmessage.NewMsgSignatureRejected(externalapi.RejectionCannotSign)
		},
	})
	flowContext := protocoltestutils.NewFlowContext(t, protocoltestutils.FlowConfig(), peers, 0, adapter)
	defer flowContext.Close()

	var err error
	point, err = flowContext.Consensus().BuildOwnPoint(2, nil, testutils.RoundTime(2))
	if err != nil {
		t.Fatalf("BuildOwnPoint: %+v", err)
	}
	broadcaster.New(flowContext).Broadcast(context.Background(), point)

	collector := flowContext.Consensus().EvidenceCollector()
	if state, _ := collector.State(point.ID()); state != model.EvidenceProven {
		t.Fatalf("expected the point to be proven, got %s", state)
	}
	if evidence := collector.Evidence(point.ID()); len(evidence) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(evidence))
	}

	tests := []struct {
		peer             externalapi.PeerID
		broadcasts       int
		signatureQueries int
	}{
		{patient, 1, 2},
		{forgetful, 2, 2},
	}
	for _, test := range tests {
		broadcasts, signatureQueries := adapter.counts(test.peer)
		if broadcasts != test.broadcasts || signatureQueries != test.signatureQueries {
			t.Errorf("%s: expected %d broadcasts and %d signature queries, got %d and %d", test.peer,
				test.broadcasts, test.signatureQueries, broadcasts, signatureQueries)
		}
	}

	// The refusing peer may be skipped once the point is proven, but is
	// never asked twice.
	broadcasts, signatureQueries := adapter.counts(refusing)
	if broadcasts != 1 || signatureQueries > 1 {
		t.Errorf("%s: expected 1 broadcast and at most 1 signature query, got %d and %d",
			refusing, broadcasts, signatureQueries)
	}
}

func TestBroadcastStopsQueryingPeersAnsweringTooOldRound(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	scripts := make(map[externalapi.PeerID]peerScript)
	for _, peer := range peers.Peers()[1:] {
		scripts[peer] = func(int) appmessage.Response {
			return appmessage.NewMsgSignatureRejected(externalapi.RejectionTooOldRound)
		}
	}
	adapter := newScriptedNetAdapter(scripts)
	flowContext := protocoltestutils.NewFlowContext(t, protocoltestutils.FlowConfig(), peers, 0, adapter)
	defer flowContext.Close()

	point, err := flowContext.Consensus().BuildOwnPoint(2, nil, testutils.RoundTime(2))
	if err != nil {
		t.Fatalf("BuildOwnPoint: %+v", err)
	}

	done := make(chan struct{})
	go func() {
		broadcaster.New(flowContext).Broadcast(context.Background(), point)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Broadcast kept querying peers that answered tooOldRound")
	}

	for _, peer := range peers.Peers()[1:] {
		if _, signatureQueries := adapter.counts(peer); signatureQueries != 1 {
			t.Errorf("expected %s to be asked once, got %d", peer, signatureQueries)
		}
		if flowContext.Consensus().EvidenceCollector().ShouldQuery(point.ID(), peer) {
			t.Errorf("expected %s not to be queried again", peer)
		}
	}
	if state, _ := flowContext.Consensus().EvidenceCollector().State(point.ID()); state != model.EvidenceCollecting {
		t.Fatalf("expected the point to stay collecting, got %s", state)
	}
}

func TestBroadcastStopsWithTheRound(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	scripts := make(map[externalapi.PeerID]peerScript)
	for _, peer := range peers.Peers()[1:] {
		scripts[peer] = func(int) appmessage.Response {
			return appmessage.NewMsgSignatureTryLater()
		}
	}
	adapter := newScriptedNetAdapter(scripts)
	flowContext := protocoltestutils.NewFlowContext(t, protocoltestutils.FlowConfig(), peers, 0, adapter)
	defer flowContext.Close()

	point, err := flowContext.Consensus().BuildOwnPoint(2, nil, testutils.RoundTime(2))
	if err != nil {
		t.Fatalf("BuildOwnPoint: %+v", err)
	}
	roundCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		broadcaster.New(flowContext).Broadcast(roundCtx, point)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Broadcast did not stop when its round was cancelled")
	}
	for _, peer := range peers.Peers()[1:] {
		if _, signatureQueries := adapter.counts(peer); signatureQueries < 2 {
			t.Errorf("expected %s to be asked again after tryLater, got %d queries", peer, signatureQueries)
		}
	}
}
