package protocol_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pointdag/pointdagd/app/protocol"
	"github.com/pointdag/pointdagd/app/protocol/protocoltestutils"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"github.com/pointdag/pointdagd/infrastructure/metrics"
	"github.com/pointdag/pointdagd/infrastructure/network/netadapter/standalone"
)

type testNode struct {
	manager *protocol.Manager
	adapter *standalone.Adapter

	lock      sync.Mutex
	committed []*externalapi.CommittedAnchor
}

func (n *testNode) committedAnchors() []*externalapi.CommittedAnchor {
	n.lock.Lock()
	defer n.lock.Unlock()

	return append([]*externalapi.CommittedAnchor(nil), n.committed...)
}

func startTestNodes(t *testing.T, peers *testutils.TestPeers) []*testNode {
	network := standalone.NewNetwork()
	nodes := make([]*testNode, len(peers.Peers()))
	for i, peer := range peers.Peers() {
		metricsInstance, err := metrics.New()
		if err != nil {
			t.Fatalf("metrics.New: %+v", err)
		}
		node := &testNode{adapter: network.NewAdapter(peer)}
		node.manager, err = protocol.NewManager(protocoltestutils.FlowConfig(),
			protocoltestutils.NewDomain(t, peers, i), node.adapter, metricsInstance)
		if err != nil {
			t.Fatalf("NewManager: %+v", err)
		}
		node.manager.SetOnAnchorCommittedHandler(func(anchor *externalapi.CommittedAnchor) {
			node.lock.Lock()
			defer node.lock.Unlock()
			node.committed = append(node.committed, anchor)
		})
		nodes[i] = node
	}
	for _, node := range nodes {
		err := node.adapter.Start()
		if err != nil {
			t.Fatalf("Start: %+v", err)
		}
	}
	for _, node := range nodes {
		node.manager.Start()
	}
	return nodes
}

func stopTestNodes(nodes []*testNode) {
	for _, node := range nodes {
		node.manager.Close()
	}
}

func waitForCommits(t *testing.T, nodes []*testNode, count int) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		done := true
		for _, node := range nodes {
			if len(node.committedAnchors()) < count {
				done = false
			}
		}
		if done {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("the nodes did not commit %d anchors in time", count)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNodesAgreeOnCommitOrder(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	nodes := startTestNodes(t, peers)
	defer stopTestNodes(nodes)

	for i, node := range nodes {
		err := node.manager.Context().Domain().InputBuffer().Push([]byte(fmt.Sprintf("payload of node %d", i)))
		if err != nil {
			t.Fatalf("Push: %+v", err)
		}
	}

	const expectedAnchors = 4
	waitForCommits(t, nodes, expectedAnchors)

	reference := nodes[0].committedAnchors()
	for i, node := range nodes[1:] {
		anchors := node.committedAnchors()
		for j := 0; j < expectedAnchors; j++ {
			if anchors[j].Anchor.ID() != reference[j].Anchor.ID() {
				t.Fatalf("node %d committed %s as anchor %d, node 0 committed %s",
					i+1, anchors[j].Anchor.ID(), j, reference[j].Anchor.ID())
			}
			if anchors[j].HistoryHash != reference[j].HistoryHash {
				t.Fatalf("node %d disagrees with node 0 on the history hash of anchor %d", i+1, j)
			}
		}
	}
}

func TestNodesCommitEveryPayload(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	nodes := startTestNodes(t, peers)
	defer stopTestNodes(nodes)

	payloads := make([][]byte, len(nodes))
	for i, node := range nodes {
		payloads[i] = []byte(fmt.Sprintf("payload of node %d", i))
		err := node.manager.Context().Domain().InputBuffer().Push(payloads[i])
		if err != nil {
			t.Fatalf("Push: %+v", err)
		}
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		missing := 0
		for _, payload := range payloads {
			if !isCommitted(nodes[0].committedAnchors(), payload) {
				missing++
			}
		}
		if missing == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d payloads were not committed in time", missing)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func isCommitted(anchors []*externalapi.CommittedAnchor, payload []byte) bool {
	for _, anchor := range anchors {
		for _, point := range append([]*externalapi.Point{anchor.Anchor}, anchor.History...) {
			for _, blob := range point.Body.Payload {
				if bytes.Equal(blob, payload) {
					return true
				}
			}
		}
	}
	return false
}
