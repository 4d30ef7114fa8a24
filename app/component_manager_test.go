package app

import (
	"context"
	"testing"
	"time"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

func testAnchor(round externalapi.Round) *externalapi.CommittedAnchor {
	return &externalapi.CommittedAnchor{
		Anchor:      &externalapi.Point{Body: &externalapi.PointBody{Round: round}},
		HistoryHash: externalapi.Digest{byte(round)},
	}
}

func TestSendCommittedAnchorToLaggingConsumer(t *testing.T) {
	const anchorCount = 50
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	committedAnchors := make(chan *externalapi.CommittedAnchor, 2)

	sent := make(chan int, 1)
	go func() {
		count := 0
		for round := externalapi.Round(1); round <= anchorCount; round++ {
			if sendCommittedAnchor(ctx, committedAnchors, testAnchor(round)) {
				count++
			}
		}
		sent <- count
	}()

	for round := externalapi.Round(1); round <= anchorCount; round++ {
		if round%10 == 0 {
			time.Sleep(20 * time.Millisecond)
		}
		select {
		case anchor := <-committedAnchors:
			if anchor.Anchor.Round() != round {
				t.Fatalf("expected the anchor of round %d, got round %d", round, anchor.Anchor.Round())
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("the anchor of round %d was not published", round)
		}
	}
	if count := <-sent; count != anchorCount {
		t.Fatalf("expected %d anchors to be sent, got %d", anchorCount, count)
	}
}

func TestSendCommittedAnchorOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	committedAnchors := make(chan *externalapi.CommittedAnchor)

	sent := make(chan bool, 1)
	go func() {
		sent <- sendCommittedAnchor(ctx, committedAnchors, testAnchor(1))
	}()

	select {
	case <-sent:
		t.Fatalf("the anchor must wait for its consumer")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case ok := <-sent:
		if ok {
			t.Fatalf("no consumer read the anchor")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sendCommittedAnchor did not return on shutdown")
	}
}
