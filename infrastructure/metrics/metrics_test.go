package metrics

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %+v", err)
	}

	m.SetCurrentRound(17)
	m.AddCommittedAnchor(&externalapi.CommittedAnchor{History: make([]*externalapi.Point, 3)})
	m.AddCommittedAnchor(&externalapi.CommittedAnchor{})
	m.AddTryLaterServed("signature")
	m.AddTryLaterServed("signature")
	m.AddValidatedPoint("invalid")

	if value := testutil.ToFloat64(m.currentRound); value != 17 {
		t.Errorf("unexpected current round %f", value)
	}
	if value := testutil.ToFloat64(m.committedAnchors); value != 2 {
		t.Errorf("unexpected committed anchors %f", value)
	}
	if value := testutil.ToFloat64(m.committedPoints); value != 3 {
		t.Errorf("unexpected committed points %f", value)
	}
	if value := testutil.ToFloat64(m.tryLaterServed.WithLabelValues("signature")); value != 2 {
		t.Errorf("unexpected tryLater count %f", value)
	}
}

func TestServe(t *testing.T) {
	m, err := New()
	if err != nil {
		t.Fatalf("New: %+v", err)
	}
	m.AddDroppedBroadcast()

	err = m.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %+v", err)
	}
	defer m.Stop()

	response, err := http.Get("http://" + m.Address() + "/metrics")
	if err != nil {
		t.Fatalf("Get: %+v", err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("ReadAll: %+v", err)
	}
	if !strings.Contains(string(body), "pointdag_dropped_broadcasts_total 1") {
		t.Fatalf("dropped broadcasts are not exposed:\n%s", body)
	}
}
