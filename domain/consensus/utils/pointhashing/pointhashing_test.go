package pointhashing

import (
	"testing"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

func testBody() *externalapi.PointBody {
	author := externalapi.PeerID{1}
	return &externalapi.PointBody{
		Round:   3,
		Payload: [][]byte{[]byte("payload"), {0xff}},
		Data: externalapi.PointData{
			Author:        author,
			Includes:      []externalapi.PeerDigestPair{{Peer: author, Digest: externalapi.Digest{1}}},
			AnchorTrigger: externalapi.LinkToSelf{},
			AnchorProof:   externalapi.LinkToSelf{},
			Time:          1000,
			AnchorTime:    900,
		},
		Evidence: []externalapi.PeerSignaturePair{{Peer: externalapi.PeerID{2}, Signature: externalapi.Signature{1, 2}}},
	}
}

func TestDigestIntegrity(t *testing.T) {
	body := testBody()
	point := &externalapi.Point{Digest: BodyDigest(body), Body: body}
	if !IsDigestValid(point) {
		t.Fatalf("a freshly computed digest must be valid")
	}

	mutations := []struct {
		name   string
		mutate func(body *externalapi.PointBody)
	}{
		{"round", func(body *externalapi.PointBody) { body.Round++ }},
		{"payload byte", func(body *externalapi.PointBody) { body.Payload[0][0] ^= 1 }},
		{"extra payload", func(body *externalapi.PointBody) { body.Payload = append(body.Payload, nil) }},
		{"time", func(body *externalapi.PointBody) { body.Data.Time++ }},
		{"anchor time", func(body *externalapi.PointBody) { body.Data.AnchorTime-- }},
		{"includes digest", func(body *externalapi.PointBody) { body.Data.Includes[0].Digest[5] = 1 }},
		{"evidence signature", func(body *externalapi.PointBody) { body.Evidence[0].Signature[0] = 9 }},
		{"trigger", func(body *externalapi.PointBody) {
			body.Data.AnchorTrigger = externalapi.LinkDirect{Through: externalapi.ThroughIncludes{PeerID: body.Data.Author}}
		}},
	}
	for _, test := range mutations {
		mutated := &externalapi.Point{Digest: point.Digest, Body: body.Clone()}
		test.mutate(mutated.Body)
		if IsDigestValid(mutated) {
			t.Errorf("mutating the %s must invalidate the digest", test.name)
		}
	}
}

func TestDigestDomainSeparation(t *testing.T) {
	data := []byte("same input")
	pointWriter := NewPointDigestWriter()
	pointWriter.InfallibleWrite(data)
	genesisWriter := NewGenesisKeyWriter()
	genesisWriter.InfallibleWrite(data)
	if pointWriter.Finalize() == genesisWriter.Finalize() {
		t.Fatalf("different domains must produce different digests")
	}
}
