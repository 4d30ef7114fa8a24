package externalapi

// PointData holds the links of a point.
type PointData struct {
	Author        PeerID
	Includes      []PeerDigestPair
	Witness       []PeerDigestPair
	AnchorTrigger Link
	AnchorProof   Link
	Time          UnixTime
	AnchorTime    UnixTime
}

// PointBody is the signed content of a point.
type PointBody struct {
	Round    Round
	Payload  [][]byte
	Data     PointData
	Evidence []PeerSignaturePair
}

// Point is a signed DAG vertex.
type Point struct {
	Digest    Digest
	Signature Signature
	Body      *PointBody
}

// ID returns the identity of the point.
func (p *Point) ID() PointID {
	return PointID{Author: p.Body.Data.Author, Round: p.Body.Round, Digest: p.Digest}
}

// Round returns the round of the point.
func (p *Point) Round() Round {
	return p.Body.Round
}

// Author returns the author of the point.
func (p *Point) Author() PeerID {
	return p.Body.Data.Author
}

// Location returns the location of the point.
func (p *Point) Location() Location {
	return Location{Round: p.Body.Round, Author: p.Body.Data.Author}
}

// PrevDigest returns the digest of the author's previous point, which is
// always at the previous round.
func (p *Point) PrevDigest() (Digest, bool) {
	return FindDigest(p.Body.Data.Includes, p.Body.Data.Author)
}

// PrevID returns the id of the author's previous point.
func (p *Point) PrevID() (PointID, bool) {
	digest, ok := p.PrevDigest()
	if !ok {
		return PointID{}, false
	}
	return PointID{Author: p.Body.Data.Author, Round: p.Body.Round.Prev(), Digest: digest}, true
}

// IncludesIDs returns the ids referenced by includes.
func (p *Point) IncludesIDs() []PointID {
	return pairsToIDs(p.Body.Data.Includes, p.Body.Round.Prev())
}

// WitnessIDs returns the ids referenced by witness.
func (p *Point) WitnessIDs() []PointID {
	return pairsToIDs(p.Body.Data.Witness, p.Body.Round.SubSaturating(2))
}

// AnchorLink returns the link stored in field.
func (p *Point) AnchorLink(field AnchorLinkField) Link {
	if field == AnchorProof {
		return p.Body.Data.AnchorProof
	}
	return p.Body.Data.AnchorTrigger
}

// PayloadBytes returns the total size of the payload.
func (p *Point) PayloadBytes() int {
	size := 0
	for _, blob := range p.Body.Payload {
		size += len(blob)
	}
	return size
}

func pairsToIDs(pairs []PeerDigestPair, round Round) []PointID {
	ids := make([]PointID, len(pairs))
	for i, pair := range pairs {
		ids[i] = PointID{Author: pair.Peer, Round: round, Digest: pair.Digest}
	}
	return ids
}

// Clone returns a deep copy of the point.
func (p *Point) Clone() *Point {
	return &Point{
		Digest:    p.Digest,
		Signature: p.Signature.Clone(),
		Body:      p.Body.Clone(),
	}
}

// Clone returns a deep copy of the body.
func (b *PointBody) Clone() *PointBody {
	payload := make([][]byte, len(b.Payload))
	for i, blob := range b.Payload {
		payload[i] = append([]byte(nil), blob...)
	}
	evidence := make([]PeerSignaturePair, len(b.Evidence))
	for i, pair := range b.Evidence {
		evidence[i] = PeerSignaturePair{Peer: pair.Peer, Signature: pair.Signature.Clone()}
	}
	data := b.Data
	data.Includes = append([]PeerDigestPair(nil), b.Data.Includes...)
	data.Witness = append([]PeerDigestPair(nil), b.Data.Witness...)
	return &PointBody{
		Round:    b.Round,
		Payload:  payload,
		Data:     data,
		Evidence: evidence,
	}
}

// CommittedAnchor is an anchor with its ordered commit set.
type CommittedAnchor struct {
	Anchor *Point
	// History holds the payload-bearing points committed by this anchor,
	// ordered by round, author and digest.
	History []*Point
	// HistoryHash accumulates every digest committed so far.
	HistoryHash Digest
}
