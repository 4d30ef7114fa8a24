package externalapi

import "fmt"

// Through names the adjacency set a link traverses and the peer entry in it.
// The only implementations are ThroughWitness and ThroughIncludes.
type Through interface {
	Peer() PeerID
	isThrough()
}

// ThroughWitness traverses the witness entry of Peer.
type ThroughWitness struct {
	PeerID PeerID
}

// Peer implements Through.
func (t ThroughWitness) Peer() PeerID { return t.PeerID }
func (ThroughWitness) isThrough()     {}

func (t ThroughWitness) String() string {
	return fmt.Sprintf("witness(%s)", t.PeerID.Alt())
}

// ThroughIncludes traverses the includes entry of Peer.
type ThroughIncludes struct {
	PeerID PeerID
}

// Peer implements Through.
func (t ThroughIncludes) Peer() PeerID { return t.PeerID }
func (ThroughIncludes) isThrough()     {}

func (t ThroughIncludes) String() string {
	return fmt.Sprintf("includes(%s)", t.PeerID.Alt())
}

// Link is a reference from a point to an anchor. The only implementations
// are LinkToSelf, LinkDirect and LinkIndirect.
type Link interface {
	isLink()
}

// LinkToSelf means the point carries the same anchor as the author's
// previous point.
type LinkToSelf struct{}

func (LinkToSelf) isLink() {}

func (LinkToSelf) String() string { return "to-self" }

// LinkDirect designates the point referenced by Through itself.
type LinkDirect struct {
	Through Through
}

func (LinkDirect) isLink() {}

func (l LinkDirect) String() string { return fmt.Sprintf("direct(%s)", l.Through) }

// LinkIndirect designates To, which is reachable from the point referenced by Path.
type LinkIndirect struct {
	To   PointID
	Path Through
}

func (LinkIndirect) isLink() {}

func (l LinkIndirect) String() string { return fmt.Sprintf("indirect(%s via %s)", l.To, l.Path) }

// AnchorLinkField selects one of the two anchor links of a point.
type AnchorLinkField int

// The anchor link fields.
const (
	AnchorTrigger AnchorLinkField = iota
	AnchorProof
)

func (f AnchorLinkField) String() string {
	switch f {
	case AnchorTrigger:
		return "anchor_trigger"
	case AnchorProof:
		return "anchor_proof"
	}
	return fmt.Sprintf("AnchorLinkField(%d)", int(f))
}
