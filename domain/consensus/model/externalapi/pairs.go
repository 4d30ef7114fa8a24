package externalapi

import "sort"

// PeerDigestPair references the point of a peer by its digest.
type PeerDigestPair struct {
	Peer   PeerID
	Digest Digest
}

// PeerSignaturePair is a signature of a peer.
type PeerSignaturePair struct {
	Peer      PeerID
	Signature Signature
}

// FindDigest returns the digest listed for peer.
func FindDigest(pairs []PeerDigestPair, peer PeerID) (Digest, bool) {
	for _, pair := range pairs {
		if pair.Peer == peer {
			return pair.Digest, true
		}
	}
	return Digest{}, false
}

// SortPeerDigestPairs sorts pairs by peer.
func SortPeerDigestPairs(pairs []PeerDigestPair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Peer.Less(pairs[j].Peer) })
}

// SortPeerSignaturePairs sorts pairs by peer.
func SortPeerSignaturePairs(pairs []PeerSignaturePair) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Peer.Less(pairs[j].Peer) })
}

// ArePeerDigestPairsSortedAndUnique returns whether every peer appears once,
// in ascending order.
func ArePeerDigestPairsSortedAndUnique(pairs []PeerDigestPair) bool {
	for i := 1; i < len(pairs); i++ {
		if !pairs[i-1].Peer.Less(pairs[i].Peer) {
			return false
		}
	}
	return true
}

// ArePeerSignaturePairsSortedAndUnique returns whether every peer appears
// once, in ascending order.
func ArePeerSignaturePairsSortedAndUnique(pairs []PeerSignaturePair) bool {
	for i := 1; i < len(pairs); i++ {
		if !pairs[i-1].Peer.Less(pairs[i].Peer) {
			return false
		}
	}
	return true
}

// SortPointsByAuthor sorts points by author.
func SortPointsByAuthor(points []*Point) {
	sort.Slice(points, func(i, j int) bool { return points[i].Author().Less(points[j].Author()) })
}
