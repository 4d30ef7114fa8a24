package externalapi

import (
	"bytes"
	"encoding/hex"

	"github.com/pkg/errors"
)

// IDSize is the size of peer identifiers and digests.
const IDSize = 32

// PeerID identifies a peer by its x-only Schnorr public key.
type PeerID [IDSize]byte

// NewPeerIDFromSlice copies a PeerID out of b.
func NewPeerIDFromSlice(b []byte) (PeerID, error) {
	var peer PeerID
	if len(b) != IDSize {
		return peer, errors.Errorf("invalid peer id size. Want: %d, got: %d", IDSize, len(b))
	}
	copy(peer[:], b)
	return peer, nil
}

// NewPeerIDFromString parses a hex encoded PeerID.
func NewPeerIDFromString(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, errors.Wrapf(err, "malformed peer id %q", s)
	}
	return NewPeerIDFromSlice(b)
}

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// Alt returns a short form of the id suitable for logs.
func (p PeerID) Alt() string {
	return hex.EncodeToString(p[:4])
}

// Less orders peers by their byte representation.
func (p PeerID) Less(other PeerID) bool {
	return bytes.Compare(p[:], other[:]) < 0
}

// Digest is the content hash of a point body.
type Digest [IDSize]byte

// NewDigestFromSlice copies a Digest out of b.
func NewDigestFromSlice(b []byte) (Digest, error) {
	var digest Digest
	if len(b) != IDSize {
		return digest, errors.Errorf("invalid digest size. Want: %d, got: %d", IDSize, len(b))
	}
	copy(digest[:], b)
	return digest, nil
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Alt returns a short form of the digest suitable for logs.
func (d Digest) Alt() string {
	return hex.EncodeToString(d[:4])
}

// Less orders digests by their byte representation.
func (d Digest) Less(other Digest) bool {
	return bytes.Compare(d[:], other[:]) < 0
}

// Signature is a serialized signature. Its length is opaque to the core.
type Signature []byte

// Clone returns a copy of the signature.
func (s Signature) Clone() Signature {
	if s == nil {
		return nil
	}
	clone := make(Signature, len(s))
	copy(clone, s)
	return clone
}

// Equal returns whether both signatures have the same bytes.
func (s Signature) Equal(other Signature) bool {
	return bytes.Equal(s, other)
}
