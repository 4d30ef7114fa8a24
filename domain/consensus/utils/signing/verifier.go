package signing

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// Verifier verifies signatures and remembers the valid ones, since the same
// evidence signature is checked by every point that carries it.
type Verifier struct {
	verified *lru.Cache
}

type verifiedKey struct {
	peer      externalapi.PeerID
	digest    externalapi.Digest
	signature string
}

// NewVerifier returns a Verifier that remembers up to cacheSize valid signatures.
func NewVerifier(cacheSize int) (*Verifier, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the verified signatures cache")
	}
	return &Verifier{verified: cache}, nil
}

// Verify returns whether signature is peer's signature over digest.
func (v *Verifier) Verify(peer externalapi.PeerID, digest externalapi.Digest, signature externalapi.Signature) bool {
	key := verifiedKey{peer: peer, digest: digest, signature: string(signature)}
	if v.verified.Contains(key) {
		return true
	}
	if !Verify(peer, digest, signature) {
		return false
	}
	v.verified.Add(key, struct{}{})
	return true
}
