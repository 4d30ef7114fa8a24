// Package pointhashing computes point digests and other domain separated
// blake2b hashes.
package pointhashing

import (
	"hash"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointserialization"
	"golang.org/x/crypto/blake2b"
)

const (
	pointDigestDomain = "PointDigest"
	genesisKeyDomain  = "GenesisKey"
)

// HashWriter incrementally hashes data with blake2b-256.
type HashWriter struct {
	hash.Hash
}

func newHashWriter(domain string) HashWriter {
	blake, err := blake2b.New256([]byte(domain))
	if err != nil {
		panic(errors.Wrapf(err, "this should never happen. %s is not a valid blake2b key", domain))
	}
	return HashWriter{blake}
}

// NewPointDigestWriter returns a HashWriter for point digests.
func NewPointDigestWriter() HashWriter {
	return newHashWriter(pointDigestDomain)
}

// NewGenesisKeyWriter returns a HashWriter for deriving the genesis key.
func NewGenesisKeyWriter() HashWriter {
	return newHashWriter(genesisKeyDomain)
}

// InfallibleWrite is just like write but doesn't return anything
func (h HashWriter) InfallibleWrite(p []byte) {
	_, err := h.Write(p)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. hash.Hash interface promises to not return errors."))
	}
}

// Finalize returns the resulting digest
func (h HashWriter) Finalize() externalapi.Digest {
	var sum externalapi.Digest
	copy(sum[:], h.Sum(sum[:0]))
	return sum
}

// BodyDigest returns the digest of the given body
func BodyDigest(body *externalapi.PointBody) externalapi.Digest {
	writer := NewPointDigestWriter()
	writer.InfallibleWrite(pointserialization.SerializeBody(body))
	return writer.Finalize()
}

// IsDigestValid returns whether point.Digest is the digest of point.Body
func IsDigestValid(point *externalapi.Point) bool {
	return point.Body != nil && BodyDigest(point.Body) == point.Digest
}
