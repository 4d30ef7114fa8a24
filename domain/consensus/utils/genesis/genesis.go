// Package genesis builds the genesis point, which every peer derives locally
// from the network parameters.
package genesis

import (
	"encoding/binary"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
)

// New returns the genesis point of a network. The digest only depends on
// the arguments; the signature may differ between peers.
func New(networkName string, round externalapi.Round, time externalapi.UnixTime) (*externalapi.Point, error) {
	seed := make([]byte, 0, len(networkName)+12)
	seed = append(seed, networkName...)
	seed = binary.BigEndian.AppendUint32(seed, uint32(round))
	seed = binary.BigEndian.AppendUint64(seed, uint64(time))

	keyPair, err := signing.KeyPairFromSeed(seed)
	if err != nil {
		return nil, err
	}
	body := &externalapi.PointBody{
		Round: round,
		Data: externalapi.PointData{
			Author:        keyPair.PeerID(),
			AnchorTrigger: externalapi.LinkToSelf{},
			AnchorProof:   externalapi.LinkToSelf{},
			Time:          time,
			AnchorTime:    time,
		},
	}
	digest := pointhashing.BodyDigest(body)
	signature, err := keyPair.Sign(digest)
	if err != nil {
		return nil, err
	}
	return &externalapi.Point{Digest: digest, Signature: signature, Body: body}, nil
}
