package pointvalidator

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/ruleerrors"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointhashing"
)

// ValidateIntegrity checks that the point is authored by a known peer, that
// its digest matches its body and that the author signed the digest.
func (v *pointValidator) ValidateIntegrity(point *externalapi.Point) error {
	if point.Body == nil {
		return errors.Wrap(ruleerrors.ErrDigestMismatch, "point has no body")
	}

	author := point.Author()
	if !v.schedule.Contains(author) && author != v.genesis.Author() {
		return errors.Wrapf(ruleerrors.ErrUnknownAuthor, "author %s is not in the peer schedule", author)
	}

	if !pointhashing.IsDigestValid(point) {
		return errors.Wrapf(ruleerrors.ErrDigestMismatch, "digest %s does not match the body of the point "+
			"at round %d by %s", point.Digest, point.Round(), author.Alt())
	}

	if !v.verifier.Verify(author, point.Digest, point.Signature) {
		return errors.Wrapf(ruleerrors.ErrBadSignature, "signature of %s does not verify", point.ID())
	}
	return nil
}

// ValidateWellFormed checks the rules that only depend on the point itself
// and the local clock.
func (v *pointValidator) ValidateWellFormed(point *externalapi.Point) error {
	genesisRound := v.genesis.Round()
	switch {
	case point.Round() < genesisRound:
		return errors.Wrapf(ruleerrors.ErrRoundTooLow, "round %d is below genesis round %d",
			point.Round(), genesisRound)
	case point.Round() == genesisRound:
		if !v.isGenesis(point) {
			return errors.Wrapf(ruleerrors.ErrBadGenesis, "%s is not the genesis point %s", point.ID(), v.genesis.ID())
		}
		return nil
	case point.Author() == v.genesis.Author():
		return errors.Wrapf(ruleerrors.ErrUnknownAuthor, "the genesis author may only author genesis")
	}

	err := checkPairsOrder(point)
	if err != nil {
		return err
	}

	if point.Round() == genesisRound+1 {
		err = v.checkGenesisSuccessor(point)
	} else {
		err = v.checkReferencedPeers(point)
		if err == nil {
			err = checkLinkShape(point, externalapi.AnchorTrigger)
		}
		if err == nil {
			err = checkLinkShape(point, externalapi.AnchorProof)
		}
	}
	if err != nil {
		return err
	}

	err = v.checkEvidenceInIsolation(point)
	if err != nil {
		return err
	}

	err = v.checkTime(point)
	if err != nil {
		return err
	}

	return v.checkPayload(point)
}

func checkPairsOrder(point *externalapi.Point) error {
	data := point.Body.Data
	if !externalapi.ArePeerDigestPairsSortedAndUnique(data.Includes) {
		return errors.Wrapf(ruleerrors.ErrUnsortedIncludes, "includes of %s", point.ID())
	}
	if !externalapi.ArePeerDigestPairsSortedAndUnique(data.Witness) {
		return errors.Wrapf(ruleerrors.ErrUnsortedWitness, "witness of %s", point.ID())
	}
	if !externalapi.ArePeerSignaturePairsSortedAndUnique(point.Body.Evidence) {
		return errors.Wrapf(ruleerrors.ErrUnsortedEvidence, "evidence of %s", point.ID())
	}
	return nil
}

// checkGenesisSuccessor checks that a point of the round after genesis
// includes only genesis and anchors it with both links.
func (v *pointValidator) checkGenesisSuccessor(point *externalapi.Point) error {
	data := point.Body.Data
	genesisAuthor := v.genesis.Author()
	genesisLink := externalapi.LinkDirect{Through: externalapi.ThroughIncludes{PeerID: genesisAuthor}}

	if len(data.Includes) != 1 || data.Includes[0].Peer != genesisAuthor || data.Includes[0].Digest != v.genesis.Digest {
		return errors.Wrapf(ruleerrors.ErrBadGenesisSuccessor, "%s must include exactly the genesis point", point.ID())
	}
	if len(data.Witness) != 0 {
		return errors.Wrapf(ruleerrors.ErrBadGenesisSuccessor, "%s must not witness anything", point.ID())
	}
	if len(point.Body.Evidence) != 0 {
		return errors.Wrapf(ruleerrors.ErrBadGenesisSuccessor, "%s must not carry evidence", point.ID())
	}
	if data.AnchorTrigger != genesisLink || data.AnchorProof != genesisLink {
		return errors.Wrapf(ruleerrors.ErrBadGenesisSuccessor, "%s must link directly to the genesis point", point.ID())
	}
	return nil
}

func (v *pointValidator) checkReferencedPeers(point *externalapi.Point) error {
	data := point.Body.Data
	if len(data.Includes) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoIncludes, "%s includes no points", point.ID())
	}
	for _, set := range []struct {
		name  string
		pairs []externalapi.PeerDigestPair
	}{{"includes", data.Includes}, {"witness", data.Witness}} {
		for _, pair := range set.pairs {
			if !v.schedule.Contains(pair.Peer) {
				return errors.Wrapf(ruleerrors.ErrUnknownPeerReferenced, "%s of %s references unknown peer %s",
					set.name, point.ID(), pair.Peer)
			}
		}
	}
	return nil
}

// checkLinkShape checks that a link references entries the point actually
// lists and respects the minimal round distance of indirect links. Whether
// the designated point is reachable is decided by the link resolver.
func checkLinkShape(point *externalapi.Point, field externalapi.AnchorLinkField) error {
	var through externalapi.Through
	switch link := point.AnchorLink(field).(type) {
	case externalapi.LinkToSelf:
		if _, ok := point.PrevDigest(); !ok {
			return errors.Wrapf(ruleerrors.ErrMalformedLink, "%s of %s links to self without a previous point",
				field, point.ID())
		}
		return nil
	case externalapi.LinkDirect:
		through = link.Through
	case externalapi.LinkIndirect:
		through = link.Path
		minDistance := externalapi.Round(2)
		if _, ok := link.Path.(externalapi.ThroughWitness); ok {
			minDistance = 3
		}
		if uint64(link.To.Round)+uint64(minDistance) > uint64(point.Round()) {
			return errors.Wrapf(ruleerrors.ErrMalformedLink, "%s of %s is too close to round %d",
				field, point.ID(), link.To.Round)
		}
	default:
		return errors.Wrapf(ruleerrors.ErrMalformedLink, "%s of %s has unknown type %T", field, point.ID(), link)
	}

	var pairs []externalapi.PeerDigestPair
	switch through.(type) {
	case externalapi.ThroughIncludes:
		pairs = point.Body.Data.Includes
	case externalapi.ThroughWitness:
		pairs = point.Body.Data.Witness
	default:
		return errors.Wrapf(ruleerrors.ErrMalformedLink, "%s of %s passes through unknown set %T",
			field, point.ID(), through)
	}
	if _, ok := externalapi.FindDigest(pairs, through.Peer()); !ok {
		return errors.Wrapf(ruleerrors.ErrDanglingLink, "%s of %s passes through %s which is not listed",
			field, point.ID(), through)
	}
	return nil
}

func (v *pointValidator) checkEvidenceInIsolation(point *externalapi.Point) error {
	evidence := point.Body.Evidence
	if len(evidence) == 0 {
		return nil
	}
	if _, ok := point.PrevDigest(); !ok {
		return errors.Wrapf(ruleerrors.ErrEvidenceWithoutPrevPoint, "%s carries evidence without a previous point",
			point.ID())
	}
	for _, pair := range evidence {
		if pair.Peer == point.Author() {
			return errors.Wrapf(ruleerrors.ErrEvidenceFromAuthor, "%s carries its author's own signature", point.ID())
		}
		if !v.schedule.Contains(pair.Peer) {
			return errors.Wrapf(ruleerrors.ErrUnknownPeerReferenced, "evidence of %s is signed by unknown peer %s",
				point.ID(), pair.Peer)
		}
	}
	return nil
}

func (v *pointValidator) checkTime(point *externalapi.Point) error {
	data := point.Body.Data
	if data.Time < data.AnchorTime {
		return errors.Wrapf(ruleerrors.ErrTimeBeforeAnchorTime, "time %d of %s is before its anchor time %d",
			data.Time, point.ID(), data.AnchorTime)
	}
	maxTime := v.now() + externalapi.UnixTime(v.clockSkew)
	if data.Time > maxTime {
		return errors.Wrapf(ruleerrors.ErrTimeTooMuchInTheFuture, "time %d of %s is later than %d",
			data.Time, point.ID(), maxTime)
	}
	return nil
}

func (v *pointValidator) checkPayload(point *externalapi.Point) error {
	size := point.PayloadBytes()
	if size > v.maxPayloadBytes {
		return errors.Wrapf(ruleerrors.ErrPayloadTooLarge, "payload of %s is %d bytes, the maximum is %d",
			point.ID(), size, v.maxPayloadBytes)
	}
	return nil
}
