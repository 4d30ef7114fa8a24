package pointserialization

import (
	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for any input that is not a valid encoding.
var ErrMalformed = errors.New("malformed point encoding")

type fieldValue struct {
	typ    protowire.Type
	varint uint64
	bytes  []byte
}

func (v fieldValue) asBytes(num protowire.Number) ([]byte, error) {
	if v.typ != protowire.BytesType {
		return nil, errors.Wrapf(ErrMalformed, "field %d: expected bytes, got wire type %d", num, v.typ)
	}
	return v.bytes, nil
}

func (v fieldValue) asVarint(num protowire.Number) (uint64, error) {
	if v.typ != protowire.VarintType {
		return 0, errors.Wrapf(ErrMalformed, "field %d: expected varint, got wire type %d", num, v.typ)
	}
	return v.varint, nil
}

// walkFields calls handle for every field of a message. Fields of unknown
// wire types are skipped.
func walkFields(b []byte, handle func(num protowire.Number, value fieldValue) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
		}
		b = b[n:]

		var value fieldValue
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
			}
			b = b[n:]
			value = fieldValue{typ: typ, varint: v}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
			}
			b = b[n:]
			value = fieldValue{typ: typ, bytes: v}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrap(ErrMalformed, protowire.ParseError(n).Error())
			}
			b = b[n:]
			continue
		}
		err := handle(num, value)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeserializePoint decodes a point. It does not check the digest or the signature.
func DeserializePoint(b []byte) (*externalapi.Point, error) {
	point := &externalapi.Point{}
	hasDigest := false
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		switch num {
		case pointDigestField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			point.Digest, err = externalapi.NewDigestFromSlice(raw)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			hasDigest = true
		case pointSignatureField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			point.Signature = externalapi.Signature(raw).Clone()
		case pointBodyField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			point.Body, err = DeserializeBody(raw)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasDigest || point.Body == nil {
		return nil, errors.Wrap(ErrMalformed, "point is missing its digest or body")
	}
	return point, nil
}

// DeserializeBody decodes a point body.
func DeserializeBody(b []byte) (*externalapi.PointBody, error) {
	body := &externalapi.PointBody{}
	hasData := false
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		switch num {
		case bodyRoundField:
			round, err := value.asVarint(num)
			if err != nil {
				return err
			}
			if round > uint64(^uint32(0)) {
				return errors.Wrapf(ErrMalformed, "round %d overflows", round)
			}
			body.Round = externalapi.Round(round)
		case bodyPayloadField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			body.Payload = append(body.Payload, append([]byte{}, raw...))
		case bodyDataField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			err = deserializeData(raw, &body.Data)
			if err != nil {
				return err
			}
			hasData = true
		case bodyEvidenceField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			peer, signature, err := deserializePair(raw)
			if err != nil {
				return err
			}
			body.Evidence = append(body.Evidence, externalapi.PeerSignaturePair{
				Peer:      peer,
				Signature: externalapi.Signature(signature).Clone(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasData {
		return nil, errors.Wrap(ErrMalformed, "point body is missing its data")
	}
	return body, nil
}

func deserializeData(b []byte, data *externalapi.PointData) error {
	hasAuthor := false
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		switch num {
		case dataAuthorField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			data.Author, err = externalapi.NewPeerIDFromSlice(raw)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			hasAuthor = true
		case dataIncludesField, dataWitnessField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			peer, rawDigest, err := deserializePair(raw)
			if err != nil {
				return err
			}
			digest, err := externalapi.NewDigestFromSlice(rawDigest)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			pair := externalapi.PeerDigestPair{Peer: peer, Digest: digest}
			if num == dataIncludesField {
				data.Includes = append(data.Includes, pair)
			} else {
				data.Witness = append(data.Witness, pair)
			}
		case dataAnchorTriggerField, dataAnchorProofField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			link, err := deserializeLink(raw)
			if err != nil {
				return err
			}
			if num == dataAnchorTriggerField {
				data.AnchorTrigger = link
			} else {
				data.AnchorProof = link
			}
		case dataTimeField, dataAnchorTimeField:
			v, err := value.asVarint(num)
			if err != nil {
				return err
			}
			if num == dataTimeField {
				data.Time = externalapi.UnixTime(v)
			} else {
				data.AnchorTime = externalapi.UnixTime(v)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !hasAuthor || data.AnchorTrigger == nil || data.AnchorProof == nil {
		return errors.Wrap(ErrMalformed, "point data is missing its author or anchor links")
	}
	return nil
}

func deserializePair(b []byte) (externalapi.PeerID, []byte, error) {
	var peer externalapi.PeerID
	var pairValue []byte
	hasPeer := false
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		switch num {
		case pairPeerField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			peer, err = externalapi.NewPeerIDFromSlice(raw)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			hasPeer = true
		case pairValueField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			pairValue = raw
		}
		return nil
	})
	if err != nil {
		return peer, nil, err
	}
	if !hasPeer {
		return peer, nil, errors.Wrap(ErrMalformed, "pair is missing its peer")
	}
	return peer, pairValue, nil
}

// DeserializePointID decodes a point id.
func DeserializePointID(b []byte) (externalapi.PointID, error) {
	var id externalapi.PointID
	seen := 0
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		switch num {
		case pointIDAuthorField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			id.Author, err = externalapi.NewPeerIDFromSlice(raw)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			seen |= 1
		case pointIDRoundField:
			round, err := value.asVarint(num)
			if err != nil {
				return err
			}
			if round > uint64(^uint32(0)) {
				return errors.Wrapf(ErrMalformed, "round %d overflows", round)
			}
			id.Round = externalapi.Round(round)
			seen |= 2
		case pointIDDigestField:
			raw, err := value.asBytes(num)
			if err != nil {
				return err
			}
			id.Digest, err = externalapi.NewDigestFromSlice(raw)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			seen |= 4
		}
		return nil
	})
	if err != nil {
		return id, err
	}
	if seen != 7 {
		return id, errors.Wrap(ErrMalformed, "point id is incomplete")
	}
	return id, nil
}

func deserializeLink(b []byte) (externalapi.Link, error) {
	var link externalapi.Link
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		raw, err := value.asBytes(num)
		if err != nil {
			return err
		}
		if link != nil {
			return errors.Wrap(ErrMalformed, "link has more than one variant set")
		}
		switch num {
		case linkToSelfField:
			link = externalapi.LinkToSelf{}
		case linkDirectField:
			var through externalapi.Through
			err := walkFields(raw, func(num protowire.Number, value fieldValue) error {
				if num != directThroughField {
					return nil
				}
				rawThrough, err := value.asBytes(num)
				if err != nil {
					return err
				}
				through, err = deserializeThrough(rawThrough)
				return err
			})
			if err != nil {
				return err
			}
			if through == nil {
				return errors.Wrap(ErrMalformed, "direct link is missing its through")
			}
			link = externalapi.LinkDirect{Through: through}
		case linkIndirectField:
			var through externalapi.Through
			var to *externalapi.PointID
			err := walkFields(raw, func(num protowire.Number, value fieldValue) error {
				switch num {
				case indirectToField:
					rawID, err := value.asBytes(num)
					if err != nil {
						return err
					}
					id, err := DeserializePointID(rawID)
					if err != nil {
						return err
					}
					to = &id
				case indirectPathField:
					rawThrough, err := value.asBytes(num)
					if err != nil {
						return err
					}
					through, err = deserializeThrough(rawThrough)
					if err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if through == nil || to == nil {
				return errors.Wrap(ErrMalformed, "indirect link is incomplete")
			}
			link = externalapi.LinkIndirect{To: *to, Path: through}
		default:
			return errors.Wrapf(ErrMalformed, "unknown link variant %d", num)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, errors.Wrap(ErrMalformed, "link is not set")
	}
	return link, nil
}

func deserializeThrough(b []byte) (externalapi.Through, error) {
	var through externalapi.Through
	err := walkFields(b, func(num protowire.Number, value fieldValue) error {
		raw, err := value.asBytes(num)
		if err != nil {
			return err
		}
		if through != nil {
			return errors.Wrap(ErrMalformed, "through has more than one variant set")
		}
		var peer externalapi.PeerID
		hasPeer := false
		err = walkFields(raw, func(num protowire.Number, value fieldValue) error {
			if num != throughPeerField {
				return nil
			}
			rawPeer, err := value.asBytes(num)
			if err != nil {
				return err
			}
			peer, err = externalapi.NewPeerIDFromSlice(rawPeer)
			if err != nil {
				return errors.Wrap(ErrMalformed, err.Error())
			}
			hasPeer = true
			return nil
		})
		if err != nil {
			return err
		}
		if !hasPeer {
			return errors.Wrap(ErrMalformed, "through is missing its peer")
		}
		switch num {
		case throughWitnessField:
			through = externalapi.ThroughWitness{PeerID: peer}
		case throughIncludesField:
			through = externalapi.ThroughIncludes{PeerID: peer}
		default:
			return errors.Wrapf(ErrMalformed, "unknown through variant %d", num)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if through == nil {
		return nil, errors.Wrap(ErrMalformed, "through is not set")
	}
	return through, nil
}
