// Package pointserialization implements the canonical protobuf wire format
// of points. The encoding is deterministic: every field is written in field
// number order, so the digest of a body is well defined.
package pointserialization

import (
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"google.golang.org/protobuf/encoding/protowire"
)

// PointBody fields
const (
	bodyRoundField    protowire.Number = 1
	bodyPayloadField  protowire.Number = 2
	bodyDataField     protowire.Number = 3
	bodyEvidenceField protowire.Number = 4
)

// PointData fields
const (
	dataAuthorField        protowire.Number = 1
	dataIncludesField      protowire.Number = 2
	dataWitnessField       protowire.Number = 3
	dataAnchorTriggerField protowire.Number = 4
	dataAnchorProofField   protowire.Number = 5
	dataTimeField          protowire.Number = 6
	dataAnchorTimeField    protowire.Number = 7
)

// Link oneof
const (
	linkToSelfField   protowire.Number = 1
	linkDirectField   protowire.Number = 2
	linkIndirectField protowire.Number = 3

	directThroughField protowire.Number = 1
	indirectToField    protowire.Number = 1
	indirectPathField  protowire.Number = 2
)

// Through oneof
const (
	throughWitnessField  protowire.Number = 1
	throughIncludesField protowire.Number = 2

	throughPeerField protowire.Number = 1
)

// PointId, Point and pair fields
const (
	pointIDAuthorField protowire.Number = 1
	pointIDRoundField  protowire.Number = 2
	pointIDDigestField protowire.Number = 3

	pointDigestField    protowire.Number = 1
	pointSignatureField protowire.Number = 2
	pointBodyField      protowire.Number = 3

	pairPeerField  protowire.Number = 1
	pairValueField protowire.Number = 2
)

// SerializePoint returns the wire encoding of point.
func SerializePoint(point *externalapi.Point) []byte {
	var b []byte
	b = appendBytesField(b, pointDigestField, point.Digest[:])
	b = appendBytesField(b, pointSignatureField, point.Signature)
	b = appendBytesField(b, pointBodyField, SerializeBody(point.Body))
	return b
}

// SerializeBody returns the canonical encoding of body, which is the input
// of the point digest.
func SerializeBody(body *externalapi.PointBody) []byte {
	var b []byte
	b = appendVarintField(b, bodyRoundField, uint64(body.Round))
	for _, blob := range body.Payload {
		b = appendBytesField(b, bodyPayloadField, blob)
	}
	b = appendBytesField(b, bodyDataField, serializeData(&body.Data))
	for _, pair := range body.Evidence {
		b = appendBytesField(b, bodyEvidenceField, serializePair(pair.Peer[:], pair.Signature))
	}
	return b
}

// SerializePointID returns the wire encoding of id.
func SerializePointID(id externalapi.PointID) []byte {
	var b []byte
	b = appendBytesField(b, pointIDAuthorField, id.Author[:])
	b = appendVarintField(b, pointIDRoundField, uint64(id.Round))
	b = appendBytesField(b, pointIDDigestField, id.Digest[:])
	return b
}

func serializeData(data *externalapi.PointData) []byte {
	var b []byte
	b = appendBytesField(b, dataAuthorField, data.Author[:])
	for _, pair := range data.Includes {
		b = appendBytesField(b, dataIncludesField, serializePair(pair.Peer[:], pair.Digest[:]))
	}
	for _, pair := range data.Witness {
		b = appendBytesField(b, dataWitnessField, serializePair(pair.Peer[:], pair.Digest[:]))
	}
	b = appendBytesField(b, dataAnchorTriggerField, serializeLink(data.AnchorTrigger))
	b = appendBytesField(b, dataAnchorProofField, serializeLink(data.AnchorProof))
	b = appendVarintField(b, dataTimeField, uint64(data.Time))
	b = appendVarintField(b, dataAnchorTimeField, uint64(data.AnchorTime))
	return b
}

func serializePair(peer []byte, value []byte) []byte {
	var b []byte
	b = appendBytesField(b, pairPeerField, peer)
	b = appendBytesField(b, pairValueField, value)
	return b
}

// serializeLink encodes a nil link as an empty message, which fails to decode.
func serializeLink(link externalapi.Link) []byte {
	var b []byte
	switch link := link.(type) {
	case externalapi.LinkToSelf:
		b = appendBytesField(b, linkToSelfField, nil)
	case externalapi.LinkDirect:
		var direct []byte
		direct = appendBytesField(direct, directThroughField, serializeThrough(link.Through))
		b = appendBytesField(b, linkDirectField, direct)
	case externalapi.LinkIndirect:
		var indirect []byte
		indirect = appendBytesField(indirect, indirectToField, SerializePointID(link.To))
		indirect = appendBytesField(indirect, indirectPathField, serializeThrough(link.Path))
		b = appendBytesField(b, linkIndirectField, indirect)
	}
	return b
}

func serializeThrough(through externalapi.Through) []byte {
	var b []byte
	switch through := through.(type) {
	case externalapi.ThroughWitness:
		var inner []byte
		inner = appendBytesField(inner, throughPeerField, through.PeerID[:])
		b = appendBytesField(b, throughWitnessField, inner)
	case externalapi.ThroughIncludes:
		var inner []byte
		inner = appendBytesField(inner, throughPeerField, through.PeerID[:])
		b = appendBytesField(b, throughIncludesField, inner)
	}
	return b
}

func appendBytesField(b []byte, num protowire.Number, value []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

func appendVarintField(b []byte, num protowire.Number, value uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, value)
}
