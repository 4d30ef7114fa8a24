package appmessage

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/testutils"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelopeEncoding(t *testing.T) {
	peers := testutils.NewTestPeers(t, 4)
	sender := peers.Peers()[1]
	point := peers.FullDAG(t, 3)[3][0]

	messages := []Message{
		NewMsgBroadcastQuery(point),
		NewMsgBroadcastResponse(),
		NewMsgPointQuery(point.ID()),
		NewMsgPointDefined(point),
		NewMsgPointDefinedNone(),
		NewMsgPointTryLater(),
		NewMsgSignatureQuery(7),
		NewMsgSignatureGiven(externalapi.Signature{1, 2, 3}),
		NewMsgSignatureNoPoint(),
		NewMsgSignatureTryLater(),
		NewMsgSignatureRejected(externalapi.RejectionTooOldRound),
		NewMsgSignatureRejected(externalapi.RejectionUnknownPeer),
	}
	for _, message := range messages {
		encoded, err := EncodeEnvelope(NewEnvelope(sender, message))
		if err != nil {
			t.Fatalf("EncodeEnvelope %s: %+v", message.Command(), err)
		}
		decoded, err := DecodeEnvelope(encoded)
		if err != nil {
			t.Fatalf("DecodeEnvelope %s: %+v", message.Command(), err)
		}
		if decoded.Sender != sender {
			t.Errorf("%s: unexpected sender %s", message.Command(), decoded.Sender)
		}
		if reflect.TypeOf(decoded.Message) != reflect.TypeOf(message) {
			t.Fatalf("%s: decoded a %T", message.Command(), decoded.Message)
		}
		reencoded, err := EncodeEnvelope(decoded)
		if err != nil {
			t.Fatalf("EncodeEnvelope %s: %+v", message.Command(), err)
		}
		if !bytes.Equal(encoded, reencoded) {
			t.Errorf("%s: decoded message differs.\nwant: %s\ngot: %s",
				message.Command(), spew.Sdump(message), spew.Sdump(decoded.Message))
		}
	}
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	sender := externalapi.PeerID{1}
	envelope := func(command MessageCommand, body []byte) []byte {
		var b []byte
		b = appendBytes(b, envelopeSenderField, sender[:])
		b = appendVarint(b, envelopeCommandField, uint64(command))
		return appendBytes(b, envelopeBodyField, body)
	}

	tests := []struct {
		name    string
		encoded []byte
	}{
		{name: "truncated", encoded: envelope(CmdSignatureQuery, nil)[:5]},
		{name: "unknown command", encoded: envelope(99, nil)},
		{name: "missing command", encoded: appendBytes(nil, envelopeSenderField, sender[:])},
		{name: "short sender", encoded: appendVarint(appendBytes(nil, envelopeSenderField, sender[:5]),
			envelopeCommandField, uint64(CmdBroadcastResponse))},
		{name: "broadcast without point", encoded: envelope(CmdBroadcastQuery, nil)},
		{name: "point query without id", encoded: envelope(CmdPointQuery, nil)},
		{name: "unknown point status", encoded: envelope(CmdPointResponse,
			appendVarint(nil, pointResponseStatusField, 9))},
		{name: "defined without point", encoded: envelope(CmdPointResponse,
			appendVarint(nil, pointResponseStatusField, uint64(PointDefined)))},
		{name: "signature without signature", encoded: envelope(CmdSignatureResponse,
			appendVarint(nil, signatureResponseStatusField, uint64(SignatureGiven)))},
		{name: "rejection with unknown reason", encoded: envelope(CmdSignatureResponse,
			appendVarint(appendVarint(nil, signatureResponseStatusField, uint64(SignatureRejected)),
				signatureResponseReasonField, 42))},
		{name: "round out of range", encoded: envelope(CmdSignatureQuery,
			appendVarint(nil, signatureQueryRoundField, 1<<40))},
		{name: "round with wrong wire type", encoded: envelope(CmdSignatureQuery,
			appendBytes(nil, signatureQueryRoundField, []byte{1}))},
	}
	for _, test := range tests {
		_, err := DecodeEnvelope(test.encoded)
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("%s: expected ErrMalformedMessage, got %+v", test.name, err)
		}
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	sender := externalapi.PeerID{2}
	body := appendVarint(nil, signatureQueryRoundField, 5)
	body = protowire.AppendTag(body, 15, protowire.Fixed32Type)
	body = protowire.AppendFixed32(body, 7)

	var b []byte
	b = appendBytes(b, envelopeSenderField, sender[:])
	b = appendVarint(b, envelopeCommandField, uint64(CmdSignatureQuery))
	b = appendBytes(b, envelopeBodyField, body)

	decoded, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %+v", err)
	}
	query, ok := decoded.Message.(*MsgSignatureQuery)
	if !ok || query.Round != 5 {
		t.Fatalf("unexpected message %s", spew.Sdump(decoded.Message))
	}
}
