package appmessage

import (
	"math"

	"github.com/pkg/errors"
	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
	"github.com/pointdag/pointdagd/domain/consensus/utils/pointserialization"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformedMessage is returned when decoding an invalid message.
var ErrMalformedMessage = errors.New("malformed message")

// Envelope fields
const (
	envelopeSenderField  protowire.Number = 1
	envelopeCommandField protowire.Number = 2
	envelopeBodyField    protowire.Number = 3
)

// Message body fields
const (
	broadcastPointField protowire.Number = 1

	pointQueryIDField protowire.Number = 1

	pointResponseStatusField protowire.Number = 1
	pointResponsePointField  protowire.Number = 2

	signatureQueryRoundField protowire.Number = 1

	signatureResponseStatusField    protowire.Number = 1
	signatureResponseSignatureField protowire.Number = 2
	signatureResponseReasonField    protowire.Number = 3
)

// EncodeEnvelope returns the wire encoding of envelope.
func EncodeEnvelope(envelope *Envelope) ([]byte, error) {
	body, err := encodeMessage(envelope.Message)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, envelopeSenderField, protowire.BytesType)
	b = protowire.AppendBytes(b, envelope.Sender[:])
	b = protowire.AppendTag(b, envelopeCommandField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(envelope.Message.Command()))
	b = protowire.AppendTag(b, envelopeBodyField, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	if len(b) > MaxMessagePayload {
		return nil, errors.Errorf("%s message of %d bytes exceeds the maximum of %d",
			envelope.Message.Command(), len(b), MaxMessagePayload)
	}
	return b, nil
}

func encodeMessage(message Message) ([]byte, error) {
	var b []byte
	switch message := message.(type) {
	case *MsgBroadcastQuery:
		if message.Point == nil || message.Point.Body == nil {
			return nil, errors.New("cannot encode a broadcast without a point")
		}
		b = appendBytes(b, broadcastPointField, pointserialization.SerializePoint(message.Point))
	case *MsgBroadcastResponse:
	case *MsgPointQuery:
		b = appendBytes(b, pointQueryIDField, pointserialization.SerializePointID(message.ID))
	case *MsgPointResponse:
		b = appendVarint(b, pointResponseStatusField, uint64(message.Status))
		if message.Status == PointDefined {
			if message.Point == nil || message.Point.Body == nil {
				return nil, errors.New("cannot encode a defined point response without a point")
			}
			b = appendBytes(b, pointResponsePointField, pointserialization.SerializePoint(message.Point))
		}
	case *MsgSignatureQuery:
		b = appendVarint(b, signatureQueryRoundField, uint64(message.Round))
	case *MsgSignatureResponse:
		b = appendVarint(b, signatureResponseStatusField, uint64(message.Status))
		switch message.Status {
		case SignatureGiven:
			b = appendBytes(b, signatureResponseSignatureField, message.Signature)
		case SignatureRejected:
			b = appendVarint(b, signatureResponseReasonField, uint64(message.Reason))
		}
	default:
		return nil, errors.Errorf("cannot encode message of type %T", message)
	}
	return b, nil
}

// DecodeEnvelope decodes an envelope encoded by EncodeEnvelope.
func DecodeEnvelope(b []byte) (*Envelope, error) {
	if len(b) > MaxMessagePayload {
		return nil, errors.Wrapf(ErrMalformedMessage, "message of %d bytes exceeds the maximum of %d",
			len(b), MaxMessagePayload)
	}

	var sender []byte
	var command uint64
	var body []byte
	hasCommand := false
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
		switch num {
		case envelopeSenderField:
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			sender = value
		case envelopeCommandField:
			if typ != protowire.VarintType {
				return wireTypeError(num, typ)
			}
			command = varint
			hasCommand = true
		case envelopeBodyField:
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			body = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasCommand {
		return nil, errors.Wrap(ErrMalformedMessage, "missing command")
	}
	senderID, err := externalapi.NewPeerIDFromSlice(sender)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedMessage, "bad sender: %s", err)
	}
	message, err := decodeMessage(MessageCommand(command), body)
	if err != nil {
		return nil, err
	}
	return NewEnvelope(senderID, message), nil
}

func decodeMessage(command MessageCommand, b []byte) (Message, error) {
	switch command {
	case CmdBroadcastQuery:
		message := &MsgBroadcastQuery{}
		err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
			if num != broadcastPointField {
				return nil
			}
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			point, err := pointserialization.DeserializePoint(value)
			if err != nil {
				return err
			}
			message.Point = point
			return nil
		})
		if err != nil {
			return nil, err
		}
		if message.Point == nil {
			return nil, errors.Wrap(ErrMalformedMessage, "broadcast without a point")
		}
		return message, nil

	case CmdBroadcastResponse:
		return NewMsgBroadcastResponse(), nil

	case CmdPointQuery:
		message := &MsgPointQuery{}
		hasID := false
		err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, _ uint64) error {
			if num != pointQueryIDField {
				return nil
			}
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			id, err := pointserialization.DeserializePointID(value)
			if err != nil {
				return err
			}
			message.ID = id
			hasID = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !hasID {
			return nil, errors.Wrap(ErrMalformedMessage, "point query without an id")
		}
		return message, nil

	case CmdPointResponse:
		return decodePointResponse(b)

	case CmdSignatureQuery:
		message := &MsgSignatureQuery{}
		err := consumeFields(b, func(num protowire.Number, typ protowire.Type, _ []byte, varint uint64) error {
			if num != signatureQueryRoundField {
				return nil
			}
			if typ != protowire.VarintType {
				return wireTypeError(num, typ)
			}
			if varint > math.MaxUint32 {
				return errors.Wrapf(ErrMalformedMessage, "round %d is out of range", varint)
			}
			message.Round = externalapi.Round(varint)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return message, nil

	case CmdSignatureResponse:
		return decodeSignatureResponse(b)
	}
	return nil, errors.Wrapf(ErrMalformedMessage, "unknown command %s", command)
}

func decodePointResponse(b []byte) (*MsgPointResponse, error) {
	message := &MsgPointResponse{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
		switch num {
		case pointResponseStatusField:
			if typ != protowire.VarintType {
				return wireTypeError(num, typ)
			}
			message.Status = PointResponseStatus(varint)
		case pointResponsePointField:
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			point, err := pointserialization.DeserializePoint(value)
			if err != nil {
				return err
			}
			message.Point = point
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch message.Status {
	case PointDefined:
		if message.Point == nil {
			return nil, errors.Wrap(ErrMalformedMessage, "defined point response without a point")
		}
	case PointDefinedNone, PointTryLater:
		message.Point = nil
	default:
		return nil, errors.Wrapf(ErrMalformedMessage, "unknown point response status %d", message.Status)
	}
	return message, nil
}

func decodeSignatureResponse(b []byte) (*MsgSignatureResponse, error) {
	message := &MsgSignatureResponse{}
	hasReason := false
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error {
		switch num {
		case signatureResponseStatusField:
			if typ != protowire.VarintType {
				return wireTypeError(num, typ)
			}
			message.Status = SignatureResponseStatus(varint)
		case signatureResponseSignatureField:
			if typ != protowire.BytesType {
				return wireTypeError(num, typ)
			}
			message.Signature = externalapi.Signature(value).Clone()
		case signatureResponseReasonField:
			if typ != protowire.VarintType {
				return wireTypeError(num, typ)
			}
			message.Reason = externalapi.SignatureRejectionReason(varint)
			hasReason = varint <= uint64(externalapi.RejectionUnknownPeer)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch message.Status {
	case SignatureGiven:
		if len(message.Signature) == 0 {
			return nil, errors.Wrap(ErrMalformedMessage, "signature response without a signature")
		}
	case SignatureRejected:
		if !hasReason {
			return nil, errors.Wrapf(ErrMalformedMessage, "rejection without a known reason")
		}
	case SignatureNoPoint, SignatureTryLater:
	default:
		return nil, errors.Wrapf(ErrMalformedMessage, "unknown signature response status %d", message.Status)
	}
	return message, nil
}

func appendBytes(b []byte, num protowire.Number, value []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, value)
}

func appendVarint(b []byte, num protowire.Number, value uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, value)
}

func wireTypeError(num protowire.Number, typ protowire.Type) error {
	return errors.Wrapf(ErrMalformedMessage, "field %d has unexpected wire type %d", num, typ)
}

// consumeFields calls handle for every varint and bytes field of b.
// Fields of other wire types are skipped.
func consumeFields(b []byte,
	handle func(num protowire.Number, typ protowire.Type, value []byte, varint uint64) error) error {

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrMalformedMessage, protowire.ParseError(n).Error())
		}
		b = b[n:]

		var value []byte
		var varint uint64
		switch typ {
		case protowire.VarintType:
			varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			value, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrap(ErrMalformedMessage, protowire.ParseError(n).Error())
		}
		b = b[n:]
		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		err := handle(num, typ, value, varint)
		if err != nil {
			return err
		}
	}
	return nil
}
