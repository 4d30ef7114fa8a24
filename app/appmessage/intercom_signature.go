package appmessage

import (
	"fmt"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// MsgSignatureQuery asks a peer to sign the requester's point at Round.
type MsgSignatureQuery struct {
	Round externalapi.Round
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgSignatureQuery) Command() MessageCommand {
	return CmdSignatureQuery
}

func (*MsgSignatureQuery) isRequest() {}

// NewMsgSignatureQuery returns a new MsgSignatureQuery.
func NewMsgSignatureQuery(round externalapi.Round) *MsgSignatureQuery {
	return &MsgSignatureQuery{Round: round}
}

// SignatureResponseStatus is the kind of a MsgSignatureResponse.
type SignatureResponseStatus uint8

const (
	// SignatureGiven means the signature is attached to the response.
	SignatureGiven SignatureResponseStatus = iota + 1
	// SignatureNoPoint means the responder has no point of the requester
	// at the round and does not expect one.
	SignatureNoPoint
	// SignatureTryLater means the responder may sign later.
	SignatureTryLater
	// SignatureRejected means the responder will never sign. Reason tells why.
	SignatureRejected
)

func (s SignatureResponseStatus) String() string {
	switch s {
	case SignatureGiven:
		return "signature"
	case SignatureNoPoint:
		return "noPoint"
	case SignatureTryLater:
		return "tryLater"
	case SignatureRejected:
		return "rejected"
	}
	return fmt.Sprintf("SignatureResponseStatus(%d)", s)
}

// MsgSignatureResponse answers a MsgSignatureQuery.
type MsgSignatureResponse struct {
	Status    SignatureResponseStatus
	Signature externalapi.Signature
	Reason    externalapi.SignatureRejectionReason
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgSignatureResponse) Command() MessageCommand {
	return CmdSignatureResponse
}

func (*MsgSignatureResponse) isResponse() {}

// NewMsgSignatureGiven returns a MsgSignatureResponse carrying signature.
func NewMsgSignatureGiven(signature externalapi.Signature) *MsgSignatureResponse {
	return &MsgSignatureResponse{Status: SignatureGiven, Signature: signature}
}

// NewMsgSignatureNoPoint returns a noPoint MsgSignatureResponse.
func NewMsgSignatureNoPoint() *MsgSignatureResponse {
	return &MsgSignatureResponse{Status: SignatureNoPoint}
}

// NewMsgSignatureTryLater returns a tryLater MsgSignatureResponse.
func NewMsgSignatureTryLater() *MsgSignatureResponse {
	return &MsgSignatureResponse{Status: SignatureTryLater}
}

// NewMsgSignatureRejected returns a MsgSignatureResponse rejecting the
// query for reason.
func NewMsgSignatureRejected(reason externalapi.SignatureRejectionReason) *MsgSignatureResponse {
	return &MsgSignatureResponse{Status: SignatureRejected, Reason: reason}
}
