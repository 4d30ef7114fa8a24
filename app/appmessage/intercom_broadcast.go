package appmessage

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// MsgBroadcastQuery pushes a point to a peer.
type MsgBroadcastQuery struct {
	Point *externalapi.Point
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgBroadcastQuery) Command() MessageCommand {
	return CmdBroadcastQuery
}

func (*MsgBroadcastQuery) isRequest() {}

// NewMsgBroadcastQuery returns a new MsgBroadcastQuery.
func NewMsgBroadcastQuery(point *externalapi.Point) *MsgBroadcastQuery {
	return &MsgBroadcastQuery{Point: point}
}

// MsgBroadcastResponse acknowledges a MsgBroadcastQuery. It says nothing
// about whether the point was accepted.
type MsgBroadcastResponse struct{}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgBroadcastResponse) Command() MessageCommand {
	return CmdBroadcastResponse
}

func (*MsgBroadcastResponse) isResponse() {}

// NewMsgBroadcastResponse returns a new MsgBroadcastResponse.
func NewMsgBroadcastResponse() *MsgBroadcastResponse {
	return &MsgBroadcastResponse{}
}
