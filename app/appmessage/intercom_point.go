package appmessage

import (
	"fmt"

	"github.com/pointdag/pointdagd/domain/consensus/model/externalapi"
)

// MsgPointQuery asks a peer for the point with the given id.
type MsgPointQuery struct {
	ID externalapi.PointID
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgPointQuery) Command() MessageCommand {
	return CmdPointQuery
}

func (*MsgPointQuery) isRequest() {}

// NewMsgPointQuery returns a new MsgPointQuery.
func NewMsgPointQuery(id externalapi.PointID) *MsgPointQuery {
	return &MsgPointQuery{ID: id}
}

// PointResponseStatus is the kind of a MsgPointResponse.
type PointResponseStatus uint8

const (
	// PointDefined means the point is attached to the response.
	PointDefined PointResponseStatus = iota + 1
	// PointDefinedNone means the responder will never have the point.
	PointDefinedNone
	// PointTryLater means the responder may have the point later.
	PointTryLater
)

func (s PointResponseStatus) String() string {
	switch s {
	case PointDefined:
		return "defined"
	case PointDefinedNone:
		return "definedNone"
	case PointTryLater:
		return "tryLater"
	}
	return fmt.Sprintf("PointResponseStatus(%d)", s)
}

// MsgPointResponse answers a MsgPointQuery. Point is set only when Status
// is PointDefined.
type MsgPointResponse struct {
	Status PointResponseStatus
	Point  *externalapi.Point
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgPointResponse) Command() MessageCommand {
	return CmdPointResponse
}

func (*MsgPointResponse) isResponse() {}

// NewMsgPointDefined returns a MsgPointResponse carrying point.
func NewMsgPointDefined(point *externalapi.Point) *MsgPointResponse {
	return &MsgPointResponse{Status: PointDefined, Point: point}
}

// NewMsgPointDefinedNone returns a definedNone MsgPointResponse.
func NewMsgPointDefinedNone() *MsgPointResponse {
	return &MsgPointResponse{Status: PointDefinedNone}
}

// NewMsgPointTryLater returns a tryLater MsgPointResponse.
func NewMsgPointTryLater() *MsgPointResponse {
	return &MsgPointResponse{Status: PointTryLater}
}
