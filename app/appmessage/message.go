package appmessage

import (
	"fmt"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 1024 * 1024 * 32 // 32MB

// MessageCommand is a number in the header of a message that represents its type.
type MessageCommand uint32

func (cmd MessageCommand) String() string {
	cmdString, ok := MessageCommandToString[cmd]
	if !ok {
		cmdString = "unknown command"
	}
	return fmt.Sprintf("%s [code %d]", cmdString, uint32(cmd))
}

// Commands used in intercom message headers which describe the type of message.
const (
	CmdBroadcastQuery MessageCommand = iota + 1
	CmdPointQuery
	CmdSignatureQuery
	CmdBroadcastResponse
	CmdPointResponse
	CmdSignatureResponse
)

// MessageCommandToString maps all MessageCommands to their string representation
var MessageCommandToString = map[MessageCommand]string{
	CmdBroadcastQuery:    "BroadcastQuery",
	CmdPointQuery:        "PointQuery",
	CmdSignatureQuery:    "SignatureQuery",
	CmdBroadcastResponse: "BroadcastResponse",
	CmdPointResponse:     "PointResponse",
	CmdSignatureResponse: "SignatureResponse",
}

// Message is an interface that describes an intercom message.
type Message interface {
	Command() MessageCommand
}

// Request is a query sent to a peer. Every Request is answered with
// exactly one Response of the matching kind.
type Request interface {
	Message
	isRequest()
}

// Response is the answer to a Request.
type Response interface {
	Message
	isResponse()
}

// IsResponseTo returns whether response is of the kind that answers request.
func IsResponseTo(request Request, response Response) bool {
	switch request.(type) {
	case *MsgBroadcastQuery:
		_, ok := response.(*MsgBroadcastResponse)
		return ok
	case *MsgPointQuery:
		_, ok := response.(*MsgPointResponse)
		return ok
	case *MsgSignatureQuery:
		_, ok := response.(*MsgSignatureResponse)
		return ok
	}
	return false
}
