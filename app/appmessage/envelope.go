package appmessage

import "github.com/pointdag/pointdagd/domain/consensus/model/externalapi"

// Envelope is a message together with the id of the peer that sent it.
type Envelope struct {
	Sender  externalapi.PeerID
	Message Message
}

// NewEnvelope returns a new Envelope.
func NewEnvelope(sender externalapi.PeerID, message Message) *Envelope {
	return &Envelope{Sender: sender, Message: message}
}
