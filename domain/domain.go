package domain

import (
	"github.com/pointdag/pointdagd/domain/consensus"
	"github.com/pointdag/pointdagd/domain/consensus/utils/signing"
	"github.com/pointdag/pointdagd/domain/inputbuffer"
	infrastructuredatabase "github.com/pointdag/pointdagd/infrastructure/db/database"
)

// Domain provides a reference to the domain's external aps
type Domain interface {
	Consensus() consensus.Consensus
	InputBuffer() inputbuffer.InputBuffer
}

type domain struct {
	consensus   consensus.Consensus
	inputBuffer inputbuffer.InputBuffer
}

func (d *domain) Consensus() consensus.Consensus {
	return d.consensus
}

func (d *domain) InputBuffer() inputbuffer.InputBuffer {
	return d.inputBuffer
}

// New instantiates a new instance of a Domain object. db may be nil to
// keep the DAG in memory only.
func New(consensusConfig *consensus.Config, db infrastructuredatabase.Database, keyPair *signing.KeyPair,
	inputBufferSize int, payloadBatchBytes int) (Domain, error) {

	consensusFactory := consensus.NewFactory()
	consensusInstance, err := consensusFactory.NewConsensus(consensusConfig, db, keyPair)
	if err != nil {
		return nil, err
	}

	// Every queued blob must fit into a single point.
	maxBlobBytes := consensusConfig.MaxPayloadBytes
	if payloadBatchBytes < maxBlobBytes {
		maxBlobBytes = payloadBatchBytes
	}

	return &domain{
		consensus:   consensusInstance,
		inputBuffer: inputbuffer.New(inputBufferSize, maxBlobBytes),
	}, nil
}
