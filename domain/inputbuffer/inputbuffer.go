// Package inputbuffer queues the external payloads waiting to be included
// in local points.
package inputbuffer

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrBlobTooLarge indicates a payload that can never fit in a point.
	ErrBlobTooLarge = errors.New("payload is too large")

	// ErrEmptyBlob indicates an empty payload.
	ErrEmptyBlob = errors.New("payload is empty")
)

// InputBuffer is a bounded FIFO of payloads. When full, the oldest
// payloads are dropped.
type InputBuffer interface {
	Push(blob []byte) error
	Fetch(maxBytes int) [][]byte
	Len() int
	Size() int
	Dropped() uint64
}

type inputBuffer struct {
	capacity     int
	maxBlobBytes int

	lock    sync.Mutex
	blobs   [][]byte
	size    int
	dropped uint64
}

// New returns an InputBuffer holding up to capacity bytes of payloads no
// larger than maxBlobBytes each.
func New(capacity, maxBlobBytes int) InputBuffer {
	return &inputBuffer{
		capacity:     capacity,
		maxBlobBytes: maxBlobBytes,
	}
}

// Push appends a copy of blob.
func (ib *inputBuffer) Push(blob []byte) error {
	if len(blob) == 0 {
		return ErrEmptyBlob
	}
	if len(blob) > ib.maxBlobBytes || len(blob) > ib.capacity {
		return errors.Wrapf(ErrBlobTooLarge, "%d bytes, the maximum is %d", len(blob), ib.maxBlobBytes)
	}

	ib.lock.Lock()
	defer ib.lock.Unlock()

	ib.blobs = append(ib.blobs, append([]byte(nil), blob...))
	ib.size += len(blob)
	for ib.size > ib.capacity {
		ib.size -= len(ib.blobs[0])
		ib.blobs[0] = nil
		ib.blobs = ib.blobs[1:]
		ib.dropped++
	}
	return nil
}

// Fetch removes and returns the oldest payloads that fit together in maxBytes.
func (ib *inputBuffer) Fetch(maxBytes int) [][]byte {
	ib.lock.Lock()
	defer ib.lock.Unlock()

	total := 0
	count := 0
	for _, blob := range ib.blobs {
		if total+len(blob) > maxBytes {
			break
		}
		total += len(blob)
		count++
	}
	if count == 0 {
		return nil
	}

	fetched := make([][]byte, count)
	copy(fetched, ib.blobs[:count])
	for i := 0; i < count; i++ {
		ib.blobs[i] = nil
	}
	ib.blobs = ib.blobs[count:]
	ib.size -= total
	return fetched
}

// Len returns the number of queued payloads.
func (ib *inputBuffer) Len() int {
	ib.lock.Lock()
	defer ib.lock.Unlock()

	return len(ib.blobs)
}

// Size returns the total size of the queued payloads.
func (ib *inputBuffer) Size() int {
	ib.lock.Lock()
	defer ib.lock.Unlock()

	return ib.size
}

// Dropped returns the number of payloads dropped since the buffer was created.
func (ib *inputBuffer) Dropped() uint64 {
	ib.lock.Lock()
	defer ib.lock.Unlock()

	return ib.dropped
}
