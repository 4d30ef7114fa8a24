package inputbuffer

import (
	"bytes"
	"errors"
	"testing"
)

func blob(value byte, size int) []byte {
	return bytes.Repeat([]byte{value}, size)
}

func TestFetchIsFIFOAndBounded(t *testing.T) {
	buffer := New(100, 40)
	for i := byte(1); i <= 4; i++ {
		if err := buffer.Push(blob(i, 10)); err != nil {
			t.Fatalf("Push: %+v", err)
		}
	}

	fetched := buffer.Fetch(25)
	if len(fetched) != 2 || fetched[0][0] != 1 || fetched[1][0] != 2 {
		t.Fatalf("expected the two oldest payloads, got %v", fetched)
	}
	if buffer.Len() != 2 || buffer.Size() != 20 {
		t.Fatalf("expected 2 payloads of 20 bytes left, got %d of %d bytes", buffer.Len(), buffer.Size())
	}
	if fetched := buffer.Fetch(5); fetched != nil {
		t.Fatalf("nothing fits in 5 bytes, got %v", fetched)
	}
	if fetched := buffer.Fetch(100); len(fetched) != 2 || fetched[0][0] != 3 {
		t.Fatalf("expected the remaining payloads, got %v", fetched)
	}
}

func TestPushDropsOldest(t *testing.T) {
	buffer := New(30, 30)
	for i := byte(1); i <= 3; i++ {
		if err := buffer.Push(blob(i, 10)); err != nil {
			t.Fatalf("Push: %+v", err)
		}
	}
	if err := buffer.Push(blob(4, 15)); err != nil {
		t.Fatalf("Push: %+v", err)
	}
	if buffer.Dropped() != 2 {
		t.Fatalf("expected 2 dropped payloads, got %d", buffer.Dropped())
	}
	fetched := buffer.Fetch(30)
	if len(fetched) != 2 || fetched[0][0] != 3 || fetched[1][0] != 4 {
		t.Fatalf("expected the two newest payloads, got %v", fetched)
	}
}

func TestPushRejects(t *testing.T) {
	buffer := New(100, 20)
	if err := buffer.Push(nil); !errors.Is(err, ErrEmptyBlob) {
		t.Errorf("expected ErrEmptyBlob, got %+v", err)
	}
	if err := buffer.Push(blob(1, 21)); !errors.Is(err, ErrBlobTooLarge) {
		t.Errorf("expected ErrBlobTooLarge, got %+v", err)
	}

	original := blob(7, 5)
	if err := buffer.Push(original); err != nil {
		t.Fatalf("Push: %+v", err)
	}
	original[0] = 0
	if fetched := buffer.Fetch(5); fetched[0][0] != 7 {
		t.Errorf("the buffer should keep its own copy of a payload")
	}
}
