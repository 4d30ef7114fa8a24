package router

import (
	"context"
	"testing"
	"time"

	"github.com/pointdag/pointdagd/app/appmessage"
	"github.com/pkg/errors"
)

func TestRouteCapacity(t *testing.T) {
	route := NewRouteWithCapacity("test", 2)
	for i := 0; i < 2; i++ {
		err := route.Enqueue(appmessage.NewEnvelope([32]byte{byte(i)}, appmessage.NewMsgSignatureQuery(1)))
		if err != nil {
			t.Fatalf("Enqueue: %+v", err)
		}
	}
	err := route.Enqueue(appmessage.NewEnvelope([32]byte{}, appmessage.NewMsgSignatureQuery(1)))
	if !errors.Is(err, ErrRouteCapacityReached) {
		t.Fatalf("expected ErrRouteCapacityReached, got %+v", err)
	}

	envelope, err := route.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %+v", err)
	}
	if envelope.Sender[0] != 0 {
		t.Fatalf("expected the oldest message first")
	}
}

func TestRouteClose(t *testing.T) {
	route := NewRoute("test")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := route.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %+v", err)
	}

	route.Close()
	route.Close()
	if _, err := route.Dequeue(context.Background()); !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("expected ErrRouteClosed, got %+v", err)
	}
	err := route.Enqueue(appmessage.NewEnvelope([32]byte{}, appmessage.NewMsgBroadcastResponse()))
	if !errors.Is(err, ErrRouteClosed) {
		t.Fatalf("expected ErrRouteClosed, got %+v", err)
	}
}
