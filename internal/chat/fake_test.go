package chat

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/concord-chat/livechat/internal/models"
)

type fakeRead struct {
	data []byte
	err  error
}

// fakeTransport is an in-memory Transport driven by the test
type fakeTransport struct {
	inbound  chan fakeRead
	closedCh chan struct{}

	closeOnce sync.Once
	closes    atomic.Int32

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan fakeRead, 16),
		closedCh: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.inbound:
		if r.err != nil {
			return 0, nil, r.err
		}
		return websocket.TextMessage, r.data, nil
	case <-f.closedCh:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closedCh) })
	return nil
}

func (f *fakeTransport) push(frame string) {
	f.inbound <- fakeRead{data: []byte(frame)}
}

func (f *fakeTransport) fail(err error) {
	f.inbound <- fakeRead{err: err}
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

// fakeDialer hands out one transport, optionally blocking until gate closes
type fakeDialer struct {
	transport *fakeTransport
	err       error
	gate      chan struct{}
	calls     atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _, _ string) (Transport, error) {
	d.calls.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

// recorder collects listener events
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) states() []models.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ConnectionState
	for _, ev := range r.events {
		if ev.Kind == EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
