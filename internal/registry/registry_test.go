package registry

import (
	"errors"
	"sync"
	"testing"
)

type fakeConn struct {
	mu      sync.Mutex
	raw     [][]byte
	failRaw bool
	closed  bool
}

func (c *fakeConn) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failRaw {
		return errors.New("socket in bad state")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.raw = append(c.raw, cp)
	return nil
}

func (c *fakeConn) SendJSON(any) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.raw)
}

func TestRegisterUnregister(t *testing.T) {
	r := New(nil)
	a := &fakeConn{}

	id := r.Register(a)
	if id == "" {
		t.Fatalf("Register() returned empty id")
	}
	if r.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Count())
	}

	r.Unregister(id)
	if r.Count() != 0 {
		t.Fatalf("Count() after Unregister = %d, want 0", r.Count())
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	r := New(nil)
	a := &fakeConn{}
	b := &fakeConn{}
	r.Register(a)
	r.Register(b)

	r.BroadcastRaw([]byte(`{"type":"output_audio_binary","data":"aGk="}`))

	if a.received() != 1 || b.received() != 1 {
		t.Fatalf("received a=%d b=%d, want 1 each", a.received(), b.received())
	}
}

func TestBroadcastIsolatesFailedConnection(t *testing.T) {
	r := New(nil)
	bad := &fakeConn{failRaw: true}
	good := &fakeConn{}
	r.Register(bad)
	r.Register(good)

	r.BroadcastRaw([]byte(`{"type":"x"}`))

	if good.received() != 1 {
		t.Fatalf("healthy connection received %d messages, want 1", good.received())
	}
}

func TestAttachedFlag(t *testing.T) {
	r := New(nil)
	id := r.Register(&fakeConn{})

	if r.Attached(id) {
		t.Fatalf("new connection should not be attached")
	}
	if err := r.SetAttached(id, true); err != nil {
		t.Fatalf("SetAttached() error = %v", err)
	}
	if !r.Attached(id) {
		t.Fatalf("Attached() = false after SetAttached(true)")
	}
	if err := r.SetAttached("missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetAttached(missing) error = %v, want ErrNotFound", err)
	}
}
