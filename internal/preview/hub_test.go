package preview

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arthurfeeney/Marley-Accel/internal/logging"
)

// These tests drive the hub loop directly with nil websocket conns and read
// the client mailboxes instead of running the pumps.

// countingRender numbers every frame it renders: "curve_init#1",
// "curve_updated#2", ...
type countingRender struct {
	n atomic.Int64
}

func (r *countingRender) render(typ string) ([]byte, error) {
	return []byte(fmt.Sprintf("%s#%d", typ, r.n.Add(1))), nil
}

func newTestClient(hub *Hub, name string) *Client {
	return NewClient(hub, nil, name, logging.Discard())
}

func runHub(t *testing.T, hub *Hub) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	return func() {
		cancelCtx()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for hub to stop")
		}
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	if !hub.registerClient(c) {
		t.Fatalf("hub stopped before %s registered", c.remoteAddr)
	}
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func frameData(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.data)
	}
	return out
}

func TestHub_RegisterQueuesInit(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)
	defer stop()

	c := newTestClient(hub, "c")
	registerAndWait(t, hub, c)

	frames, closed := c.box.take()
	if closed {
		t.Fatalf("mailbox closed after register")
	}
	if got := frameData(frames); len(got) != 1 || got[0] != "curve_init#1" {
		t.Errorf("expected only curve_init, got %v", got)
	}
}

func TestHub_PublishReachesAllClientsAfterInit(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)
	defer stop()

	c1 := newTestClient(hub, "c1")
	c2 := newTestClient(hub, "c2")
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	hub.Publish()
	waitUntil(t, 500*time.Millisecond, func() bool { return r.n.Load() == 3 }, "update not rendered")

	// One render is shared by every viewer.
	want := map[*Client][]string{
		c1: {"curve_init#1", "curve_updated#3"},
		c2: {"curve_init#2", "curve_updated#3"},
	}
	for c, w := range want {
		waitUntil(t, 500*time.Millisecond, func() bool {
			c.box.mu.Lock()
			defer c.box.mu.Unlock()
			return len(c.box.pending) == 2
		}, c.remoteAddr+" did not receive update")

		frames, _ := c.box.take()
		got := frameData(frames)
		if got[0] != w[0] || got[1] != w[1] {
			t.Errorf("%s got %v, want %v", c.remoteAddr, got, w)
		}
	}
	if n := hub.Clients(); n != 2 {
		t.Errorf("expected 2 clients, got %d", n)
	}
}

// TestHub_SlowClientKeepsLatestUpdate checks that a viewer that never drains
// its mailbox stays connected and ends up with init plus the newest curve.
func TestHub_SlowClientKeepsLatestUpdate(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)
	defer stop()

	slow := newTestClient(hub, "slow")
	registerAndWait(t, hub, slow)

	for i := int64(2); i <= 5; i++ {
		hub.Publish()
		waitUntil(t, 500*time.Millisecond, func() bool { return r.n.Load() == i }, "update not rendered")
	}
	waitUntil(t, 500*time.Millisecond, func() bool {
		slow.box.mu.Lock()
		defer slow.box.mu.Unlock()
		n := len(slow.box.pending)
		return n > 0 && string(slow.box.pending[n-1].data) == "curve_updated#5"
	}, "latest update not queued")

	frames, closed := slow.box.take()
	if closed {
		t.Fatalf("slow client was disconnected")
	}
	got := frameData(frames)
	if len(got) != 2 || got[0] != "curve_init#1" || got[1] != "curve_updated#5" {
		t.Errorf("expected init and latest update, got %v", got)
	}
	if n := hub.Clients(); n != 1 {
		t.Errorf("expected slow client to stay connected, got %d clients", n)
	}
}

func TestHub_PublishWithoutClientsRendersNothing(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)
	defer stop()

	hub.Publish()
	waitUntil(t, 500*time.Millisecond, func() bool { return len(hub.publish) == 0 }, "publish not consumed")
	c := newTestClient(hub, "c")
	registerAndWait(t, hub, c)

	frames, _ := c.box.take()
	if got := frameData(frames); len(got) != 1 || got[0] != "curve_init#1" {
		t.Errorf("expected a lone curve_init, got %v", got)
	}
}

func TestHub_RenderFailureRejectsClient(t *testing.T) {
	hub := NewHub(logging.Discard(), func(string) ([]byte, error) {
		return nil, errors.New("boom")
	})
	stop := runHub(t, hub)
	defer stop()

	c := newTestClient(hub, "c")
	if !hub.registerClient(c) {
		t.Fatalf("hub refused registration")
	}
	waitUntil(t, 500*time.Millisecond, func() bool {
		_, closed := c.box.take()
		return closed
	}, "expected client shut down when init cannot be rendered")
	if n := hub.Clients(); n != 0 {
		t.Errorf("expected no clients, got %d", n)
	}
}

func TestHub_UnregisterRemovesClient(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)
	defer stop()

	c := newTestClient(hub, "c")
	registerAndWait(t, hub, c)
	hub.unregisterClient(c)
	hub.unregisterClient(c)

	waitUntil(t, 500*time.Millisecond, func() bool { return hub.Clients() == 0 }, "client not removed")
	if _, closed := c.box.take(); !closed {
		t.Errorf("expected mailbox closed after unregister")
	}
}

func TestHub_StopClosesClientsAndRejectsRegistration(t *testing.T) {
	r := &countingRender{}
	hub := NewHub(logging.Discard(), r.render)
	stop := runHub(t, hub)

	c := newTestClient(hub, "c")
	registerAndWait(t, hub, c)
	stop()

	if _, closed := c.box.take(); !closed {
		t.Errorf("expected mailbox closed on hub stop")
	}
	if hub.registerClient(newTestClient(hub, "late")) {
		t.Errorf("registration after stop should be refused")
	}
	// Must not block once the hub is gone.
	hub.unregisterClient(c)
	hub.Publish()
}

func TestMailbox_Coalescing(t *testing.T) {
	m := newMailbox()
	m.put(frame{typ: TypeCurveInit, data: []byte("init")})
	m.put(frame{typ: TypeCurveUpdated, data: []byte("u1")})
	m.put(frame{typ: TypeCurveUpdated, data: []byte("u2")})

	select {
	case <-m.ready:
	default:
		t.Fatalf("expected ready signal")
	}

	frames, closed := m.take()
	if closed {
		t.Fatalf("unexpected closed mailbox")
	}
	got := frameData(frames)
	if len(got) != 2 || got[0] != "init" || got[1] != "u2" {
		t.Errorf("expected [init u2], got %v", got)
	}

	if frames, _ := m.take(); len(frames) != 0 {
		t.Errorf("expected empty mailbox after take, got %v", frameData(frames))
	}
}

func TestMailbox_Close(t *testing.T) {
	m := newMailbox()
	m.put(frame{typ: TypeCurveUpdated, data: []byte("u1")})
	<-m.ready
	m.close()
	m.put(frame{typ: TypeCurveUpdated, data: []byte("u2")})

	select {
	case <-m.ready:
	default:
		t.Fatalf("expected ready signal on close")
	}
	if frames, closed := m.take(); !closed || frames != nil {
		t.Errorf("expected closed empty mailbox, got %v closed=%v", frameData(frames), closed)
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
