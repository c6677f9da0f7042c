package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

// fakeClock records scheduled callbacks; the test fires them by hand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) last() *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.timers))
	for i, t := range c.timers {
		out[i] = t.delay
	}
	return out
}

// scriptedDialer returns the queued conns/errors in order.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []ClientConn // nil entry means dial failure
	calls int
}

func (d *scriptedDialer) Dial(ctx context.Context, url string) (ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	if conn == nil {
		return nil, errors.New("connection refused")
	}
	return conn, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// scriptedConn feeds messages to the read loop, then fails.
type scriptedConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	writes [][]byte
	closed bool
}

func (c *scriptedConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil, errors.New("connection closed")
	}
	msg := c.msgs[0]
	c.msgs = c.msgs[1:]
	return msg, nil
}

func (c *scriptedConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func newTestClient(t *testing.T, dialer Dialer, clock Clock, onMessage func([]byte)) *Client {
	t.Helper()
	c, err := newClient("http://localhost:8000", onMessage, dialer, clock, log.New())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestUpdatesURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"http://localhost:8000", "ws://localhost:8000/ws/updates"},
		{"https://todo.example.com", "wss://todo.example.com/ws/updates"},
		{"http://host/api?x=1", "ws://host/ws/updates"},
		{"wss://host", "wss://host/ws/updates"},
	}
	for _, c := range cases {
		got, err := UpdatesURL(c.in)
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%s: expected %s, got %s", c.in, c.want, got)
		}
	}
	if _, err := UpdatesURL("ftp://host"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestBackoffSequenceCapped(t *testing.T) {
	clock := &fakeClock{}
	dialer := &scriptedDialer{} // every dial fails
	c := newTestClientNoStart(t, dialer, clock)

	c.connect()
	for i := 0; i < 5; i++ {
		timer := clock.last()
		if timer == nil {
			t.Fatal("expected reconnect scheduled")
		}
		timer.f()
	}

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	got := clock.delays()
	if len(got) != len(want) {
		t.Fatalf("expected %d scheduled retries, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("retry %d: expected %v, got %v (all: %v)", i, want[i], got[i], got)
		}
	}
}

func TestBackoffResetsOnOpen(t *testing.T) {
	clock := &fakeClock{}
	// Two failures, then a connection that drops straight away.
	dialer := &scriptedDialer{conns: []ClientConn{nil, nil, &scriptedConn{}}}
	c := newTestClientNoStart(t, dialer, clock)

	c.connect()      // fail -> schedule 1000
	clock.last().f() // fail -> schedule 2000
	clock.last().f() // open, reset, read fails -> schedule

	delays := clock.delays()
	reconnects := filterReconnects(delays)
	want := []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond, 1000 * time.Millisecond}
	if len(reconnects) != len(want) {
		t.Fatalf("expected %d reconnects, got %v", len(want), reconnects)
	}
	for i := range want {
		if reconnects[i] != want[i] {
			t.Fatalf("reconnect %d: expected %v, got %v", i, want[i], reconnects[i])
		}
	}
}

// filterReconnects drops heartbeat timers from the recorded delays.
func filterReconnects(delays []time.Duration) []time.Duration {
	out := delays[:0:0]
	for _, d := range delays {
		if d != heartbeatEvery {
			out = append(out, d)
		}
	}
	return out
}

func TestHeartbeatSentOnOpen(t *testing.T) {
	clock := &fakeClock{}
	conn := &scriptedConn{}
	dialer := &scriptedDialer{conns: []ClientConn{conn}}
	c := newTestClientNoStart(t, dialer, clock)

	c.connect()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.writes) != 1 || string(conn.writes[0]) != Heartbeat {
		t.Fatalf("expected a single %q heartbeat, got %v", Heartbeat, conn.writes)
	}
}

func TestMessagesReachCallback(t *testing.T) {
	clock := &fakeClock{}
	conn := &scriptedConn{msgs: [][]byte{[]byte(`{"type":"todo.created","ts":1}`), []byte(`{"type":"todo.updated","ts":2}`)}}
	dialer := &scriptedDialer{conns: []ClientConn{conn}}

	var got [][]byte
	c := newTestClient(t, dialer, clock, func(data []byte) { got = append(got, data) })
	c.connect()

	if len(got) != 2 {
		t.Fatalf("expected 2 callback invocations, got %d", len(got))
	}
}

func TestOwnEchoFiltered(t *testing.T) {
	clock := &fakeClock{}
	conn := &scriptedConn{msgs: [][]byte{
		[]byte(`{"type":"todo.updated","origin":"req-1","ts":1}`),
		[]byte(`{"type":"todo.created","origin":"someone-else","ts":2}`),
	}}
	dialer := &scriptedDialer{conns: []ClientConn{conn}}

	var got []string
	c := newTestClient(t, dialer, clock, func(data []byte) { got = append(got, string(data)) })
	c.MarkPending("req-1")
	c.connect()

	if len(got) != 1 {
		t.Fatalf("expected own echo filtered, got %d messages", len(got))
	}
	if got[0] != `{"type":"todo.created","origin":"someone-else","ts":2}` {
		t.Fatalf("wrong message delivered: %s", got[0])
	}
	// The pending id is consumed; a later event with the same origin flows through.
	if c.ownEcho([]byte(`{"origin":"req-1"}`)) {
		t.Fatal("pending id must be consumed after one match")
	}
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	clock := &fakeClock{}
	dialer := &scriptedDialer{}
	c := newTestClientNoStart(t, dialer, clock)

	c.connect() // fail -> reconnect pending
	timer := clock.last()
	if timer == nil {
		t.Fatal("expected pending reconnect")
	}
	c.Stop()
	if !timer.stopped {
		t.Fatal("pending timer must be cancelled on stop")
	}
	// Even a timer that had already fired must not resurrect the client.
	timer.f()
	if dialer.dialCount() != 1 {
		t.Fatalf("expected no dial after stop, got %d", dialer.dialCount())
	}
	// Stop is idempotent.
	c.Stop()
}

func TestStopClosesLiveConnection(t *testing.T) {
	clock := &fakeClock{}
	blocking := &blockingConn{unblock: make(chan struct{})}
	dialer := &scriptedDialer{conns: []ClientConn{blocking}}
	c := newTestClientNoStart(t, dialer, clock)

	done := make(chan struct{})
	go func() {
		c.connect()
		close(done)
	}()

	waitFor(t, func() bool { return blocking.writeCount() == 1 })
	c.Stop()
	waitFor(t, func() bool { return blocking.isClosed() })
	close(blocking.unblock)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connect loop did not exit after stop")
	}
	if len(filterReconnects(clock.delays())) != 0 {
		t.Fatalf("no reconnect may be scheduled after stop: %v", clock.delays())
	}
}

// blockingConn blocks reads until unblocked, then fails them.
type blockingConn struct {
	mu      sync.Mutex
	writes  int
	closed  bool
	unblock chan struct{}
}

func (c *blockingConn) ReadMessage() ([]byte, error) {
	<-c.unblock
	return nil, errors.New("connection closed")
}

func (c *blockingConn) WriteMessage([]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	return nil
}

func (c *blockingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *blockingConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *blockingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestClientNoStart(t *testing.T, dialer Dialer, clock Clock) *Client {
	t.Helper()
	return newTestClient(t, dialer, clock, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
