package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	backoffFloor   = 1000 * time.Millisecond
	backoffCeiling = 10000 * time.Millisecond
	heartbeatEvery = 25 * time.Second
)

// ClientConn is one established update connection as seen from the client.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes update connections. Injected so the reconnect state
// machine is testable without sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (ClientConn, error)
}

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks. Injected so backoff is testable without real time.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clientState int

const (
	stateConnecting clientState = iota
	stateOpen
	stateRetrying
	stateStopped
)

// Client maintains a persistent update connection, reconnecting with capped
// exponential backoff (1s floor, 10s ceiling, no jitter). Every inbound
// message is passed raw to the callback; the client never parses payloads
// beyond the origin filter. There are no fatal errors: every failure is
// retried until Stop is called.
type Client struct {
	url       string
	onMessage func([]byte)
	dialer    Dialer
	clock     Clock
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   clientState
	conn    ClientConn
	delay   time.Duration
	timer   Timer
	hbTimer Timer
	pending map[string]struct{}
}

// NewClient builds a client for the given REST base URL ("http://host:port"
// or "https://..."); the update URL is derived by switching to the matching
// WebSocket scheme and appending the well-known path.
func NewClient(baseURL string, onMessage func([]byte)) (*Client, error) {
	return newClient(baseURL, onMessage, gorillaDialer{}, realClock{}, log.StandardLogger())
}

func newClient(baseURL string, onMessage func([]byte), dialer Dialer, clock Clock, logger *log.Logger) (*Client, error) {
	wsURL, err := UpdatesURL(baseURL)
	if err != nil {
		return nil, err
	}
	if onMessage == nil {
		onMessage = func([]byte) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:       wsURL,
		onMessage: onMessage,
		dialer:    dialer,
		clock:     clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     stateConnecting,
		delay:     backoffFloor,
		pending:   make(map[string]struct{}),
	}, nil
}

// UpdatesURL rewrites the base URL's scheme (secure stays secure) and appends
// the update path.
func UpdatesURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = Path
	u.RawQuery = ""
	return u.String(), nil
}

// Start begins connecting. It returns immediately; connection maintenance
// runs in the background until Stop.
func (c *Client) Start() {
	go c.connect()
}

// Stop tears the client down from any state: the live connection is closed
// and any pending reconnect is cancelled. Safe to call repeatedly.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state == stateStopped {
		c.mu.Unlock()
		return
	}
	c.state = stateStopped
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.hbTimer != nil {
		c.hbTimer.Stop()
		c.hbTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
}

// MarkPending records a request id this client sent with a mutation. The
// event broadcast for that mutation echoes the id as its origin and is
// dropped instead of being delivered to the callback, so the caller does not
// re-fetch state it just wrote.
func (c *Client) MarkPending(requestID string) {
	if requestID == "" {
		return
	}
	c.mu.Lock()
	c.pending[requestID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) connect() {
	c.mu.Lock()
	if c.state == stateStopped {
		c.mu.Unlock()
		return
	}
	c.state = stateConnecting
	c.timer = nil
	c.mu.Unlock()

	conn, err := c.dialer.Dial(c.ctx, c.url)
	if err != nil {
		c.logger.WithError(err).Debug("update connection failed")
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.state == stateStopped {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.state = stateOpen
	c.conn = conn
	c.delay = backoffFloor
	c.mu.Unlock()

	// Immediate heartbeat doubles as a liveness probe on the fresh socket.
	c.sendHeartbeat(conn)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if c.ownEcho(data) {
			continue
		}
		c.onMessage(data)
	}

	c.mu.Lock()
	if c.hbTimer != nil {
		c.hbTimer.Stop()
		c.hbTimer = nil
	}
	if c.state == stateStopped {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()
	c.scheduleReconnect()
}

// scheduleReconnect arms the retry timer with the current delay, then doubles
// it up to the ceiling. The next successful open resets the delay.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateStopped {
		return
	}
	c.state = stateRetrying
	d := c.delay
	c.delay = c.delay * 2
	if c.delay > backoffCeiling {
		c.delay = backoffCeiling
	}
	c.timer = c.clock.AfterFunc(d, c.connect)
}

func (c *Client) sendHeartbeat(conn ClientConn) {
	if err := conn.WriteMessage([]byte(Heartbeat)); err != nil {
		// The read loop observes the broken socket and drives the retry.
		_ = conn.Close()
		return
	}
	c.mu.Lock()
	if c.state == stateOpen && c.conn == conn {
		c.hbTimer = c.clock.AfterFunc(heartbeatEvery, func() { c.sendHeartbeat(conn) })
	}
	c.mu.Unlock()
}

// ownEcho reports whether the event's origin matches a pending request id,
// consuming the id on match.
func (c *Client) ownEcho(data []byte) bool {
	c.mu.Lock()
	n := len(c.pending)
	c.mu.Unlock()
	if n == 0 {
		return false
	}
	var env struct {
		Origin string `json:"origin"`
	}
	if err := sonic.Unmarshal(data, &env); err != nil || env.Origin == "" {
		return false
	}
	c.mu.Lock()
	_, ok := c.pending[env.Origin]
	if ok {
		delete(c.pending, env.Origin)
	}
	c.mu.Unlock()
	return ok
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, rawURL string) (ClientConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return gorillaConn{ws: ws}, nil
}

type gorillaConn struct {
	ws *websocket.Conn
}

func (g gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.ws.ReadMessage()
	return data, err
}

func (g gorillaConn) WriteMessage(data []byte) error {
	_ = g.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return g.ws.WriteMessage(websocket.TextMessage, data)
}

func (g gorillaConn) Close() error {
	return g.ws.Close()
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
