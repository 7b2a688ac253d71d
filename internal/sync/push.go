package sync

import (
	"context"
	"log"
	"net/http"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout    = 10 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pongWait       = 90 * time.Second
)

// Listener subscribes to the backend's push notification stream over a
// websocket and forwards decoded events to the sync engine. The connection
// is re-established with exponential backoff after any failure; missed
// events are harmless because the interval poll covers the gap.
type Listener struct {
	url    string
	token  string
	engine *Engine
	logger *log.Logger

	mu      gosync.Mutex
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
	wg      gosync.WaitGroup
}

// NewListener creates a push listener for the given websocket URL
func NewListener(url, token string, engine *Engine) *Listener {
	return &Listener{
		url:    url,
		token:  token,
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

// SetLogger sets the logger for debug output
func (l *Listener) SetLogger(logger *log.Logger) {
	l.logger = logger
}

// Start launches the listen/reconnect loop. Calling Start twice is a no-op.
func (l *Listener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.wg.Add(1)
	go l.run()
}

// Stop closes the connection and waits for the loop to exit
func (l *Listener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) run() {
	defer l.wg.Done()

	backoff := initialBackoff
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		if err := l.listenOnce(); err != nil {
			if l.logger != nil {
				l.logger.Printf("push: connection lost: %v (retrying in %s)", err, backoff)
			}
		}

		select {
		case <-l.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// listenOnce dials the stream and reads events until the connection drops
func (l *Listener) listenOnce() error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, header)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	l.conn = conn
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}

	for {
		var evt PushEvent
		if err := conn.ReadJSON(&evt); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		l.engine.HandlePush(evt)
	}
}
