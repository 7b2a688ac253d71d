package sync

import (
	"context"
	"log"
	gosync "sync"
	"time"
)

// fetchTimeout is the maximum time allowed for a single refresh operation
const fetchTimeout = 30 * time.Second

// FolderRefresher is the folder view surface the engine drives. Every
// trigger goes through HandleRefreshEvent, which applies the reconciliation
// gate against the live current folder.
type FolderRefresher interface {
	CurrentFolder() string
	HandleRefreshEvent(ctx context.Context, folder string) error
	RefreshUnreadCounts(ctx context.Context)
}

// PushEventKind identifies the push notification types the backend emits
type PushEventKind string

const (
	// PushEmailReceived signals new mail in a folder; it is folder-relevant
	// and may refresh the active view.
	PushEmailReceived PushEventKind = "email_received"
	// PushEmailSent confirms a send; badges update but no list refresh runs.
	PushEmailSent PushEventKind = "email_sent"
)

// PushEvent is one notification from the push transport
type PushEvent struct {
	Kind   PushEventKind `json:"kind"`
	Folder string        `json:"folder,omitempty"`
}

// Engine funnels the three refresh triggers — manual, interval poll, and
// push notifications — into the folder service on a single loop.
type Engine struct {
	folders  FolderRefresher
	interval time.Duration
	logger   *log.Logger

	eventCh   chan PushEvent
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      gosync.Mutex
	running bool
	wg      gosync.WaitGroup
}

// New creates a sync engine polling at the given interval
func New(folders FolderRefresher, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Engine{
		folders:   folders,
		interval:  interval,
		eventCh:   make(chan PushEvent, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// SetLogger sets the logger for debug output
func (e *Engine) SetLogger(logger *log.Logger) {
	e.logger = logger
}

// Start launches the engine loop. Calling Start twice is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.wg.Add(1)
	go e.loop()
}

// Stop halts the loop and waits for it to exit
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()
	e.wg.Wait()
}

// RefreshNow requests an immediate refresh of the current folder (the
// manual sync button). Non-blocking; a refresh already queued absorbs it.
func (e *Engine) RefreshNow() {
	select {
	case e.triggerCh <- struct{}{}:
	default:
	}
}

// HandlePush enqueues a push notification for processing. Non-blocking;
// events are dropped rather than back-pressuring the transport, the next
// poll catches anything missed.
func (e *Engine) HandlePush(evt PushEvent) {
	select {
	case e.eventCh <- evt:
	default:
		if e.logger != nil {
			e.logger.Printf("sync: dropping push event %s, queue full", evt.Kind)
		}
	}
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.refreshCurrent()
		case <-e.triggerCh:
			e.refreshCurrent()
		case evt := <-e.eventCh:
			e.handleEvent(evt)
		}
	}
}

// refreshCurrent refreshes whatever folder is displayed at this instant.
// The folder is read at fire time; the gate inside the folder service
// discards the response if the user switches away mid-flight.
func (e *Engine) refreshCurrent() {
	folder := e.folders.CurrentFolder()
	if folder == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	if err := e.folders.HandleRefreshEvent(ctx, folder); err != nil {
		if e.logger != nil {
			e.logger.Printf("sync: refresh of %q failed: %v", folder, err)
		}
	}
}

func (e *Engine) handleEvent(evt PushEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	switch evt.Kind {
	case PushEmailReceived:
		if err := e.folders.HandleRefreshEvent(ctx, evt.Folder); err != nil {
			if e.logger != nil {
				e.logger.Printf("sync: push refresh of %q failed: %v", evt.Folder, err)
			}
		}
	case PushEmailSent:
		// Confirmation only; badges may change but the list stays put
		e.folders.RefreshUnreadCounts(ctx)
	default:
		if e.logger != nil {
			e.logger.Printf("sync: ignoring unknown push event kind %q", evt.Kind)
		}
	}
}
