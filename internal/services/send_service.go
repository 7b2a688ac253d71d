package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ajramos/unibox/internal/api"
)

// SendServiceImpl implements SendService
type SendServiceImpl struct {
	backend Backend
	folders FolderService
	window  time.Duration
	logger  *log.Logger

	mu         sync.Mutex
	active     *Countdown
	scheduling bool
}

// NewSendService creates a new send service. window is the undo window
// length; folders may be nil when no view refresh is wanted on expiry.
func NewSendService(backend Backend, folders FolderService, window time.Duration) *SendServiceImpl {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &SendServiceImpl{
		backend: backend,
		folders: folders,
		window:  window,
	}
}

// SetLogger sets the logger for debug output
func (s *SendServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Send submits the message immediately. The originating draft, if any, is
// deleted only after the backend confirms the send.
func (s *SendServiceImpl) Send(ctx context.Context, msg api.OutgoingMessage, draftID string) (string, error) {
	id, err := s.backend.SendMessage(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}
	if draftID != "" {
		if err := s.backend.DeleteDraft(ctx, draftID); err != nil {
			// Send already happened; a leftover draft is not worth failing over
			if s.logger != nil {
				s.logger.Printf("SendService: failed to delete draft %s after send: %v", draftID, err)
			}
		}
	}
	return id, nil
}

// SendWithUndo submits the message as a scheduled send at now+window and
// returns a countdown handle the caller can display and cancel through.
// Only one deferred send may be in flight at a time.
func (s *SendServiceImpl) SendWithUndo(ctx context.Context, msg api.OutgoingMessage, draftID string) (*Countdown, error) {
	s.mu.Lock()
	if s.scheduling || (s.active != nil && !s.active.Finished()) {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	// Claim the slot before releasing the lock; the schedule request runs
	// outside it and a second caller must not pass the guard meanwhile.
	s.scheduling = true
	s.mu.Unlock()

	scheduleID, err := s.backend.ScheduleSend(ctx, msg, time.Now().Add(s.window))
	if err != nil {
		s.mu.Lock()
		s.scheduling = false
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule send: %w", err)
	}

	cd := &Countdown{
		ScheduleID: scheduleID,
		svc:        s,
		draftID:    draftID,
		remaining:  int(s.window / time.Second),
		done:       make(chan SendResult, 1),
		stop:       make(chan struct{}),
	}

	s.mu.Lock()
	s.active = cd
	s.scheduling = false
	s.mu.Unlock()

	go cd.run()

	if s.logger != nil {
		s.logger.Printf("SendService: scheduled send %s, undo window %s", scheduleID, s.window)
	}
	return cd, nil
}

// ActiveCountdown returns the countdown currently in flight, or nil
func (s *SendServiceImpl) ActiveCountdown() *Countdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.Finished() {
		return nil
	}
	return s.active
}

// Countdown is the local cancellable handle for one deferred send. Its
// expiry is the authoritative trigger for draft cleanup, independent of
// server confirmation.
type Countdown struct {
	ScheduleID string

	svc     *SendServiceImpl
	draftID string

	mu        sync.Mutex
	remaining int
	finished  bool
	cancelled bool
	onTick    func(remaining int)

	done chan SendResult
	stop chan struct{}
}

// OnTick registers a callback invoked once per second with the remaining
// seconds. Must be set before the first tick to observe all of them.
func (c *Countdown) OnTick(fn func(remaining int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTick = fn
}

// Remaining returns the seconds left in the undo window
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Finished reports whether the countdown has resolved or been cancelled
func (c *Countdown) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Done delivers exactly one SendResult when the countdown concludes
func (c *Countdown) Done() <-chan SendResult {
	return c.done
}

// Undo cancels the deferred send. Before expiry this stops the local timer,
// requests backend cancellation, and skips draft deletion. After expiry the
// message may already be out: the caller gets ErrCountdownExpired and local
// state stays cleared either way.
func (c *Countdown) Undo(ctx context.Context) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrCountdownExpired
	}
	c.finished = true
	c.cancelled = true
	c.mu.Unlock()

	close(c.stop)

	err := c.svc.backend.CancelScheduledSend(ctx, c.ScheduleID)
	c.done <- SendCancelled
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCountdownExpired, err)
	}
	if c.svc.logger != nil {
		c.svc.logger.Printf("SendService: cancelled scheduled send %s", c.ScheduleID)
	}
	return nil
}

// run drives the one-second-resolution countdown until expiry or Undo
func (c *Countdown) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.remaining--
			remaining := c.remaining
			fn := c.onTick
			c.mu.Unlock()

			if fn != nil {
				fn(remaining)
			}
			if remaining <= 0 {
				c.expire()
				return
			}
		}
	}
}

// expire runs once when the countdown reaches zero uncancelled: the draft
// is cleaned up and the active view refreshed to show the sent message.
func (c *Countdown) expire() {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return
	}
	c.finished = true
	c.mu.Unlock()

	ctx := context.Background()
	if c.draftID != "" {
		if err := c.svc.backend.DeleteDraft(ctx, c.draftID); err != nil {
			if c.svc.logger != nil {
				c.svc.logger.Printf("SendService: failed to delete draft %s after send window: %v", c.draftID, err)
			}
		}
	}
	if c.svc.folders != nil {
		if err := c.svc.folders.Refresh(ctx); err != nil {
			if c.svc.logger != nil {
				c.svc.logger.Printf("SendService: post-send refresh failed: %v", err)
			}
		}
	}
	c.done <- SendResolved
}
