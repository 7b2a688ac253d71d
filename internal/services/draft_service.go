package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ajramos/unibox/internal/api"
	"github.com/google/uuid"
)

// draftSession tracks one compose session: its latest field values, the
// persisted draft identifier once one exists, and the debounce timer.
//
// The draft identifier is read from the session at save time, never captured
// when the timer is armed: a debounce cycle scheduled before the first save
// resolves must still see the identifier that save produced.
type draftSession struct {
	id string

	mu      sync.Mutex
	fields  api.DraftFields
	draftID string
	timer   *time.Timer
	closed  bool

	// saveMu is the single-flight guard. Autosave takes it with TryLock
	// and drops the cycle when another save is in flight; explicit saves
	// and teardown block on it instead.
	saveMu sync.Mutex
}

// DraftServiceImpl implements DraftService with a trailing-edge debounce:
// each field change resets the timer, and the save fires only after input
// pauses for the full debounce interval.
type DraftServiceImpl struct {
	backend  Backend
	debounce time.Duration
	logger   *log.Logger

	mu       sync.Mutex
	sessions map[string]*draftSession
}

// NewDraftService creates a new draft autosave service
func NewDraftService(backend Backend, debounce time.Duration) *DraftServiceImpl {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &DraftServiceImpl{
		backend:  backend,
		debounce: debounce,
		sessions: make(map[string]*draftSession),
	}
}

// SetLogger sets the logger for debug output
func (s *DraftServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// OpenSession starts a new compose session and returns its identifier.
// No draft record exists until the first save succeeds.
func (s *DraftServiceImpl) OpenSession() string {
	sess := &draftSession{id: uuid.New().String()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess.id
}

// UpdateFields records the latest compose field values and (re)arms the
// debounce timer. A change arriving while a save is pending restarts the
// delay, so only the final values of a typing burst reach the backend.
func (s *DraftServiceImpl) UpdateFields(sessionID string, fields api.DraftFields) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return ErrSessionClosed
	}
	sess.fields = fields
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(s.debounce, func() {
		s.autosave(sess)
	})
	return nil
}

// autosave performs one debounced save cycle. Failures are swallowed: the
// user is mid-composition and the next cycle retries with fresher values.
func (s *DraftServiceImpl) autosave(sess *draftSession) {
	if !sess.saveMu.TryLock() {
		// Another save for this session is in flight. Drop, don't queue;
		// the next debounce cycle carries the latest fields anyway.
		if s.logger != nil {
			s.logger.Printf("DraftService: autosave dropped for session %s, save in flight", sess.id)
		}
		return
	}
	defer sess.saveMu.Unlock()

	if err := s.save(context.Background(), sess); err != nil {
		if s.logger != nil {
			s.logger.Printf("DraftService: autosave failed for session %s: %v", sess.id, err)
		}
	}
}

// SaveNow saves the session immediately, bypassing the debounce. Unlike
// autosave it serializes behind any in-flight save and surfaces errors.
func (s *DraftServiceImpl) SaveNow(ctx context.Context, sessionID string) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return ErrSessionClosed
	}
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.mu.Unlock()

	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()
	return s.save(ctx, sess)
}

// save persists the current field values, creating the draft record on the
// first success and updating it afterwards. Caller holds saveMu.
func (s *DraftServiceImpl) save(ctx context.Context, sess *draftSession) error {
	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return ErrSessionClosed
	}
	fields := sess.fields
	draftID := sess.draftID
	sess.mu.Unlock()

	if draftID == "" {
		id, err := s.backend.CreateDraft(ctx, fields)
		if err != nil {
			return fmt.Errorf("create draft: %w", err)
		}
		sess.mu.Lock()
		sess.draftID = id
		sess.mu.Unlock()
		if s.logger != nil {
			s.logger.Printf("DraftService: created draft %s for session %s", id, sess.id)
		}
		return nil
	}

	if err := s.backend.UpdateDraft(ctx, draftID, fields); err != nil {
		return fmt.Errorf("update draft %s: %w", draftID, err)
	}
	return nil
}

// DraftID returns the persisted draft identifier for the session, or ""
// when no save has succeeded yet.
func (s *DraftServiceImpl) DraftID(sessionID string) string {
	sess, err := s.session(sessionID)
	if err != nil {
		return ""
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.draftID
}

// Fields returns the latest field values recorded for the session
func (s *DraftServiceImpl) Fields(sessionID string) api.DraftFields {
	sess, err := s.session(sessionID)
	if err != nil {
		return api.DraftFields{}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.fields
}

// CloseSession ends the compose session. Pending debounce cycles are
// cancelled and an in-flight save is waited out, so a deleteDraft request
// removes the real draft record and not a stale identifier.
func (s *DraftServiceImpl) CloseSession(ctx context.Context, sessionID string, deleteDraft bool) error {
	sess, err := s.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.closed = true
	if sess.timer != nil {
		sess.timer.Stop()
		sess.timer = nil
	}
	sess.mu.Unlock()

	sess.saveMu.Lock()
	defer sess.saveMu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if deleteDraft {
		sess.mu.Lock()
		draftID := sess.draftID
		sess.mu.Unlock()
		if draftID != "" {
			if err := s.backend.DeleteDraft(ctx, draftID); err != nil {
				return fmt.Errorf("delete draft %s: %w", draftID, err)
			}
		}
	}
	return nil
}

func (s *DraftServiceImpl) session(sessionID string) (*draftSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}
