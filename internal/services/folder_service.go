package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/ajramos/unibox/internal/api"
)

// FolderServiceImpl implements FolderService. Exactly one folder view is
// active at a time; switching folders discards and rebuilds it.
//
// The current-folder value is a shared mutable cell read under the lock at
// the moment each trigger or response is applied. Long-lived callbacks
// (poll ticks, push events) must never act on a folder value captured when
// they were registered; a stale capture would overwrite an unrelated view.
type FolderServiceImpl struct {
	backend  Backend
	threads  ThreadService
	rules    RuleService
	pageSize int
	logger   *log.Logger

	mu         sync.Mutex
	current    string
	generation int // bumped on every folder switch; stale responses are discarded
	filters    api.FetchFilters
	modes      map[string]GroupMode
	activeRule *Rule
	state      FolderViewState
	emails     []api.Email
	threadList []*Thread
	unread     map[string]int
}

// NewFolderService creates a new folder service. rules may be nil when no
// smart folder filtering is wanted.
func NewFolderService(backend Backend, threads ThreadService, rules RuleService, pageSize int) *FolderServiceImpl {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &FolderServiceImpl{
		backend:  backend,
		threads:  threads,
		rules:    rules,
		pageSize: pageSize,
		modes:    make(map[string]GroupMode),
		unread:   make(map[string]int),
	}
}

// SetLogger sets the logger for debug output
func (s *FolderServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetCurrentFolder switches the active folder, discarding the previous view
// state, and fetches the first page in replace mode.
func (s *FolderServiceImpl) SetCurrentFolder(ctx context.Context, folder string) error {
	if folder == "" {
		return fmt.Errorf("folder cannot be empty: %w", ErrInvalidInput)
	}

	s.mu.Lock()
	s.current = folder
	s.generation++
	gen := s.generation
	s.emails = nil
	s.threadList = nil
	s.state = FolderViewState{Folder: folder, LoadingInitial: true}
	filters := s.filters
	s.mu.Unlock()

	return s.fetchAndApply(ctx, gen, folder, 0, AccumulateReplace, filters)
}

// CurrentFolder returns the live current-folder value
func (s *FolderServiceImpl) CurrentFolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Refresh re-fetches the first page of the current folder in replace mode.
// If the user switches folders while the fetch is in flight, the response
// is discarded rather than applied to the wrong view.
func (s *FolderServiceImpl) Refresh(ctx context.Context) error {
	s.mu.Lock()
	folder := s.current
	gen := s.generation
	filters := s.filters
	if folder == "" {
		s.mu.Unlock()
		return nil
	}
	s.state.LoadingInitial = true
	s.mu.Unlock()

	return s.fetchAndApply(ctx, gen, folder, 0, AccumulateReplace, filters)
}

// LoadMore fetches the next page and merges it in append mode. It is a
// no-op while another load is running or when the server has no more.
func (s *FolderServiceImpl) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.current == "" || !s.state.HasMore || s.state.LoadingInitial || s.state.LoadingMore {
		s.mu.Unlock()
		return nil
	}
	folder := s.current
	gen := s.generation
	offset := s.state.Offset
	filters := s.filters
	s.state.LoadingMore = true
	s.mu.Unlock()

	return s.fetchAndApply(ctx, gen, folder, offset, AccumulateAppend, filters)
}

// HandleRefreshEvent is the reconciliation gate for asynchronous refresh
// triggers (poll ticks, push notifications). The event's folder is compared
// against the folder displayed right now, not the one active when the
// trigger source was registered. Unread counts refresh regardless, since
// sidebar badges track all folders.
func (s *FolderServiceImpl) HandleRefreshEvent(ctx context.Context, folder string) error {
	s.RefreshUnreadCounts(ctx)

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if folder != current {
		if s.logger != nil {
			s.logger.Printf("FolderService: dropping refresh for %q, current folder is %q", folder, current)
		}
		return nil
	}
	return s.Refresh(ctx)
}

// Threads returns the grouped threads of the active view
func (s *FolderServiceImpl) Threads() []*Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Thread, len(s.threadList))
	copy(out, s.threadList)
	return out
}

// VisibleThreads returns the grouped threads filtered by the active smart
// folder rule, if any. Counts reflect only the loaded window.
func (s *FolderServiceImpl) VisibleThreads() []*Thread {
	s.mu.Lock()
	rule := s.activeRule
	threads := make([]*Thread, len(s.threadList))
	copy(threads, s.threadList)
	s.mu.Unlock()

	if rule == nil || s.rules == nil {
		return threads
	}
	return s.rules.FilterThreads(threads, rule)
}

// ExpandThread returns the full membership of one displayed thread. Threads
// with a real identifier are re-fetched so members outside the loaded window
// appear too; synthetic subject groups only ever exist client-side, so their
// loaded members are already complete.
func (s *FolderServiceImpl) ExpandThread(ctx context.Context, key string) ([]api.Email, error) {
	s.mu.Lock()
	var found *Thread
	for _, th := range s.threadList {
		if th.Key == key {
			found = th
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return nil, ErrNotFound
	}
	if found.ThreadID == "" {
		return append([]api.Email(nil), found.Emails...), nil
	}

	emails, err := s.backend.FetchThread(ctx, found.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("expand thread %q: %w", found.ThreadID, classifyBackendError(err))
	}
	sort.SliceStable(emails, func(i, j int) bool {
		ti, tj := emails[i].Time(), emails[j].Time()
		if ti.Equal(tj) {
			return emails[i].ID < emails[j].ID
		}
		return ti.Before(tj)
	})
	return emails, nil
}

// ViewState returns a snapshot of the folder view state
func (s *FolderServiceImpl) ViewState() FolderViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetFilters sets the server-side fetch filters applied to subsequent fetches
func (s *FolderServiceImpl) SetFilters(filters api.FetchFilters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = filters
}

// SetThreadingMode sets how the given folder's emails group into threads
// and regroups the active view if it is that folder.
func (s *FolderServiceImpl) SetThreadingMode(folder string, mode GroupMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == "" {
		mode = GroupConversations
	}
	s.modes[folder] = mode
	if folder == s.current {
		s.threadList = s.threads.GroupEmails(s.emails, mode)
	}
}

// ThreadingMode returns the grouping mode configured for a folder
func (s *FolderServiceImpl) ThreadingMode(folder string) GroupMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modeLocked(folder)
}

func (s *FolderServiceImpl) modeLocked(folder string) GroupMode {
	if mode, ok := s.modes[folder]; ok {
		return mode
	}
	return GroupConversations
}

// SetActiveRule selects the smart folder rule applied by VisibleThreads.
// nil clears it.
func (s *FolderServiceImpl) SetActiveRule(rule *Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRule = rule
}

// UnreadCounts returns the last fetched per-folder unread counts
func (s *FolderServiceImpl) UnreadCounts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.unread))
	for k, v := range s.unread {
		out[k] = v
	}
	return out
}

// fetchAndApply performs one page fetch and merges the result, unless the
// view has moved to another generation in the meantime.
func (s *FolderServiceImpl) fetchAndApply(ctx context.Context, gen int, folder string, offset int, mode AccumulateMode, filters api.FetchFilters) error {
	page, err := s.backend.FetchFolderPage(ctx, folder, offset, s.pageSize, filters)
	if err != nil {
		s.mu.Lock()
		if gen == s.generation {
			s.state.LoadingInitial = false
			s.state.LoadingMore = false
		}
		s.mu.Unlock()
		return fmt.Errorf("fetch %q page at offset %d: %w", folder, offset, classifyBackendError(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		// Folder switched mid-flight; the response belongs to a dead view.
		if s.logger != nil {
			s.logger.Printf("FolderService: discarding stale page for %q", folder)
		}
		return nil
	}

	switch mode {
	case AccumulateReplace:
		s.emails = append([]api.Email(nil), page.Emails...)
		s.state.Offset = s.pageSize
	case AccumulateAppend:
		// Union by email ID. A thread spanning pages can re-include a
		// member the server already returned; dedup keeps membership exact.
		seen := make(map[string]bool, len(s.emails))
		for i := range s.emails {
			seen[s.emails[i].ID] = true
		}
		for i := range page.Emails {
			if !seen[page.Emails[i].ID] {
				seen[page.Emails[i].ID] = true
				s.emails = append(s.emails, page.Emails[i])
			}
		}
		// Advance by the page size requested, not by len(page.Emails):
		// server-side filtering can shrink a page without exhausting it.
		s.state.Offset += s.pageSize
	default:
		return fmt.Errorf("unknown accumulate mode %q: %w", mode, ErrInvalidInput)
	}

	s.state.Total = page.Total
	s.state.HasMore = s.state.Offset < page.Total
	s.state.LoadingInitial = false
	s.state.LoadingMore = false

	// Full regroup on every merge; thread membership is never patched.
	s.threadList = s.threads.GroupEmails(s.emails, s.modeLocked(folder))
	return nil
}

// RefreshUnreadCounts fetches the server-computed per-folder unread
// aggregate. Failures are not surfaced; the next trigger retries.
func (s *FolderServiceImpl) RefreshUnreadCounts(ctx context.Context) {
	counts, err := s.backend.UnreadCounts(ctx)
	if err != nil {
		if s.logger != nil {
			err = classifyBackendError(err)
			if IsRetryableError(err) {
				s.logger.Printf("FolderService: unread count refresh failed, will retry on next trigger: %v", err)
			} else {
				s.logger.Printf("FolderService: unread count refresh failed: %v", err)
			}
		}
		return
	}
	s.mu.Lock()
	s.unread = counts
	s.mu.Unlock()
}
