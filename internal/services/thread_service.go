package services

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/ajramos/unibox/internal/api"
)

// placeholderSubject stands in for subjects that normalize to nothing
const placeholderSubject = "(no subject)"

// replyPrefix matches a single leading reply/forward marker, case-insensitive.
// Covers Re:, RE:, Fwd:, FWD:, Fw: and counted variants like Re[2]:.
var replyPrefix = regexp.MustCompile(`^(?i)(re|fwd?|fw)(\[\d+\])?\s*:\s*`)

// ThreadServiceImpl implements ThreadService
type ThreadServiceImpl struct {
	logger *log.Logger
}

// NewThreadService creates a new thread service
func NewThreadService() *ThreadServiceImpl {
	return &ThreadServiceImpl{}
}

// SetLogger sets the logger for debug output
func (s *ThreadServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// NormalizeSubject strips leading reply/forward markers and trims whitespace.
// A subject that normalizes to the empty string becomes a fixed placeholder.
func NormalizeSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for {
		stripped := replyPrefix.ReplaceAllString(subject, "")
		stripped = strings.TrimSpace(stripped)
		if stripped == subject {
			break
		}
		subject = stripped
	}
	if subject == "" {
		return placeholderSubject
	}
	return subject
}

// groupKey returns the grouping key for one email. A real thread identifier
// always wins; the account+subject composite is only a fallback for channels
// that never assign one, applied per-email so mixed folders stay correct.
// GroupNone keys every email by its own identifier.
func groupKey(e *api.Email, mode GroupMode) string {
	if mode == GroupNone {
		return "m:" + e.ID
	}
	if e.ThreadID != "" {
		return "t:" + e.ThreadID
	}
	return "s:" + e.AccountID + "\x00" + strings.ToLower(NormalizeSubject(e.Subject))
}

// GroupEmails groups a flat, unordered email list into an ordered thread
// list. Pure function: identical input sets produce identical output
// regardless of input order.
func (s *ThreadServiceImpl) GroupEmails(emails []api.Email, mode GroupMode) []*Thread {
	groups := make(map[string]*Thread)
	var order []string

	for i := range emails {
		e := emails[i]
		key := groupKey(&e, mode)
		th, ok := groups[key]
		if !ok {
			th = &Thread{
				Key:      key,
				ThreadID: e.ThreadID,
				Subject:  NormalizeSubject(e.Subject),
			}
			groups[key] = th
			order = append(order, key)
		}
		th.Emails = append(th.Emails, e)
	}

	threads := make([]*Thread, 0, len(order))
	for _, key := range order {
		th := groups[key]

		// Members sort ascending by corrected timestamp; email ID breaks
		// ties so permutations of the input cannot reorder members.
		sort.SliceStable(th.Emails, func(i, j int) bool {
			ti, tj := th.Emails[i].Time(), th.Emails[j].Time()
			if ti.Equal(tj) {
				return th.Emails[i].ID < th.Emails[j].ID
			}
			return ti.Before(tj)
		})

		for i := range th.Emails {
			if !th.Emails[i].Read {
				th.UnreadCount++
			}
			if th.Emails[i].HasAttachments() {
				th.HasAttachment = true
			}
		}
		th.LatestDate = th.Emails[len(th.Emails)-1].Time()
		threads = append(threads, th)
	}

	// Newest conversations first, keyed by their most recent member
	sort.SliceStable(threads, func(i, j int) bool {
		if threads[i].LatestDate.Equal(threads[j].LatestDate) {
			return threads[i].Key < threads[j].Key
		}
		return threads[i].LatestDate.After(threads[j].LatestDate)
	})

	if s.logger != nil {
		s.logger.Printf("ThreadService: grouped %d emails into %d threads", len(emails), len(threads))
	}

	return threads
}

// SearchWithinThread finds all occurrences of query in the plain-text bodies
// and subjects of a thread's members.
func (s *ThreadServiceImpl) SearchWithinThread(thread *Thread, query string) (*ThreadSearchResult, error) {
	if thread == nil {
		return nil, fmt.Errorf("thread cannot be nil")
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	result := &ThreadSearchResult{
		ThreadKey: thread.Key,
		Query:     query,
	}
	queryLower := strings.ToLower(query)

	for i := range thread.Emails {
		e := &thread.Emails[i]
		text := e.Subject + "\n" + e.Body.Text
		textLower := strings.ToLower(text)

		start := 0
		for {
			pos := strings.Index(textLower[start:], queryLower)
			if pos == -1 {
				break
			}
			actual := start + pos

			ctxStart := actual - 40
			if ctxStart < 0 {
				ctxStart = 0
			}
			ctxEnd := actual + len(query) + 40
			if ctxEnd > len(text) {
				ctxEnd = len(text)
			}

			result.Matches = append(result.Matches, ThreadMatch{
				EmailID:  e.ID,
				Position: actual,
				Context:  text[ctxStart:ctxEnd],
			})
			start = actual + 1
		}
	}

	result.MatchCount = len(result.Matches)
	return result, nil
}
