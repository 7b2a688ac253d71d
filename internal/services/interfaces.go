package services

import (
	"context"
	"time"

	"github.com/ajramos/unibox/internal/api"
)

// Backend is the subset of the platform REST API the services consume.
// *api.Client satisfies it; tests substitute a mock.
type Backend interface {
	FetchFolderPage(ctx context.Context, folder string, offset, limit int, filters api.FetchFilters) (*api.FolderPage, error)
	FetchThread(ctx context.Context, threadID string) ([]api.Email, error)
	UnreadCounts(ctx context.Context) (map[string]int, error)
	CreateDraft(ctx context.Context, fields api.DraftFields) (string, error)
	UpdateDraft(ctx context.Context, draftID string, fields api.DraftFields) error
	DeleteDraft(ctx context.Context, draftID string) error
	SendMessage(ctx context.Context, msg api.OutgoingMessage) (string, error)
	ScheduleSend(ctx context.Context, msg api.OutgoingMessage, at time.Time) (string, error)
	CancelScheduledSend(ctx context.Context, scheduleID string) error
}

// GroupMode selects how a folder's emails group into threads
type GroupMode string

const (
	// GroupConversations builds conversation threads by thread identifier
	// with the subject fallback.
	GroupConversations GroupMode = "conversations"
	// GroupNone lists every email as its own single-member thread.
	GroupNone GroupMode = "none"
)

// ThreadService groups flat email lists into conversation threads
type ThreadService interface {
	GroupEmails(emails []api.Email, mode GroupMode) []*Thread
	SearchWithinThread(thread *Thread, query string) (*ThreadSearchResult, error)
}

// FolderService owns the single active folder view: the current-folder cell,
// page accumulation, and the reconciliation gate for async refresh triggers.
type FolderService interface {
	SetCurrentFolder(ctx context.Context, folder string) error
	CurrentFolder() string
	Refresh(ctx context.Context) error
	LoadMore(ctx context.Context) error
	HandleRefreshEvent(ctx context.Context, folder string) error
	Threads() []*Thread
	VisibleThreads() []*Thread
	ExpandThread(ctx context.Context, key string) ([]api.Email, error)
	ViewState() FolderViewState
	SetFilters(filters api.FetchFilters)
	SetThreadingMode(folder string, mode GroupMode)
	ThreadingMode(folder string) GroupMode
	SetActiveRule(rule *Rule)
	UnreadCounts() map[string]int
	RefreshUnreadCounts(ctx context.Context)
}

// DraftService maintains at most one persisted draft per compose session,
// autosaved after the user stops typing.
type DraftService interface {
	OpenSession() string
	UpdateFields(sessionID string, fields api.DraftFields) error
	SaveNow(ctx context.Context, sessionID string) error
	DraftID(sessionID string) string
	Fields(sessionID string) api.DraftFields
	CloseSession(ctx context.Context, sessionID string, deleteDraft bool) error
}

// SendService submits messages, either immediately or through the
// cancellable undo window.
type SendService interface {
	Send(ctx context.Context, msg api.OutgoingMessage, draftID string) (string, error)
	SendWithUndo(ctx context.Context, msg api.OutgoingMessage, draftID string) (*Countdown, error)
	ActiveCountdown() *Countdown
}

// RuleService evaluates user-defined smart folder and label rules against
// emails, and persists the rule definitions locally.
type RuleService interface {
	CreateRule(ctx context.Context, rule *Rule) (*Rule, error)
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*Rule, error)
	ListRules(ctx context.Context, kind RuleKind) ([]*Rule, error)
	Matches(email *api.Email, rule *Rule) bool
	Apply(emails []api.Email, rule *Rule) []api.Email
	FilterThreads(threads []*Thread, rule *Rule) []*Thread
	ImportFromFile(ctx context.Context, path string) (*Rule, error)
	ExportToFile(ctx context.Context, id, path string) error
}

// Data structures

// Thread is a derived grouping of one or more emails sharing a conversation.
// Membership is recomputed from scratch on every fetch, never patched.
type Thread struct {
	Key           string      `json:"key"`
	ThreadID      string      `json:"thread_id,omitempty"`
	Subject       string      `json:"subject"`
	Emails        []api.Email `json:"emails"`
	LatestDate    time.Time   `json:"latest_date"`
	UnreadCount   int         `json:"unread_count"`
	HasAttachment bool        `json:"has_attachment"`
}

// FolderViewState describes what is currently fetched for the active folder
type FolderViewState struct {
	Folder         string `json:"folder"`
	Offset         int    `json:"offset"`
	Total          int    `json:"total"`
	HasMore        bool   `json:"has_more"`
	LoadingInitial bool   `json:"loading_initial"`
	LoadingMore    bool   `json:"loading_more"`
}

// AccumulateMode selects how an incoming page merges into the view
type AccumulateMode string

const (
	AccumulateReplace AccumulateMode = "replace"
	AccumulateAppend  AccumulateMode = "append"
)

// ThreadSearchResult holds matches for a search within one thread
type ThreadSearchResult struct {
	ThreadKey  string        `json:"thread_key"`
	Query      string        `json:"query"`
	Matches    []ThreadMatch `json:"matches"`
	MatchCount int           `json:"match_count"`
}

// ThreadMatch is a single occurrence of the query within a thread member
type ThreadMatch struct {
	EmailID  string `json:"email_id"`
	Position int    `json:"position"`
	Context  string `json:"context"`
}

// Rule-related data structures

// RuleKind distinguishes smart folders from labels
type RuleKind string

const (
	RuleKindSmartFolder RuleKind = "smart_folder"
	RuleKindLabel       RuleKind = "label"
)

// MatchMode selects how a rule's conditions combine
type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

// ConditionField names the email attribute a condition inspects
type ConditionField string

const (
	FieldFrom          ConditionField = "from"
	FieldDomain        ConditionField = "domain"
	FieldSubject       ConditionField = "subject"
	FieldKeyword       ConditionField = "keyword"
	FieldHasAttachment ConditionField = "has_attachment"
	FieldStarred       ConditionField = "starred"
)

// RuleCondition is one (field, operator, value) predicate
type RuleCondition struct {
	Field    ConditionField `json:"field" yaml:"field"`
	Operator string         `json:"operator" yaml:"operator"`
	Value    string         `json:"value,omitempty" yaml:"value,omitempty"`
}

// Rule is a named predicate over emails. Rules are data, not code; the
// evaluator interprets them client-side over whatever is already loaded.
type Rule struct {
	ID         string          `json:"id" yaml:"id,omitempty"`
	Name       string          `json:"name" yaml:"name"`
	Kind       RuleKind        `json:"kind" yaml:"kind"`
	Match      MatchMode       `json:"match" yaml:"match"`
	Conditions []RuleCondition `json:"conditions" yaml:"conditions"`
	Color      string          `json:"color,omitempty" yaml:"color,omitempty"`
	CreatedAt  time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time       `json:"updated_at" yaml:"-"`
}

// SendResult reports how a deferred send concluded
type SendResult string

const (
	SendResolved  SendResult = "resolved"
	SendCancelled SendResult = "cancelled"
)
