package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StatusError is returned when the backend answers with a non-2xx status.
// Callers inspect StatusCode to decide whether the failure is worth retrying
// on the next trigger.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Client is a thin HTTP client for the platform's REST API. It handles
// Bearer token authentication and JSON (de)serialization. Reads are not
// retried here; the next poll or manual refresh is the retry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new backend client. baseURL is the API root, e.g.
// https://mail.example.com/api. token is the Bearer token for this session.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchFolderPage fetches one page of a folder listing along with the
// server-reported total matching count.
func (c *Client) FetchFolderPage(ctx context.Context, folder string, offset, limit int, filters FetchFilters) (*FolderPage, error) {
	if folder == "" {
		return nil, fmt.Errorf("folder cannot be empty")
	}
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	if filters.Search != "" {
		q.Set("search", filters.Search)
	}
	if filters.Starred {
		q.Set("starred", "true")
	}
	if filters.HasAttachment {
		q.Set("has_attachment", "true")
	}
	var page FolderPage
	path := "/folders/" + url.PathEscape(folder) + "/emails?" + q.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, fmt.Errorf("fetch folder %q: %w", folder, err)
	}
	return &page, nil
}

// FetchThread fetches the full message list for a thread, ordered by the server
func (c *Client) FetchThread(ctx context.Context, threadID string) ([]Email, error) {
	if threadID == "" {
		return nil, fmt.Errorf("threadID cannot be empty")
	}
	var emails []Email
	if err := c.do(ctx, http.MethodGet, "/threads/"+url.PathEscape(threadID), nil, &emails); err != nil {
		return nil, fmt.Errorf("fetch thread %q: %w", threadID, err)
	}
	return emails, nil
}

// UnreadCounts fetches the server-computed unread count per folder
func (c *Client) UnreadCounts(ctx context.Context) (map[string]int, error) {
	var counts map[string]int
	if err := c.do(ctx, http.MethodGet, "/folders/unread", nil, &counts); err != nil {
		return nil, fmt.Errorf("fetch unread counts: %w", err)
	}
	return counts, nil
}

// CreateDraft persists a new draft record and returns its identifier
func (c *Client) CreateDraft(ctx context.Context, fields DraftFields) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/drafts", fields, &resp); err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create draft: backend returned empty id")
	}
	return resp.ID, nil
}

// UpdateDraft overwrites an existing draft record
func (c *Client) UpdateDraft(ctx context.Context, draftID string, fields DraftFields) error {
	if draftID == "" {
		return fmt.Errorf("draftID cannot be empty")
	}
	if err := c.do(ctx, http.MethodPut, "/drafts/"+url.PathEscape(draftID), fields, nil); err != nil {
		return fmt.Errorf("update draft %q: %w", draftID, err)
	}
	return nil
}

// DeleteDraft removes a draft record
func (c *Client) DeleteDraft(ctx context.Context, draftID string) error {
	if draftID == "" {
		return fmt.Errorf("draftID cannot be empty")
	}
	if err := c.do(ctx, http.MethodDelete, "/drafts/"+url.PathEscape(draftID), nil, nil); err != nil {
		return fmt.Errorf("delete draft %q: %w", draftID, err)
	}
	return nil
}

// SendMessage submits a message for immediate delivery and returns the
// message identifier assigned by the backend.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) (string, error) {
	msg.ScheduledAt = ""
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/send", msg, &resp); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// ScheduleSend submits a message for delivery at the given time and returns
// the scheduled-send identifier used for cancellation.
func (c *Client) ScheduleSend(ctx context.Context, msg OutgoingMessage, at time.Time) (string, error) {
	msg.ScheduledAt = at.UTC().Format(time.RFC3339)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/send/schedule", msg, &resp); err != nil {
		return "", fmt.Errorf("schedule send: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("schedule send: backend returned empty id")
	}
	return resp.ID, nil
}

// CancelScheduledSend asks the backend to cancel a pending scheduled send
func (c *Client) CancelScheduledSend(ctx context.Context, scheduleID string) error {
	if scheduleID == "" {
		return fmt.Errorf("scheduleID cannot be empty")
	}
	if err := c.do(ctx, http.MethodDelete, "/send/schedule/"+url.PathEscape(scheduleID), nil, nil); err != nil {
		return fmt.Errorf("cancel scheduled send %q: %w", scheduleID, err)
	}
	return nil
}

// do builds the request, attaches auth, and decodes the JSON response
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
