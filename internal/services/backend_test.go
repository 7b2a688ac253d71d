package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ajramos/unibox/internal/api"
	"github.com/stretchr/testify/mock"
)

// MockBackend implements Backend for testing
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) FetchFolderPage(ctx context.Context, folder string, offset, limit int, filters api.FetchFilters) (*api.FolderPage, error) {
	args := m.Called(ctx, folder, offset, limit, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.FolderPage), args.Error(1)
}

func (m *MockBackend) FetchThread(ctx context.Context, threadID string) ([]api.Email, error) {
	args := m.Called(ctx, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Email), args.Error(1)
}

func (m *MockBackend) UnreadCounts(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockBackend) CreateDraft(ctx context.Context, fields api.DraftFields) (string, error) {
	args := m.Called(ctx, fields)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) UpdateDraft(ctx context.Context, draftID string, fields api.DraftFields) error {
	args := m.Called(ctx, draftID, fields)
	return args.Error(0)
}

func (m *MockBackend) DeleteDraft(ctx context.Context, draftID string) error {
	args := m.Called(ctx, draftID)
	return args.Error(0)
}

func (m *MockBackend) SendMessage(ctx context.Context, msg api.OutgoingMessage) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) ScheduleSend(ctx context.Context, msg api.OutgoingMessage, at time.Time) (string, error) {
	args := m.Called(ctx, msg, at)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) CancelScheduledSend(ctx context.Context, scheduleID string) error {
	args := m.Called(ctx, scheduleID)
	return args.Error(0)
}

// testEmail builds an email with the fields the grouping and rule tests care about
func testEmail(id, threadID, subject, date string) api.Email {
	return api.Email{
		ID:        id,
		AccountID: "acct-1",
		ThreadID:  threadID,
		Folder:    "inbox",
		Subject:   subject,
		From:      fmt.Sprintf("sender-%s@example.com", id),
		To:        []string{"me@example.com"},
		Date:      date,
	}
}
