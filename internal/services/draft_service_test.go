package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ajramos/unibox/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func fields(subject, body string) api.DraftFields {
	return api.DraftFields{
		To:      []string{"me@example.com"},
		Subject: subject,
		Body:    body,
	}
}

func TestDraftService_SessionLifecycle(t *testing.T) {
	backend := &MockBackend{}
	service := NewDraftService(backend, time.Hour) // debounce never fires here

	id := service.OpenSession()
	assert.NotEmpty(t, id)
	assert.Empty(t, service.DraftID(id))
	assert.Equal(t, api.DraftFields{}, service.Fields(id))

	require.NoError(t, service.UpdateFields(id, fields("Hi", "draft body")))
	assert.Equal(t, "Hi", service.Fields(id).Subject)

	require.NoError(t, service.CloseSession(context.Background(), id, false))
	assert.ErrorIs(t, service.UpdateFields(id, fields("Hi", "more")), ErrSessionNotFound)
}

func TestDraftService_UnknownSession(t *testing.T) {
	service := NewDraftService(&MockBackend{}, time.Hour)

	assert.ErrorIs(t, service.UpdateFields("nope", fields("a", "b")), ErrSessionNotFound)
	assert.ErrorIs(t, service.SaveNow(context.Background(), "nope"), ErrSessionNotFound)
	assert.ErrorIs(t, service.CloseSession(context.Background(), "nope", false), ErrSessionNotFound)
	assert.Empty(t, service.DraftID("nope"))
}

func TestDraftService_DebouncedAutosave(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewDraftService(backend, 50*time.Millisecond)
	ctx := context.Background()

	saved := make(chan api.DraftFields, 1)
	backend.On("CreateDraft", mock.Anything, mock.AnythingOfType("api.DraftFields")).
		Run(func(args mock.Arguments) {
			saved <- args.Get(1).(api.DraftFields)
		}).
		Return("draft-1", nil).Once()

	id := service.OpenSession()

	// Three rapid changes within the debounce window: exactly one save,
	// carrying the final values.
	require.NoError(t, service.UpdateFields(id, fields("H", "")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, service.UpdateFields(id, fields("He", "")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, service.UpdateFields(id, fields("Hello", "final body")))

	select {
	case got := <-saved:
		assert.Equal(t, "Hello", got.Subject)
		assert.Equal(t, "final body", got.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("autosave never fired")
	}

	// Allow the timer callback to store the new draft identifier
	assert.Eventually(t, func() bool {
		return service.DraftID(id) == "draft-1"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, service.CloseSession(ctx, id, false))
	backend.AssertExpectations(t)
}

func TestDraftService_CreateThenUpdate(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewDraftService(backend, time.Hour)
	ctx := context.Background()

	backend.On("CreateDraft", mock.Anything, fields("v1", "")).Return("draft-1", nil).Once()
	backend.On("UpdateDraft", mock.Anything, "draft-1", fields("v2", "")).Return(nil).Once()

	id := service.OpenSession()

	require.NoError(t, service.UpdateFields(id, fields("v1", "")))
	require.NoError(t, service.SaveNow(ctx, id))
	assert.Equal(t, "draft-1", service.DraftID(id))

	require.NoError(t, service.UpdateFields(id, fields("v2", "")))
	require.NoError(t, service.SaveNow(ctx, id))
	assert.Equal(t, "draft-1", service.DraftID(id))

	require.NoError(t, service.CloseSession(ctx, id, false))
	backend.AssertExpectations(t)
}

func TestDraftService_AutosaveDroppedWhileSaveInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewDraftService(backend, 20*time.Millisecond)
	ctx := context.Background()

	createStarted := make(chan struct{})
	releaseCreate := make(chan struct{})
	backend.On("CreateDraft", mock.Anything, mock.AnythingOfType("api.DraftFields")).
		Run(func(mock.Arguments) {
			close(createStarted)
			<-releaseCreate
		}).
		Return("draft-1", nil).Once()
	backend.On("UpdateDraft", mock.Anything, "draft-1", mock.AnythingOfType("api.DraftFields")).
		Return(nil).Maybe()

	id := service.OpenSession()
	require.NoError(t, service.UpdateFields(id, fields("v1", "")))

	<-createStarted

	// A debounce cycle expiring while the create is still in flight must
	// drop, not start a second concurrent save.
	require.NoError(t, service.UpdateFields(id, fields("v2", "")))
	time.Sleep(60 * time.Millisecond)
	backend.AssertNumberOfCalls(t, "CreateDraft", 1)

	close(releaseCreate)
	require.NoError(t, service.CloseSession(ctx, id, false))
	backend.AssertExpectations(t)
}

func TestDraftService_SaveNowSurfacesErrors(t *testing.T) {
	backend := &MockBackend{}
	service := NewDraftService(backend, time.Hour)
	ctx := context.Background()

	backend.On("CreateDraft", mock.Anything, mock.AnythingOfType("api.DraftFields")).
		Return("", errors.New("quota exceeded")).Once()

	id := service.OpenSession()
	require.NoError(t, service.UpdateFields(id, fields("v1", "")))

	err := service.SaveNow(ctx, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, service.DraftID(id))

	require.NoError(t, service.CloseSession(ctx, id, false))
}

func TestDraftService_CloseSessionDeletesDraft(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewDraftService(backend, time.Hour)
	ctx := context.Background()

	backend.On("CreateDraft", mock.Anything, mock.AnythingOfType("api.DraftFields")).
		Return("draft-1", nil).Once()
	backend.On("DeleteDraft", mock.Anything, "draft-1").Return(nil).Once()

	id := service.OpenSession()
	require.NoError(t, service.UpdateFields(id, fields("v1", "")))
	require.NoError(t, service.SaveNow(ctx, id))

	require.NoError(t, service.CloseSession(ctx, id, true))
	backend.AssertExpectations(t)
}

func TestDraftService_CloseSessionWithoutDraft(t *testing.T) {
	backend := &MockBackend{}
	service := NewDraftService(backend, time.Hour)

	// Nothing was ever saved; discard must not call the backend at all
	id := service.OpenSession()
	require.NoError(t, service.CloseSession(context.Background(), id, true))
	backend.AssertNotCalled(t, "DeleteDraft", mock.Anything, mock.Anything)
}
