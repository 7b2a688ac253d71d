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

func outgoing(subject string) api.OutgoingMessage {
	return api.OutgoingMessage{
		To:      []string{"you@example.com"},
		Subject: subject,
		Body:    "hello",
	}
}

func TestSendService_Send(t *testing.T) {
	backend := &MockBackend{}
	service := NewSendService(backend, nil, 5*time.Second)
	ctx := context.Background()

	t.Run("send without a draft", func(t *testing.T) {
		backend.On("SendMessage", ctx, outgoing("plain")).Return("msg-1", nil).Once()

		id, err := service.Send(ctx, outgoing("plain"), "")
		require.NoError(t, err)
		assert.Equal(t, "msg-1", id)
		backend.AssertNotCalled(t, "DeleteDraft", mock.Anything, mock.Anything)
	})

	t.Run("draft deleted only after confirmed send", func(t *testing.T) {
		backend.On("SendMessage", ctx, outgoing("drafted")).Return("msg-2", nil).Once()
		backend.On("DeleteDraft", ctx, "draft-1").Return(nil).Once()

		_, err := service.Send(ctx, outgoing("drafted"), "draft-1")
		require.NoError(t, err)
		backend.AssertExpectations(t)
	})

	t.Run("failed send keeps the draft", func(t *testing.T) {
		backend.On("SendMessage", ctx, outgoing("doomed")).Return("", errors.New("smtp down")).Once()

		_, err := service.Send(ctx, outgoing("doomed"), "draft-2")
		require.Error(t, err)
		backend.AssertNotCalled(t, "DeleteDraft", ctx, "draft-2")
	})

	t.Run("draft delete failure does not fail the send", func(t *testing.T) {
		backend.On("SendMessage", ctx, outgoing("sent anyway")).Return("msg-3", nil).Once()
		backend.On("DeleteDraft", ctx, "draft-3").Return(errors.New("gone already")).Once()

		id, err := service.Send(ctx, outgoing("sent anyway"), "draft-3")
		require.NoError(t, err)
		assert.Equal(t, "msg-3", id)
	})
}

func TestSendService_UndoCancelsScheduledSend(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, 5*time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("hold on"), mock.AnythingOfType("time.Time")).
		Return("sched-1", nil).Once()
	backend.On("CancelScheduledSend", ctx, "sched-1").Return(nil).Once()

	cd, err := service.SendWithUndo(ctx, outgoing("hold on"), "draft-1")
	require.NoError(t, err)
	assert.Equal(t, "sched-1", cd.ScheduleID)
	assert.Equal(t, 5, cd.Remaining())

	require.NoError(t, cd.Undo(ctx))
	assert.True(t, cd.Finished())
	assert.Equal(t, SendCancelled, <-cd.Done())

	// A cancelled send never touches the draft
	backend.AssertNotCalled(t, "DeleteDraft", mock.Anything, mock.Anything)
	backend.AssertExpectations(t)
}

func TestSendService_CountdownExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	folders := newTestFolderService(backend, 5)
	service := NewSendService(backend, folders, time.Second)
	ctx := context.Background()

	backend.On("FetchFolderPage", mock.Anything, "sent", 0, 5, api.FetchFilters{}).
		Return(page(0), nil).Twice() // initial load plus the post-send refresh
	backend.On("ScheduleSend", ctx, outgoing("going out"), mock.AnythingOfType("time.Time")).
		Return("sched-1", nil).Once()
	backend.On("DeleteDraft", mock.Anything, "draft-1").Return(nil).Once()

	require.NoError(t, folders.SetCurrentFolder(ctx, "sent"))

	cd, err := service.SendWithUndo(ctx, outgoing("going out"), "draft-1")
	require.NoError(t, err)

	var ticks []int
	cd.OnTick(func(remaining int) {
		ticks = append(ticks, remaining)
	})

	select {
	case result := <-cd.Done():
		assert.Equal(t, SendResolved, result)
	case <-time.After(5 * time.Second):
		t.Fatal("countdown never resolved")
	}

	assert.True(t, cd.Finished())
	assert.Contains(t, ticks, 0)

	// Expiry is the local authority: draft cleaned up exactly once
	backend.AssertNumberOfCalls(t, "DeleteDraft", 1)
	backend.AssertExpectations(t)
}

func TestSendService_UndoAfterExpiry(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("too late"), mock.AnythingOfType("time.Time")).
		Return("sched-1", nil).Once()

	cd, err := service.SendWithUndo(ctx, outgoing("too late"), "")
	require.NoError(t, err)

	<-cd.Done()

	assert.ErrorIs(t, cd.Undo(ctx), ErrCountdownExpired)
	backend.AssertNotCalled(t, "CancelScheduledSend", mock.Anything, mock.Anything)
}

func TestSendService_SingleCountdownAtATime(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, 10*time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("first"), mock.AnythingOfType("time.Time")).
		Return("sched-1", nil).Once()
	backend.On("CancelScheduledSend", ctx, "sched-1").Return(nil).Once()

	cd, err := service.SendWithUndo(ctx, outgoing("first"), "")
	require.NoError(t, err)
	assert.Same(t, cd, service.ActiveCountdown())

	_, err = service.SendWithUndo(ctx, outgoing("second"), "")
	assert.ErrorIs(t, err, ErrSendInFlight)

	require.NoError(t, cd.Undo(ctx))
	<-cd.Done()
	assert.Nil(t, service.ActiveCountdown())
}

func TestSendService_GuardHeldWhileScheduling(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, 10*time.Second)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.On("ScheduleSend", ctx, outgoing("first"), mock.AnythingOfType("time.Time")).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return("sched-1", nil).Once()
	backend.On("CancelScheduledSend", ctx, "sched-1").Return(nil).Once()

	firstDone := make(chan *Countdown, 1)
	go func() {
		cd, err := service.SendWithUndo(ctx, outgoing("first"), "")
		assert.NoError(t, err)
		firstDone <- cd
	}()

	// The first call is mid-schedule with the lock released; a second call
	// must still bounce off the guard.
	<-entered
	_, err := service.SendWithUndo(ctx, outgoing("second"), "")
	assert.ErrorIs(t, err, ErrSendInFlight)
	assert.Nil(t, service.ActiveCountdown())

	close(release)
	cd := <-firstDone
	require.NotNil(t, cd)
	assert.Same(t, cd, service.ActiveCountdown())

	require.NoError(t, cd.Undo(ctx))
	<-cd.Done()
	backend.AssertNumberOfCalls(t, "ScheduleSend", 1)
}

func TestSendService_ScheduleFailureReleasesGuard(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, 10*time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("retry"), mock.AnythingOfType("time.Time")).
		Return("", errors.New("backend down")).Once()
	backend.On("ScheduleSend", ctx, outgoing("retry"), mock.AnythingOfType("time.Time")).
		Return("sched-2", nil).Once()
	backend.On("CancelScheduledSend", ctx, "sched-2").Return(nil).Once()

	_, err := service.SendWithUndo(ctx, outgoing("retry"), "")
	require.Error(t, err)

	cd, err := service.SendWithUndo(ctx, outgoing("retry"), "")
	require.NoError(t, err)
	require.NoError(t, cd.Undo(ctx))
	<-cd.Done()
}

func TestSendService_UndoCancellationFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	backend := &MockBackend{}
	service := NewSendService(backend, nil, 10*time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("iffy"), mock.AnythingOfType("time.Time")).
		Return("sched-1", nil).Once()
	backend.On("CancelScheduledSend", ctx, "sched-1").
		Return(errors.New("already dispatched")).Once()

	cd, err := service.SendWithUndo(ctx, outgoing("iffy"), "")
	require.NoError(t, err)

	err = cd.Undo(ctx)
	assert.ErrorIs(t, err, ErrCountdownExpired)
	<-cd.Done()
}

func TestSendService_ScheduleFailure(t *testing.T) {
	backend := &MockBackend{}
	service := NewSendService(backend, nil, 5*time.Second)
	ctx := context.Background()

	backend.On("ScheduleSend", ctx, outgoing("nope"), mock.AnythingOfType("time.Time")).
		Return("", errors.New("backend down")).Once()

	_, err := service.SendWithUndo(ctx, outgoing("nope"), "")
	require.Error(t, err)
	assert.Nil(t, service.ActiveCountdown())
}
