package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/replay"
)

func newReplayService(t *testing.T, f *chatFixture) *ReplayService {
	t.Helper()
	s, err := NewReplayService(f.store, replay.Deps{
		Registry:  f.registry,
		Transport: f.transport,
		Tracker:   f.tracker,
	}, replay.Options{}, nil)
	require.NoError(t, err)
	f.chats.AddListener(s)
	return s
}

func replaySource(t *testing.T, f *chatFixture, questions ...string) *domain.Conversation {
	t.Helper()
	c := f.create(t, testModel)
	for _, q := range questions {
		_, err := f.chats.SendMessage(context.Background(), c.ID, q, nil)
		require.NoError(t, err)
	}
	dup, err := f.chats.DuplicateForReplay(context.Background(), c.ID)
	require.NoError(t, err)
	f.transport.drainStarted()
	return dup
}

func waitOutcome(t *testing.T, s *ReplayService, id string) replay.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := s.Wait(ctx, id)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	return out
}

func TestReplayService_StepsThroughQueue(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first", "second")

	st, err := s.Status(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, replay.StateIdle, st.State)
	assert.Equal(t, 2, st.Total)
	assert.True(t, st.ReplayAsIs)
	assert.Nil(t, st.Blocked)

	_, err = s.Start(ctx, dup.ID)
	require.NoError(t, err)
	out := waitOutcome(t, s, dup.ID)
	assert.Equal(t, replay.StateAwaitingStart, out.State)

	st, err = s.Status(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ActiveIndex)
	assert.True(t, st.HasMore)
	assert.Equal(t, []string{"first", "re: first"}, messageContents(st.Conversation))

	_, err = s.Start(ctx, dup.ID)
	require.NoError(t, err)
	out = waitOutcome(t, s, dup.ID)
	assert.Equal(t, replay.StateComplete, out.State)

	_, err = s.Start(ctx, dup.ID)
	assert.Equal(t, ErrTypeConflict, typeOf(err))

	stored, err := f.store.Get(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Replay.ActiveIndex)
	assert.Len(t, stored.Messages, 4)
}

func TestReplayService_BlockedByDisallowedModel(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")
	f.registry.Remove(testModel)

	st, err := s.Status(ctx, dup.ID)
	require.NoError(t, err)
	require.NotNil(t, st.Blocked)
	assert.Contains(t, st.Blocked.Models, testModel)

	_, err = s.Start(ctx, dup.ID)
	assert.Equal(t, ErrTypeDisallowed, typeOf(err))

	st, err = s.OverrideSettings(ctx, dup.ID, domain.ModelSettings{ModelID: otherModel, Temperature: 0.4})
	require.NoError(t, err)
	assert.False(t, st.ReplayAsIs)
	assert.Nil(t, st.Blocked)

	_, err = s.Start(ctx, dup.ID)
	require.NoError(t, err)
	out := waitOutcome(t, s, dup.ID)
	assert.Equal(t, replay.StateComplete, out.State)
}

func TestReplayService_StopAndRetry(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")
	f.transport.setHold(true)

	st, err := s.Start(ctx, dup.ID)
	require.NoError(t, err)
	assert.True(t, st.Streaming)
	waitStarted(t, f.transport)

	_, err = s.Start(ctx, dup.ID)
	assert.Equal(t, ErrTypeBusy, typeOf(err))

	st, err = s.Stop(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, replay.StateStopped, st.State)
	assert.True(t, st.Conversation.LastMessage().Partial)

	f.transport.setHold(false)
	_, err = s.Retry(ctx, dup.ID)
	require.NoError(t, err)
	out := waitOutcome(t, s, dup.ID)
	assert.Equal(t, replay.StateComplete, out.State)

	st, err = s.Status(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "re: first"}, messageContents(st.Conversation))
}

func TestReplayService_RejectsOrdinaryAndMissing(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	c := f.create(t, testModel)

	_, err := s.Status(ctx, c.ID)
	assert.Equal(t, ErrTypeConflict, typeOf(err))

	_, err = s.Start(ctx, "missing")
	assert.Equal(t, ErrTypeNotFound, typeOf(err))
}

func TestReplayService_DeletedConversationDropsEngine(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")

	_, err := s.Status(ctx, dup.ID)
	require.NoError(t, err)
	require.NoError(t, f.chats.DeleteConversation(ctx, dup.ID))

	_, err = s.Status(ctx, dup.ID)
	assert.Equal(t, ErrTypeNotFound, typeOf(err))
}

func TestChatService_SettingsOnReplayDisableAsIs(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")

	st, err := s.Status(ctx, dup.ID)
	require.NoError(t, err)
	require.True(t, st.ReplayAsIs)

	got, err := f.chats.UpdateSettings(ctx, dup.ID, domain.ModelSettings{ModelID: otherModel, Temperature: 0.2})
	require.NoError(t, err)
	require.NotNil(t, got.Replay)
	assert.False(t, got.Replay.ReplayAsIs)

	st, err = s.Status(ctx, dup.ID)
	require.NoError(t, err)
	assert.False(t, st.ReplayAsIs)
	assert.Equal(t, otherModel, st.Conversation.Settings.ModelID)

	_, err = s.Start(ctx, dup.ID)
	require.NoError(t, err)
	waitOutcome(t, s, dup.ID)
	assert.Equal(t, otherModel, f.transport.lastRequest().Model)

	stored, err := f.store.Get(ctx, dup.ID)
	require.NoError(t, err)
	assert.False(t, stored.Replay.ReplayAsIs)
}

func TestChatService_SettingsRefusedWhileReplayStreams(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")
	f.transport.setHold(true)

	_, err := s.Start(ctx, dup.ID)
	require.NoError(t, err)
	waitStarted(t, f.transport)

	_, err = f.chats.UpdateSettings(ctx, dup.ID, domain.ModelSettings{ModelID: otherModel, Temperature: 0.2})
	assert.Equal(t, ErrTypeBusy, typeOf(err))

	st, err := s.Stop(ctx, dup.ID)
	require.NoError(t, err)
	assert.True(t, st.ReplayAsIs)
}

func TestChatService_RegenerateSettlesReplayInvocation(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")
	f.transport.setHold(true)
	f.transport.setLag(50 * time.Millisecond)

	_, err := s.Start(ctx, dup.ID)
	require.NoError(t, err)
	waitStarted(t, f.transport)
	f.transport.setHold(false)

	got, err := f.chats.Regenerate(ctx, dup.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "re: first"}, messageContents(got))

	// Let the cancelled replay stream return.
	time.Sleep(150 * time.Millisecond)

	stored, err := f.store.Get(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "re: first"}, messageContents(stored))
	assert.False(t, stored.LastMessage().Partial)
	assert.False(t, f.chats.IsStreaming(dup.ID))
}

func TestChatService_EditSettlesReplayInvocation(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first")
	f.transport.setHold(true)
	f.transport.setLag(50 * time.Millisecond)

	_, err := s.Start(ctx, dup.ID)
	require.NoError(t, err)
	waitStarted(t, f.transport)
	f.transport.setHold(false)

	_, err = f.chats.EditMessage(ctx, dup.ID, 0, "second", nil)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)

	stored, err := f.store.Get(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "re: second"}, messageContents(stored))
}

func TestChatService_SendAfterReplayStepDropsCachedEngine(t *testing.T) {
	f := newChatFixture(t)
	s := newReplayService(t, f)
	ctx := context.Background()
	dup := replaySource(t, f, "first", "second")

	_, err := s.Start(ctx, dup.ID)
	require.NoError(t, err)
	waitOutcome(t, s, dup.ID)

	_, err = f.chats.SendMessage(ctx, dup.ID, "aside", nil)
	require.NoError(t, err)

	st, err := s.Status(ctx, dup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "re: first", "aside", "re: aside"}, messageContents(st.Conversation))
}
