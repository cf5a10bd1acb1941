package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/azchat/internal/completion"
	"github.com/antoniostano/azchat/internal/conversation"
	"github.com/antoniostano/azchat/internal/policy"
	"github.com/antoniostano/azchat/internal/transcript"
)

type scriptedGateway struct {
	mu    sync.Mutex
	reply func(turns []conversation.Turn) (string, error)
	seen  [][]conversation.Turn
}

func (g *scriptedGateway) Complete(_ context.Context, turns []conversation.Turn, _ completion.Params) (conversation.Turn, error) {
	g.mu.Lock()
	g.seen = append(g.seen, turns)
	g.mu.Unlock()
	text, err := g.reply(turns)
	if err != nil {
		return conversation.Turn{}, err
	}
	return conversation.Turn{Role: conversation.RoleAssistant, Content: text}, nil
}

func fixed(text string) func([]conversation.Turn) (string, error) {
	return func([]conversation.Turn) (string, error) { return text, nil }
}

func newTestService(gw completion.Gateway, archive transcript.Store) *Service {
	return New(Options{
		Gateway:  gw,
		Archive:  archive,
		Redactor: policy.NewRedactor(true),
		Params:   completion.DefaultParams(),
		Logger:   zerolog.Nop(),
	})
}

func TestSendRecordsExchange(t *testing.T) {
	gw := &scriptedGateway{reply: fixed("hello")}
	svc := newTestService(gw, nil)

	reply, err := svc.Send(context.Background(), "1.2.3.4", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)

	require.Len(t, gw.seen, 1)
	assert.Equal(t, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt},
		{Role: conversation.RoleUser, Content: "hi"},
	}, gw.seen[0])

	assert.Equal(t, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt},
		{Role: conversation.RoleUser, Content: "hi"},
		{Role: conversation.RoleAssistant, Content: "hello"},
	}, svc.Store().Snapshot("1.2.3.4"))
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	gw := &scriptedGateway{reply: fixed("unused")}
	svc := newTestService(gw, nil)

	_, err := svc.Send(context.Background(), "c1", "")
	require.ErrorIs(t, err, conversation.ErrInvalidInput)
	assert.Empty(t, gw.seen)
}

func TestSendTrimsWindowToMaxTurns(t *testing.T) {
	var svc *Service
	var storedDuringCompletion []int
	gw := &scriptedGateway{reply: func(turns []conversation.Turn) (string, error) {
		storedDuringCompletion = append(storedDuringCompletion, svc.Store().Len("c1"))
		return "re: " + turns[len(turns)-1].Content, nil
	}}
	svc = newTestService(gw, nil)

	for i := 1; i <= 11; i++ {
		_, err := svc.Send(context.Background(), "c1", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	// Trimmed to 10 stored turns before the call, 11 once the reply lands.
	require.Len(t, storedDuringCompletion, 11)
	assert.Equal(t, 10, storedDuringCompletion[10])
	assert.Equal(t, 11, svc.Store().Len("c1"))

	for _, turns := range gw.seen {
		assert.LessOrEqual(t, len(turns), conversation.DefaultMaxTurns)
	}
	last := gw.seen[len(gw.seen)-1]
	require.Len(t, last, 10)
	// Oldest turns go first; the window ends on the newest user message.
	assert.Equal(t, conversation.Turn{Role: conversation.RoleAssistant, Content: "re: m6"}, last[0])
	assert.Equal(t, conversation.Turn{Role: conversation.RoleUser, Content: "m11"}, last[9])
	for _, turn := range last {
		assert.NotEqual(t, conversation.RoleSystem, turn.Role)
	}
}

func TestSendKeepsUserTurnOnFailure(t *testing.T) {
	gw := &scriptedGateway{reply: func([]conversation.Turn) (string, error) {
		return "", completion.ErrRateLimited
	}}
	archive := transcript.NewInMemoryStore()
	svc := newTestService(gw, archive)

	_, err := svc.Send(context.Background(), "c1", "hi")
	require.True(t, errors.Is(err, completion.ErrRateLimited))
	assert.Equal(t, completion.KindRateLimited, completion.Classify(err))

	snap := svc.Store().Snapshot("c1")
	require.Len(t, snap, 2)
	assert.Equal(t, conversation.RoleUser, snap[1].Role)

	recs, err := archive.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSendDropsReplyWhenClearedMidCompletion(t *testing.T) {
	var svc *Service
	calls := 0
	gw := &scriptedGateway{reply: func([]conversation.Turn) (string, error) {
		calls++
		if calls == 1 {
			require.NoError(t, svc.Clear(context.Background(), "c1"))
			return "stale reply", nil
		}
		return "fresh reply", nil
	}}
	archive := transcript.NewInMemoryStore()
	svc = newTestService(gw, archive)

	reply, err := svc.Send(context.Background(), "c1", "first")
	require.NoError(t, err)
	assert.Equal(t, "stale reply", reply)
	assert.Nil(t, svc.Store().Snapshot("c1"))
	assert.Equal(t, 0, svc.Store().Count())

	_, err = svc.Send(context.Background(), "c1", "next")
	require.NoError(t, err)
	assert.Equal(t, []conversation.Turn{
		{Role: conversation.RoleSystem, Content: conversation.DefaultSystemPrompt},
		{Role: conversation.RoleUser, Content: "next"},
	}, gw.seen[1])

	recs, err := archive.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "next", recs[0].Content)
}

func TestSendArchivesRedactedTurns(t *testing.T) {
	gw := &scriptedGateway{reply: fixed("noted")}
	archive := transcript.NewInMemoryStore()
	svc := newTestService(gw, archive)

	_, err := svc.Send(context.Background(), "c1", "mail me at sam@example.com")
	require.NoError(t, err)

	recs, err := archive.Recent(context.Background(), "c1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "user", recs[0].Role)
	assert.Equal(t, "mail me at [REDACTED_EMAIL]", recs[0].Content)
	assert.True(t, recs[0].PIIRedacted)
	assert.Equal(t, "assistant", recs[1].Role)
	assert.False(t, recs[1].PIIRedacted)

	// The live window keeps the original text for the model.
	assert.Equal(t, "mail me at sam@example.com", svc.Store().Snapshot("c1")[1].Content)
}

func TestClearThenSendStartsFresh(t *testing.T) {
	gw := &scriptedGateway{reply: fixed("ok")}
	svc := newTestService(gw, nil)

	_, err := svc.Send(context.Background(), "c1", "one")
	require.NoError(t, err)
	require.NoError(t, svc.Clear(context.Background(), "c1"))
	require.NoError(t, svc.Clear(context.Background(), "never-seen"))
	assert.Nil(t, svc.Store().Snapshot("c1"))

	_, err = svc.Send(context.Background(), "c1", "two")
	require.NoError(t, err)
	assert.Len(t, gw.seen[1], 2)
}

func TestSendWithoutGateway(t *testing.T) {
	svc := newTestService(nil, nil)
	_, err := svc.Send(context.Background(), "c1", "hi")
	require.Error(t, err)
	assert.Equal(t, 0, svc.Store().Count())
}
