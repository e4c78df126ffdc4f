package chat

import (
	"context"
	"testing"
	"time"

	"github.com/kbdesk/backend/internal/backend"
	"github.com/kbdesk/backend/internal/models"
	"github.com/kbdesk/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, opts Options) (*Relay, *testutil.FakeBackend) {
	t.Helper()
	fake := testutil.NewFakeBackend(t)
	r := NewRelay(backend.NewClient(fake.URL(), 5*time.Second), opts)
	t.Cleanup(r.Close)
	return r, fake
}

func TestRelay_Send(t *testing.T) {
	r, fake := newTestRelay(t, Options{})
	fake.ChatReply = "Paris"

	entry, err := r.Send(context.Background(), "  capital of France?  ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleBot, entry.Role)
	assert.Equal(t, "Paris", entry.Content)

	transcript := r.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, models.RoleUser, transcript[0].Role)
	assert.Equal(t, "capital of France?", transcript[0].Content)
	assert.Equal(t, models.RoleBot, transcript[1].Role)

	assert.Equal(t, "capital of France?", fake.LastChat()["message"])
	_, hasKB := fake.LastChat()["knowledge_base"]
	assert.False(t, hasKB)
}

func TestRelay_SendEmpty(t *testing.T) {
	r, fake := newTestRelay(t, Options{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := r.Send(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, r.Transcript())
	assert.Equal(t, 0, fake.TotalCalls())
}

func TestRelay_SendFailureAppendsErrorEntry(t *testing.T) {
	r, fake := newTestRelay(t, Options{})
	fake.ChatStatus = 500
	fake.ChatDetail = "model not loaded"

	entry, err := r.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, backend.IsBackendError(err))
	assert.Equal(t, models.RoleError, entry.Role)
	assert.Equal(t, "Error: model not loaded", entry.Content)

	// Error entries persist and later messages still go through.
	fake.ChatStatus = 0
	_, err = r.Send(context.Background(), "again")
	require.NoError(t, err)

	roles := []models.Role{}
	for _, e := range r.Transcript() {
		roles = append(roles, e.Role)
	}
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleError, models.RoleUser, models.RoleBot}, roles)
}

func TestRelay_KnowledgeBaseSelector(t *testing.T) {
	r, fake := newTestRelay(t, Options{KnowledgeBase: "docs"})

	_, err := r.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "docs", fake.LastChat()["knowledge_base"])

	require.NoError(t, r.SwitchKnowledgeBase(context.Background(), "manuals"))
	assert.Equal(t, "manuals", fake.LastSwitch())
	assert.Equal(t, "manuals", r.KnowledgeBase())

	assert.Equal(t, []models.KnowledgeBase{
		{Name: "docs", Current: false},
		{Name: "manuals", Current: true},
	}, r.KnowledgeBases())
}

func TestRelay_SwitchFailureKeepsSelector(t *testing.T) {
	r, fake := newTestRelay(t, Options{KnowledgeBase: "docs"})
	fake.SwitchStatus = 404

	err := r.SwitchKnowledgeBase(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, backend.IsBackendError(err))
	assert.Equal(t, "docs", r.KnowledgeBase())
}

func TestRelay_Remember(t *testing.T) {
	r, _ := newTestRelay(t, Options{})

	r.Remember("kb1")
	assert.Equal(t, "kb1", r.KnowledgeBase())
	assert.Equal(t, []models.KnowledgeBase{{Name: "kb1", Current: true}}, r.KnowledgeBases())
}

func TestRelay_Copy(t *testing.T) {
	r, _ := newTestRelay(t, Options{CopyFeedback: 20 * time.Millisecond})
	_, err := r.Send(context.Background(), "hello")
	require.NoError(t, err)

	text, err := r.Copy(1)
	require.NoError(t, err)
	assert.Equal(t, "hello from backend", text)
	assert.True(t, r.Transcript()[1].Copied)
	assert.False(t, r.Transcript()[0].Copied)

	assert.Eventually(t, func() bool {
		return !r.Transcript()[1].Copied
	}, 2*time.Second, 5*time.Millisecond)

	_, err = r.Copy(2)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = r.Copy(-1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestRelay_StaleCopyTimerKeepsNewerCopy(t *testing.T) {
	r, _ := newTestRelay(t, Options{CopyFeedback: time.Hour})
	_, err := r.Send(context.Background(), "hello")
	require.NoError(t, err)

	_, err = r.Copy(1)
	require.NoError(t, err)
	r.mu.Lock()
	first := r.copyTimers[1].seq
	r.mu.Unlock()

	_, err = r.Copy(1)
	require.NoError(t, err)

	// The first timer fired before the second Copy could stop it.
	r.uncopy(1, first)

	assert.True(t, r.Transcript()[1].Copied)
	r.mu.Lock()
	_, armed := r.copyTimers[1]
	r.mu.Unlock()
	assert.True(t, armed)
}

func TestRelay_CopyTimerIgnoredAfterReset(t *testing.T) {
	r, _ := newTestRelay(t, Options{CopyFeedback: time.Hour})
	_, err := r.Send(context.Background(), "hello")
	require.NoError(t, err)
	_, err = r.Copy(1)
	require.NoError(t, err)
	r.mu.Lock()
	stale := r.copyTimers[1].seq
	r.mu.Unlock()

	r.Reset()
	_, err = r.Send(context.Background(), "again")
	require.NoError(t, err)
	_, err = r.Copy(1)
	require.NoError(t, err)

	r.uncopy(1, stale)
	assert.True(t, r.Transcript()[1].Copied)
}

func TestRelay_ResetAndSubscribe(t *testing.T) {
	r, _ := newTestRelay(t, Options{})

	var lengths []int
	r.Subscribe(func(entries []models.ChatEntry) {
		lengths = append(lengths, len(entries))
	})

	_, err := r.Send(context.Background(), "hello")
	require.NoError(t, err)
	r.Reset()

	assert.Empty(t, r.Transcript())
	assert.Equal(t, []int{1, 2, 0}, lengths)
}
