package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/hub"
	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/store/memory"
)

func setup(t *testing.T) (*Manager, *hub.Hub, *memory.Store) {
	t.Helper()
	ms := memory.New()
	h := hub.New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	m := NewManager(ms, h)
	t.Cleanup(func() {
		m.Close()
		cancel()
	})
	return m, h, ms
}

func waitFor(t *testing.T, c *hub.Client, match func(hub.Message) bool) hub.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			require.True(t, ok)
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("expected message never arrived")
		}
	}
}

func TestStartPublishesToHub(t *testing.T) {
	m, h, ms := setup(t)
	ctx := context.Background()
	require.NoError(t, ms.Write(ctx, "notes/u1/hello", store.NoteValue("world")))

	c := h.Subscribe("u1")
	op, err := m.Start(ctx, "u1")
	require.NoError(t, err)

	waitFor(t, c, func(msg hub.Message) bool { return msg.Type == hub.TypeOpResult && msg.OpID == op })
	msg := waitFor(t, c, func(msg hub.Message) bool {
		return msg.Type == hub.TypeTreeChanged && msg.Tree.Count() == 1
	})
	assert.Equal(t, "world", msg.Tree.Nodes[0].Content)
}

func TestEngineRequiresSession(t *testing.T) {
	m, _, _ := setup(t)

	_, err := m.Engine("nobody")
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.ErrorIs(t, m.Stop(context.Background(), "nobody"), domain.ErrNoSession)
}

func TestRestartReusesEngine(t *testing.T) {
	m, _, ms := setup(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "u1")
	require.NoError(t, err)
	first, err := m.Engine("u1")
	require.NoError(t, err)

	_, err = m.Start(ctx, "u1")
	require.NoError(t, err)
	second, err := m.Engine("u1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, m.Active())
	require.Eventually(t, func() bool { return ms.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestStopReleasesEverything(t *testing.T) {
	m, _, ms := setup(t)
	ctx := context.Background()

	_, err := m.Start(ctx, "u1")
	require.NoError(t, err)
	_, err = m.Start(ctx, "u2")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ms.SubscriberCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.Stop(ctx, "u1"))
	assert.Equal(t, 1, m.Active())
	_, err = m.Engine("u1")
	assert.ErrorIs(t, err, domain.ErrNoSession)

	require.Eventually(t, func() bool { return ms.SubscriberCount() == 1 }, 2*time.Second, 5*time.Millisecond)
}
