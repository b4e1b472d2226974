package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/domain"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case m, ok := <-c.Messages():
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
	return Message{}
}

func TestPublishReachesOnlyThatUser(t *testing.T) {
	h, _ := runHub(t)

	a1 := h.Subscribe("alice")
	a2 := h.Subscribe("alice")
	b := h.Subscribe("bob")
	assert.Equal(t, 2, h.ClientCount("alice"))

	h.Publish("alice", OpResult("op-1", nil))

	for _, c := range []*Client{a1, a2} {
		m := receive(t, c)
		assert.Equal(t, TypeOpResult, m.Type)
		assert.Equal(t, "op-1", m.OpID)
		assert.Empty(t, m.Error)
	}

	select {
	case m := <-b.Messages():
		t.Fatalf("bob got %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMessages(t *testing.T) {
	m := TreeChanged(domain.TreeView{Nodes: []domain.NodeView{{Name: "a", Path: "a", Kind: domain.KindNote}}})
	assert.Equal(t, TypeTreeChanged, m.Type)
	require.NotNil(t, m.Tree)
	assert.Equal(t, 1, m.Tree.Count())

	m = OpResult("op", errors.New("boom"))
	assert.Equal(t, "boom", m.Error)
}

func TestUnsubscribeClosesClient(t *testing.T) {
	h, _ := runHub(t)

	c := h.Subscribe("alice")
	h.Unsubscribe(c)

	_, ok := <-c.Messages()
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount("alice"))
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	h, _ := runHub(t)
	c := h.Subscribe("alice")

	for i := 0; i < h.bufferSize*2; i++ {
		h.Publish("alice", OpResult("op", nil))
	}
	h.Publish("alice", OpResult("last", nil))

	require.Eventually(t, func() bool { return len(c.Messages()) == h.bufferSize }, time.Second, 5*time.Millisecond)
}

func TestStopClosesEverything(t *testing.T) {
	h, cancel := runHub(t)
	c := h.Subscribe("alice")

	cancel()
	_, ok := <-c.Messages()
	assert.False(t, ok)

	<-h.done
	assert.Nil(t, h.Subscribe("alice"))
}
