package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend { return New() })
}

func TestSubscriberCount(t *testing.T) {
	s := New()
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "notes/u1", store.Handler{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	<-sub.Done()
	assert.Equal(t, 0, s.SubscriberCount())
}

func TestWriteKeepsOriginalOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "r/b", store.NoteValue("")))
	require.NoError(t, s.Write(ctx, "r/a", store.NoteValue("")))
	require.NoError(t, s.Write(ctx, "r/b", store.NoteValue("updated")))

	snap := s.snapshot("r")
	require.Len(t, snap.Children, 2)
	assert.Equal(t, "b", snap.Children[0].Name)
	assert.Equal(t, "updated", snap.Children[0].Content)
	assert.Equal(t, "a", snap.Children[1].Name)
}
