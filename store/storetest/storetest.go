// notes/store/storetest/storetest.go

// Package storetest is a behavioral suite every store backend must pass.
// Each case works under a fresh random namespace so suites can share a
// database.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/store"
)

// Factory returns a ready backend. The suite closes it.
type Factory func(t *testing.T) store.Backend

// Wait bounds how long subscription assertions wait for a snapshot.
var Wait = 5 * time.Second

func Run(t *testing.T, newBackend Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, b store.Backend, ns string)
	}{
		{"ReadWrite", testReadWrite},
		{"ImplicitAncestors", testImplicitAncestors},
		{"DeleteSubtree", testDeleteSubtree},
		{"NoteWriteReplacesSubtree", testNoteWriteReplacesSubtree},
		{"NamesEndingInNoteExtension", testNoteExtensionSiblings},
		{"SubscribeDeliversSnapshots", testSubscribe},
		{"SubscribeIgnoresOtherNamespaces", testSubscribeIsolation},
		{"Users", testUsers},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tc.fn(t, b, "notes/"+uuid.New().String())
		})
	}
}

func testReadWrite(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	v, err := b.Read(ctx, ns+"/missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, b.Write(ctx, ns+"/work", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/work/plan", store.NoteValue("")))

	v, err = b.Read(ctx, ns+"/work")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.KindFolder, v.Kind)

	v, err = b.Read(ctx, ns+"/work/plan")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.KindNote, v.Kind)
	assert.Equal(t, "", v.Content)

	require.NoError(t, b.Write(ctx, ns+"/work/plan", store.NoteValue("<b>X</b>")))
	v, err = b.Read(ctx, ns+"/work/plan")
	require.NoError(t, err)
	assert.Equal(t, "<b>X</b>", v.Content)
}

func testImplicitAncestors(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, ns+"/a/b/c", store.NoteValue("deep")))

	v, err := b.Read(ctx, ns+"/a/b")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.KindFolder, v.Kind)

	snap := loadSnapshot(t, b, ns)
	require.NotNil(t, snap.Lookup("a", "b", "c"))
	assert.Equal(t, "deep", snap.Lookup("a", "b", "c").Content)
	assert.Equal(t, domain.KindFolder, snap.Child("a").Kind)
}

func testDeleteSubtree(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, ns+"/f", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/f/sub", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/f/sub/n", store.NoteValue("x")))
	require.NoError(t, b.Write(ctx, ns+"/fx", store.NoteValue("sibling with shared prefix")))

	require.NoError(t, b.Delete(ctx, ns+"/f"))

	for _, key := range []string{ns + "/f", ns + "/f/sub", ns + "/f/sub/n"} {
		v, err := b.Read(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, v, key)
	}

	v, err := b.Read(ctx, ns+"/fx")
	require.NoError(t, err)
	require.NotNil(t, v)

	require.NoError(t, b.Delete(ctx, ns+"/never-existed"))
}

func testNoteWriteReplacesSubtree(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, ns+"/x", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/x/child", store.NoteValue("c")))
	require.NoError(t, b.Write(ctx, ns+"/x", store.NoteValue("now a note")))

	v, err := b.Read(ctx, ns+"/x/child")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = b.Read(ctx, ns+"/x")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.KindNote, v.Kind)
	assert.Equal(t, "now a note", v.Content)
}

func testNoteExtensionSiblings(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, ns+"/a.md", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/a", store.NoteValue("hi")))
	require.NoError(t, b.Write(ctx, ns+"/b", store.NoteValue("first")))
	require.NoError(t, b.Write(ctx, ns+"/b.md", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/b.md/inner", store.NoteValue("nested")))

	want := map[string]domain.Kind{
		ns + "/a.md": domain.KindFolder,
		ns + "/a":    domain.KindNote,
		ns + "/b":    domain.KindNote,
		ns + "/b.md": domain.KindFolder,
	}
	for key, kind := range want {
		v, err := b.Read(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, v, key)
		assert.Equal(t, kind, v.Kind, key)
	}

	snap := loadSnapshot(t, b, ns)
	assert.ElementsMatch(t, []string{"a.md", "a", "b", "b.md"}, childNames(snap))
	assert.Equal(t, "hi", snap.Child("a").Content)
	require.NotNil(t, snap.Lookup("b.md", "inner"))
	assert.Equal(t, "nested", snap.Lookup("b.md", "inner").Content)

	require.NoError(t, b.Delete(ctx, ns+"/b.md"))
	v, err := b.Read(ctx, ns+"/b")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "first", v.Content)
}

type snapshotRecorder struct {
	mu   sync.Mutex
	last *store.Snapshot
	n    int
}

func (r *snapshotRecorder) handler() store.Handler {
	return store.Handler{
		OnSnapshot: func(s *store.Snapshot) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.last = s
			r.n++
		},
	}
}

func (r *snapshotRecorder) latest() *store.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func testSubscribe(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, ns+"/existing", store.NoteValue("before")))

	rec := &snapshotRecorder{}
	sub, err := b.Subscribe(ctx, ns, rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool {
		s := rec.latest()
		return s != nil && s.Child("existing") != nil
	}, Wait, 20*time.Millisecond, "initial snapshot")

	require.NoError(t, b.Write(ctx, ns+"/folder", store.FolderValue()))
	require.NoError(t, b.Write(ctx, ns+"/folder/note", store.NoteValue("hello")))

	require.Eventually(t, func() bool {
		s := rec.latest()
		n := s.Lookup("folder", "note")
		return n != nil && n.Content == "hello"
	}, Wait, 20*time.Millisecond, "snapshot after write")

	require.NoError(t, b.Delete(ctx, ns+"/folder"))

	require.Eventually(t, func() bool {
		s := rec.latest()
		return s.Child("folder") == nil && s.Child("existing") != nil
	}, Wait, 20*time.Millisecond, "snapshot after delete")

	s := rec.latest()
	assert.Equal(t, []string{"existing"}, childNames(s))
}

func testSubscribeIsolation(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()

	rec := &snapshotRecorder{}
	sub, err := b.Subscribe(ctx, ns+"/mine", rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, b.Write(ctx, ns+"/mine/a", store.NoteValue("a")))
	require.NoError(t, b.Write(ctx, ns+"/mine-too/b", store.NoteValue("b")))
	require.NoError(t, b.Write(ctx, ns+"/other/c", store.NoteValue("c")))

	require.Eventually(t, func() bool {
		s := rec.latest()
		return s != nil && s.Child("a") != nil
	}, Wait, 20*time.Millisecond)

	assert.Equal(t, []string{"a"}, childNames(rec.latest()))
}

func testUsers(t *testing.T, b store.Backend, ns string) {
	ctx := context.Background()
	email := uuid.New().String() + "@example.com"

	found, err := b.FindUsersByEmail(ctx, email)
	require.NoError(t, err)
	assert.Empty(t, found)

	u := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: "$2a$04$hash",
		FullName:     "Ada Lovelace",
		PhoneNumber:  "628123456789",
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, b.InsertUser(ctx, u))

	found, err = b.FindUsersByEmail(ctx, email)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, u.ID, found[0].ID)
	assert.Equal(t, u.FullName, found[0].FullName)
	assert.Equal(t, u.PasswordHash, found[0].PasswordHash)
	assert.Equal(t, u.PhoneNumber, found[0].PhoneNumber)

	dup := *u
	dup.ID = uuid.New().String()
	assert.ErrorIs(t, b.InsertUser(ctx, &dup), domain.ErrAlreadyExists)
}

func loadSnapshot(t *testing.T, b store.Backend, root string) *store.Snapshot {
	t.Helper()
	rec := &snapshotRecorder{}
	sub, err := b.Subscribe(context.Background(), root, rec.handler())
	require.NoError(t, err)
	defer sub.Cancel()

	require.Eventually(t, func() bool { return rec.latest() != nil }, Wait, 20*time.Millisecond)
	return rec.latest()
}

func childNames(s *store.Snapshot) []string {
	var out []string
	for _, c := range s.Children {
		out = append(out, c.Name)
	}
	return out
}
