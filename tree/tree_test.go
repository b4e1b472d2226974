package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/domain"
)

func TestCreateFolderAndNote(t *testing.T) {
	tr := New()

	work, err := tr.CreateFolder(nil, "work")
	require.NoError(t, err)
	assert.True(t, work.IsFolder())
	assert.Empty(t, work.Children())

	plan, err := tr.CreateNote(work, "plan")
	require.NoError(t, err)
	assert.True(t, plan.IsNote())
	assert.Equal(t, "", plan.Content())
	assert.Same(t, work, plan.Parent())

	assert.Equal(t, []string{"work", "plan"}, tr.ResolvePath(plan))
	assert.Equal(t, 2, tr.Len())
}

func TestCreate_RootParentIsTopLevel(t *testing.T) {
	tr := New()

	a, err := tr.CreateFolder(tr.Root(), "a")
	require.NoError(t, err)
	assert.Same(t, tr.Root(), a.Parent())
	assert.Equal(t, []string{"a"}, tr.ResolvePath(a))
}

func TestCreate_PreservesInsertionOrder(t *testing.T) {
	tr := New()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_, err := tr.CreateNote(nil, name)
		require.NoError(t, err)
	}

	var names []string
	for _, c := range tr.Root().Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestCreate_UnderNoteInsertsNextToIt(t *testing.T) {
	tr := New()
	folder, _ := tr.CreateFolder(nil, "f")
	note, _ := tr.CreateNote(folder, "n")

	sibling, err := tr.CreateNote(note, "m")
	require.NoError(t, err)
	assert.Same(t, folder, sibling.Parent())
	assert.Empty(t, note.Children())
	assert.True(t, note.IsNote())
}

func TestCreate_InvalidNames(t *testing.T) {
	tr := New()

	for _, name := range []string{"", "   ", "a/b", "/"} {
		_, err := tr.CreateFolder(nil, name)
		assert.ErrorIs(t, err, domain.ErrInvalidName, "folder %q", name)

		_, err = tr.CreateNote(nil, name)
		assert.ErrorIs(t, err, domain.ErrInvalidName, "note %q", name)
	}
	assert.Equal(t, 0, tr.Len())
}

func TestCreate_DuplicateName(t *testing.T) {
	tr := New()
	_, err := tr.CreateFolder(nil, "x")
	require.NoError(t, err)

	_, err = tr.CreateFolder(nil, "x")
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	// folders and notes share one namespace per parent
	_, err = tr.CreateNote(nil, "x")
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	// same name in a different parent is fine
	y, _ := tr.CreateFolder(nil, "y")
	_, err = tr.CreateNote(y, "x")
	assert.NoError(t, err)
}

func TestSetContent(t *testing.T) {
	tr := New()
	folder, _ := tr.CreateFolder(nil, "f")
	note, _ := tr.CreateNote(folder, "n")

	require.NoError(t, tr.SetContent(note, "<p>hello</p>"))
	assert.Equal(t, "<p>hello</p>", note.Content())

	assert.ErrorIs(t, tr.SetContent(folder, "x"), domain.ErrNotANote)
	assert.ErrorIs(t, tr.SetContent(tr.Root(), "x"), domain.ErrNotANote)
}

func TestDelete(t *testing.T) {
	tr := New()
	folder, _ := tr.CreateFolder(nil, "f")
	sub, _ := tr.CreateFolder(folder, "sub")
	_, _ = tr.CreateNote(sub, "deep")
	keep, _ := tr.CreateNote(nil, "keep")

	require.NoError(t, tr.Delete(folder))
	assert.Equal(t, 1, tr.Len())

	_, err := tr.Find([]string{"f", "sub", "deep"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	found, err := tr.Find([]string{"keep"})
	require.NoError(t, err)
	assert.Same(t, keep, found)

	// detached nodes are no longer part of the tree
	assert.ErrorIs(t, tr.Delete(sub), domain.ErrNotFound)
	_, err = tr.CreateNote(sub, "again")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelete_Root(t *testing.T) {
	tr := New()
	assert.ErrorIs(t, tr.Delete(tr.Root()), domain.ErrCannotDeleteRoot)
}

func TestFind(t *testing.T) {
	tr := New()
	a, _ := tr.CreateFolder(nil, "a")
	b, _ := tr.CreateNote(a, "b")

	root, err := tr.Find(nil)
	require.NoError(t, err)
	assert.Same(t, tr.Root(), root)

	got, err := tr.Find([]string{"a", "b"})
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = tr.Find([]string{"a", "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// the root's display name is not addressable
	_, err = tr.Find([]string{RootName, "a"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolvePath_Root(t *testing.T) {
	tr := New()
	assert.Empty(t, tr.ResolvePath(tr.Root()))
}

func TestNodeFromOtherTree(t *testing.T) {
	a := New()
	b := New()
	foreign, _ := b.CreateFolder(nil, "f")

	_, err := a.CreateNote(foreign, "n")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, a.Delete(foreign), domain.ErrNotFound)
}

func TestView(t *testing.T) {
	tr := New()
	work, _ := tr.CreateFolder(nil, "work")
	plan, _ := tr.CreateNote(work, "plan")
	require.NoError(t, tr.SetContent(plan, "text"))
	_, _ = tr.CreateFolder(nil, "empty")

	view := tr.View()
	require.Len(t, view.Nodes, 2)
	assert.Equal(t, 3, view.Count())

	assert.Equal(t, domain.NodeView{
		Name: "work",
		Path: "work",
		Kind: domain.KindFolder,
		Children: []domain.NodeView{
			{Name: "plan", Path: "work/plan", Kind: domain.KindNote, Content: "text"},
		},
	}, view.Nodes[0])
	assert.Equal(t, domain.NodeView{Name: "empty", Path: "empty", Kind: domain.KindFolder}, view.Nodes[1])

	// views are copies
	require.NoError(t, tr.SetContent(plan, "changed"))
	assert.Equal(t, "text", view.Nodes[0].Children[0].Content)

	assert.Equal(t, "work/plan", tr.NodeView(plan).Path)
}

func TestWalk(t *testing.T) {
	tr := New()
	a, _ := tr.CreateFolder(nil, "a")
	_, _ = tr.CreateNote(a, "x")
	_, _ = tr.CreateNote(nil, "b")

	var paths []string
	require.NoError(t, tr.Walk(func(path []string, n *Node) error {
		paths = append(paths, tr.NodeView(n).Path)
		return nil
	}))
	assert.Equal(t, []string{"a", "a/x", "b"}, paths)
}
