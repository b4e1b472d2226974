// notes/syncer/reconcile.go
package syncer

import (
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/store"
	"github.com/ViniZap4/lumi-notes/tree"
)

// Rebuild turns a subtree snapshot into a fresh tree, depth first, keeping
// the snapshot's sibling order. Children whose names the tree refuses are
// dropped together with everything below them; the second result counts
// the dropped nodes.
func Rebuild(snap *store.Snapshot) (*tree.Tree, int) {
	t := tree.New()
	if snap == nil {
		return t, 0
	}

	skipped := 0
	var add func(parent *tree.Node, s *store.Snapshot)
	add = func(parent *tree.Node, s *store.Snapshot) {
		for _, c := range s.Children {
			n, err := place(t, parent, c)
			if err != nil {
				skipped += size(c)
				continue
			}
			if n.IsFolder() {
				add(n, c)
			}
		}
	}
	add(t.Root(), snap)
	return t, skipped
}

func place(t *tree.Tree, parent *tree.Node, s *store.Snapshot) (*tree.Node, error) {
	if s.Kind == domain.KindNote && !s.HasChildren() {
		n, err := t.CreateNote(parent, s.Name)
		if err != nil {
			return nil, err
		}
		return n, t.SetContent(n, s.Content)
	}
	return t.CreateFolder(parent, s.Name)
}

func size(s *store.Snapshot) int {
	n := 1
	for _, c := range s.Children {
		n += size(c)
	}
	return n
}

// replay reapplies one unacknowledged local write to t. Missing ancestors
// are created as folders; anything that no longer fits is left alone.
func replay(t *tree.Tree, path []string, v *store.Value) {
	if v == nil {
		if n, err := t.Find(path); err == nil && !t.IsRoot(n) {
			_ = t.Delete(n)
		}
		return
	}

	cur := t.Root()
	for i, seg := range path {
		last := i == len(path)-1
		n, err := t.Find(path[:i+1])
		if err != nil {
			if last && v.Kind == domain.KindNote {
				n, err = t.CreateNote(cur, seg)
			} else {
				n, err = t.CreateFolder(cur, seg)
			}
			if err != nil {
				return
			}
		}
		if !last && !n.IsFolder() {
			return
		}
		cur = n
	}

	if v.Kind == domain.KindNote && cur.IsNote() {
		_ = t.SetContent(cur, v.Content)
	}
}
