package tree

import (
	"errors"
	"testing"

	"pgregory.net/rapid"

	"github.com/ViniZap4/lumi-notes/domain"
)

func nameGenerator() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{"a", "b", "c", "notes", "Root", "x y"})
}

// pickNode draws any node currently attached to the tree, the root included.
func pickNode(t *rapid.T, tr *Tree) *Node {
	nodes := []*Node{tr.Root()}
	_ = tr.Walk(func(_ []string, n *Node) error {
		nodes = append(nodes, n)
		return nil
	})
	return rapid.SampledFrom(nodes).Draw(t, "node")
}

func checkInvariants(t *rapid.T, tr *Tree) {
	if tr.Root().IsNote() {
		t.Fatal("root became a note")
	}
	if tr.Root().Parent() != nil {
		t.Fatal("root has a parent")
	}

	seen := map[*Node]bool{tr.Root(): true}
	var check func(n *Node)
	check = func(n *Node) {
		names := map[string]bool{}
		for _, c := range n.children {
			if seen[c] {
				t.Fatalf("node %q reachable twice", c.name)
			}
			seen[c] = true
			if names[c.name] {
				t.Fatalf("duplicate sibling name %q", c.name)
			}
			names[c.name] = true
			if c.parent != n {
				t.Fatalf("node %q has wrong parent", c.name)
			}
			if c.IsNote() && len(c.children) > 0 {
				t.Fatalf("note %q has children", c.name)
			}
			check(c)
		}
	}
	check(tr.Root())

	_ = tr.Walk(func(path []string, n *Node) error {
		found, err := tr.Find(path)
		if err != nil {
			t.Fatalf("Find(%q): %v", path, err)
		}
		if found != n {
			t.Fatalf("Find(%q) returned a different node", path)
		}
		got := tr.ResolvePath(found)
		if len(got) != len(path) {
			t.Fatalf("ResolvePath(Find(%q)) = %q", path, got)
		}
		for i := range got {
			if got[i] != path[i] {
				t.Fatalf("ResolvePath(Find(%q)) = %q", path, got)
			}
		}
		return nil
	})
}

func TestTree_Operations_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tr := New()

		t.Repeat(map[string]func(*rapid.T){
			"createFolder": func(t *rapid.T) {
				parent := pickNode(t, tr)
				_, err := tr.CreateFolder(parent, nameGenerator().Draw(t, "name"))
				if err != nil && !errors.Is(err, domain.ErrDuplicateName) {
					t.Fatalf("CreateFolder: %v", err)
				}
			},
			"createNote": func(t *rapid.T) {
				parent := pickNode(t, tr)
				_, err := tr.CreateNote(parent, nameGenerator().Draw(t, "name"))
				if err != nil && !errors.Is(err, domain.ErrDuplicateName) {
					t.Fatalf("CreateNote: %v", err)
				}
			},
			"delete": func(t *rapid.T) {
				n := pickNode(t, tr)
				err := tr.Delete(n)
				if n == tr.Root() {
					if !errors.Is(err, domain.ErrCannotDeleteRoot) {
						t.Fatalf("Delete(root) = %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("Delete: %v", err)
				}
			},
			"": func(t *rapid.T) {
				checkInvariants(t, tr)
			},
		})
	})
}
