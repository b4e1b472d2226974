// notes/tree/tree.go

// Package tree holds the in-memory note hierarchy. A Tree is not safe for
// concurrent use; the sync engine confines every Tree to its loop goroutine.
package tree

import (
	"fmt"
	"strings"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
)

// RootName is the display name of the synthetic root. It never shows up in a
// resolved path.
const RootName = "Root"

type Node struct {
	name     string
	kind     domain.Kind
	content  string
	children []*Node
	parent   *Node
}

func (n *Node) Name() string      { return n.name }
func (n *Node) Kind() domain.Kind { return n.kind }
func (n *Node) Content() string   { return n.content }
func (n *Node) IsFolder() bool    { return n.kind == domain.KindFolder }
func (n *Node) IsNote() bool      { return n.kind == domain.KindNote }

// Parent returns the enclosing node; nil for the root and for detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

type Tree struct {
	root *Node
}

func New() *Tree {
	return &Tree{root: &Node{name: RootName, kind: domain.KindFolder}}
}

func (t *Tree) Root() *Node { return t.root }

// IsRoot reports whether n is this tree's synthetic root.
func (t *Tree) IsRoot(n *Node) bool { return n == t.root }

// Len counts the nodes below the root.
func (t *Tree) Len() int {
	count := 0
	t.Walk(func([]string, *Node) error {
		count++
		return nil
	})
	return count
}

// CreateFolder appends a new, empty folder under parent. A nil parent or the
// root inserts at the top level; a note parent inserts next to the note.
func (t *Tree) CreateFolder(parent *Node, name string) (*Node, error) {
	return t.insert(parent, name, domain.KindFolder)
}

// CreateNote appends a new note with empty content under parent, using the
// same placement rules as CreateFolder.
func (t *Tree) CreateNote(parent *Node, title string) (*Node, error) {
	return t.insert(parent, title, domain.KindNote)
}

func (t *Tree) insert(parent *Node, name string, kind domain.Kind) (*Node, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	container, err := t.container(parent)
	if err != nil {
		return nil, err
	}
	if container.child(name) != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
	}

	n := &Node{name: name, kind: kind, parent: container}
	container.children = append(container.children, n)
	return n, nil
}

func (t *Tree) container(parent *Node) (*Node, error) {
	if parent == nil {
		return t.root, nil
	}
	if !t.owns(parent) {
		return nil, fmt.Errorf("%w: node %q is not part of this tree", domain.ErrNotFound, parent.name)
	}
	if parent.kind == domain.KindNote {
		return parent.parent, nil
	}
	return parent, nil
}

// owns reports whether n is attached to this tree.
func (t *Tree) owns(n *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == t.root {
			return true
		}
	}
	return false
}

// SetContent replaces a note's text.
func (t *Tree) SetContent(note *Node, text string) error {
	if note == nil || !t.owns(note) {
		return domain.ErrNotFound
	}
	if note.kind != domain.KindNote {
		return fmt.Errorf("%w: %q is a folder", domain.ErrNotANote, note.name)
	}
	note.content = text
	return nil
}

// Delete detaches n and its whole subtree from its parent.
func (t *Tree) Delete(n *Node) error {
	if n == t.root {
		return domain.ErrCannotDeleteRoot
	}
	if n == nil || !t.owns(n) {
		return domain.ErrNotFound
	}

	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
	return nil
}

// ResolvePath returns the names from the root (exclusive) down to n.
// The root resolves to an empty path.
func (t *Tree) ResolvePath(n *Node) []string {
	var rev []string
	for cur := n; cur != nil && cur != t.root; cur = cur.parent {
		rev = append(rev, cur.name)
	}
	path := make([]string, len(rev))
	for i, name := range rev {
		path[len(rev)-1-i] = name
	}
	return path
}

// Find descends from the root, matching one segment per level. An empty path
// returns the root.
func (t *Tree) Find(path []string) (*Node, error) {
	cur := t.root
	for i, seg := range path {
		next := cur.child(seg)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, strings.Join(path[:i+1], pathcodec.Separator))
		}
		cur = next
	}
	return cur, nil
}

// Walk visits every node below the root depth-first, parents before children,
// in display order. Returning an error stops the walk.
func (t *Tree) Walk(fn func(path []string, n *Node) error) error {
	var walk func(prefix []string, n *Node) error
	walk = func(prefix []string, n *Node) error {
		for _, c := range n.children {
			p := append(prefix[:len(prefix):len(prefix)], c.name)
			if err := fn(p, c); err != nil {
				return err
			}
			if err := walk(p, c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(nil, t.root)
}

// ValidateName rejects names that cannot be stored as a path segment, and
// blank names.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", domain.ErrInvalidName)
	}
	if err := pathcodec.ValidateSegment(name); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidName, err)
	}
	return nil
}
