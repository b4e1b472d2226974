// notes/domain/node.go
package domain

// Kind tells folders and notes apart. It is stored alongside every remote
// entry so an empty folder is never mistaken for an empty note.
type Kind string

const (
	KindFolder Kind = "folder"
	KindNote   Kind = "note"
)

func (k Kind) Valid() bool {
	return k == KindFolder || k == KindNote
}

// NodeView is a read-only copy of a tree node handed to the shell for
// rendering. Path is the slash-joined storage path relative to the user's
// namespace root.
type NodeView struct {
	Name     string     `json:"name" yaml:"name"`
	Path     string     `json:"path" yaml:"path"`
	Kind     Kind       `json:"kind" yaml:"kind"`
	Content  string     `json:"content,omitempty" yaml:"content,omitempty"`
	Children []NodeView `json:"children,omitempty" yaml:"children,omitempty"`
}

// TreeView holds the visible top level of a note tree. The synthetic root is
// never part of it.
type TreeView struct {
	Nodes []NodeView `json:"nodes" yaml:"nodes"`
}

// Count returns the number of nodes in the view, at every depth.
func (v TreeView) Count() int {
	var walk func([]NodeView) int
	walk = func(nodes []NodeView) int {
		n := len(nodes)
		for _, c := range nodes {
			n += walk(c.Children)
		}
		return n
	}
	return walk(v.Nodes)
}
