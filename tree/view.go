// notes/tree/view.go
package tree

import (
	"strings"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
)

// View copies the tree into plain data for rendering.
func (t *Tree) View() domain.TreeView {
	return domain.TreeView{Nodes: viewChildren(nil, t.root)}
}

// NodeView copies a single node and its subtree.
func (t *Tree) NodeView(n *Node) domain.NodeView {
	return viewNode(t.ResolvePath(n), n)
}

func viewChildren(prefix []string, n *Node) []domain.NodeView {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]domain.NodeView, 0, len(n.children))
	for _, c := range n.children {
		p := append(prefix[:len(prefix):len(prefix)], c.name)
		out = append(out, viewNode(p, c))
	}
	return out
}

func viewNode(path []string, n *Node) domain.NodeView {
	return domain.NodeView{
		Name:     n.name,
		Path:     strings.Join(path, pathcodec.Separator),
		Kind:     n.kind,
		Content:  n.content,
		Children: viewChildren(path, n),
	}
}
