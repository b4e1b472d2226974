// notes/store/snapshot.go
package store

import (
	"sort"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
)

// Snapshot is a point-in-time copy of a subtree. The snapshot root is the
// subscribed key itself; its Name is the last segment of that key.
type Snapshot struct {
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Kind     domain.Kind `json:"kind"`
	Content  string      `json:"content,omitempty"`
	Children []*Snapshot `json:"children,omitempty"`
}

func (s *Snapshot) HasChildren() bool { return len(s.Children) > 0 }

// Child returns the direct child called name.
func (s *Snapshot) Child(name string) *Snapshot {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Lookup follows segments from s.
func (s *Snapshot) Lookup(segments ...string) *Snapshot {
	cur := s
	for _, seg := range segments {
		if cur = cur.Child(seg); cur == nil {
			return nil
		}
	}
	return cur
}

// Entry is one stored key as backends list it. Seq orders siblings; entries
// with equal Seq fall back to key order.
type Entry struct {
	Key   string
	Value Value
	Seq   int64
}

// BuildSnapshot assembles the flat entries of a subtree into a Snapshot.
// Entries outside rootKey are ignored. Ancestors without an entry of their
// own are synthesized as folders. A node that has children is a folder
// whatever its tag says; an untagged leaf is a note.
func BuildSnapshot(rootKey string, entries []Entry) *Snapshot {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Seq != sorted[j].Seq {
			return sorted[i].Seq < sorted[j].Seq
		}
		return sorted[i].Key < sorted[j].Key
	})

	_, rootName := pathcodec.Parent(rootKey)
	root := &Snapshot{Key: rootKey, Name: rootName, Kind: domain.KindFolder}
	index := map[string]*Snapshot{rootKey: root}

	var ensure func(key string) *Snapshot
	ensure = func(key string) *Snapshot {
		if s, ok := index[key]; ok {
			return s
		}
		parentKey, name := pathcodec.Parent(key)
		parent := ensure(parentKey)
		s := &Snapshot{Key: key, Name: name}
		parent.Children = append(parent.Children, s)
		index[key] = s
		return s
	}

	for _, e := range sorted {
		if e.Key == rootKey || !pathcodec.Within(rootKey, e.Key) {
			continue
		}
		s := ensure(e.Key)
		s.Kind = e.Value.Kind
		s.Content = e.Value.Content
	}

	resolveKinds(root)
	return root
}

func resolveKinds(s *Snapshot) {
	for _, c := range s.Children {
		resolveKinds(c)
	}
	switch {
	case len(s.Children) > 0:
		s.Kind = domain.KindFolder
		s.Content = ""
	case s.Kind == "":
		s.Kind = domain.KindNote
	}
}
