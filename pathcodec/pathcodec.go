// notes/pathcodec/pathcodec.go

// Package pathcodec maps a node's name sequence onto a flat storage key and
// back. Keys are the segments joined with Separator.
package pathcodec

import (
	"fmt"
	"strings"

	"github.com/ViniZap4/lumi-notes/domain"
)

const Separator = "/"

// ValidateSegment reports whether s can be used as one path segment.
func ValidateSegment(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", domain.ErrInvalidSegment)
	}
	if strings.Contains(s, Separator) {
		return fmt.Errorf("%w: %q contains %q", domain.ErrInvalidSegment, s, Separator)
	}
	return nil
}

// Encode joins segments into a storage key. An empty sequence encodes to ""
// which addresses the root.
func Encode(segments []string) (string, error) {
	for _, s := range segments {
		if err := ValidateSegment(s); err != nil {
			return "", err
		}
	}
	return strings.Join(segments, Separator), nil
}

// Decode splits a storage key into its segments. "" decodes to an empty,
// non-nil sequence.
func Decode(key string) []string {
	if key == "" {
		return []string{}
	}
	return strings.Split(key, Separator)
}

// Join appends encoded segments to an existing key.
func Join(key string, segments ...string) (string, error) {
	rest, err := Encode(segments)
	if err != nil {
		return "", err
	}
	switch {
	case key == "":
		return rest, nil
	case rest == "":
		return key, nil
	}
	return key + Separator + rest, nil
}

// Parent returns the key of the enclosing node and the last segment.
// The parent of a single-segment key is "".
func Parent(key string) (parent, name string) {
	i := strings.LastIndex(key, Separator)
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

// Within reports whether key equals root or lies below it.
func Within(root, key string) bool {
	if root == "" {
		return true
	}
	return key == root || strings.HasPrefix(key, root+Separator)
}

// Relative strips root from key. It returns false when key is outside root.
func Relative(root, key string) (string, bool) {
	if !Within(root, key) {
		return "", false
	}
	if root == "" {
		return key, true
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, root), Separator), true
}
