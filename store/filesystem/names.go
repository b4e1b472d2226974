// notes/store/filesystem/names.go
package filesystem

import (
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ViniZap4/lumi-notes/pathcodec"
)

// escapeName turns a key segment into a file name. Leading dots are escaped
// so no node can shadow the marker files or the users directory. The dot of
// a trailing note extension is escaped too, so a folder "a.md" and a note
// "a" never map to the same path.
func escapeName(seg string) string {
	name := url.PathEscape(seg)
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	if strings.HasSuffix(name, noteExt) {
		name = strings.TrimSuffix(name, noteExt) + "%2E" + noteExt[1:]
	}
	return name
}

func unescapeName(name string) (string, bool) {
	seg, err := url.PathUnescape(name)
	if err != nil || seg == "" {
		return "", false
	}
	return seg, true
}

// dirPath is where key lives as a folder.
func (s *Store) dirPath(key string) string {
	parts := []string{s.root}
	for _, seg := range pathcodec.Decode(key) {
		parts = append(parts, escapeName(seg))
	}
	return filepath.Join(parts...)
}

// notePath is where key lives as a note.
func (s *Store) notePath(key string) string {
	return s.dirPath(key) + noteExt
}

// keyFor maps a path below the store root back to a key. Hidden entries,
// directories named like note files and anything that is not a directory or
// a note file report false.
func (s *Store) keyFor(path string, isDir bool) (string, bool) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := len(parts) - 1
	for _, dir := range parts[:last] {
		if strings.HasSuffix(dir, noteExt) {
			return "", false
		}
	}
	if isDir && strings.HasSuffix(parts[last], noteExt) {
		return "", false
	}
	if !isDir {
		if !strings.HasSuffix(parts[last], noteExt) {
			return "", false
		}
		parts[last] = strings.TrimSuffix(parts[last], noteExt)
	}

	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return "", false
		}
		seg, ok := unescapeName(p)
		if !ok {
			return "", false
		}
		segs = append(segs, seg)
	}
	key, err := pathcodec.Encode(segs)
	if err != nil {
		return "", false
	}
	return key, true
}
