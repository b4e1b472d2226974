// notes/store/filesystem/filesystem.go

// Package filesystem stores the note namespace as a directory tree. A folder
// is a directory carrying a .folder.yaml marker; a note is a markdown file
// with a YAML frontmatter header. Users are kept as YAML files under .users.
//
// Edits made by other processes are picked up through fsnotify.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/store"
)

type Store struct {
	root string

	// mu serializes mutations so a note replace and a concurrent write
	// below it cannot interleave.
	mu  sync.Mutex
	seq atomic.Int64

	notifier store.Notifier
	watcher  *fsnotify.Watcher
	done     chan struct{}

	logger zerolog.Logger
}

// Open prepares root and starts watching it.
func Open(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, usersDir), 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	s := &Store{
		root:   abs,
		done:   make(chan struct{}),
		logger: zerolog.Nop(),
	}
	s.seq.Store(time.Now().UnixNano())

	if err := s.watch(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "fsstore").Str("root", s.root).Logger()
}

func (s *Store) Root() string { return s.root }

func (s *Store) nextSeq() int64 { return s.seq.Add(1) }

func (s *Store) Read(ctx context.Context, key string) (*store.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.dirPath(key)
	isDir, err := isDirectory(dir)
	if err != nil {
		return nil, err
	}
	if isDir {
		v := store.FolderValue()
		return &v, nil
	}

	fm, content, err := readNote(s.notePath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	v := store.Value{Kind: fm.Kind, Content: content}
	if v.Kind == "" {
		v.Kind = domain.KindNote
	}
	return &v, nil
}

func (s *Store) Write(ctx context.Context, key string, v store.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: cannot write the store root", domain.ErrInvalidSegment)
	}

	s.mu.Lock()
	err := s.write(key, v)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("kind", string(v.Kind)).Msg("write")
	s.notifier.Notify(key)
	return nil
}

func (s *Store) write(key string, v store.Value) error {
	parent, _ := pathcodec.Parent(key)
	if err := s.ensureFolders(parent); err != nil {
		return err
	}

	dir, file := s.dirPath(key), s.notePath(key)
	now := time.Now().UTC()

	if v.Kind == domain.KindFolder {
		fm, ok, err := readFolderMeta(dir)
		if err != nil {
			return err
		}
		if !ok {
			fm = frontmatter{Seq: s.seqOf(file)}
		}
		fm.Kind, fm.UpdatedAt = domain.KindFolder, now
		if err := removeIfExists(file); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		return writeFolderMeta(dir, fm)
	}

	var fm frontmatter
	if meta, ok, _ := readFolderMeta(dir); ok {
		fm.Seq = meta.Seq
	}
	if fm.Seq == 0 {
		fm.Seq = s.seqOf(file)
	}
	fm.Kind, fm.UpdatedAt = v.Kind, now
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return writeNote(file, fm, v.Content)
}

// seqOf keeps the ordering position of a node that is being retyped.
func (s *Store) seqOf(notePath string) int64 {
	if fm, _, err := readNote(notePath); err == nil && fm.Seq != 0 {
		return fm.Seq
	}
	return s.nextSeq()
}

// ensureFolders creates key and its ancestors as folders where missing.
func (s *Store) ensureFolders(key string) error {
	var missing []string
	for k := key; k != ""; k, _ = pathcodec.Parent(k) {
		ok, err := isDirectory(s.dirPath(k))
		if err != nil {
			return err
		}
		if ok {
			break
		}
		missing = append(missing, k)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		dir := s.dirPath(missing[i])
		if err := os.Mkdir(dir, 0755); err != nil && !os.IsExist(err) {
			return err
		}
		fm := frontmatter{Kind: domain.KindFolder, Seq: s.seqOf(s.notePath(missing[i])), UpdatedAt: time.Now().UTC()}
		if err := writeFolderMeta(dir, fm); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if key == "" {
		return fmt.Errorf("%w: cannot delete the store root", domain.ErrInvalidSegment)
	}

	s.mu.Lock()
	err := removeIfExists(s.notePath(key))
	if err == nil {
		err = os.RemoveAll(s.dirPath(key))
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("delete")
	s.notifier.Notify(key)
	return nil
}

// Entries lists every node stored at or below rootKey.
func (s *Store) Entries(rootKey string) ([]store.Entry, error) {
	var entries []store.Entry

	add := func(path string, d fs.DirEntry) error {
		key, ok := s.keyFor(path, d.IsDir())
		if !ok {
			return nil
		}
		if d.IsDir() {
			fm, _, err := readFolderMeta(path)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("skipping folder marker")
			}
			if fm.Seq == 0 {
				fm.Seq = modSeq(d)
			}
			entries = append(entries, store.Entry{Key: key, Value: store.Value{Kind: domain.KindFolder}, Seq: fm.Seq})
			return nil
		}

		fm, content, err := readNote(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable note")
			return nil
		}
		if fm.Seq == 0 {
			fm.Seq = modSeq(d)
		}
		entries = append(entries, store.Entry{Key: key, Value: store.Value{Kind: fm.Kind, Content: content}, Seq: fm.Seq})
		return nil
	}

	if rootKey != "" {
		if ok, err := isDirectory(s.dirPath(rootKey)); err != nil || !ok {
			return entries, err
		}
	}

	err := filepath.WalkDir(s.dirPath(rootKey), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if path != s.dirPath(rootKey) && skipped(d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		return add(path, d)
	})
	return entries, err
}

// skipped reports entries outside the layout: hidden names and directories
// that end in the note extension, which escapeName never produces.
func skipped(d fs.DirEntry) bool {
	return strings.HasPrefix(d.Name(), ".") || (d.IsDir() && strings.HasSuffix(d.Name(), noteExt))
}

func (s *Store) Subscribe(ctx context.Context, rootKey string, h store.Handler) (*store.Subscription, error) {
	return store.Follow(ctx, rootKey, h, &source{s: s, rootKey: rootKey}, nil), nil
}

type source struct {
	s       *Store
	rootKey string
}

func (src *source) Load(ctx context.Context) (*store.Snapshot, error) {
	entries, err := src.s.Entries(src.rootKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return store.BuildSnapshot(src.rootKey, entries), nil
}

func (src *source) Listen(ctx context.Context, changed func()) error {
	return src.s.notifier.Listen(ctx, src.rootKey, changed)
}

func (s *Store) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.watcher.Close()
}

func isDirectory(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func modSeq(d fs.DirEntry) int64 {
	info, err := d.Info()
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}
