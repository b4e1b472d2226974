// notes/store/filesystem/watch.go
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

func (s *Store) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	s.watcher = watcher

	if err := s.addWatcherDirs(s.root); err != nil {
		watcher.Close()
		return fmt.Errorf("add directories to watcher: %w", err)
	}

	go s.watchLoop()
	return nil
}

// addWatcherDirs adds root and every directory below it, skipping hidden ones.
func (s *Store) addWatcherDirs(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return s.watcher.Add(path)
	})
}

func (s *Store) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *Store) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := s.addWatcherDirs(event.Name); err != nil {
				s.logger.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
			}
		}
	}
	if event.Op&fsnotify.Chmod == event.Op {
		return
	}

	key, ok := s.eventKey(event.Name)
	if !ok {
		return
	}
	s.logger.Debug().Str("key", key).Str("op", event.Op.String()).Msg("external change")
	s.notifier.Notify(key)
}

// eventKey maps a changed path to the key it affects. A folder marker
// change belongs to its directory.
func (s *Store) eventKey(path string) (string, bool) {
	base := filepath.Base(path)
	if base == folderMeta {
		return s.keyFor(filepath.Dir(path), true)
	}
	if strings.HasSuffix(base, noteExt) {
		if key, ok := s.keyFor(path, false); ok {
			return key, true
		}
	}
	return s.keyFor(path, true)
}
