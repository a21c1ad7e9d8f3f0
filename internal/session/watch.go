package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch calls fn whenever another writer changes the stored session. fn
// receives nil after a logout. Notifications stop when ctx is done.
//
// The directory is watched rather than the file so that a remove followed
// by a re-create (login after logout) is still observed.
func (s *Store) Watch(ctx context.Context, fn func(*Session)) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	last, _ := s.load()
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != fileName {
					continue
				}
				cur, err := s.load()
				if err != nil {
					s.log.Warn("session changed but is unreadable", zap.Error(err))
					continue
				}
				if sameSession(last, cur) {
					continue
				}
				last = cur
				fn(cur)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("session watcher", zap.Error(err))
			}
		}
	}()
	return nil
}

func sameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Token != b.Token {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}
