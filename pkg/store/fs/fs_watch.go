package fs

import (
	"github.com/fsnotify/fsnotify"
	"github.com/granddizzy/ItismAsyncio/internal/logger"
)

// startWatcher subscribes to changes of the root directory. Any event drops
// the cached listing; the next List rescans.
func (s *FSStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.root); err != nil {
		_ = watcher.Close()
		return err
	}

	s.watcher = watcher
	s.wg.Add(1)
	go s.watch()
	return nil
}

func (s *FSStore) watch() {
	defer s.wg.Done()

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			s.invalidate()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			// events may have been dropped, so the cache cannot be trusted
			logger.Warn("Filesystem store watcher error on %s: %v", s.root, err)
			s.invalidate()
		}
	}
}

func (s *FSStore) invalidate() {
	if s.watcher == nil {
		return
	}
	s.cacheMu.Lock()
	s.cacheValid = false
	s.cache = nil
	s.cacheGen++
	s.cacheMu.Unlock()
}
