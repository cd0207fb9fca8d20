// Package workspace is the file system boundary of trellis. The index and
// the resolver only see these interfaces; OS adapts the local disk.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("trellis.workspace")

// Op is the kind of a file event.
type Op int

const (
	Create Op = iota + 1
	Change
	Delete
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Change:
		return "change"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Event reports a change to a single path.
type Event struct {
	Path string
	Op   Op
}

// FS is read access to files.
type FS interface {
	Stat(path string) (fs.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
}

// Watcher delivers events until it is closed. Closing twice is harmless.
type Watcher interface {
	Events() <-chan Event
	Close() error
}

// Workspace is an FS that can also be watched.
type Workspace interface {
	FS
	Watch(roots []string) (Watcher, error)
}

// IsFile reports whether path exists and is not a directory. Any error
// counts as absence.
func IsFile(fsys FS, path string) bool {
	info, err := fsys.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// OS is the local disk.
type OS struct{}

var _ Workspace = OS{}

func (OS) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

func (OS) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OS) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }

// Watch watches every directory below roots, including directories created
// later. Roots that do not exist are skipped.
func (OS) Watch(roots []string) (Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &osWatcher{
		fw:     fw,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	watched := 0
	for _, root := range roots {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		watched += w.addRecursive(root)
	}
	log.Debugf("watching %d directories", watched)
	go w.loop()
	return w, nil
}

type osWatcher struct {
	fw     *fsnotify.Watcher
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (w *osWatcher) Events() <-chan Event { return w.events }

func (w *osWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
	})
	return err
}

func (w *osWatcher) addRecursive(dir string) int {
	n := 0
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fw.Add(path); err != nil {
			log.Warningf("cannot watch %s: %v", path, err)
			return nil
		}
		n++
		return nil
	})
	return n
}

func (w *osWatcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Warningf("watch error: %v", err)
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			for _, out := range w.translate(ev) {
				select {
				case w.events <- out:
				case <-w.done:
					return
				}
			}
		}
	}
}

// translate maps one fsnotify event to ours. A created directory is walked
// so files that appeared before its watch was added are not missed.
func (w *osWatcher) translate(ev fsnotify.Event) []Event {
	path := filepath.Clean(ev.Name)
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return []Event{{Path: path, Op: Create}}
		}
		w.addRecursive(path)
		var out []Event
		_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				out = append(out, Event{Path: p, Op: Create})
			}
			return nil
		})
		return out
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// the new name of a rename arrives as its own Create
		return []Event{{Path: path, Op: Delete}}
	case ev.Has(fsnotify.Write):
		return []Event{{Path: path, Op: Change}}
	}
	return nil
}
