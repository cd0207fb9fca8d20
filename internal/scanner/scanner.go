// scanner is used to walk template roots and read the files found there.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"sync"

	"github.com/tliron/commonlog"

	"trellis/internal/workspace"
)

var log = commonlog.GetLogger("trellis.scanner")

// Scan walks the entire subtree under root. skip is consulted for every
// directory and file; a skipped directory is not descended into. Every
// remaining file is passed to callback. Walk errors are logged and the walk
// continues; only cancellation of ctx is returned.
func Scan(
	ctx context.Context,
	fsys workspace.FS,
	root string,
	skip func(path string, d fs.DirEntry) bool,
	callback func(path string),
) error {
	log.Debugf("starting walk at %q", root)
	err := fsys.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				log.Warningf("cannot scan %s: %v", root, err)
			} else {
				log.Debugf("walk error: %v", err)
			}
			return nil
		}

		if d.IsDir() {
			if path != root && skip(path, d) {
				log.Debugf("skipping %q", path)
				return fs.SkipDir
			}
			return nil
		}

		if skip(path, d) {
			return nil
		}
		callback(path)
		return nil
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil {
		log.Warningf("walk of %s finished with error: %v", root, err)
	}
	return nil
}

// Read reads paths on a worker goroutine and invokes callback with each
// file's contents, in order. Unreadable files are logged and skipped. Read
// only returns once all callbacks have completed.
func Read(
	ctx context.Context,
	fsys workspace.FS,
	paths []string,
	callback func(path string, document []byte),
) error {
	fileCh := make(chan string, 100)
	var wg sync.WaitGroup

	// worker goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileCh {
			data, err := fsys.ReadFile(path)
			if err != nil {
				log.Warningf("read error: %s: %v", path, err)
				continue
			}
			callback(path, data)
		}
	}()

	var err error
	for _, path := range paths {
		if err = ctx.Err(); err != nil {
			break
		}
		fileCh <- path
	}

	// no more files to send
	close(fileCh)
	// wait for the worker to finish consuming and calling back
	wg.Wait()
	return err
}
