package monitor

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dropwire/dropwire/internal/logging"
)

// tailer is a restartable lazy stream over the access log: it opens
// the file, seeks to an initial offset, and yields each newline as it
// is appended, following the file across rotations by watching for
// directory events and detecting inode changes — the "watch a file
// forever" pattern, grounded on the fsnotify rotation
// handling in craigderington-lazytunnel and batonogov-xray-health-exporter.
type tailer struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	ino     uint64
	offset  int64
}

func newTailer(path string, startOffset int64) (*tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: create watcher: %w", err)
	}
	if err := watcher.Add(filepathDir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("monitor: watch dir: %w", err)
	}

	t := &tailer{path: path, watcher: watcher}
	if err := t.open(startOffset); err != nil {
		watcher.Close()
		return nil, err
	}
	return t, nil
}

func (t *tailer) open(offset int64) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("monitor: open access log: %w", err)
	}

	if offset <= 0 {
		if _, err := f.Seek(0, os.SEEK_END); err != nil {
			f.Close()
			return fmt.Errorf("monitor: seek to end: %w", err)
		}
	} else {
		if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
			f.Close()
			return fmt.Errorf("monitor: seek to offset: %w", err)
		}
	}

	ino, err := inode(f)
	if err != nil {
		f.Close()
		return err
	}

	t.file = f
	t.reader = bufio.NewReader(f)
	t.ino = ino
	pos, _ := f.Seek(0, os.SEEK_CUR)
	t.offset = pos
	return nil
}

// reopenIfRotated checks whether the file at t.path now has a
// different inode than the one we have open (rotation via rename or
// truncate), reopening at offset 0 if so.
func (t *tailer) reopenIfRotated() error {
	info, err := os.Stat(t.path)
	if err != nil {
		// File may be mid-rotation; try again next tick.
		return nil
	}
	curIno, err := inodeFromInfo(info)
	if err != nil {
		return err
	}
	if curIno == t.ino {
		return nil
	}
	logging.GetGlobalLogger().Info("monitor: access log rotated, reopening")
	if t.file != nil {
		t.file.Close()
	}
	if err := t.open(0); err != nil {
		return err
	}
	// open(0) seeks to the end; a rotated file is read from its start.
	if _, err := t.file.Seek(0, os.SEEK_SET); err != nil {
		return fmt.Errorf("monitor: seek rotated log: %w", err)
	}
	t.reader.Reset(t.file)
	t.offset = 0
	return nil
}

// Offset returns the current read offset, for periodic checkpointing.
func (t *tailer) Offset() int64 { return t.offset }

// ReadLine returns the next full line without the trailing newline.
// It does not block: it returns (nil, nil) when no new line is ready
// yet, and the caller's poll loop retries on its next tick, checking
// for shutdown in between.
func (t *tailer) ReadLine() ([]byte, error) {
	if err := t.reopenIfRotated(); err != nil {
		return nil, err
	}
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		// Not a full line yet (EOF mid-line); rewind to retry from
		// the same spot next call rather than dropping the partial
		// read.
		if len(line) > 0 {
			if _, serr := t.file.Seek(-int64(len(line)), os.SEEK_CUR); serr == nil {
				return nil, nil
			}
		}
		return nil, nil
	}
	t.offset += int64(len(line))
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, nil
}

// Events exposes the underlying fsnotify channel so the monitor loop
// can select on it alongside its poll ticker.
func (t *tailer) Events() <-chan fsnotify.Event { return t.watcher.Events }

func (t *tailer) Close() error {
	t.watcher.Close()
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}

// pollInterval is how often ReadLine is retried when no data was
// available, bounding CPU use on an idle log.
const pollInterval = 200 * time.Millisecond
