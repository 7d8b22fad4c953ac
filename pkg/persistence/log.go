// Package persistence implements the append-only log behind the durable
// in-memory edge store.
//
// Every committed batch becomes exactly one checksummed frame whose payload
// is a sequence of RESP-encoded commands. A torn frame at the tail of the
// file (a crash in the middle of a write) is cut off on replay, so a batch
// is either fully replayed or not at all.
package persistence

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// SyncInterval bounds how long an appended frame of a log opened without
// syncWrites can stay un-fsynced.
const SyncInterval = time.Second

// Log is a frame-oriented append-only file.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	frames     *FrameWriter
	path       string
	syncWrites bool

	// dirty is set by Append when frames await the periodic fsync.
	dirty    bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// OpenLog opens or creates the log at path. With syncWrites every Append
// is followed by an fsync; without it a background routine fsyncs every
// SyncInterval, limiting loss on a crash to roughly that window.
func OpenLog(path string, syncWrites bool) (*Log, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	buf := bufio.NewWriter(file)
	l := &Log{
		file:       file,
		buf:        buf,
		frames:     NewFrameWriter(buf),
		path:       path,
		syncWrites: syncWrites,
		stopCh:     make(chan struct{}),
	}
	if !syncWrites {
		l.wg.Add(1)
		go l.syncRoutine(SyncInterval)
	}
	return l, nil
}

// syncRoutine periodically fsyncs frames appended since the last sync.
func (l *Log) syncRoutine(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.syncIfDirty(); err != nil {
				slog.Error("Periodic log sync failed", "path", l.path, "error", err)
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *Log) syncIfDirty() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.dirty {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// Append writes the commands as a single frame and flushes it to the OS.
func (l *Log) Append(cmds ...string) error {
	if len(cmds) == 0 {
		return nil
	}

	var payload bytes.Buffer
	for _, c := range cmds {
		payload.WriteString(c)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.frames.WriteFrame(OpCodeBatch, payload.Bytes()); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := l.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush log: %w", err)
	}
	if l.syncWrites {
		return l.file.Sync()
	}
	l.dirty = true
	return nil
}

// Replay feeds every intact frame to apply, oldest first, and returns the
// number of frames applied. A damaged tail is truncated away.
func (l *Log) Replay(apply func(cmds []*Command) error) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cr := &countingReader{r: bufio.NewReader(f)}
	var good int64
	frames := 0
	for {
		_, payload, err := ReadFrame(cr)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			slog.Warn("Truncating damaged log tail",
				"path", l.path,
				"offset", good,
				"error", err,
			)
			if terr := l.file.Truncate(good); terr != nil {
				return frames, fmt.Errorf("failed to truncate log: %w", terr)
			}
			return frames, nil
		}

		cmds, err := decodePayload(payload)
		if err != nil {
			return frames, fmt.Errorf("frame %d: %w", frames, err)
		}
		if err := apply(cmds); err != nil {
			return frames, err
		}
		good = cr.n
		frames++
	}
}

func decodePayload(payload []byte) ([]*Command, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	var cmds []*Command
	for {
		cmd, err := ParseCommand(reader)
		if errors.Is(err, io.EOF) {
			return cmds, nil
		}
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
}

// Sync flushes buffered data and fsyncs the file.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.buf.Flush(); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	l.dirty = false
	return nil
}

// Size returns the current size of the log file in bytes.
func (l *Log) Size() (int64, error) {
	info, err := l.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Close stops the sync routine, then flushes, fsyncs and closes the file.
func (l *Log) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.buf.Flush(); err != nil {
		_ = l.file.Close()
		return err
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Rewrite atomically replaces the log with a single frame holding cmds.
// It is used to compact a log down to the live state.
func (l *Log) Rewrite(cmds []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tmpPath := l.path + ".rewrite"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("failed to create rewrite file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	if len(cmds) > 0 {
		var payload bytes.Buffer
		for _, c := range cmds {
			payload.WriteString(c)
		}
		if err := NewFrameWriter(w).WriteFrame(OpCodeBatch, payload.Bytes()); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	_ = l.buf.Flush()
	_ = l.file.Close()

	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("failed to replace log file: %w", err)
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return fmt.Errorf("failed to reopen log file after rewrite: %w", err)
	}
	l.file = file
	l.buf.Reset(file)
	l.dirty = false
	return nil
}
