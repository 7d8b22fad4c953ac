package persistence

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func replayAll(t *testing.T, l *Log) [][]*Command {
	t.Helper()
	var frames [][]*Command
	if _, err := l.Replay(func(cmds []*Command) error {
		frames = append(frames, cmds)
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return frames
}

func TestCommandRoundTrip(t *testing.T) {
	raw := FormatCommand("put", []byte("id"), []byte("with\r\nnewline"), nil, []byte(""))
	cmd, err := ParseCommand(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Name != "PUT" {
		t.Errorf("Name = %q, want PUT", cmd.Name)
	}
	if len(cmd.Args) != 4 {
		t.Fatalf("got %d args, want 4", len(cmd.Args))
	}
	if string(cmd.Args[1]) != "with\r\nnewline" {
		t.Errorf("binary arg mangled: %q", cmd.Args[1])
	}
	if cmd.Args[2] != nil {
		t.Errorf("nil arg decoded as %q", cmd.Args[2])
	}
}

func TestLogAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.log")
	l, err := OpenLog(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Append(FormatCommand("PUT", []byte("1")), FormatCommand("PUT", []byte("2"))); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(FormatCommand("DEL", []byte("1"))); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = OpenLog(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	frames := replayAll(t, l)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if len(frames[0]) != 2 || frames[1][0].Name != "DEL" {
		t.Errorf("unexpected frames: %+v", frames)
	}
}

func TestLogTruncatesDamagedTail(t *testing.T) {
	tests := []struct {
		name string
		tail []byte
	}{
		// what a crash mid-write leaves behind
		{"half header", []byte{MagicByte, OpCodeBatch, 0x10}},
		{"oversized length", []byte{MagicByte, OpCodeBatch, 0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0, 'x'}},
		{"lost sync", []byte{0x00, OpCodeBatch, 0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "edges.log")
			l, err := OpenLog(path, false)
			if err != nil {
				t.Fatal(err)
			}
			if err := l.Append(FormatCommand("PUT", []byte("1"))); err != nil {
				t.Fatal(err)
			}
			good, _ := l.Size()
			l.Close()

			f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0666)
			if err != nil {
				t.Fatal(err)
			}
			f.Write(tt.tail)
			f.Close()

			l, err = OpenLog(path, false)
			if err != nil {
				t.Fatal(err)
			}
			defer l.Close()

			if frames := replayAll(t, l); len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if size, _ := l.Size(); size != good {
				t.Errorf("log size after replay = %d, want %d", size, good)
			}
		})
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := []byte{MagicByte, OpCodeBatch, 0, 0, 0, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(header[2:6], MaxFrameSize+1)
	if _, _, err := ReadFrame(bytes.NewReader(header)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("ReadFrame error = %v, want ErrFrameTooLarge", err)
	}
}

func TestLogRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.log")
	l, err := OpenLog(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if err := l.Append(FormatCommand("PUT", []byte("x"))); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.Rewrite([]string{FormatCommand("PUT", []byte("live"))}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(FormatCommand("PUT", []byte("after"))); err != nil {
		t.Fatal(err)
	}

	frames := replayAll(t, l)
	if len(frames) != 2 {
		t.Fatalf("got %d frames after rewrite, want 2", len(frames))
	}
	if string(frames[0][0].Args[0]) != "live" || string(frames[1][0].Args[0]) != "after" {
		t.Errorf("unexpected frames: %+v", frames)
	}
}

func TestLazyLogSyncsPeriodically(t *testing.T) {
	l, err := OpenLog(filepath.Join(t.TempDir(), "edges.log"), false)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.Append(FormatCommand("PUT", []byte("1"))); err != nil {
		t.Fatal(err)
	}
	l.mu.Lock()
	dirty := l.dirty
	l.mu.Unlock()
	if !dirty {
		t.Fatal("append without syncWrites did not mark the log dirty")
	}

	if err := l.syncIfDirty(); err != nil {
		t.Fatal(err)
	}
	l.mu.Lock()
	dirty = l.dirty
	l.mu.Unlock()
	if dirty {
		t.Error("log still dirty after sync")
	}
}
