package trace

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the fallback poll cadence for Watch.
const DefaultPollInterval = 500 * time.Millisecond

// Watch tails the agent's current episode file and invokes callback for each
// newly appended trace. Filesystem notifications wake the tail immediately;
// a poll ticker covers filesystems where events are unreliable. File
// rotation (a new episode file becoming current) resets the read offset.
//
// The returned stop function signals the background goroutine and waits for
// it to exit, bounded by one poll interval plus a small slack.
func (s *Store) Watch(agentID string, callback func(*ReasoningTrace), pollInterval time.Duration) (func(), error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	agentDir := filepath.Join(s.root, agentID)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(agentDir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		defer watcher.Close()

		var currentFile string
		var offset int64
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		readNew := func() {
			path, ok := s.TraceFile(agentID, "")
			if !ok {
				return
			}
			if path != currentFile {
				currentFile = path
				offset = 0
			}
			offset = tailTraces(path, offset, callback)
		}

		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					readNew()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Trace watch error", "agent_id", agentID, "error", err)
			case <-ticker.C:
				readNew()
			}
		}
	}()

	stop := func() {
		close(done)
		finished := make(chan struct{})
		go func() {
			wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(pollInterval + 500*time.Millisecond):
			slog.Warn("Trace watch did not stop within grace period", "agent_id", agentID)
		}
	}
	return stop, nil
}

// tailTraces reads complete lines appended after offset and feeds parsed
// traces to callback. Partial trailing lines (a writer mid-append) stay
// unread until the terminating newline arrives. Returns the new offset.
func tailTraces(path string, offset int64, callback func(*ReasoningTrace)) int64 {
	f, err := os.Open(path)
	if err != nil {
		return offset
	}
	defer f.Close()

	if info, err := f.Stat(); err != nil || info.Size() < offset {
		// File truncated or replaced underneath us.
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return offset
	}
	consumed := 0
	for {
		idx := bytes.IndexByte(data[consumed:], '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(data[consumed : consumed+idx]))
		consumed += idx + 1
		if line == "" {
			continue
		}
		t, err := ParseTrace([]byte(line))
		if err != nil {
			slog.Debug("Skipping unparsable trace line in watch", "error", err)
			continue
		}
		callback(t)
	}
	return offset + int64(consumed)
}
