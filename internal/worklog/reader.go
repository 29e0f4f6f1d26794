package worklog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// Filter pins a subset of {command, event, phase} for QueryLast (spec.md §4.1).
type Filter struct {
	Command string
	Event   core.EventKind
	Phase   string
}

func (f Filter) matches(e core.LogEntry) bool {
	if f.Command != "" && e.Command != f.Command {
		return false
	}
	if f.Event != "" && e.Event != f.Event {
		return false
	}
	if f.Phase != "" && e.Phase != f.Phase {
		return false
	}
	return true
}

// Reader reads and tails the append-only workflow log.
type Reader struct {
	path string

	mu       sync.Mutex
	position int64
	stopCh   chan struct{}
	wg       sync.WaitGroup
	index    *Index
}

// NewReader creates a reader for the log at path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// UseIndex attaches a SQLite secondary index and rebuilds it from the
// current contents of the log (SPEC_FULL.md §6.1). Once attached,
// QueryLast is served from the index instead of re-scanning the file, and
// StartTailing keeps the index current by appending each newly tailed
// entry to it. The index is a cache, never the source of truth: callers
// that don't need accelerated queryLast can simply not call this.
func (r *Reader) UseIndex(idx *Index) error {
	entries, err := r.ReadAll()
	if err != nil {
		return err
	}
	if err := idx.Rebuild(entries); err != nil {
		return err
	}
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
	return nil
}

// ReadAll returns every parseable data entry in file order, skipping `#`
// summary/compliance lines and blank lines (spec.md §4.1, §6.1). Malformed
// JSON data lines are skipped silently, never causing ReadAll to fail.
func (r *Reader) ReadAll() ([]core.LogEntry, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []core.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		entry, ok := parseDataLine(line)
		if ok {
			entries = append(entries, entry)
		}
	}
	return entries, scanner.Err()
}

// parseDataLine parses a single line as a data entry, returning ok=false for
// blank lines, `#`-prefixed summary lines, and malformed JSON.
func parseDataLine(line string) (core.LogEntry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return core.LogEntry{}, false
	}
	var entry core.LogEntry
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return core.LogEntry{}, false
	}
	return entry, true
}

// QueryLast scans newest-first for the first N entries matching filter.
// Pass n<=0 to return every match. When an index is attached via UseIndex,
// the query is served from it instead of re-parsing the whole file.
func (r *Reader) QueryLast(filter Filter, n int) ([]core.LogEntry, error) {
	r.mu.Lock()
	idx := r.index
	r.mu.Unlock()
	if idx != nil {
		return idx.QueryLast(filter, n)
	}

	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []core.LogEntry
	for i := len(all) - 1; i >= 0; i-- {
		if filter.matches(all[i]) {
			out = append(out, all[i])
			if n > 0 && len(out) >= n {
				break
			}
		}
	}
	return out, nil
}

// TailCallback is invoked once per newly observed data entry.
type TailCallback func(core.LogEntry)

// StartTailing begins polling the log file for new entries, invoking cb for
// each. It polls file size at the given interval (spec.md §4.1 default
// ~50ms); when the file has shrunk below the last known position (rotation
// or truncation), it resets to the beginning. StartTailing returns
// immediately; call StopTailing to halt the poller.
func (r *Reader) StartTailing(interval time.Duration, cb TailCallback) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	r.mu.Lock()
	r.stopCh = make(chan struct{})
	stopCh := r.stopCh
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				r.poll(cb)
			}
		}
	}()
}

// poll reads any bytes appended since the last position, parses complete
// lines, and invokes cb for each new data entry.
func (r *Reader) poll(cb TailCallback) {
	info, err := os.Stat(r.path)
	if err != nil {
		return
	}

	r.mu.Lock()
	pos := r.position
	idx := r.index
	r.mu.Unlock()

	size := info.Size()
	if size < pos {
		// File shrank: rotated or truncated. Reset to the beginning.
		pos = 0
	}
	if size == pos {
		return
	}

	f, err := os.Open(r.path)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := f.Seek(pos, 0); err != nil {
		return
	}

	delta := make([]byte, size-pos)
	if _, err := io.ReadFull(f, delta); err != nil {
		return
	}

	// Only consume complete lines: a writer may be mid-append. The
	// remaining bytes after the last newline stay unconsumed and are
	// re-read on the next poll once the write completes.
	lastNL := bytes.LastIndexByte(delta, '\n')
	if lastNL < 0 {
		return
	}
	complete := delta[:lastNL+1]

	for _, line := range bytes.Split(complete, []byte{'\n'}) {
		if entry, ok := parseDataLine(string(line)); ok {
			if idx != nil {
				_ = idx.Append(entry) // best-effort: the index is a cache, never the source of truth
			}
			cb(entry)
		}
	}

	r.mu.Lock()
	r.position = pos + int64(len(complete))
	r.mu.Unlock()
}

// StopTailing halts the poller started by StartTailing and waits for it to exit.
func (r *Reader) StopTailing() {
	r.mu.Lock()
	stopCh := r.stopCh
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	r.wg.Wait()
}
