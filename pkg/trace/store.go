package trace

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EnvTracesDir overrides the default traces directory.
const EnvTracesDir = "AGENT_ARENA_TRACES_DIR"

// DefaultTracesDir resolves the traces root: $AGENT_ARENA_TRACES_DIR when
// set, otherwise ~/.agent_arena/traces.
func DefaultTracesDir() string {
	if dir := os.Getenv(EnvTracesDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agent_arena", "traces")
	}
	return filepath.Join(home, ".agent_arena", "traces")
}

// Store persists reasoning traces as JSONL files, one file per episode per
// agent: <root>/<agent_id>/<episode_id>.jsonl. A single mutex guards the
// in-flight trace map, episode assignments, and disk writes so lines are
// never interleaved.
type Store struct {
	root   string
	masker Masker // nil disables masking

	mu       sync.Mutex
	current  map[string]*ReasoningTrace
	episodes map[string]string
}

// Masker scrubs sensitive values from step payloads before persistence.
type Masker interface {
	Mask(data any) any
}

var (
	defaultStore *Store
	defaultMu    sync.Mutex
)

// NewStore creates a trace store rooted at dir, creating it if needed. An
// empty dir uses the default location.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultTracesDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create traces dir: %w", err)
	}
	slog.Info("Trace store initialized", "dir", dir)
	return &Store{
		root:     dir,
		current:  make(map[string]*ReasoningTrace),
		episodes: make(map[string]string),
	}, nil
}

// Default returns the process-wide store, creating it on first use. The
// explicit NewStore constructor remains available for callers that want
// their own lifecycle.
func Default() (*Store, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStore == nil {
		s, err := NewStore("")
		if err != nil {
			return nil, err
		}
		defaultStore = s
	}
	return defaultStore, nil
}

// ResetDefault discards the process-wide store (for tests).
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultStore = nil
}

// Root returns the traces root directory.
func (s *Store) Root() string { return s.root }

// SetMasker installs a masker applied to step payloads at write time.
func (s *Store) SetMasker(m Masker) { s.masker = m }

// SetEpisode assigns an episode id for an agent, auto-generating one
// (ep_<unix-seconds>_<random-suffix>) when id is empty.
func (s *Store) SetEpisode(agentID, id string) string {
	if id == "" {
		id = fmt.Sprintf("ep_%d_%s", time.Now().Unix(), uuid.NewString()[:6])
	}
	s.mu.Lock()
	s.episodes[agentID] = id
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.root, agentID), 0o755); err != nil {
		slog.Warn("Failed to create agent trace dir", "agent_id", agentID, "error", err)
	}
	slog.Debug("Episode set", "agent_id", agentID, "episode_id", id)
	return id
}

// Episode returns the current episode id for an agent, creating one if
// needed.
func (s *Store) Episode(agentID string) string {
	s.mu.Lock()
	id, ok := s.episodes[agentID]
	s.mu.Unlock()
	if ok {
		return id
	}
	return s.SetEpisode(agentID, "")
}

// StartTrace creates and stashes a new trace for a decision, discarding any
// prior in-flight trace for the agent.
func (s *Store) StartTrace(agentID string, tick int) *ReasoningTrace {
	episodeID := s.Episode(agentID)
	t := NewReasoningTrace(agentID, tick, episodeID)
	s.mu.Lock()
	s.current[agentID] = t
	s.mu.Unlock()
	slog.Debug("Started trace", "trace_id", t.TraceID, "agent_id", agentID, "tick", tick)
	return t
}

// AddStep appends a step to the agent's current trace, lazily starting one
// when none exists or the stashed trace belongs to a different tick.
func (s *Store) AddStep(agentID string, tick int, name string, data any) *Step {
	s.mu.Lock()
	t, ok := s.current[agentID]
	s.mu.Unlock()
	if !ok || t.Tick != tick {
		t = s.StartTrace(agentID, tick)
	}
	return t.AddStep(name, data)
}

// EndTrace flushes the agent's current trace to its episode file and clears
// the in-memory slot. Returns nil when no trace was active.
func (s *Store) EndTrace(agentID string) *ReasoningTrace {
	s.mu.Lock()
	t, ok := s.current[agentID]
	if ok {
		delete(s.current, agentID)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := s.writeTrace(t); err != nil {
		slog.Error("Failed to persist trace", "trace_id", t.TraceID, "error", err)
	}
	slog.Debug("Ended trace", "trace_id", t.TraceID, "steps", len(t.Steps))
	return t
}

// WriteTrace appends a completed trace to its episode file directly, for
// callers that assemble traces outside the start/add/end flow.
func (s *Store) WriteTrace(t *ReasoningTrace) error {
	return s.writeTrace(t)
}

func (s *Store) writeTrace(t *ReasoningTrace) error {
	agentDir := filepath.Join(s.root, t.AgentID)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	if s.masker != nil {
		masked := *t
		masked.Steps = make([]Step, len(t.Steps))
		copy(masked.Steps, t.Steps)
		for i := range masked.Steps {
			masked.Steps[i].Data = s.masker.Mask(masked.Steps[i].Data)
		}
		t = &masked
	}
	line, err := t.MarshalLine()
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(
		filepath.Join(agentDir, t.EpisodeID+".jsonl"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// LastDecision returns the most recent trace for an agent by reading the
// last line of the most recently modified episode file. Returns nil when no
// traces exist.
func (s *Store) LastDecision(agentID string) *ReasoningTrace {
	episodes := s.ListEpisodes(agentID)
	if len(episodes) == 0 {
		return nil
	}
	traces := s.EpisodeTraces(agentID, episodes[0])
	if len(traces) == 0 {
		return nil
	}
	return traces[len(traces)-1]
}

// EpisodeTraces reads and parses every trace line of an episode file. Lines
// that fail to parse (e.g. a partial line mid-write) are skipped.
func (s *Store) EpisodeTraces(agentID, episodeID string) []*ReasoningTrace {
	f, err := os.Open(filepath.Join(s.root, agentID, episodeID+".jsonl"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var traces []*ReasoningTrace
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		t, err := ParseTrace([]byte(line))
		if err != nil {
			slog.Debug("Skipping unparsable trace line", "agent_id", agentID, "episode_id", episodeID, "error", err)
			continue
		}
		traces = append(traces, t)
	}
	return traces
}

// ListAgents enumerates agents that have trace directories, most recently
// modified first.
func (s *Store) ListAgents() []string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	type dirInfo struct {
		name  string
		mtime time.Time
	}
	var dirs []dirInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		dirs = append(dirs, dirInfo{name: e.Name(), mtime: info.ModTime()})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime.After(dirs[j].mtime) })
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.name
	}
	return names
}

// ListEpisodes enumerates an agent's episodes, most recently modified first.
func (s *Store) ListEpisodes(agentID string) []string {
	entries, err := os.ReadDir(filepath.Join(s.root, agentID))
	if err != nil {
		return nil
	}
	type fileInfo struct {
		name  string
		mtime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			name:  strings.TrimSuffix(e.Name(), ".jsonl"),
			mtime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names
}

// TraceFile returns the path of an episode file, falling back to the
// current (or most recent) episode when episodeID is empty. The second
// return is false when no file exists.
func (s *Store) TraceFile(agentID, episodeID string) (string, bool) {
	if episodeID == "" {
		s.mu.Lock()
		episodeID = s.episodes[agentID]
		s.mu.Unlock()
		if episodeID == "" {
			episodes := s.ListEpisodes(agentID)
			if len(episodes) == 0 {
				return "", false
			}
			episodeID = episodes[0]
		}
	}
	path := filepath.Join(s.root, agentID, episodeID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}
