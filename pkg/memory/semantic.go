package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Index similarity modes.
const (
	// IndexFlatIP scores by inner product over normalized vectors, yielding
	// cosine-like scores in [0, 1].
	IndexFlatIP = "FlatIP"
	// IndexFlatL2 scores by inverse L2 distance: 1 / (1 + d).
	IndexFlatL2 = "Flat"
)

// MemoryRecord is one raw hit from a semantic query.
type MemoryRecord struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
	Distance float64        `json:"distance"`
}

// SemanticMemory is a generic semantic index over any object type. Converter
// callbacks bridge the domain: to-text produces the embedded sentence,
// to-metadata the stored fields, from-metadata reconstructs an object for
// QueryObjects.
type SemanticMemory[T any] struct {
	mu       sync.RWMutex
	provider EmbeddingProvider
	toText   func(T) string
	toMeta   func(T) map[string]any
	fromMeta func(map[string]any) T

	indexType string
	entries   []semanticEntry
	byKey     map[string]int
}

type semanticEntry struct {
	id       string
	key      string
	text     string
	metadata map[string]any
	vector   []float32
}

// SemanticOption configures a SemanticMemory.
type SemanticOption[T any] func(*SemanticMemory[T])

// WithIndexType selects the similarity mode (IndexFlatIP or IndexFlatL2).
func WithIndexType[T any](indexType string) SemanticOption[T] {
	return func(m *SemanticMemory[T]) { m.indexType = indexType }
}

// NewSemanticMemory creates a semantic index. toMeta and fromMeta may be nil;
// fromMeta is only required for QueryObjects.
func NewSemanticMemory[T any](
	provider EmbeddingProvider,
	toText func(T) string,
	toMeta func(T) map[string]any,
	fromMeta func(map[string]any) T,
	opts ...SemanticOption[T],
) *SemanticMemory[T] {
	m := &SemanticMemory[T]{
		provider:  provider,
		toText:    toText,
		toMeta:    toMeta,
		fromMeta:  fromMeta,
		indexType: IndexFlatIP,
		byKey:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store embeds and indexes an object. Objects whose metadata carries a
// "name" are upserted by that name; anonymous objects always append.
func (m *SemanticMemory[T]) Store(obj T) error {
	text := m.toText(obj)
	metadata := map[string]any{}
	if m.toMeta != nil {
		metadata = m.toMeta(obj)
	}
	vector, err := m.provider.Embed(text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if m.indexType == IndexFlatIP {
		normalize(vector)
	}

	id := uuid.NewString()
	key, _ := metadata["name"].(string)

	m.mu.Lock()
	defer m.mu.Unlock()
	if key != "" {
		if idx, ok := m.byKey[key]; ok {
			m.entries[idx] = semanticEntry{id: m.entries[idx].id, key: key, text: text, metadata: metadata, vector: vector}
			return nil
		}
	}
	m.entries = append(m.entries, semanticEntry{id: id, key: key, text: text, metadata: metadata, vector: vector})
	if key != "" {
		m.byKey[key] = len(m.entries) - 1
	}
	return nil
}

// Query returns up to k records scoring at or above threshold, best first.
func (m *SemanticMemory[T]) Query(text string, k int, threshold float64) ([]MemoryRecord, error) {
	queryVec, err := m.provider.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if m.indexType == IndexFlatIP {
		normalize(queryVec)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]MemoryRecord, 0, len(m.entries))
	for _, e := range m.entries {
		var score, distance float64
		if m.indexType == IndexFlatIP {
			score = float64(dot(queryVec, e.vector))
			if score < 0 {
				score = 0
			}
		} else {
			distance = l2(queryVec, e.vector)
			score = 1 / (1 + distance)
		}
		if score < threshold {
			continue
		}
		records = append(records, MemoryRecord{
			ID:       e.id,
			Text:     e.text,
			Metadata: e.metadata,
			Score:    score,
			Distance: distance,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Score > records[j].Score })
	if k > 0 && len(records) > k {
		records = records[:k]
	}
	return records, nil
}

// QueryObjects returns reconstructed objects for the top hits. Requires the
// from-metadata converter.
func (m *SemanticMemory[T]) QueryObjects(text string, k int, threshold float64) ([]T, error) {
	if m.fromMeta == nil {
		return nil, fmt.Errorf("from-metadata converter not configured")
	}
	records, err := m.Query(text, k, threshold)
	if err != nil {
		return nil, err
	}
	objects := make([]T, 0, len(records))
	for _, r := range records {
		objects = append(objects, m.fromMeta(r.Metadata))
	}
	return objects, nil
}

// AllMemories returns every stored record with a neutral score.
func (m *SemanticMemory[T]) AllMemories() []MemoryRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemoryRecord, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, MemoryRecord{ID: e.id, Text: e.text, Metadata: e.metadata})
	}
	return out
}

// Len returns the number of indexed entries.
func (m *SemanticMemory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops all indexed entries.
func (m *SemanticMemory[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.byKey = make(map[string]int)
}

const semanticSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id       TEXT PRIMARY KEY,
	key      TEXT,
	text     TEXT NOT NULL,
	metadata TEXT NOT NULL,
	vector   TEXT NOT NULL
);
`

// Save persists the index to a sqlite database at path, replacing any
// previous contents.
func (m *SemanticMemory[T]) Save(path string) error {
	db, err := openSemanticDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM memories"); err != nil {
		return fmt.Errorf("clear table: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		meta, err := json.Marshal(e.metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		vec, err := json.Marshal(e.vector)
		if err != nil {
			return fmt.Errorf("marshal vector: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO memories (id, key, text, metadata, vector) VALUES (?, ?, ?, ?, ?)",
			e.id, e.key, e.text, string(meta), string(vec),
		); err != nil {
			return fmt.Errorf("insert memory: %w", err)
		}
	}
	return tx.Commit()
}

// Load replaces the in-memory index with the contents of a sqlite database
// previously written by Save.
func (m *SemanticMemory[T]) Load(path string) error {
	db, err := openSemanticDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Query("SELECT id, key, text, metadata, vector FROM memories")
	if err != nil {
		return fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var entries []semanticEntry
	byKey := make(map[string]int)
	for rows.Next() {
		var e semanticEntry
		var meta, vec string
		if err := rows.Scan(&e.id, &e.key, &e.text, &meta, &vec); err != nil {
			return fmt.Errorf("scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &e.vector); err != nil {
			return fmt.Errorf("unmarshal vector: %w", err)
		}
		if e.key != "" {
			byKey[e.key] = len(entries)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = entries
	m.byKey = byKey
	return nil
}

func openSemanticDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(semanticSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	return db, nil
}

func normalize(v []float32) {
	var norm float64
	for _, c := range v {
		norm += float64(c) * float64(c)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func l2(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
