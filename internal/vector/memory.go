package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/pkg/utils"
)

// MemoryStore is an in-memory vector store using brute-force cosine search.
// When a path is set it is loaded on creation and written by Save and Close. Query and Size reload the
// file when another process has replaced it, unless this store holds unsaved upserts.
type MemoryStore struct {
	dimensions int
	path       string
	index      map[string]int
	records    []models.IndexedRecord
	mu         sync.RWMutex

	// stamp of the file as last loaded or saved; dirty is set by Upsert until the next Save.
	modTime time.Time
	size    int64
	dirty   bool
}

// NewMemoryStore creates an in-memory store with the given dimension, loading path if it exists.
// An empty path keeps the store purely in memory.
func NewMemoryStore(dimensions int, path string) (*MemoryStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfiguration)
	}
	m := &MemoryStore{
		dimensions: dimensions,
		path:       path,
		index:      make(map[string]int),
	}
	if err := m.Load(path); err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert stores copies of the records, replacing any with the same id.
func (m *MemoryStore) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	for _, r := range records {
		if len(r.Values) != m.dimensions {
			return models.NewStageError(models.ErrUpsert, "memory upsert",
				fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d", r.ID, len(r.Values), m.dimensions))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Values)
		rec := models.IndexedRecord{ID: r.ID, Values: vec, Metadata: r.Metadata}
		if i, ok := m.index[r.ID]; ok {
			m.records[i] = rec
			continue
		}
		m.index[r.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	m.dirty = m.dirty || len(records) > 0
	return nil
}

// refresh reloads the backing file if it changed since it was last loaded or saved.
func (m *MemoryStore) refresh() error {
	if m.path == "" {
		return nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat index file: %w", err)
	}
	m.mu.RLock()
	stale := !m.dirty && (!info.ModTime().Equal(m.modTime) || info.Size() != m.size)
	m.mu.RUnlock()
	if !stale {
		return nil
	}
	return m.load(m.path, true)
}

// Query returns the top-k records by cosine similarity.
func (m *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]models.RetrievalMatch, error) {
	if len(vector) != m.dimensions {
		return nil, models.NewStageError(models.ErrSearch, "memory query",
			fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vector), m.dimensions))
	}
	if err := m.refresh(); err != nil {
		return nil, models.NewStageError(models.ErrSearch, "memory query", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	matches := make([]models.RetrievalMatch, len(m.records))
	for i, r := range m.records {
		matches[i] = models.RetrievalMatch{ID: r.ID, Score: utils.Cosine(vector, r.Values), Metadata: r.Metadata}
	}
	sortMatches(matches)
	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

// sortMatches orders by descending score, breaking ties by id so results are stable.
func sortMatches(matches []models.RetrievalMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// Size returns the number of records.
func (m *MemoryStore) Size(ctx context.Context) (int, error) {
	if err := m.refresh(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Save persists the store to its path. Format: dimension (4), n (4), then per record: metadata length (4),
// metadata JSON with the id, vector (dimension*4 bytes). The file is replaced atomically.
// A store with no upserts since its last load or save leaves the file alone.
func (m *MemoryStore) Save() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".vectors-*")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	if err := m.write(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	if info, err := os.Stat(m.path); err == nil {
		m.modTime, m.size = info.ModTime(), info.Size()
	}
	m.dirty = false
	return nil
}

type storedRecord struct {
	ID       string                `json:"id"`
	Metadata models.RecordMetadata `json:"metadata"`
}

func (m *MemoryStore) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, r := range m.records {
		meta, err := json.Marshal(storedRecord{ID: r.ID, Metadata: r.Metadata})
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(meta))); err != nil {
			return fmt.Errorf("write record len: %w", err)
		}
		if _, err := w.Write(meta); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(r.Values)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the store from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the store is unchanged.
func (m *MemoryStore) Load(path string) error {
	return m.load(path, false)
}

// load reads path; with keepDirty set it leaves the store alone if upserts arrived while reading.
func (m *MemoryStore) load(path string, keepDirty bool) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: index file has %d dimensions, store expects %d", models.ErrConfiguration, dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	records := make([]models.IndexedRecord, 0, n)
	index := make(map[string]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var metaLen uint32
		if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
			return fmt.Errorf("read record len: %w", err)
		}
		meta := make([]byte, metaLen)
		if _, err := io.ReadFull(r, meta); err != nil {
			return fmt.Errorf("read record: %w", err)
		}
		var sr storedRecord
		if err := json.Unmarshal(meta, &sr); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		index[sr.ID] = len(records)
		records = append(records, models.IndexedRecord{ID: sr.ID, Values: bytesToFloat32Slice(buf), Metadata: sr.Metadata})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if keepDirty && m.dirty {
		return nil
	}
	m.records = records
	m.index = index
	if path == m.path {
		m.modTime, m.size = info.ModTime(), info.Size()
		m.dirty = false
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Close saves the store when it has a path.
func (m *MemoryStore) Close() error {
	return m.Save()
}
