package taskcache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
)

const (
	CursorFileName  = "cursor.txt"
	DatasetFileName = "dataset.json"

	snapshotVersion = 1
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".taskcache-*.tmp"
)

// ErrCorrupt reports a cache file that exists but cannot be trusted.
var ErrCorrupt = errors.New("taskcache: corrupt snapshot")

// Store persists a Snapshot.
type Store interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// FileStore keeps the cursor and dataset as two files in one directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string { return s.dir }

type snapshotFile struct {
	Version  int       `json:"version"`
	Cursor   string    `json:"cursor"`
	Checksum string    `json:"checksum"`
	Projects []Project `json:"projects"`
	Items    []Item    `json:"items"`
}

type checksumPayload struct {
	Cursor   string    `json:"cursor"`
	Projects []Project `json:"projects"`
	Items    []Item    `json:"items"`
}

// Load reads the snapshot. Missing files yield Empty() and no error. A file
// that fails to decode or verify yields Empty() and an error wrapping
// ErrCorrupt.
func (s *FileStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, DatasetFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("read dataset: %w", err)
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Empty(), fmt.Errorf("%w: decode dataset: %v", ErrCorrupt, err)
	}
	if file.Version != snapshotVersion {
		return Empty(), fmt.Errorf("%w: unsupported version %d", ErrCorrupt, file.Version)
	}
	sum, err := checksum(file.Cursor, file.Projects, file.Items)
	if err != nil {
		return Empty(), fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if sum != file.Checksum {
		return Empty(), fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	cursor := strings.TrimSpace(file.Cursor)
	if cursor == "" {
		// Snapshots written before the cursor moved into the envelope.
		raw, err := os.ReadFile(filepath.Join(s.dir, CursorFileName))
		if err == nil {
			cursor = strings.TrimSpace(string(raw))
		}
	}
	if cursor == "" {
		cursor = InitialCursor
	}

	snap := Snapshot{Cursor: cursor, Dataset: Dataset{Projects: file.Projects, Items: file.Items}}
	if snap.Dataset.Projects == nil {
		snap.Dataset.Projects = []Project{}
	}
	if snap.Dataset.Items == nil {
		snap.Dataset.Items = []Item{}
	}
	return snap, nil
}

// Save writes the dataset file and then the cursor file, each by
// write-then-rename. The dataset envelope carries its own cursor, so a crash
// between the two renames leaves a consistent pair on the next Load.
func (s *FileStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	cursor := snap.Cursor
	if cursor == "" {
		cursor = InitialCursor
	}
	projects := snap.Dataset.Projects
	if projects == nil {
		projects = []Project{}
	}
	items := snap.Dataset.Items
	if items == nil {
		items = []Item{}
	}

	sum, err := checksum(cursor, projects, items)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snapshotFile{
		Version:  snapshotVersion,
		Cursor:   cursor,
		Checksum: sum,
		Projects: projects,
		Items:    items,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(s.dir, DatasetFileName), data); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, CursorFileName), []byte(cursor+"\n"))
}

func checksum(cursor string, projects []Project, items []Item) (string, error) {
	if projects == nil {
		projects = []Project{}
	}
	if items == nil {
		items = []Item{}
	}
	payload, err := json.Marshal(checksumPayload{Cursor: cursor, Projects: projects, Items: items})
	if err != nil {
		return "", fmt.Errorf("encode checksum payload: %w", err)
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func writeFileAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filepath.Base(path), err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file for %s: %w", filepath.Base(path), err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file for %s: %w", filepath.Base(path), err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file for %s: %w", filepath.Base(path), err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}

	cleanup = false
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
	// SaveErr, when set, is returned by Save.
	SaveErr error
}

func (m *MemoryStore) Load() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return Empty(), nil
	}
	return Snapshot{Cursor: m.snap.Cursor, Dataset: m.snap.Dataset.Clone()}, nil
}

func (m *MemoryStore) Save(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snap = &Snapshot{Cursor: snap.Cursor, Dataset: snap.Dataset.Clone()}
	return nil
}
