package session

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// fileRecord is the on-disk layout.
type fileRecord struct {
	SessionID string            `yaml:"session_id"`
	UpdatedAt time.Time         `yaml:"updated_at"`
	Markers   map[string]string `yaml:"markers"`
}

// FileStore keeps markers in a small YAML file so they survive restarts.
type FileStore struct {
	path string
	ttl  time.Duration
	now  func() time.Time

	mu sync.Mutex
}

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string, ttl time.Duration) (*FileStore, error) {
	if path == "" {
		return nil, storeError("file store", errors.New("empty path"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, storeError("create session dir", err)
	}
	return &FileStore{path: path, ttl: ttl, now: time.Now}, nil
}

// SessionID identifies the stored session, "" before the first write.
func (s *FileStore) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.load()
	if err != nil {
		return ""
	}
	return rec.SessionID
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := rec.Markers[key]
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	if rec.SessionID == "" {
		rec.SessionID = uuid.NewString()
	}
	rec.Markers[key] = value
	return s.save(rec)
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(rec.Markers, k)
	}
	if len(rec.Markers) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storeError("remove session file", err)
		}
		return nil
	}
	return s.save(rec)
}

func (s *FileStore) Close() error { return nil }

// load returns an empty record when the file is missing or expired.
func (s *FileStore) load() (fileRecord, error) {
	empty := fileRecord{Markers: make(map[string]string)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return empty, storeError("read session file", err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return empty, storeError("decode session file", err)
	}
	if rec.Markers == nil {
		rec.Markers = make(map[string]string)
	}
	if s.ttl > 0 && !rec.UpdatedAt.IsZero() && s.now().Sub(rec.UpdatedAt) > s.ttl {
		return empty, nil
	}
	return rec, nil
}

// save writes through a temp file so readers never see a partial file.
func (s *FileStore) save(rec fileRecord) error {
	rec.UpdatedAt = s.now().UTC()
	data, err := yaml.Marshal(rec)
	if err != nil {
		return storeError("encode session file", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return storeError("write session file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storeError("write session file", err)
	}
	if err := tmp.Close(); err != nil {
		return storeError("write session file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return storeError("replace session file", err)
	}
	return nil
}
