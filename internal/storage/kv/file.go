package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const defaultStateDir = "./state"

// StateDirEnv overrides the directory used by the file backend.
const StateDirEnv = "BTCSIM_STATE_DIR"

// FileStore keeps one JSON file per key and replaces it atomically via a temp file.
// Writers take an OS file lock next to the value, so separate processes sharing the
// directory never interleave a read-modify-write.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func getStateDir(dir string) string {
	if stateDir := os.Getenv(StateDirEnv); stateDir != "" {
		return stateDir
	}
	if dir != "" {
		return dir
	}

	return defaultStateDir
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	stateDir := getStateDir(dir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}

	return &FileStore{dir: stateDir}, nil
}

// Dir returns the directory holding the state files.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, errors.Wrapf(err, "read state file %s", path)
	}

	if len(payload) == 0 {
		return nil, ErrNotFound
	}

	return payload, nil
}

func (s *FileStore) Put(_ context.Context, key string, value []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	unlock, err := s.lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	return s.write(path, value)
}

func (s *FileStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	unlock, err := s.lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.Get(ctx, key)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	next, err := fn(current, found)
	if err != nil {
		return err
	}

	return s.write(path, next)
}

// lock serializes writers of path inside the process and across processes.
func (s *FileStore) lock(path string) (func(), error) {
	s.mu.Lock()
	release, err := lockFile(path + ".lock")
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	return func() {
		release()
		s.mu.Unlock()
	}, nil
}

func (s *FileStore) write(path string, value []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return errors.Wrap(err, "write state temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "persist state file")
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	name := sanitizeKey(key)
	if name == "" {
		return "", errors.Errorf("invalid state key %q", key)
	}

	return filepath.Join(s.dir, fmt.Sprintf("%s.json", name)), nil
}

// sanitizeKey maps a key to a safe file name: lower-case letters, digits and single underscores.
func sanitizeKey(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
