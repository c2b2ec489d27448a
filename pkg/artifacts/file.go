package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON document per artifact in a directory:
// <target>_model.json and <target>_ensemble.json. Writes go through a temp
// file and rename, so readers never observe a partial artifact.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("artifact directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *FileStore) Dir() string {
	return s.dir
}

// ModelPath returns the file a target's model artifact lives in.
func (s *FileStore) ModelPath(target string) string {
	return filepath.Join(s.dir, target+"_model.json")
}

// EnsemblePath returns the file a target's ensemble artifact lives in.
func (s *FileStore) EnsemblePath(target string) string {
	return filepath.Join(s.dir, target+"_ensemble.json")
}

func (s *FileStore) SaveModel(_ context.Context, a *ModelArtifact) error {
	if err := checkTarget(a.Target); err != nil {
		return err
	}
	return s.write(s.ModelPath(a.Target), a)
}

func (s *FileStore) LoadModel(_ context.Context, target string) (*ModelArtifact, bool, error) {
	if err := checkTarget(target); err != nil {
		return nil, false, err
	}
	var a ModelArtifact
	found, err := s.read(s.ModelPath(target), &a)
	if !found || err != nil {
		return nil, found, err
	}
	return &a, true, nil
}

func (s *FileStore) SaveEnsemble(_ context.Context, e *EnsembleArtifact) error {
	if err := checkTarget(e.Target); err != nil {
		return err
	}
	return s.write(s.EnsemblePath(e.Target), e)
}

func (s *FileStore) LoadEnsemble(_ context.Context, target string) (*EnsembleArtifact, bool, error) {
	if err := checkTarget(target); err != nil {
		return nil, false, err
	}
	var e EnsembleArtifact
	found, err := s.read(s.EnsemblePath(target), &e)
	if !found || err != nil {
		return nil, found, err
	}
	return &e, true, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) write(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) read(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
