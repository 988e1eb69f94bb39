package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/srv328/coffee-classification/internal/features"
	"github.com/srv328/coffee-classification/internal/network"
)

const artifactVersion = 1

var (
	ErrArtifactNotFound = errors.New("model artifact not found")
	ErrArtifactInvalid  = errors.New("model artifact is invalid")
)

// Class is one output of the network, in output order.
type Class struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Artifact is everything inference needs, persisted as one file so the
// weights, scaler and schema can never be read from different runs.
type Artifact struct {
	Version     int                  `json:"version"`
	RunID       string               `json:"run_id"`
	TrainedAt   time.Time            `json:"trained_at"`
	KBVersion   time.Time            `json:"kb_version"`
	Fingerprint string               `json:"schema_fingerprint"`
	Schema      *features.Schema     `json:"schema"`
	Classes     []Class              `json:"classes"`
	Normalizer  *features.Normalizer `json:"normalizer"`
	Network     *network.Snapshot    `json:"network"`
}

// Validate checks that the parts of the artifact agree with each other.
func (a *Artifact) Validate() error {
	switch {
	case a.Version != artifactVersion:
		return fmt.Errorf("%w: version %d, want %d", ErrArtifactInvalid, a.Version, artifactVersion)
	case a.Schema == nil || a.Normalizer == nil || a.Network == nil:
		return fmt.Errorf("%w: missing schema, normalizer or network", ErrArtifactInvalid)
	case a.Schema.Fingerprint() != a.Fingerprint:
		return fmt.Errorf("%w: schema does not match its fingerprint", ErrArtifactInvalid)
	case a.Network.Inputs != a.Schema.Width():
		return fmt.Errorf("%w: network takes %d features, schema has %d", ErrArtifactInvalid, a.Network.Inputs, a.Schema.Width())
	case a.Network.Outputs != len(a.Classes):
		return fmt.Errorf("%w: network has %d outputs for %d classes", ErrArtifactInvalid, a.Network.Outputs, len(a.Classes))
	}
	if err := a.Normalizer.Validate(a.Schema); err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	return nil
}

// Store persists the current artifact.
type Store interface {
	Load() (*Artifact, error)
	Save(a *Artifact) error
	Path() string
}

// FileStore keeps the artifact as a JSON file. Saves go through a temporary
// file in the same directory and a rename, so readers see either the old or
// the new artifact.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads and validates the artifact. A missing file returns ErrArtifactNotFound.
func (s *FileStore) Load() (*Artifact, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactInvalid, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *FileStore) Save(a *Artifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}
