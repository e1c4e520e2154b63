package resloader

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Local reads resources directly off the process filesystem, rooted at a
// base directory, matching LocalKMS/IReadOnlyResLoader's local-disk model
// from the original implementation.
type Local struct {
	mu            sync.Mutex
	root          string
	isInitialized bool
}

// NewLocal constructs a Local loader rooted at root.
func NewLocal(root string) *Local {
	l := &Local{root: root}
	l.isInitialized = true
	return l
}

func (l *Local) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.root, path)
}

func (l *Local) ReadFile(path string) (string, error) {
	data, err := l.ReadBinaryFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *Local) ReadBinaryFile(path string) ([]byte, error) {
	data, err := os.ReadFile(l.resolve(path))
	if err != nil {
		return nil, errors.Wrapf(err, "resloader: read %s", path)
	}
	return data, nil
}

func (l *Local) Exists(path string) bool {
	_, err := os.Stat(l.resolve(path))
	return err == nil
}

func (l *Local) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isInitialized
}
