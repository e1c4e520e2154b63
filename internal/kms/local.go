package kms

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// Local is a filesystem-backed Service: each secret is a file named after
// its key_id inside a storage directory, matching LocalKMS's storage model
// from the original implementation.
type Local struct {
	mu            sync.Mutex
	storagePath   string
	isInitialized bool
}

// NewLocal constructs a Local backend rooted at storagePath. Initialize
// must be called before use.
func NewLocal(storagePath string) *Local {
	return &Local{storagePath: storagePath}
}

func (l *Local) Initialize(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.storagePath, 0o700); err != nil {
		return errors.Wrap(err, "kms: create local storage directory")
	}
	l.isInitialized = true
	return nil
}

func (l *Local) IsInitialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isInitialized
}

func (l *Local) path(keyID string) (string, error) {
	if keyID == "" || filepath.Base(keyID) != keyID {
		return "", errors.Errorf("kms: invalid key_id %q", keyID)
	}
	return filepath.Join(l.storagePath, keyID), nil
}

func (l *Local) GetSecret(_ context.Context, keyID string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.path(keyID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrSecretNotFound, "key_id %s", keyID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "kms: read secret")
	}
	return data, nil
}

func (l *Local) PutSecret(_ context.Context, keyID string, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.path(keyID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, value, 0o600); err != nil {
		return errors.Wrap(err, "kms: write secret")
	}
	return nil
}

func (l *Local) DeleteSecret(_ context.Context, keyID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.path(keyID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "kms: delete secret")
	}
	return nil
}

func (l *Local) SecretExists(_ context.Context, keyID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.path(keyID)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "kms: stat secret")
	}
	return true, nil
}
