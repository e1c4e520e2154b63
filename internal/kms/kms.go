package kms

import (
	"context"

	"github.com/pkg/errors"
)

// ErrSecretNotFound is returned when a requested key_id has no secret.
var ErrSecretNotFound = errors.New("kms: secret not found")

// ErrNotImplemented is returned by backends that are named but not wired
// to a real cloud credential set in this deployment.
var ErrNotImplemented = errors.New("kms: backend not implemented")

// Service is the cloud-neutral key management interface every backend
// implements: Local, AWS, Azure, Google, IBM.
type Service interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool

	GetSecret(ctx context.Context, keyID string) ([]byte, error)
	PutSecret(ctx context.Context, keyID string, value []byte) error
	DeleteSecret(ctx context.Context, keyID string) error
	SecretExists(ctx context.Context, keyID string) (bool, error)
}

// Backend identifies which Service implementation to construct.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendAWS    Backend = "aws"
	BackendAzure  Backend = "azure"
	BackendGoogle Backend = "google"
	BackendIBM    Backend = "ibm"
)

// New constructs the Service for the named backend. path is only
// meaningful for BackendLocal, where it is the storage directory.
func New(backend Backend, path string) (Service, error) {
	switch backend {
	case BackendLocal:
		return NewLocal(path), nil
	case BackendAWS:
		return &unimplemented{name: "aws"}, nil
	case BackendAzure:
		return &unimplemented{name: "azure"}, nil
	case BackendGoogle:
		return &unimplemented{name: "google"}, nil
	case BackendIBM:
		return &unimplemented{name: "ibm"}, nil
	default:
		return nil, errors.Errorf("kms: unknown backend %q", backend)
	}
}

type unimplemented struct {
	name string
}

func (u *unimplemented) Initialize(context.Context) error { return nil }
func (u *unimplemented) IsInitialized() bool              { return false }

func (u *unimplemented) GetSecret(context.Context, string) ([]byte, error) {
	return nil, errors.Wrapf(ErrNotImplemented, "backend %s", u.name)
}

func (u *unimplemented) PutSecret(context.Context, string, []byte) error {
	return errors.Wrapf(ErrNotImplemented, "backend %s", u.name)
}

func (u *unimplemented) DeleteSecret(context.Context, string) error {
	return errors.Wrapf(ErrNotImplemented, "backend %s", u.name)
}

func (u *unimplemented) SecretExists(context.Context, string) (bool, error) {
	return false, errors.Wrapf(ErrNotImplemented, "backend %s", u.name)
}
