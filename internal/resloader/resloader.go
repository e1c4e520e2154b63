package resloader

import (
	"github.com/pkg/errors"
)

// ErrNotImplemented is returned by backends that are named but not wired
// to real platform-specific disk access in this deployment.
var ErrNotImplemented = errors.New("resloader: backend not implemented")

// Loader is the cloud-neutral read-only resource loader every backend
// implements: Local, AWS, Azure, Google, IBM.
type Loader interface {
	ReadFile(path string) (string, error)
	ReadBinaryFile(path string) ([]byte, error)
	Exists(path string) bool
	IsInitialized() bool
}

// Platform identifies which Loader implementation to construct.
type Platform string

const (
	PlatformLocal  Platform = "local"
	PlatformAWS    Platform = "aws"
	PlatformAzure  Platform = "azure"
	PlatformGoogle Platform = "google"
	PlatformIBM    Platform = "ibm"
)

// New constructs the Loader for the named platform. root is only
// meaningful for PlatformLocal, where it anchors relative paths.
func New(platform Platform, root string) (Loader, error) {
	switch platform {
	case PlatformLocal:
		return NewLocal(root), nil
	case PlatformAWS:
		return &unimplemented{name: "aws"}, nil
	case PlatformAzure:
		return &unimplemented{name: "azure"}, nil
	case PlatformGoogle:
		return &unimplemented{name: "google"}, nil
	case PlatformIBM:
		return &unimplemented{name: "ibm"}, nil
	default:
		return nil, errors.Errorf("resloader: unknown platform %q", platform)
	}
}

type unimplemented struct {
	name string
}

func (u *unimplemented) ReadFile(string) (string, error) {
	return "", errors.Wrapf(ErrNotImplemented, "platform %s", u.name)
}

func (u *unimplemented) ReadBinaryFile(string) ([]byte, error) {
	return nil, errors.Wrapf(ErrNotImplemented, "platform %s", u.name)
}

func (u *unimplemented) Exists(string) bool  { return false }
func (u *unimplemented) IsInitialized() bool { return false }
