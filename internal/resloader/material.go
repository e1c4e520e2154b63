package resloader

import (
	"context"

	"github.com/dreamware/mpcengine/internal/kms"
)

// MaterialSource adapts a Loader (CA bundle, certificate chain) and a
// kms.Service (private key) into internal/transport.MaterialSource.
type MaterialSource struct {
	Loader     Loader
	KMS        kms.Service
	CACertPath string
	CertPath   string
	KeyID      string
}

func (m MaterialSource) CACert() ([]byte, error) {
	return m.Loader.ReadBinaryFile(m.CACertPath)
}

func (m MaterialSource) Cert() ([]byte, error) {
	return m.Loader.ReadBinaryFile(m.CertPath)
}

func (m MaterialSource) Key() ([]byte, error) {
	return m.KMS.GetSecret(context.Background(), m.KeyID)
}
