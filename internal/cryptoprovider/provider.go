package cryptoprovider

import "github.com/dreamware/mpcengine/internal/persistency"

// ProviderName and ProviderVersion are string metadata surfaced in logs
// only, per mpc-sdk/interface/ICryptoProvider.h's provider_name/version.
const (
	ProviderName    = "mpcengine-local"
	ProviderVersion = "1.0.0"
)

// Provider bundles the three capability interfaces the node server
// dispatches phase requests to.
type Provider struct {
	KeyGen KeyGenerator
	ECDSA  ECDSASigner
	EdDSA  EdDSASigner

	store *persistency.Store
}

// New returns a Provider backed by a single persistency store shared
// across all three capabilities, as the original mpc-sdk's providers do.
func New(store *persistency.Store) *Provider {
	return &Provider{
		KeyGen: NewKeyGenerator(store),
		ECDSA:  NewECDSASigner(store),
		EdDSA:  NewEdDSASigner(store),
		store:  store,
	}
}

// DeleteSigningScratch erases the per-tx setup scratch a signing session
// accumulated for (keyID, txID), without touching the stored share. The
// node's phase-5 signing handlers call this unconditionally once a
// signature response has been produced, whether or not signing
// succeeded.
func (p *Provider) DeleteSigningScratch(keyID, txID string) {
	p.store.DeleteTemporaryKeyData(txKey(keyID, txID), false)
}

// Name returns the provider identity string.
func (p *Provider) Name() string { return ProviderName }

// Version returns the provider version string.
func (p *Provider) Version() string { return ProviderVersion }
