package persistency

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrBadKey is returned when an operation reads state for a key_id that was
// never written.
var ErrBadKey = errors.New("persistency: bad key")

// ErrInternal is returned when a one-shot write is attempted twice, or
// metadata is overwritten without allow_override.
var ErrInternal = errors.New("persistency: internal")

// DefaultTenantID is returned by GetTenantIDFromKeyID when a key_id was
// never bound to a tenant.
const DefaultTenantID = "default-tenant"

// KeyRecord is the long-lived share plus whatever metadata and auxiliary
// material (Paillier keys, proofs) the crypto provider attached to it.
type KeyRecord struct {
	Algorithm string
	Share     []byte
	Metadata  []byte
	Aux       []byte

	hasMetadata bool
	hasAux      bool
}

// setupRecord is the per-tx scratch state a signing or keygen session
// accumulates across phases, erased by DeleteTemporaryKeyData once the
// session is over.
type setupRecord struct {
	data        []byte
	hasData     bool
	commitments map[uint64][]byte
}

// Store is the per-key and per-tx scratch store the crypto provider
// consumes during keygen and signing. All state lives in process memory,
// guarded by a single RWMutex in the copy-out-reads / exclusive-writes
// idiom used throughout this codebase.
type Store struct {
	mu sync.RWMutex

	keys        map[string]*KeyRecord
	setup       map[string]*setupRecord
	keyToTenant map[string]string
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		keys:        make(map[string]*KeyRecord),
		setup:       make(map[string]*setupRecord),
		keyToTenant: make(map[string]string),
	}
}

// KeyExist reports whether a share has been stored for key_id.
func (s *Store) KeyExist(keyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.keys[keyID]
	return ok
}

// LoadKey returns the algorithm and share stored for key_id.
func (s *Store) LoadKey(keyID string) (algorithm string, share []byte, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[keyID]
	if !ok {
		return "", nil, errors.Wrapf(ErrBadKey, "load_key %q", keyID)
	}
	return rec.Algorithm, rec.Share, nil
}

// LoadKeyMetadata returns the metadata stored for key_id.
func (s *Store) LoadKeyMetadata(keyID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[keyID]
	if !ok || !rec.hasMetadata {
		return nil, errors.Wrapf(ErrBadKey, "load_key_metadata %q", keyID)
	}
	return rec.Metadata, nil
}

// LoadAuxiliaryKeys returns the auxiliary material (e.g. Paillier keys)
// stored for key_id.
func (s *Store) LoadAuxiliaryKeys(keyID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[keyID]
	if !ok || !rec.hasAux {
		return nil, errors.Wrapf(ErrBadKey, "load_auxiliary_keys %q", keyID)
	}
	return rec.Aux, nil
}

// StoreKey writes the share for key_id. ttl is accepted for interface
// parity with the original persistency contract; this in-memory store
// never expires entries on its own.
func (s *Store) StoreKey(keyID, algorithm string, share []byte, ttl uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.keys[keyID]
	if rec == nil {
		rec = &KeyRecord{}
		s.keys[keyID] = rec
	}
	rec.Algorithm = algorithm
	rec.Share = share
}

// StoreKeyMetadata writes metadata for key_id. If metadata is already set
// and allowOverride is false, this returns ErrInternal without modifying
// the stored value.
func (s *Store) StoreKeyMetadata(keyID string, metadata []byte, allowOverride bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.keys[keyID]
	if rec == nil {
		rec = &KeyRecord{}
		s.keys[keyID] = rec
	}
	if rec.hasMetadata && !allowOverride {
		return errors.Wrapf(ErrInternal, "store_key_metadata %q: already set", keyID)
	}
	rec.Metadata = metadata
	rec.hasMetadata = true
	return nil
}

// StoreAuxiliaryKeys writes auxiliary material for key_id.
func (s *Store) StoreAuxiliaryKeys(keyID string, aux []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.keys[keyID]
	if rec == nil {
		rec = &KeyRecord{}
		s.keys[keyID] = rec
	}
	rec.Aux = aux
	rec.hasAux = true
}

// StoreKeyIDTenantID binds key_id to tenant_id.
func (s *Store) StoreKeyIDTenantID(keyID, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyToTenant[keyID] = tenantID
}

// GetTenantIDFromKeyID returns the tenant bound to key_id, or
// DefaultTenantID if none was ever bound.
func (s *Store) GetTenantIDFromKeyID(keyID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tenant, ok := s.keyToTenant[keyID]; ok {
		return tenant
	}
	return DefaultTenantID
}

func (s *Store) setupFor(keyID string) *setupRecord {
	rec := s.setup[keyID]
	if rec == nil {
		rec = &setupRecord{commitments: make(map[uint64][]byte)}
		s.setup[keyID] = rec
	}
	return rec
}

// StoreSetupData writes per-key setup scratch for an in-progress session.
func (s *Store) StoreSetupData(keyID string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.setupFor(keyID)
	rec.data = data
	rec.hasData = true
}

// LoadSetupData reads per-key setup scratch.
func (s *Store) LoadSetupData(keyID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.setup[keyID]
	if !ok || !rec.hasData {
		return nil, errors.Wrapf(ErrBadKey, "load_setup_data %q", keyID)
	}
	return rec.data, nil
}

// StoreSetupCommitments writes the per-player commitment map for key_id.
// This is a one-shot write: calling it twice for the same key_id returns
// ErrInternal and leaves the first set of commitments untouched.
func (s *Store) StoreSetupCommitments(keyID string, commitments map[uint64][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.setupFor(keyID)
	if len(rec.commitments) > 0 {
		return errors.Wrapf(ErrInternal, "store_setup_commitments %q: already set", keyID)
	}
	for playerID, c := range commitments {
		rec.commitments[playerID] = c
	}
	return nil
}

// LoadSetupCommitments reads the per-player commitment map for key_id.
func (s *Store) LoadSetupCommitments(keyID string) (map[uint64][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.setup[keyID]
	if !ok || len(rec.commitments) == 0 {
		return nil, errors.Wrapf(ErrBadKey, "load_setup_commitments %q", keyID)
	}
	out := make(map[uint64][]byte, len(rec.commitments))
	for k, v := range rec.commitments {
		out[k] = v
	}
	return out, nil
}

// DeleteTemporaryKeyData erases the per-tx setup scratch and commitments
// for key_id. If deleteKey is true it also erases the stored share,
// metadata, and auxiliary keys. Called unconditionally by the node's
// phase-5 signing handler once a signature response has been produced,
// whether or not signing succeeded.
func (s *Store) DeleteTemporaryKeyData(keyID string, deleteKey bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.setup, keyID)
	if deleteKey {
		delete(s.keys, keyID)
	}
}
