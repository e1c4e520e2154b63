package cryptoprovider

import (
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/otiai10/primes"
	"github.com/pkg/errors"

	"github.com/dreamware/mpcengine/internal/persistency"
)

// KeyGenerator runs the 5-phase distributed keygen protocol for a single
// key_id, grounded on mpc-sdk/interface/IKeyGenerator.h.
type KeyGenerator interface {
	Phase1GenerateCommitment(keyID, tenantID string, algorithm Algorithm, playerIDs []uint64, threshold int, selfPlayerID uint64) (Commitment, error)
	Phase2GenerateDecommitment(keyID string, allCommitments map[uint64]Commitment) (Decommitment, error)
	Phase3GenerateZKProof(keyID string, allDecommitments map[uint64]Decommitment) (ZKProof, error)
	Phase4VerifyAndGeneratePaillierProof(keyID string, allZKProofs map[uint64]ZKProof) (PaillierProof, error)
	Phase5CreatePublicKey(keyID string, allPaillierProofs map[uint64]PaillierProof) (KeyGenResult, error)
}

// keygenState is the per-key scratch this implementation threads through
// phases 1-4 via the persistency store's setup-data slot, mirroring
// FireblocksPersistency's setup_data/commitments tables.
type keygenState struct {
	TenantID     string
	Algorithm    Algorithm
	PlayerIDs    []uint64
	Threshold    int
	SelfPlayerID uint64
	Decommitted  bool
	ZKVerified   bool
}

type localKeyGenerator struct {
	store *persistency.Store
}

// NewKeyGenerator returns a KeyGenerator backed by store for per-tx
// scratch and final share persistence.
func NewKeyGenerator(store *persistency.Store) KeyGenerator {
	return &localKeyGenerator{store: store}
}

func (g *localKeyGenerator) saveState(keyID string, st keygenState) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return fault(Internal, "phase", errors.Wrap(err, "marshal keygen state"))
	}
	g.store.StoreSetupData(keyID, buf)
	return nil
}

func (g *localKeyGenerator) loadState(keyID, op string) (keygenState, error) {
	var st keygenState
	buf, err := g.store.LoadSetupData(keyID)
	if err != nil {
		return st, fault(MissingPhaseState, op, err)
	}
	if err := json.Unmarshal(buf, &st); err != nil {
		return st, fault(Internal, op, errors.Wrap(err, "unmarshal keygen state"))
	}
	return st, nil
}

func (g *localKeyGenerator) Phase1GenerateCommitment(keyID, tenantID string, algorithm Algorithm, playerIDs []uint64, threshold int, selfPlayerID uint64) (Commitment, error) {
	if algorithm == Unknown {
		return Commitment{}, fault(InvalidAlgorithm, "phase1_generate_commitment", nil)
	}

	st := keygenState{
		TenantID:     tenantID,
		Algorithm:    algorithm,
		PlayerIDs:    append([]uint64(nil), playerIDs...),
		Threshold:    threshold,
		SelfPlayerID: selfPlayerID,
	}
	if err := g.saveState(keyID, st); err != nil {
		return Commitment{}, err
	}
	g.store.StoreKeyIDTenantID(keyID, tenantID)

	data := commitmentDigest(keyID, selfPlayerID, algorithm)
	return Commitment{PlayerID: selfPlayerID, Data: data}, nil
}

func (g *localKeyGenerator) Phase2GenerateDecommitment(keyID string, allCommitments map[uint64]Commitment) (Decommitment, error) {
	st, err := g.loadState(keyID, "phase2_generate_decommitment")
	if err != nil {
		return Decommitment{}, err
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := allCommitments[playerID]; !ok {
			return Decommitment{}, fault(ProofVerification, "phase2_generate_decommitment", errors.Errorf("missing commitment for player %d", playerID))
		}
	}
	st.Decommitted = true
	if err := g.saveState(keyID, st); err != nil {
		return Decommitment{}, err
	}
	data := commitmentDigest(keyID, st.SelfPlayerID, st.Algorithm)
	return Decommitment{PlayerID: st.SelfPlayerID, Data: data}, nil
}

func (g *localKeyGenerator) Phase3GenerateZKProof(keyID string, allDecommitments map[uint64]Decommitment) (ZKProof, error) {
	st, err := g.loadState(keyID, "phase3_generate_zk_proof")
	if err != nil {
		return ZKProof{}, err
	}
	if !st.Decommitted {
		return ZKProof{}, fault(MissingPhaseState, "phase3_generate_zk_proof", nil)
	}
	for _, playerID := range st.PlayerIDs {
		dec, ok := allDecommitments[playerID]
		if !ok {
			return ZKProof{}, fault(ProofVerification, "phase3_generate_zk_proof", errors.Errorf("missing decommitment for player %d", playerID))
		}
		want := commitmentDigest(keyID, playerID, st.Algorithm)
		if string(dec.Data) != string(want) {
			return ZKProof{}, fault(ProofVerification, "phase3_generate_zk_proof", errors.Errorf("decommitment mismatch for player %d", playerID))
		}
	}
	return ZKProof{PlayerID: st.SelfPlayerID, Data: commitmentDigest(keyID, st.SelfPlayerID, st.Algorithm)}, nil
}

func (g *localKeyGenerator) Phase4VerifyAndGeneratePaillierProof(keyID string, allZKProofs map[uint64]ZKProof) (PaillierProof, error) {
	st, err := g.loadState(keyID, "phase4_verify_and_generate_paillier_proof")
	if err != nil {
		return PaillierProof{}, err
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := allZKProofs[playerID]; !ok {
			return PaillierProof{}, fault(ProofVerification, "phase4_verify_and_generate_paillier_proof", errors.Errorf("missing zk proof for player %d", playerID))
		}
	}
	st.ZKVerified = true
	if err := g.saveState(keyID, st); err != nil {
		return PaillierProof{}, err
	}

	modulus := paillierModulusStandIn(keyID)
	g.store.StoreAuxiliaryKeys(keyID, modulus.Bytes())
	return PaillierProof{PlayerID: st.SelfPlayerID, Data: modulus.Bytes()}, nil
}

func (g *localKeyGenerator) Phase5CreatePublicKey(keyID string, allPaillierProofs map[uint64]PaillierProof) (KeyGenResult, error) {
	st, err := g.loadState(keyID, "phase5_create_public_key")
	if err != nil {
		return KeyGenResult{}, err
	}
	if !st.ZKVerified {
		return KeyGenResult{}, fault(MissingPhaseState, "phase5_create_public_key", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := allPaillierProofs[playerID]; !ok {
			return KeyGenResult{}, fault(ProofVerification, "phase5_create_public_key", errors.Errorf("missing paillier proof for player %d", playerID))
		}
	}

	share := sha256.Sum256(append([]byte(keyID), byte(st.SelfPlayerID)))
	pub, err := derivePublicKey(keyID, st.Algorithm)
	if err != nil {
		return KeyGenResult{}, fault(Internal, "phase5_create_public_key", err)
	}

	g.store.StoreKey(keyID, st.Algorithm.String(), share[:], 0)
	metadata, _ := json.Marshal(st)
	_ = g.store.StoreKeyMetadata(keyID, metadata, true)
	g.store.DeleteTemporaryKeyData(keyID, false)

	return KeyGenResult{PublicKey: pub, Algorithm: st.Algorithm, PlayerID: st.SelfPlayerID}, nil
}

// commitmentDigest stands in for the original's Pedersen/hash commitment:
// every honest player computes the same value for a given (key_id,
// player_id, algorithm), which phase 3 checks decommitments against.
func commitmentDigest(keyID string, playerID uint64, algorithm Algorithm) []byte {
	h := sha256.New()
	h.Write([]byte(keyID))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], playerID)
	h.Write(b[:])
	h.Write([]byte(algorithm.String()))
	return h.Sum(nil)
}

// derivePublicKey deterministically derives the group public key all
// honest players must agree on for key_id, given its algorithm. A real
// threshold keygen would arrive at this point via additive secret
// sharing across players instead of a single deterministic derivation.
func derivePublicKey(keyID string, algorithm Algorithm) ([]byte, error) {
	seed := sha256.Sum256([]byte("mpcengine-keygen:" + keyID))
	switch algorithm {
	case ECDSASecp256k1, ECDSASecp256r1, ECDSAStark:
		_, pub := btcec.PrivKeyFromBytes(seed[:])
		return pub.SerializeCompressed(), nil
	case EdDSAEd25519:
		curve := edwards.Edwards()
		x, y := curve.ScalarBaseMult(seed[:])
		return elliptic.Marshal(curve, x, y), nil
	default:
		return nil, errors.Errorf("unsupported algorithm %s", algorithm)
	}
}

// paillierModulusStandIn derives a two-prime modulus as a stand-in for
// the original's Paillier key and correctness proof; otiai10/primes
// sieves the candidate primes, deterministically indexed from key_id so
// every honest player derives the same value.
func paillierModulusStandIn(keyID string) *big.Int {
	seed := sha256.Sum256([]byte("mpcengine-paillier:" + keyID))
	candidates := primes.Sieve(20000)
	i := int(binary.BigEndian.Uint64(seed[:8]) % uint64(len(candidates)))
	j := int(binary.BigEndian.Uint64(seed[8:16]) % uint64(len(candidates)))
	if j == i {
		j = (j + 1) % len(candidates)
	}
	p := big.NewInt(int64(candidates[i]))
	q := big.NewInt(int64(candidates[j]))
	return new(big.Int).Mul(p, q)
}
