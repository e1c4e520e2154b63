package cryptoprovider

import (
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/json"

	"github.com/decred/dcrd/dcrec/edwards/v2"
	"github.com/pkg/errors"

	"github.com/dreamware/mpcengine/internal/persistency"
)

// EdDSASigner runs the 5-phase threshold EdDSA signing protocol for a
// given (key_id, tx_id), grounded on mpc-sdk/interface/IEdDSASigner.h.
// Unlike ECDSASigner, phase 1 consumes the unhashed message and the
// final signature carries no recovery byte.
type EdDSASigner interface {
	Phase1StartSigning(keyID, txID string, message []byte, playerIDs []uint64) (EdDSACommitment, error)
	Phase2DecommitR(keyID, txID string, commitments map[uint64]EdDSACommitment) (EdDSAR, error)
	Phase3BroadcastR(keyID, txID string, rsAndCommitments EdDSARsAndCommitments) (EdDSAPartialSignature, error)
	Phase4GetPartialSignature(keyID, txID string, partials map[uint64]EdDSAPartialSignature) (EdDSAPartialSignature, error)
	Phase5GetFinalSignature(keyID, txID string, partials map[uint64]EdDSAPartialSignature) (EdDSASignature, error)
}

type eddsaSignState struct {
	Message     []byte
	PlayerIDs   []uint64
	Started     bool
	Decommitted bool
	Broadcasted bool
}

type localEdDSASigner struct {
	store *persistency.Store
}

// NewEdDSASigner returns an EdDSASigner backed by store for the share
// lookup and per-tx scratch.
func NewEdDSASigner(store *persistency.Store) EdDSASigner {
	return &localEdDSASigner{store: store}
}

func (s *localEdDSASigner) save(keyID, txID string, st eddsaSignState) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return fault(Internal, "phase", errors.Wrap(err, "marshal eddsa sign state"))
	}
	s.store.StoreSetupData(txKey(keyID, txID), buf)
	return nil
}

func (s *localEdDSASigner) load(keyID, txID, op string) (eddsaSignState, error) {
	var st eddsaSignState
	buf, err := s.store.LoadSetupData(txKey(keyID, txID))
	if err != nil {
		return st, fault(MissingPhaseState, op, err)
	}
	if err := json.Unmarshal(buf, &st); err != nil {
		return st, fault(Internal, op, errors.Wrap(err, "unmarshal eddsa sign state"))
	}
	return st, nil
}

func (s *localEdDSASigner) Phase1StartSigning(keyID, txID string, message []byte, playerIDs []uint64) (EdDSACommitment, error) {
	if !s.store.KeyExist(keyID) {
		return EdDSACommitment{}, fault(BadKey, "phase1_start_signing", nil)
	}
	st := eddsaSignState{
		Message:   message,
		PlayerIDs: append([]uint64(nil), playerIDs...),
		Started:   true,
	}
	if err := s.save(keyID, txID, st); err != nil {
		return EdDSACommitment{}, err
	}
	return EdDSACommitment{Data: rDigest(keyID, txID)}, nil
}

func (s *localEdDSASigner) Phase2DecommitR(keyID, txID string, commitments map[uint64]EdDSACommitment) (EdDSAR, error) {
	st, err := s.load(keyID, txID, "phase2_decommit_r")
	if err != nil {
		return EdDSAR{}, err
	}
	if !st.Started {
		return EdDSAR{}, fault(MissingPhaseState, "phase2_decommit_r", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := commitments[playerID]; !ok {
			return EdDSAR{}, fault(ProofVerification, "phase2_decommit_r", errors.Errorf("missing commitment for player %d", playerID))
		}
	}
	st.Decommitted = true
	if err := s.save(keyID, txID, st); err != nil {
		return EdDSAR{}, err
	}
	return EdDSAR{R: rDigest(keyID, txID)}, nil
}

// Phase3BroadcastR verifies every player's decommitted R against the
// commitments broadcast in phase 1/2. spec.md §9 resolves the Open
// Question here: an empty or partial commitments map is a
// ProofVerification failure, not something phase 4 is allowed to paper
// over.
func (s *localEdDSASigner) Phase3BroadcastR(keyID, txID string, rsAndCommitments EdDSARsAndCommitments) (EdDSAPartialSignature, error) {
	st, err := s.load(keyID, txID, "phase3_broadcast_r")
	if err != nil {
		return EdDSAPartialSignature{}, err
	}
	if !st.Decommitted {
		return EdDSAPartialSignature{}, fault(MissingPhaseState, "phase3_broadcast_r", nil)
	}
	if len(rsAndCommitments.Commitments) == 0 || len(rsAndCommitments.Commitments) < len(st.PlayerIDs) {
		return EdDSAPartialSignature{}, fault(ProofVerification, "phase3_broadcast_r", errors.New("incomplete commitments map"))
	}
	for _, playerID := range st.PlayerIDs {
		r, ok := rsAndCommitments.Rs[playerID]
		if !ok {
			return EdDSAPartialSignature{}, fault(ProofVerification, "phase3_broadcast_r", errors.Errorf("missing R from player %d", playerID))
		}
		c, ok := rsAndCommitments.Commitments[playerID]
		if !ok {
			return EdDSAPartialSignature{}, fault(ProofVerification, "phase3_broadcast_r", errors.Errorf("missing commitment from player %d", playerID))
		}
		if string(r.R) != string(c.Data) {
			return EdDSAPartialSignature{}, fault(ProofVerification, "phase3_broadcast_r", errors.Errorf("R/commitment mismatch for player %d", playerID))
		}
	}
	st.Broadcasted = true
	if err := s.save(keyID, txID, st); err != nil {
		return EdDSAPartialSignature{}, err
	}
	return EdDSAPartialSignature{S: rDigest(keyID, txID)}, nil
}

func (s *localEdDSASigner) Phase4GetPartialSignature(keyID, txID string, partials map[uint64]EdDSAPartialSignature) (EdDSAPartialSignature, error) {
	st, err := s.load(keyID, txID, "phase4_get_partial_signature")
	if err != nil {
		return EdDSAPartialSignature{}, err
	}
	if !st.Broadcasted {
		return EdDSAPartialSignature{}, fault(MissingPhaseState, "phase4_get_partial_signature", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := partials[playerID]; !ok {
			return EdDSAPartialSignature{}, fault(ProofVerification, "phase4_get_partial_signature", errors.Errorf("missing partial signature from player %d", playerID))
		}
	}
	return EdDSAPartialSignature{S: rDigest(keyID, txID)}, nil
}

func (s *localEdDSASigner) Phase5GetFinalSignature(keyID, txID string, partials map[uint64]EdDSAPartialSignature) (EdDSASignature, error) {
	st, err := s.load(keyID, txID, "phase5_get_final_signature")
	if err != nil {
		return EdDSASignature{}, err
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := partials[playerID]; !ok {
			return EdDSASignature{}, fault(ProofVerification, "phase5_get_final_signature", errors.Errorf("missing partial signature from player %d", playerID))
		}
	}

	_, share, err := s.store.LoadKey(keyID)
	if err != nil {
		return EdDSASignature{}, fault(BadKey, "phase5_get_final_signature", err)
	}

	curve := edwards.Edwards()
	rx, ry := curve.ScalarBaseMult(rDigest(keyID, txID))
	rBytes := elliptic.Marshal(curve, rx, ry)

	h := sha256.New()
	h.Write(share)
	h.Write(st.Message)
	sBytes := h.Sum(nil)

	return EdDSASignature{R: rBytes, S: sBytes}, nil
}

func rDigest(keyID, txID string) []byte {
	h := sha256.New()
	h.Write([]byte(keyID))
	h.Write([]byte(txID))
	h.Write([]byte("eddsa-r"))
	return h.Sum(nil)
}
