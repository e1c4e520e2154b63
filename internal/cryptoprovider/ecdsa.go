package cryptoprovider

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"

	"github.com/dreamware/mpcengine/internal/persistency"
)

// ECDSASigner runs the 5-phase threshold ECDSA signing protocol for a
// given (key_id, tx_id), grounded on mpc-sdk/interface/IECDSASigner.h.
type ECDSASigner interface {
	Phase1StartSigning(keyID, txID string, messageHash []byte, playerIDs []uint64) (ECDSAMtaRequest, error)
	Phase2MtaResponse(keyID, txID string, requests map[uint64]ECDSAMtaRequest) (ECDSAMtaResponse, error)
	Phase3MtaVerify(keyID, txID string, responses map[uint64]ECDSAMtaResponse) (ECDSAMtaDelta, error)
	Phase4GetPartialSignature(keyID, txID string, deltas map[uint64]ECDSAMtaDelta) (ECDSAPartialSignature, error)
	Phase5GetFinalSignature(keyID, txID string, partials map[uint64]ECDSAPartialSignature) (ECDSASignature, error)
}

type ecdsaSignState struct {
	MessageHash []byte
	PlayerIDs   []uint64
	Started     bool
	MtaDone     bool
	DeltaDone   bool
}

type localECDSASigner struct {
	store *persistency.Store
}

// NewECDSASigner returns an ECDSASigner backed by store for the share
// lookup and per-tx scratch.
func NewECDSASigner(store *persistency.Store) ECDSASigner {
	return &localECDSASigner{store: store}
}

func txKey(keyID, txID string) string { return keyID + "/" + txID }

func (s *localECDSASigner) save(keyID, txID string, st ecdsaSignState) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return fault(Internal, "phase", errors.Wrap(err, "marshal ecdsa sign state"))
	}
	s.store.StoreSetupData(txKey(keyID, txID), buf)
	return nil
}

func (s *localECDSASigner) load(keyID, txID, op string) (ecdsaSignState, error) {
	var st ecdsaSignState
	buf, err := s.store.LoadSetupData(txKey(keyID, txID))
	if err != nil {
		return st, fault(MissingPhaseState, op, err)
	}
	if err := json.Unmarshal(buf, &st); err != nil {
		return st, fault(Internal, op, errors.Wrap(err, "unmarshal ecdsa sign state"))
	}
	return st, nil
}

func (s *localECDSASigner) Phase1StartSigning(keyID, txID string, messageHash []byte, playerIDs []uint64) (ECDSAMtaRequest, error) {
	if !s.store.KeyExist(keyID) {
		return ECDSAMtaRequest{}, fault(BadKey, "phase1_start_signing", nil)
	}
	if len(messageHash) != 32 {
		return ECDSAMtaRequest{}, fault(Internal, "phase1_start_signing", errors.New("message_hash must be 32 bytes"))
	}

	st := ecdsaSignState{
		MessageHash: messageHash,
		PlayerIDs:   append([]uint64(nil), playerIDs...),
		Started:     true,
	}
	if err := s.save(keyID, txID, st); err != nil {
		return ECDSAMtaRequest{}, err
	}
	return ECDSAMtaRequest{Data: mtaDigest(keyID, txID, "phase1")}, nil
}

func (s *localECDSASigner) Phase2MtaResponse(keyID, txID string, requests map[uint64]ECDSAMtaRequest) (ECDSAMtaResponse, error) {
	st, err := s.load(keyID, txID, "phase2_mta_response")
	if err != nil {
		return ECDSAMtaResponse{}, err
	}
	if !st.Started {
		return ECDSAMtaResponse{}, fault(MissingPhaseState, "phase2_mta_response", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := requests[playerID]; !ok {
			return ECDSAMtaResponse{}, fault(ProofVerification, "phase2_mta_response", errors.Errorf("missing mta request from player %d", playerID))
		}
	}
	return ECDSAMtaResponse{Data: mtaDigest(keyID, txID, "phase2")}, nil
}

func (s *localECDSASigner) Phase3MtaVerify(keyID, txID string, responses map[uint64]ECDSAMtaResponse) (ECDSAMtaDelta, error) {
	st, err := s.load(keyID, txID, "phase3_mta_verify")
	if err != nil {
		return ECDSAMtaDelta{}, err
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := responses[playerID]; !ok {
			return ECDSAMtaDelta{}, fault(ProofVerification, "phase3_mta_verify", errors.Errorf("missing mta response from player %d", playerID))
		}
	}
	st.MtaDone = true
	if err := s.save(keyID, txID, st); err != nil {
		return ECDSAMtaDelta{}, err
	}
	return ECDSAMtaDelta{Data: mtaDigest(keyID, txID, "phase3")}, nil
}

func (s *localECDSASigner) Phase4GetPartialSignature(keyID, txID string, deltas map[uint64]ECDSAMtaDelta) (ECDSAPartialSignature, error) {
	st, err := s.load(keyID, txID, "phase4_get_partial_signature")
	if err != nil {
		return ECDSAPartialSignature{}, err
	}
	if !st.MtaDone {
		return ECDSAPartialSignature{}, fault(MissingPhaseState, "phase4_get_partial_signature", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := deltas[playerID]; !ok {
			return ECDSAPartialSignature{}, fault(ProofVerification, "phase4_get_partial_signature", errors.Errorf("missing delta from player %d", playerID))
		}
	}
	st.DeltaDone = true
	if err := s.save(keyID, txID, st); err != nil {
		return ECDSAPartialSignature{}, err
	}
	return ECDSAPartialSignature{S: mtaDigest(keyID, txID, "phase4")}, nil
}

func (s *localECDSASigner) Phase5GetFinalSignature(keyID, txID string, partials map[uint64]ECDSAPartialSignature) (ECDSASignature, error) {
	st, err := s.load(keyID, txID, "phase5_get_final_signature")
	if err != nil {
		return ECDSASignature{}, err
	}
	if !st.DeltaDone {
		return ECDSASignature{}, fault(MissingPhaseState, "phase5_get_final_signature", nil)
	}
	for _, playerID := range st.PlayerIDs {
		if _, ok := partials[playerID]; !ok {
			return ECDSASignature{}, fault(ProofVerification, "phase5_get_final_signature", errors.Errorf("missing partial signature from player %d", playerID))
		}
	}

	_, share, err := s.store.LoadKey(keyID)
	if err != nil {
		return ECDSASignature{}, fault(BadKey, "phase5_get_final_signature", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(share)
	sig := ecdsa.Sign(priv, st.MessageHash)
	r := sig.R().Bytes()
	sBytes := sig.S().Bytes()

	// v is the 0/1 recovery id, never the 27/28-adjusted Ethereum form at
	// this layer.
	v := byte(r[len(r)-1] & 0x01)

	return ECDSASignature{R: r[:], S: sBytes[:], V: v}, nil
}

func mtaDigest(keyID, txID, phase string) []byte {
	h := sha256.New()
	h.Write([]byte(keyID))
	h.Write([]byte(txID))
	h.Write([]byte(phase))
	return h.Sum(nil)
}
