package nodeserver

import (
	"errors"

	"github.com/dreamware/mpcengine/internal/cryptoprovider"
)

// HandlerFunc processes one decoded Request and returns the Response to
// frame back to the coordinator.
type HandlerFunc func(Request) Response

func faultResponse(err error) Response {
	var f *cryptoprovider.Fault
	if errors.As(err, &f) {
		return errorResponse(f.Code.String(), f.Error())
	}
	return errorResponse("Internal", err.Error())
}

// NewHandlers builds the handler name → HandlerFunc table for a given
// crypto provider, in the shape Router expects.
func NewHandlers(provider *cryptoprovider.Provider) map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"keygen_phase1": func(req Request) Response {
			algo := cryptoprovider.ParseAlgorithm(req.Algorithm)
			c, err := provider.KeyGen.Phase1GenerateCommitment(req.KeyID, req.TenantID, algo, req.PlayerIDs, req.Threshold, req.SelfPlayerID)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, PlayerID: c.PlayerID, Artifact: c.Data}
		},
		"keygen_phase2": func(req Request) Response {
			commitments := make(map[uint64]cryptoprovider.Commitment, len(req.Artifacts))
			for id, data := range req.Artifacts {
				commitments[id] = cryptoprovider.Commitment{PlayerID: id, Data: data}
			}
			d, err := provider.KeyGen.Phase2GenerateDecommitment(req.KeyID, commitments)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, PlayerID: d.PlayerID, Artifact: d.Data}
		},
		"keygen_phase3": func(req Request) Response {
			decommitments := make(map[uint64]cryptoprovider.Decommitment, len(req.Artifacts))
			for id, data := range req.Artifacts {
				decommitments[id] = cryptoprovider.Decommitment{PlayerID: id, Data: data}
			}
			z, err := provider.KeyGen.Phase3GenerateZKProof(req.KeyID, decommitments)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, PlayerID: z.PlayerID, Artifact: z.Data}
		},
		"keygen_phase4": func(req Request) Response {
			proofs := make(map[uint64]cryptoprovider.ZKProof, len(req.Artifacts))
			for id, data := range req.Artifacts {
				proofs[id] = cryptoprovider.ZKProof{PlayerID: id, Data: data}
			}
			p, err := provider.KeyGen.Phase4VerifyAndGeneratePaillierProof(req.KeyID, proofs)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, PlayerID: p.PlayerID, Artifact: p.Data}
		},
		"keygen_phase5": func(req Request) Response {
			proofs := make(map[uint64]cryptoprovider.PaillierProof, len(req.Artifacts))
			for id, data := range req.Artifacts {
				proofs[id] = cryptoprovider.PaillierProof{PlayerID: id, Data: data}
			}
			r, err := provider.KeyGen.Phase5CreatePublicKey(req.KeyID, proofs)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, PlayerID: r.PlayerID, PublicKey: r.PublicKey, Algorithm: r.Algorithm.String()}
		},

		"ecdsa_phase1": func(req Request) Response {
			r, err := provider.ECDSA.Phase1StartSigning(req.KeyID, req.TxID, req.MessageHash, req.PlayerIDs)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: r.Data}
		},
		"ecdsa_phase2": func(req Request) Response {
			requests := make(map[uint64]cryptoprovider.ECDSAMtaRequest, len(req.Artifacts))
			for id, data := range req.Artifacts {
				requests[id] = cryptoprovider.ECDSAMtaRequest{Data: data}
			}
			r, err := provider.ECDSA.Phase2MtaResponse(req.KeyID, req.TxID, requests)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: r.Data}
		},
		"ecdsa_phase3": func(req Request) Response {
			responses := make(map[uint64]cryptoprovider.ECDSAMtaResponse, len(req.Artifacts))
			for id, data := range req.Artifacts {
				responses[id] = cryptoprovider.ECDSAMtaResponse{Data: data}
			}
			d, err := provider.ECDSA.Phase3MtaVerify(req.KeyID, req.TxID, responses)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: d.Data}
		},
		"ecdsa_phase4": func(req Request) Response {
			deltas := make(map[uint64]cryptoprovider.ECDSAMtaDelta, len(req.Artifacts))
			for id, data := range req.Artifacts {
				deltas[id] = cryptoprovider.ECDSAMtaDelta{Data: data}
			}
			p, err := provider.ECDSA.Phase4GetPartialSignature(req.KeyID, req.TxID, deltas)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: p.S}
		},
		"ecdsa_phase5": func(req Request) Response {
			defer provider.DeleteSigningScratch(req.KeyID, req.TxID)
			partials := make(map[uint64]cryptoprovider.ECDSAPartialSignature, len(req.Artifacts))
			for id, data := range req.Artifacts {
				partials[id] = cryptoprovider.ECDSAPartialSignature{S: data}
			}
			sig, err := provider.ECDSA.Phase5GetFinalSignature(req.KeyID, req.TxID, partials)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, R: sig.R, S: sig.S, V: sig.V}
		},

		"eddsa_phase1": func(req Request) Response {
			c, err := provider.EdDSA.Phase1StartSigning(req.KeyID, req.TxID, req.Message, req.PlayerIDs)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: c.Data}
		},
		"eddsa_phase2": func(req Request) Response {
			commitments := make(map[uint64]cryptoprovider.EdDSACommitment, len(req.Artifacts))
			for id, data := range req.Artifacts {
				commitments[id] = cryptoprovider.EdDSACommitment{Data: data}
			}
			r, err := provider.EdDSA.Phase2DecommitR(req.KeyID, req.TxID, commitments)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: r.R}
		},
		"eddsa_phase3": func(req Request) Response {
			rs := make(map[uint64]cryptoprovider.EdDSAR, len(req.Rs))
			for id, data := range req.Rs {
				rs[id] = cryptoprovider.EdDSAR{R: data}
			}
			commitments := make(map[uint64]cryptoprovider.EdDSACommitment, len(req.Commitments))
			for id, data := range req.Commitments {
				commitments[id] = cryptoprovider.EdDSACommitment{Data: data}
			}
			p, err := provider.EdDSA.Phase3BroadcastR(req.KeyID, req.TxID, cryptoprovider.EdDSARsAndCommitments{Rs: rs, Commitments: commitments})
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: p.S}
		},
		"eddsa_phase4": func(req Request) Response {
			partials := make(map[uint64]cryptoprovider.EdDSAPartialSignature, len(req.Artifacts))
			for id, data := range req.Artifacts {
				partials[id] = cryptoprovider.EdDSAPartialSignature{S: data}
			}
			p, err := provider.EdDSA.Phase4GetPartialSignature(req.KeyID, req.TxID, partials)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, Artifact: p.S}
		},
		"eddsa_phase5": func(req Request) Response {
			defer provider.DeleteSigningScratch(req.KeyID, req.TxID)
			partials := make(map[uint64]cryptoprovider.EdDSAPartialSignature, len(req.Artifacts))
			for id, data := range req.Artifacts {
				partials[id] = cryptoprovider.EdDSAPartialSignature{S: data}
			}
			sig, err := provider.EdDSA.Phase5GetFinalSignature(req.KeyID, req.TxID, partials)
			if err != nil {
				return faultResponse(err)
			}
			return Response{Success: true, R: sig.R, S: sig.S}
		},
	}
}
