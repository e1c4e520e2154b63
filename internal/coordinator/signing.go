package coordinator

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/mpcwire"
	"github.com/dreamware/mpcengine/internal/nodeserver"
	"github.com/dreamware/mpcengine/internal/walletproto"
)

// round is one phase's responses, keyed by node_id.
type round = map[string]nodeserver.Response

// GenerateKey drives the 5-phase keygen protocol across every node
// currently in the topology and records the resulting algorithm so a
// later HandleSigningRequest for key_id knows which signer to drive.
func (o *Orchestrator) GenerateKey(ctx context.Context, keyID, tenantID string, algo cryptoprovider.Algorithm, threshold int) (cryptoprovider.KeyGenResult, error) {
	assignments := o.registry.AllAssignments()
	nodeIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		nodeIDs = append(nodeIDs, a.NodeID)
	}
	if len(nodeIDs) == 0 {
		return cryptoprovider.KeyGenResult{}, errors.New("coordinator: no nodes in topology")
	}
	playerIDs := playerIDsForNodes(assignments, nodeIDs)

	r1, err := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeKeyGenPhase1, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:        keyID,
			TenantID:     tenantID,
			Algorithm:    algo.String(),
			PlayerIDs:    playerIDs,
			Threshold:    threshold,
			SelfPlayerID: o.assignmentForNode(nodeID).ShardIndex,
		}
	})
	if err != nil {
		return cryptoprovider.KeyGenResult{}, errors.Wrap(err, "keygen phase1")
	}

	r2, err := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeKeyGenPhase2, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:     keyID,
			Artifacts: o.byPlayerID(r1, func(r nodeserver.Response) []byte { return r.Artifact }),
		}
	})
	if err != nil {
		return cryptoprovider.KeyGenResult{}, errors.Wrap(err, "keygen phase2")
	}

	r3, err := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeKeyGenPhase3, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:     keyID,
			Artifacts: o.byPlayerID(r2, func(r nodeserver.Response) []byte { return r.Artifact }),
		}
	})
	if err != nil {
		return cryptoprovider.KeyGenResult{}, errors.Wrap(err, "keygen phase3")
	}

	r4, err := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeKeyGenPhase4, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:     keyID,
			Artifacts: o.byPlayerID(r3, func(r nodeserver.Response) []byte { return r.Artifact }),
		}
	})
	if err != nil {
		return cryptoprovider.KeyGenResult{}, errors.Wrap(err, "keygen phase4")
	}

	r5, err := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeKeyGenPhase5, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:     keyID,
			Artifacts: o.byPlayerID(r4, func(r nodeserver.Response) []byte { return r.Artifact }),
		}
	})
	if err != nil {
		return cryptoprovider.KeyGenResult{}, errors.Wrap(err, "keygen phase5")
	}

	var result cryptoprovider.KeyGenResult
	for nodeID, resp := range r5 {
		a := o.assignmentForNode(nodeID)
		result = cryptoprovider.KeyGenResult{
			PublicKey: resp.PublicKey,
			Algorithm: cryptoprovider.ParseAlgorithm(resp.Algorithm),
			PlayerID:  a.ShardIndex,
		}
		break
	}

	o.keyMu.Lock()
	o.keys[keyID] = keyMeta{Algorithm: algo, Threshold: threshold, TenantID: tenantID}
	o.keyMu.Unlock()

	return result, nil
}

// HandleSigningRequest implements walletserver.SigningHandler. It looks
// up key_id's algorithm (recorded by an earlier GenerateKey call), drives
// the matching 5-phase signing protocol across the key's nodes, and
// reassembles the shard signatures into the wallet-facing response.
func (o *Orchestrator) HandleSigningRequest(req walletproto.WalletSigningRequest) walletproto.WalletSigningResponse {
	ctx := context.Background()

	o.keyMu.RLock()
	meta, known := o.keys[req.KeyID]
	o.keyMu.RUnlock()
	if !known {
		return signingError(req.KeyID, ErrUnknownKey.Error())
	}

	assignments := o.registry.AllAssignments()
	nodeIDs := make([]string, 0, len(assignments))
	for _, a := range assignments {
		nodeIDs = append(nodeIDs, a.NodeID)
	}
	if uint32(len(nodeIDs)) < req.TotalShards {
		return signingError(req.KeyID, fmt.Sprintf("expected %d shards, topology has %d", req.TotalShards, len(nodeIDs)))
	}

	txID := fmt.Sprintf("req-%d", req.Header.RequestID)
	playerIDs := playerIDsForNodes(assignments, nodeIDs)

	var final round
	var err error
	if meta.Algorithm == cryptoprovider.EdDSAEd25519 {
		final, err = o.runEdDSA(ctx, req.KeyID, txID, nodeIDs, playerIDs, req.TransactionData, int(req.Threshold))
	} else {
		final, err = o.runECDSA(ctx, req.KeyID, txID, nodeIDs, playerIDs, req.TransactionData, int(req.Threshold))
	}
	if err != nil {
		return signingError(req.KeyID, err.Error())
	}

	shardSigs := make([][]byte, 0, len(final))
	var finalSig []byte
	for _, resp := range final {
		if resp.S != nil {
			shardSigs = append(shardSigs, resp.S)
		}
		if finalSig == nil {
			finalSig = append(append([]byte{}, resp.R...), resp.S...)
			if meta.Algorithm != cryptoprovider.EdDSAEd25519 {
				finalSig = append(finalSig, resp.V)
			}
		}
	}

	return walletproto.WalletSigningResponse{
		Header:           walletproto.ResponseHeader{Success: true},
		KeyID:            req.KeyID,
		FinalSignature:   finalSig,
		ShardSignatures:  shardSigs,
		SuccessfulShards: uint32(len(final)),
	}
}

func signingError(keyID, msg string) walletproto.WalletSigningResponse {
	return walletproto.WalletSigningResponse{
		Header: walletproto.ResponseHeader{Success: false, ErrorMessage: msg},
		KeyID:  keyID,
	}
}

// nodeIDsOf returns the node_ids present in a round's results.
func nodeIDsOf(r round) []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	return ids
}

// requireQuorum fails the round if fewer than threshold nodes answered
// successfully; the protocol can't proceed below threshold regardless of
// per-node errors BroadcastToNodes already recorded.
func requireQuorum(r round, threshold int, phase string) error {
	if len(r) < threshold {
		return errors.Wrapf(ErrQuorumNotReached, "%s: got %d of %d needed", phase, len(r), threshold)
	}
	return nil
}

func (o *Orchestrator) runECDSA(ctx context.Context, keyID, txID string, nodeIDs []string, playerIDs []uint64, messageHash []byte, threshold int) (round, error) {
	r1, _ := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeECDSAPhase1, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, MessageHash: messageHash, PlayerIDs: playerIDs}
	})
	if err := requireQuorum(r1, threshold, "ecdsa phase1"); err != nil {
		return nil, err
	}
	active := nodeIDsOf(r1)

	r2, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeECDSAPhase2, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r1, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r2, threshold, "ecdsa phase2"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r2)

	r3, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeECDSAPhase3, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r2, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r3, threshold, "ecdsa phase3"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r3)

	r4, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeECDSAPhase4, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r3, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r4, threshold, "ecdsa phase4"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r4)

	r5, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeECDSAPhase5, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r4, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r5, threshold, "ecdsa phase5"); err != nil {
		return nil, err
	}
	return r5, nil
}

func (o *Orchestrator) runEdDSA(ctx context.Context, keyID, txID string, nodeIDs []string, playerIDs []uint64, message []byte, threshold int) (round, error) {
	r1, _ := o.BroadcastToNodes(ctx, nodeIDs, mpcwire.MessageTypeEdDSAPhase1, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Message: message, PlayerIDs: playerIDs}
	})
	if err := requireQuorum(r1, threshold, "eddsa phase1"); err != nil {
		return nil, err
	}
	active := nodeIDsOf(r1)

	r2, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeEdDSAPhase2, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r1, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r2, threshold, "eddsa phase2"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r2)

	r3, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeEdDSAPhase3, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{
			KeyID:       keyID,
			TxID:        txID,
			Rs:          o.byPlayerID(r2, func(r nodeserver.Response) []byte { return r.Artifact }),
			Commitments: o.byPlayerID(r1, func(r nodeserver.Response) []byte { return r.Artifact }),
		}
	})
	if err := requireQuorum(r3, threshold, "eddsa phase3"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r3)

	r4, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeEdDSAPhase4, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r3, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r4, threshold, "eddsa phase4"); err != nil {
		return nil, err
	}
	active = nodeIDsOf(r4)

	r5, _ := o.BroadcastToNodes(ctx, active, mpcwire.MessageTypeEdDSAPhase5, func(nodeID string) nodeserver.Request {
		return nodeserver.Request{KeyID: keyID, TxID: txID, Artifacts: o.byPlayerID(r4, func(r nodeserver.Response) []byte { return r.Artifact })}
	})
	if err := requireQuorum(r5, threshold, "eddsa phase5"); err != nil {
		return nil, err
	}
	return r5, nil
}
