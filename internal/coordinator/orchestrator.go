package coordinator

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/mpcwire"
	"github.com/dreamware/mpcengine/internal/nodeclient"
	"github.com/dreamware/mpcengine/internal/nodeserver"
)

// ErrQuorumNotReached is returned when fewer than threshold nodes answered
// a round successfully.
var ErrQuorumNotReached = errors.New("coordinator: quorum not reached")

// ErrUnknownKey is returned when a signing request names a key_id the
// orchestrator has never generated and so doesn't know the algorithm for.
var ErrUnknownKey = errors.New("coordinator: unknown key_id")

// keyMeta records what an earlier GenerateKey call learned about a key_id,
// since WalletSigningRequest itself carries no algorithm field.
type keyMeta struct {
	Algorithm cryptoprovider.Algorithm
	Threshold int
	TenantID  string
}

// Orchestrator is the control-plane component that drives the 5-phase
// keygen/ECDSA/EdDSA protocols across a threshold of nodes and reassembles
// their outputs into the response a wallet is waiting on. It implements
// walletserver.SigningHandler.
type Orchestrator struct {
	registry  *PlayerRegistry
	tlsConfig *tls.Config
	log       *zap.SugaredLogger

	mu      sync.Mutex
	clients map[string]*nodeclient.Client

	keyMu sync.RWMutex
	keys  map[string]keyMeta
}

// NewOrchestrator builds an Orchestrator bound to registry for shard_index
// to node resolution and tlsConfig for dialing nodes.
func NewOrchestrator(registry *PlayerRegistry, tlsConfig *tls.Config, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		registry:  registry,
		tlsConfig: tlsConfig,
		log:       log,
		clients:   make(map[string]*nodeclient.Client),
		keys:      make(map[string]keyMeta),
	}
}

// ConnectToNode dials nodeID if not already connected.
func (o *Orchestrator) ConnectToNode(ctx context.Context, nodeID string) error {
	assignment := o.assignmentForNode(nodeID)
	if assignment == nil {
		return errors.Errorf("coordinator: node %s not in topology", nodeID)
	}

	o.mu.Lock()
	client, exists := o.clients[nodeID]
	if !exists {
		client = nodeclient.New(nodeclient.Config{
			NodeID:    nodeID,
			Address:   assignment.Address,
			TLSConfig: o.tlsConfig,
			Log:       o.log,
		})
		o.clients[nodeID] = client
	}
	o.mu.Unlock()

	return client.Connect(ctx)
}

// DisconnectFromNode tears down the connection to nodeID, if any.
func (o *Orchestrator) DisconnectFromNode(nodeID string) {
	o.mu.Lock()
	client, exists := o.clients[nodeID]
	if exists {
		delete(o.clients, nodeID)
	}
	o.mu.Unlock()
	if exists {
		client.Disconnect()
	}
}

// DisconnectAll tears down every node connection.
func (o *Orchestrator) DisconnectAll() {
	o.mu.Lock()
	clients := make([]*nodeclient.Client, 0, len(o.clients))
	for id, c := range o.clients {
		clients = append(clients, c)
		delete(o.clients, id)
	}
	o.mu.Unlock()
	for _, c := range clients {
		c.Disconnect()
	}
}

// GetConnectedNodeIDs returns the node IDs this orchestrator currently
// holds a client for (connected or not yet dialed).
func (o *Orchestrator) GetConnectedNodeIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.clients))
	for id := range o.clients {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) assignmentForNode(nodeID string) *PlayerAssignment {
	for _, a := range o.registry.AllAssignments() {
		if a.NodeID == nodeID {
			return a
		}
	}
	return nil
}

func (o *Orchestrator) clientFor(ctx context.Context, nodeID string) (*nodeclient.Client, error) {
	if err := o.ConnectToNode(ctx, nodeID); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.clients[nodeID], nil
}

// SendToNode sends one request body to nodeID and returns its decoded
// reply.
func (o *Orchestrator) SendToNode(ctx context.Context, nodeID string, msgType mpcwire.MessageType, req nodeserver.Request) (nodeserver.Response, error) {
	client, err := o.clientFor(ctx, nodeID)
	if err != nil {
		return nodeserver.Response{}, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nodeserver.Response{}, errors.Wrap(err, "coordinator: encode request")
	}
	msg, err := client.SendRequest(msgType, body)
	if err != nil {
		return nodeserver.Response{}, errors.Wrapf(err, "coordinator: node %s", nodeID)
	}
	var resp nodeserver.Response
	if err := json.Unmarshal(msg.Body, &resp); err != nil {
		return nodeserver.Response{}, errors.Wrapf(err, "coordinator: decode response from %s", nodeID)
	}
	return resp, nil
}

// BroadcastToNodes sends buildReq(nodeID)'s result to every node in
// nodeIDs concurrently, collecting every response keyed by node_id.
// Per-node failures are aggregated into a multierror but do not stop the
// other sends.
func (o *Orchestrator) BroadcastToNodes(ctx context.Context, nodeIDs []string, msgType mpcwire.MessageType, buildReq func(nodeID string) nodeserver.Request) (map[string]nodeserver.Response, error) {
	type outcome struct {
		nodeID string
		resp   nodeserver.Response
		err    error
	}

	results := make(chan outcome, len(nodeIDs))
	var wg sync.WaitGroup
	for _, nodeID := range nodeIDs {
		wg.Add(1)
		go func(nodeID string) {
			defer wg.Done()
			resp, err := o.SendToNode(ctx, nodeID, msgType, buildReq(nodeID))
			results <- outcome{nodeID: nodeID, resp: resp, err: err}
		}(nodeID)
	}
	wg.Wait()
	close(results)

	out := make(map[string]nodeserver.Response, len(nodeIDs))
	var merr *multierror.Error
	for res := range results {
		if res.err != nil {
			merr = multierror.Append(merr, errors.Wrapf(res.err, "node %s", res.nodeID))
			continue
		}
		if !res.resp.Success {
			merr = multierror.Append(merr, errors.Errorf("node %s: %s: %s", res.nodeID, res.resp.ErrorCode, res.resp.ErrorMessage))
			continue
		}
		out[res.nodeID] = res.resp
	}
	return out, merr.ErrorOrNil()
}

// BroadcastToAllConnected is BroadcastToNodes over every currently
// connected node.
func (o *Orchestrator) BroadcastToAllConnected(ctx context.Context, msgType mpcwire.MessageType, buildReq func(nodeID string) nodeserver.Request) (map[string]nodeserver.Response, error) {
	return o.BroadcastToNodes(ctx, o.GetConnectedNodeIDs(), msgType, buildReq)
}

// GetNodesByPlatform returns the node IDs whose topology entry names the
// given platform.
func (o *Orchestrator) GetNodesByPlatform(platform string) []string {
	var ids []string
	for _, a := range o.registry.AllAssignments() {
		if a.Platform == platform {
			ids = append(ids, a.NodeID)
		}
	}
	return ids
}

// GetNodesByShardIndex returns the node ID owning shardIndex, if any.
func (o *Orchestrator) GetNodesByShardIndex(shardIndex uint64) (string, bool) {
	a := o.registry.GetAssignment(shardIndex)
	if a == nil {
		return "", false
	}
	return a.NodeID, true
}

// Stats summarizes the orchestrator's current view of the cluster.
type Stats struct {
	TotalPlayers     int
	ConnectedClients int
	KnownKeys        int
}

// GetStats returns a point-in-time snapshot of orchestrator state.
func (o *Orchestrator) GetStats() Stats {
	o.keyMu.RLock()
	keys := len(o.keys)
	o.keyMu.RUnlock()
	return Stats{
		TotalPlayers:     o.registry.Count(),
		ConnectedClients: len(o.GetConnectedNodeIDs()),
		KnownKeys:        keys,
	}
}

func playerIDsForNodes(assignments []*PlayerAssignment, nodeIDs []string) []uint64 {
	want := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		want[id] = true
	}
	ids := make([]uint64, 0, len(nodeIDs))
	for _, a := range assignments {
		if want[a.NodeID] {
			ids = append(ids, a.ShardIndex)
		}
	}
	return ids
}

// byPlayerID re-keys a node_id-keyed response map to the player_id
// (shard_index) space the crypto provider phases expect.
func (o *Orchestrator) byPlayerID(round map[string]nodeserver.Response, pick func(nodeserver.Response) []byte) map[uint64][]byte {
	out := make(map[uint64][]byte, len(round))
	for nodeID, resp := range round {
		a := o.assignmentForNode(nodeID)
		if a == nil {
			continue
		}
		out[a.ShardIndex] = pick(resp)
	}
	return out
}
