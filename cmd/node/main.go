// Package main implements the mpcengine node process: the worker that
// holds one MPC player's key share and executes keygen/signing phases on
// demand from the coordinator.
//
// Architecture:
//
//	┌──────────────────────────────────────────┐
//	│                  Node                     │
//	├──────────────────────────────────────────┤
//	│  TLS wire listener (internal/nodeserver)  │
//	│    one admitted connection from the       │
//	│    trusted coordinator IP at a time       │
//	├──────────────────────────────────────────┤
//	│  Components:                              │
//	│    cryptoprovider.Provider  - phase logic │
//	│    persistency.Store        - key/tx state│
//	│    firewall.Controller      - optional    │
//	│                               SYN filter  │
//	└──────────────────────────────────────────┘
//
// Configuration is read from the environment (internal/config) plus two
// flags: --env names the deployment environment (used to namespace the
// local resource-loader root), --id names this process's node_id, which
// must appear in NODE_IDS.
//
// Exit codes: 0 on clean shutdown via SIGINT/SIGTERM, 1 on
// initialization failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/config"
	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/firewall"
	"github.com/dreamware/mpcengine/internal/kms"
	"github.com/dreamware/mpcengine/internal/logging"
	"github.com/dreamware/mpcengine/internal/nodeserver"
	"github.com/dreamware/mpcengine/internal/persistency"
	"github.com/dreamware/mpcengine/internal/resloader"
	"github.com/dreamware/mpcengine/internal/transport"
)

// exit is a variable so tests can intercept process termination.
var exit = os.Exit

// nodeIdentity is this process's slice of the static cluster topology,
// resolved from the NODE_IDS/NODE_HOSTS/NODE_PLATFORMS/NODE_SHARD_INDICES
// CSV quadruplet by matching --id against NODE_IDS.
type nodeIdentity struct {
	ID         string
	ListenAddr string
	Platform   string
	ShardIndex uint64
}

// resolveIdentity finds nodeID's entry among the parallel NODE_IDS/
// NODE_HOSTS/NODE_PLATFORMS/NODE_SHARD_INDICES CSV lists.
func resolveIdentity(env config.Env, nodeID string) (nodeIdentity, error) {
	ids := splitCSV(env.MustString("NODE_IDS"))
	hosts := splitCSV(env.MustString("NODE_HOSTS"))
	shards := splitCSV(env.MustString("NODE_SHARD_INDICES"))
	platforms := splitCSV(env.String("NODE_PLATFORMS", ""))

	if len(ids) != len(hosts) || len(ids) != len(shards) {
		return nodeIdentity{}, fmt.Errorf("node: NODE_IDS/NODE_HOSTS/NODE_SHARD_INDICES length mismatch (%d/%d/%d)", len(ids), len(hosts), len(shards))
	}

	for i, id := range ids {
		if id != nodeID {
			continue
		}
		shardIndex, err := strconv.ParseUint(shards[i], 10, 64)
		if err != nil {
			return nodeIdentity{}, fmt.Errorf("node: parse shard index %q for %s: %w", shards[i], id, err)
		}
		platform := "LOCAL"
		if i < len(platforms) && platforms[i] != "" {
			platform = platforms[i]
		}
		return nodeIdentity{ID: id, ListenAddr: hosts[i], Platform: platform, ShardIndex: shardIndex}, nil
	}

	return nodeIdentity{}, fmt.Errorf("node: id %q not found in NODE_IDS", nodeID)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func main() {
	envName := flag.String("env", "local", "deployment environment name")
	nodeID := flag.String("id", "", "this node's id, must match an entry in NODE_IDS")
	flag.Parse()

	log := logging.Get()

	if err := run(*envName, *nodeID, log); err != nil {
		log.Errorw("node initialization failed", "error", err)
		exit(1)
		return
	}
	exit(0)
}

// run wires every ambient collaborator and blocks until SIGINT/SIGTERM.
// Split out of main for testability.
func run(envName, nodeID string, log *zap.SugaredLogger) (err error) {
	if nodeID == "" {
		return fmt.Errorf("node: --id is required")
	}

	// config.Env.MustString panics on a missing required variable; recover
	// it into the same initialization-failure path as any other error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node: %v", r)
		}
	}()

	env := config.New()
	identity, err := resolveIdentity(env, nodeID)
	if err != nil {
		return err
	}

	resourceRoot := filepath.Join(env.String("RESOURCE_ROOT", "resources"), envName)
	loader, err := resloader.New(resloader.Platform(strings.ToLower(identity.Platform)), resourceRoot)
	if err != nil {
		return fmt.Errorf("node: build resource loader: %w", err)
	}

	kmsSvc, err := kms.New(kms.Backend(strings.ToLower(identity.Platform)), env.String("KMS_LOCAL_DIR", "secrets"))
	if err != nil {
		return fmt.Errorf("node: build kms service: %w", err)
	}
	if err := kmsSvc.Initialize(context.Background()); err != nil {
		return fmt.Errorf("node: initialize kms: %w", err)
	}

	material := resloader.MaterialSource{
		Loader:     loader,
		KMS:        kmsSvc,
		CACertPath: env.String("TLS_CERT_CA_PATH", "ca.pem"),
		CertPath:   env.String("TLS_CERT_NODE_PATH", fmt.Sprintf("nodes/%s.pem", identity.ID)),
		KeyID:      env.String("TLS_KMS_NODE_KEY_ID", fmt.Sprintf("%s-key", identity.ID)),
	}
	tlsConfig, err := transport.NewServerConfig(material)
	if err != nil {
		return fmt.Errorf("node: build TLS config: %w", err)
	}

	trustedIPStr := env.MustString("TRUSTED_COORDINATOR_IP")
	trustedIP := net.ParseIP(trustedIPStr)
	if trustedIP == nil {
		return fmt.Errorf("node: invalid TRUSTED_COORDINATOR_IP %q", trustedIPStr)
	}

	if env.Bool("ENABLE_KERNEL_FIREWALL", false) {
		_, portStr, err := net.SplitHostPort(identity.ListenAddr)
		if err != nil {
			return fmt.Errorf("node: parse listen port: %w", err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return fmt.Errorf("node: parse listen port: %w", err)
		}
		ctl := firewall.NewController(false, log)
		if err := ctl.ConfigureNodeFirewall(uint16(port), trustedIP); err != nil {
			return fmt.Errorf("node: configure firewall: %w", err)
		}
		defer ctl.RemoveNodeFirewall(uint16(port))
	}

	store := persistency.NewStore()
	provider := cryptoprovider.New(store)

	server := nodeserver.NewServer(nodeserver.Config{
		ListenAddr:           identity.ListenAddr,
		TrustedCoordinatorIP: trustedIP,
		TLSConfig:            tlsConfig,
		HandlerThreads:       env.Int("NODE_HANDLER_THREADS", 8),
		Provider:             provider,
		Log:                  log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("node listening", "id", identity.ID, "addr", identity.ListenAddr, "shard_index", identity.ShardIndex)
		serveErr <- server.Serve(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("node received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("node: serve: %w", err)
		}
	}

	cancel()
	server.PrepareShutdown(5 * time.Second)
	log.Info("node stopped")
	return nil
}
