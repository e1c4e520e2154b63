// Package main implements the mpcengine coordinator process: the
// wallet-facing HTTPS ingress that drives keygen and threshold signing
// across a statically configured set of nodes and reassembles their
// shard signatures into one wallet response.
//
// Architecture:
//
//	┌──────────────────────────────────────────────┐
//	│                 Coordinator                    │
//	├──────────────────────────────────────────────┤
//	│  Wallet HTTPS ingress (internal/walletserver) │
//	├──────────────────────────────────────────────┤
//	│  Orchestrator (internal/coordinator)          │
//	│    PlayerRegistry  - shard_index -> node       │
//	│    HealthMonitor   - periodic node pings       │
//	│    nodeclient.Client per node (mutual TLS)    │
//	└──────────────────────────────────────────────┘
//
// Configuration is read from the environment (internal/config) plus one
// flag: --env names the deployment environment, used to namespace the
// local resource-loader root. Node topology comes either from a YAML
// file named by TOPOLOGY_FILE or, if that is unset, from the
// NODE_IDS/NODE_HOSTS/NODE_SHARD_INDICES/NODE_PLATFORMS CSV quadruplet.
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
	"github.com/dreamware/mpcengine/internal/coordinator"
	"github.com/dreamware/mpcengine/internal/kms"
	"github.com/dreamware/mpcengine/internal/logging"
	"github.com/dreamware/mpcengine/internal/resloader"
	"github.com/dreamware/mpcengine/internal/transport"
	"github.com/dreamware/mpcengine/internal/walletserver"
)

// exit is a variable so tests can intercept process termination.
var exit = os.Exit

// buildTopology loads the cluster topology from TOPOLOGY_FILE if set,
// otherwise assembles it from the NODE_IDS/NODE_HOSTS/NODE_SHARD_INDICES/
// NODE_PLATFORMS CSV quadruplet the way cmd/node resolves its own entry
// from the same lists.
func buildTopology(env config.Env) (*config.Topology, error) {
	if path := env.String("TOPOLOGY_FILE", ""); path != "" {
		return config.LoadTopology(path)
	}

	ids := splitCSV(env.MustString("NODE_IDS"))
	hosts := splitCSV(env.MustString("NODE_HOSTS"))
	shards := splitCSV(env.MustString("NODE_SHARD_INDICES"))
	platforms := splitCSV(env.String("NODE_PLATFORMS", ""))

	if len(ids) != len(hosts) || len(ids) != len(shards) {
		return nil, fmt.Errorf("coordinator: NODE_IDS/NODE_HOSTS/NODE_SHARD_INDICES length mismatch (%d/%d/%d)", len(ids), len(hosts), len(shards))
	}

	nodes := make([]config.NodeConfig, 0, len(ids))
	for i, id := range ids {
		host, portStr, err := net.SplitHostPort(hosts[i])
		if err != nil {
			return nil, fmt.Errorf("coordinator: parse NODE_HOSTS entry %q: %w", hosts[i], err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("coordinator: parse port in %q: %w", hosts[i], err)
		}
		shardIndex, err := strconv.ParseUint(shards[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coordinator: parse shard index %q for %s: %w", shards[i], id, err)
		}
		platform := "LOCAL"
		if i < len(platforms) && platforms[i] != "" {
			platform = platforms[i]
		}
		nodes = append(nodes, config.NodeConfig{
			ID:         id,
			Platform:   platform,
			Address:    host,
			Port:       port,
			ShardIndex: shardIndex,
		})
	}

	top := &config.Topology{Threshold: env.Int("MPC_THRESHOLD", len(nodes)), Nodes: nodes}
	if err := top.Validate(); err != nil {
		return nil, err
	}
	return top, nil
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
	flag.Parse()

	log := logging.Get()

	if err := run(*envName, log); err != nil {
		log.Errorw("coordinator initialization failed", "error", err)
		exit(1)
		return
	}
	exit(0)
}

// run wires every ambient collaborator and blocks until SIGINT/SIGTERM.
// Split out of main for testability.
func run(envName string, log *zap.SugaredLogger) (err error) {
	// config.Env.MustString panics on a missing required variable; recover
	// it into the same initialization-failure path as any other error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coordinator: %v", r)
		}
	}()

	env := config.New()

	topology, err := buildTopology(env)
	if err != nil {
		return err
	}

	platform := strings.ToLower(env.String("COORDINATOR_PLATFORM", "local"))

	resourceRoot := filepath.Join(env.String("RESOURCE_ROOT", "resources"), envName)
	loader, err := resloader.New(resloader.Platform(platform), resourceRoot)
	if err != nil {
		return fmt.Errorf("coordinator: build resource loader: %w", err)
	}

	kmsSvc, err := kms.New(kms.Backend(platform), env.String("KMS_LOCAL_DIR", "secrets"))
	if err != nil {
		return fmt.Errorf("coordinator: build kms service: %w", err)
	}
	if err := kmsSvc.Initialize(context.Background()); err != nil {
		return fmt.Errorf("coordinator: initialize kms: %w", err)
	}

	material := resloader.MaterialSource{
		Loader:     loader,
		KMS:        kmsSvc,
		CACertPath: env.String("TLS_CERT_CA_PATH", "ca.pem"),
		CertPath:   env.String("TLS_CERT_COORDINATOR_PATH", "coordinator.pem"),
		KeyID:      env.String("TLS_KMS_COORDINATOR_KEY_ID", "coordinator-key"),
	}

	serverTLS, err := transport.NewServerConfig(material)
	if err != nil {
		return fmt.Errorf("coordinator: build server TLS config: %w", err)
	}
	clientTLS, err := transport.NewClientConfig(material)
	if err != nil {
		return fmt.Errorf("coordinator: build client TLS config: %w", err)
	}

	registry := coordinator.NewPlayerRegistry()
	registry.LoadTopology(topology)

	orchestrator := coordinator.NewOrchestrator(registry, clientTLS, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, a := range registry.AllAssignments() {
		if err := orchestrator.ConnectToNode(ctx, a.NodeID); err != nil {
			log.Warnw("initial node connect failed", "node_id", a.NodeID, "error", err)
		}
	}

	healthMonitor := coordinator.NewHealthMonitor(env.Duration("HEALTH_CHECK_INTERVAL", 5*time.Second), clientTLS, log)
	healthMonitor.SetOnUnhealthy(func(nodeID string) {
		log.Warnw("node unhealthy, dropping connection", "node_id", nodeID)
		orchestrator.DisconnectFromNode(nodeID)
	})
	go healthMonitor.Start(ctx, registry.AllAssignments)

	bindHost := env.String("COORDINATOR_HTTPS_BIND", "0.0.0.0")
	bindPort := env.Int("COORDINATOR_HTTPS_PORT", 8443)
	listenAddr := fmt.Sprintf("%s:%d", bindHost, bindPort)

	walletServer := walletserver.NewServer(walletserver.Config{
		ListenAddr:     listenAddr,
		TLSConfig:      serverTLS,
		HandlerThreads: env.Int("COORDINATOR_HANDLER_THREADS", walletserver.DefaultHandlerThreads),
		Signing:        orchestrator,
		Log:            log,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("coordinator listening", "addr", listenAddr, "nodes", len(topology.Nodes), "threshold", topology.Threshold)
		serveErr <- walletServer.Serve(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("coordinator received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			healthMonitor.Stop()
			orchestrator.DisconnectAll()
			return fmt.Errorf("coordinator: serve: %w", err)
		}
	}

	healthMonitor.Stop()
	walletServer.Shutdown()
	orchestrator.DisconnectAll()
	cancel()
	log.Info("coordinator stopped")
	return nil
}
