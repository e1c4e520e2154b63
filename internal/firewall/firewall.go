package firewall

import (
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Controller manages iptables rules restricting inbound TCP SYN packets on
// a node's listen port to a single trusted coordinator IP.
type Controller struct {
	DryRun bool
	log    *zap.SugaredLogger
}

// NewController builds a Controller. A nil logger discards output.
func NewController(dryRun bool, log *zap.SugaredLogger) *Controller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{DryRun: dryRun, log: log}
}

// HasRootPrivilege reports whether the current process can modify
// iptables rules.
func HasRootPrivilege() bool {
	return os.Geteuid() == 0
}

// ConfigureNodeFirewall removes any existing rules for port, then installs
// an ACCEPT rule for trustedCoordinatorIP followed by a DROP-all rule, so
// only the trusted coordinator can complete a TCP handshake on port.
func (c *Controller) ConfigureNodeFirewall(port uint16, trustedCoordinatorIP net.IP) error {
	if !c.DryRun && !HasRootPrivilege() {
		return errors.New("firewall: root privilege required")
	}
	if trustedCoordinatorIP == nil || trustedCoordinatorIP.To4() == nil {
		return errors.Errorf("firewall: invalid IPv4 address %v", trustedCoordinatorIP)
	}

	c.log.Infow("configuring kernel-level firewall", "port", port, "trusted_ip", trustedCoordinatorIP.String())

	// Idempotent: clear any rules this controller previously installed.
	_ = c.RemoveNodeFirewall(port)

	if err := c.run("iptables", "-I", "INPUT", "1", "-p", "tcp", "--syn",
		"--dport", fmt.Sprint(port), "-s", trustedCoordinatorIP.String(), "-j", "ACCEPT"); err != nil {
		return errors.Wrap(err, "firewall: add ACCEPT rule")
	}

	if err := c.run("iptables", "-A", "INPUT", "-p", "tcp", "--syn",
		"--dport", fmt.Sprint(port), "-j", "DROP"); err != nil {
		_ = c.RemoveNodeFirewall(port)
		return errors.Wrap(err, "firewall: add DROP rule")
	}

	c.log.Infow("kernel firewall configured", "port", port, "trusted_ip", trustedCoordinatorIP.String())
	return nil
}

// RemoveNodeFirewall deletes the ACCEPT/DROP rule pair this controller
// installs for port, if present. Missing rules are not an error.
func (c *Controller) RemoveNodeFirewall(port uint16) error {
	if !c.DryRun && !HasRootPrivilege() {
		return errors.New("firewall: root privilege required")
	}
	c.log.Infow("removing firewall rules", "port", port)

	_ = c.run("iptables", "-D", "INPUT", "-p", "tcp", "--syn", "--dport", fmt.Sprint(port), "-j", "DROP")
	_ = c.run("iptables", "-D", "INPUT", "-p", "tcp", "--syn", "--dport", fmt.Sprint(port), "-j", "ACCEPT")
	return nil
}

// IsFirewallConfigured reports whether an INPUT rule for port currently
// exists.
func (c *Controller) IsFirewallConfigured(port uint16) bool {
	cmd := exec.Command("sh", "-c", fmt.Sprintf("iptables -L INPUT -n | grep dpt:%d", port))
	return cmd.Run() == nil
}

func (c *Controller) run(name string, args ...string) error {
	if c.DryRun {
		c.log.Infow("firewall dry-run", "command", name, "args", args)
		return nil
	}
	cmd := exec.Command(name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		c.log.Errorw("firewall command failed", "command", name, "args", args, "output", string(out), "error", err)
		return err
	}
	return nil
}
