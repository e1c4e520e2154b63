// Package firewall shells out to iptables to duplicate the node server's
// trusted-IP admission check at the SYN layer, gated by
// ENABLE_KERNEL_FIREWALL. Grounded on KernelFirewall.{hpp,cpp} from the
// original implementation; this is best-effort defense in depth, never a
// substitute for the application-level check in internal/nodeserver.
package firewall
