package firewall

import (
	"net"
	"testing"
)

func TestConfigureNodeFirewallDryRunSkipsRootCheck(t *testing.T) {
	c := NewController(true, nil)
	if err := c.ConfigureNodeFirewall(9443, net.ParseIP("10.0.0.5")); err != nil {
		t.Fatalf("ConfigureNodeFirewall dry-run: %v", err)
	}
}

func TestConfigureNodeFirewallRejectsInvalidIP(t *testing.T) {
	c := NewController(true, nil)
	if err := c.ConfigureNodeFirewall(9443, net.ParseIP("not-an-ip")); err == nil {
		t.Fatal("expected error for invalid IPv4 address")
	}
}

func TestRemoveNodeFirewallDryRun(t *testing.T) {
	c := NewController(true, nil)
	if err := c.RemoveNodeFirewall(9443); err != nil {
		t.Fatalf("RemoveNodeFirewall dry-run: %v", err)
	}
}
