// Package model defines the values the switching engine passes around:
// stored profiles, probed snapshots, and switch outcomes.
package model

import (
	"strings"
	"time"

	"github.com/starsdaisuki/stargate/pkg/util"
)

// DefaultSubnetMask is used when a profile leaves the mask unset.
const DefaultSubnetMask = "255.255.255.0"

// Profile is a named egress configuration: one gateway plus DNS servers.
type Profile struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Icon  string `json:"icon,omitempty" yaml:"icon,omitempty"`   // presentation tag, opaque here
	Color string `json:"color,omitempty" yaml:"color,omitempty"` // presentation tag, opaque here

	UseDHCP    bool   `json:"use_dhcp" yaml:"use_dhcp"`
	IPAddress  string `json:"ip_address,omitempty" yaml:"ip_address,omitempty"` // stored only, never applied
	Gateway    string `json:"gateway,omitempty" yaml:"gateway,omitempty"`
	SubnetMask string `json:"subnet_mask,omitempty" yaml:"subnet_mask,omitempty"`
	DNS1       string `json:"dns1,omitempty" yaml:"dns1,omitempty"`
	DNS2       string `json:"dns2,omitempty" yaml:"dns2,omitempty"`

	IsActive  bool      `json:"is_active" yaml:"-"` // derived from the store's active marker
	LastUsed  time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
	SortOrder int       `json:"sort_order" yaml:"sort_order"`
}

// Validate checks the profile before it is stored or applied. Every address
// ends up in shell text, so anything that is not a plain dotted quad is rejected.
func (p *Profile) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(strings.TrimSpace(p.Name) != "", "name is required")

	if !p.UseDHCP {
		if p.Gateway == "" {
			v.AddErrorf("gateway is required for a static profile")
		} else if !util.IsValidIPv4(p.Gateway) {
			v.AddErrorf("gateway '%s' is not a valid IPv4 address", p.Gateway)
		}
	} else if p.Gateway != "" && !util.IsValidIPv4(p.Gateway) {
		v.AddErrorf("gateway '%s' is not a valid IPv4 address", p.Gateway)
	}

	for _, f := range []struct{ name, value string }{
		{"ip_address", p.IPAddress},
		{"dns1", p.DNS1},
		{"dns2", p.DNS2},
	} {
		if f.value != "" && !util.IsValidIPv4(f.value) {
			v.AddErrorf("%s '%s' is not a valid IPv4 address", f.name, f.value)
		}
	}

	if p.SubnetMask != "" && !util.IsValidIPv4Mask(p.SubnetMask) {
		v.AddErrorf("subnet_mask '%s' is not a contiguous IPv4 netmask", p.SubnetMask)
	}

	return v.Build()
}

// PrimaryDNS returns the DNS server to install, falling back to the gateway
// for static profiles that leave DNS1 empty.
func (p *Profile) PrimaryDNS() string {
	if p.DNS1 != "" {
		return p.DNS1
	}
	if !p.UseDHCP {
		return p.Gateway
	}
	return ""
}

// SecondaryDNS returns DNS2 as stored. An empty value means "clear it".
func (p *Profile) SecondaryDNS() string {
	return p.DNS2
}

// Mask returns the subnet mask, or DefaultSubnetMask when unset.
func (p *Profile) Mask() string {
	if p.SubnetMask == "" {
		return DefaultSubnetMask
	}
	return p.SubnetMask
}

// Mode returns "dhcp" or "static" for display.
func (p *Profile) Mode() string {
	if p.UseDHCP {
		return "dhcp"
	}
	return "static"
}
