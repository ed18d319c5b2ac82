package model

import "time"

// Snapshot is a point-in-time read of the device's connectivity.
// When Connected is false every other field except ProbedAt is zero.
type Snapshot struct {
	Connected        bool      `json:"connected"`
	Interface        string    `json:"interface,omitempty"`
	SSID             string    `json:"ssid,omitempty"`
	IPAddress        string    `json:"ip_address,omitempty"`
	PrefixLength     int       `json:"prefix_length,omitempty"`
	Gateway          string    `json:"gateway,omitempty"`
	DNS1             string    `json:"dns1,omitempty"`
	DNS2             string    `json:"dns2,omitempty"`
	SubnetMask       string    `json:"subnet_mask,omitempty"`
	SignalStrength   int       `json:"signal_strength,omitempty"` // 0-100
	SignalDBm        int       `json:"signal_dbm,omitempty"`
	LinkSpeed        int       `json:"link_speed,omitempty"` // Mbps
	MatchedProfileID string    `json:"matched_profile_id,omitempty"`
	ProbedAt         time.Time `json:"probed_at"`
}

// Disconnected returns the snapshot reported when the interface has no IPv4 address.
func Disconnected(at time.Time) Snapshot {
	return Snapshot{ProbedAt: at}
}

// MatchProfile picks the profile a snapshot corresponds to: the profile the
// store flags active wins; otherwise the first static profile whose gateway
// equals the probed gateway. Returns "" when nothing matches.
func MatchProfile(profiles []Profile, gateway string) string {
	for _, p := range profiles {
		if p.IsActive {
			return p.ID
		}
	}
	if gateway == "" {
		return ""
	}
	for _, p := range profiles {
		if !p.UseDHCP && p.Gateway == gateway {
			return p.ID
		}
	}
	return ""
}
