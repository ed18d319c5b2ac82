package probe

import (
	"regexp"
	"testing"
)

const (
	mainRoutes = `192.168.50.0/24 dev wlan0 proto kernel scope link src 192.168.50.23
default via 192.168.50.1 dev wlan0 proto dhcp metric 600`

	addrShow = `30: wlan0: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc mq state UP group default qlen 3000
    inet 192.168.50.23/23 brd 192.168.51.255 scope global wlan0
       valid_lft forever preferred_lft forever`

	iwLink = `Connected to aa:bb:cc:dd:ee:ff (on wlan0)
	SSID: HomeNet
	freq: 5180
	signal: -52 dBm
	tx bitrate: 866.7 MBit/s VHT-MCS 9 80MHz short GI VHT-NSS 2`

	dumpsysWifi = `mWifiInfo SSID: "HomeNet 5G", BSSID: aa:bb:cc:dd:ee:ff, MAC: 02:00:00:00:00:00, Supplicant state: COMPLETED, RSSI: -52`

	pingOK = `PING 192.168.50.3 (192.168.50.3) 56(84) bytes of data.
64 bytes from 192.168.50.3: icmp_seq=1 ttl=64 time=1.20 ms

--- 192.168.50.3 ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 1.201/2.345/3.456/0.812 ms`
)

func TestParseDefaultRouteDevice(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"default present", mainRoutes, "wlan0", true},
		{"no default", "192.168.50.0/24 dev wlan0 proto kernel scope link", "", false},
		{"default without dev", "default via 10.0.0.1", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDefaultRouteDevice(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseDefaultRouteDevice() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseWirelessInterface(t *testing.T) {
	got, ok := ParseWirelessInterface("dummy0\nlo\nrmnet0\nwlan1\nwlan0\n", DefaultWirelessPattern)
	if !ok || got != "wlan1" {
		t.Errorf("got (%q, %v), want first wlan entry", got, ok)
	}
	if _, ok := ParseWirelessInterface("lo\nwlan_p2p\neth0", DefaultWirelessPattern); ok {
		t.Error("wlan_p2p should not match the default pattern")
	}
	got, ok = ParseWirelessInterface("lo eth0 wlp2s0", regexp.MustCompile(`^wlp`))
	if !ok || got != "wlp2s0" {
		t.Errorf("custom pattern got (%q, %v)", got, ok)
	}
}

func TestParseIPv4Address(t *testing.T) {
	ip, prefix, ok := ParseIPv4Address(addrShow)
	if !ok || ip != "192.168.50.23" || prefix != 23 {
		t.Errorf("got (%q, %d, %v)", ip, prefix, ok)
	}

	ip, prefix, ok = ParseIPv4Address("    inet 10.0.0.5 scope global wlan0")
	if !ok || ip != "10.0.0.5" || prefix != 24 {
		t.Errorf("no prefix: got (%q, %d, %v), want prefix defaulted to 24", ip, prefix, ok)
	}

	if _, _, ok := ParseIPv4Address("30: wlan0: <NO-CARRIER> mtu 1500 state DOWN"); ok {
		t.Error("interface without inet line should miss")
	}
}

func TestParseDefaultGateway(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"table route", "default via 192.168.50.3 dev wlan0 proto static\n192.168.50.0/24 dev wlan0 scope link", "192.168.50.3", true},
		{"first default wins", "default via 10.0.0.1 dev wlan0\ndefault via 10.0.0.2 dev wlan0", "10.0.0.1", true},
		{"non-ipv4 via", "default via fe80::1 dev wlan0", "", false},
		{"table missing", "Error: ipv4: FIB table does not exist.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDefaultGateway(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseDefaultGateway() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseSSID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"quoted", dumpsysWifi, "HomeNet 5G", true},
		{"unquoted", "mWifiInfo SSID: Lab, BSSID: x", "Lab", true},
		{"unknown", `mWifiInfo SSID: <unknown ssid>, BSSID: x`, "", false},
		{"no wifi info", "Wi-Fi is enabled", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSSID(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseSSID() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseLinkSpeedAndSignal(t *testing.T) {
	speed, ok := ParseLinkSpeed(iwLink)
	if !ok || speed != 866 {
		t.Errorf("ParseLinkSpeed() = (%d, %v), want 866", speed, ok)
	}
	dbm, ok := ParseSignal(iwLink)
	if !ok || dbm != -52 {
		t.Errorf("ParseSignal() = (%d, %v), want -52", dbm, ok)
	}

	if _, ok := ParseLinkSpeed("Not connected."); ok {
		t.Error("ParseLinkSpeed should miss on a disconnected link")
	}
	if _, ok := ParseSignal("Not connected."); ok {
		t.Error("ParseSignal should miss on a disconnected link")
	}
}

func TestSignalQuality(t *testing.T) {
	tests := []struct{ dbm, want int }{
		{-110, 0}, {-100, 0}, {-75, 50}, {-52, 96}, {-50, 100}, {-20, 100},
	}
	for _, tt := range tests {
		if got := SignalQuality(tt.dbm); got != tt.want {
			t.Errorf("SignalQuality(%d) = %d, want %d", tt.dbm, got, tt.want)
		}
	}
}

func TestParsePingAverage(t *testing.T) {
	avg, ok := ParsePingAverage(pingOK)
	if !ok || avg != "2.345" {
		t.Errorf("iputils summary: got (%q, %v), want 2.345", avg, ok)
	}

	busybox := "3 packets transmitted, 3 packets received, 0% packet loss\nround-trip min/avg/max = 0.512/0.733/1.004 ms"
	avg, ok = ParsePingAverage(busybox)
	if !ok || avg != "0.733" {
		t.Errorf("busybox summary: got (%q, %v), want 0.733", avg, ok)
	}

	if _, ok := ParsePingAverage("3 packets transmitted, 0 received, 100% packet loss"); ok {
		t.Error("output without summary should miss")
	}
}

func TestPrefixToMask(t *testing.T) {
	tests := []struct {
		prefix int
		want   string
	}{
		{24, "255.255.255.0"},
		{0, "0.0.0.0"},
		{32, "255.255.255.255"},
		{20, "255.255.240.0"},
	}
	for _, tt := range tests {
		if got := PrefixToMask(tt.prefix); got != tt.want {
			t.Errorf("PrefixToMask(%d) = %q, want %q", tt.prefix, got, tt.want)
		}
	}
}
