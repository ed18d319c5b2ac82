package probe

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/starsdaisuki/stargate/pkg/util"
)

// Each parser takes raw command output and returns the extracted value and
// whether extraction succeeded. None of them fail loudly: a miss is reported
// through the bool and the caller substitutes its default.

// ParseDefaultRouteDevice returns the egress device of the first default
// route in `ip route show` output.
func ParseDefaultRouteDevice(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}
		if dev, ok := fieldAfter(fields, "dev"); ok {
			return dev, true
		}
	}
	return "", false
}

// ParseWirelessInterface returns the first name in a /sys/class/net listing
// that matches pattern.
func ParseWirelessInterface(out string, pattern *regexp.Regexp) (string, bool) {
	for _, name := range strings.Fields(out) {
		if pattern.MatchString(name) {
			return name, true
		}
	}
	return "", false
}

// ParseIPv4Address returns the first "inet A/P" address in `ip -4 addr show`
// output. A missing prefix length defaults to 24.
func ParseIPv4Address(out string) (string, int, bool) {
	for _, line := range strings.Split(out, "\n") {
		addr, ok := fieldAfter(strings.Fields(line), "inet")
		if !ok {
			continue
		}
		ip, prefix := util.SplitIPMask(addr)
		if !util.IsValidIPv4(ip) {
			continue
		}
		if !strings.Contains(addr, "/") {
			prefix = 24
		}
		return ip, prefix, true
	}
	return "", 0, false
}

// ParseDefaultGateway returns the next hop of the first default route in
// `ip route show table <name>` output.
func ParseDefaultGateway(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] != "default" {
			continue
		}
		if via, ok := fieldAfter(fields, "via"); ok && util.IsValidIPv4(via) {
			return via, true
		}
	}
	return "", false
}

var ssidRe = regexp.MustCompile(`SSID: "?([^",]+)`)

// ParseSSID extracts the SSID from the mWifiInfo line of `dumpsys wifi`.
func ParseSSID(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "mWifiInfo") {
			continue
		}
		m := ssidRe.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		ssid := strings.Trim(strings.TrimSpace(m[1]), `"`)
		if ssid == "" || ssid == "<unknown ssid>" {
			return "", false
		}
		return ssid, true
	}
	return "", false
}

var (
	txBitrateRe = regexp.MustCompile(`tx bitrate:\s*(\d+)(?:\.\d+)?`)
	signalRe    = regexp.MustCompile(`signal:\s*(-?\d+)\s*dBm`)
)

// ParseLinkSpeed returns the integer tx bitrate (Mbit/s) from `iw dev <if> link`.
func ParseLinkSpeed(out string) (int, bool) {
	m := txBitrateRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseSignal returns the signal level in dBm from `iw dev <if> link`.
func ParseSignal(out string) (int, bool) {
	m := signalRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// SignalQuality maps dBm onto 0-100: -100 dBm or weaker is 0, -50 dBm or
// stronger is 100.
func SignalQuality(dbm int) int {
	q := 2 * (dbm + 100)
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

// pingSummaryRe matches both iputils ("rtt min/avg/max/mdev = a/b/c/d ms")
// and busybox ("round-trip min/avg/max = a/b/c ms") summary lines.
var pingSummaryRe = regexp.MustCompile(`min/avg/max\S*\s*=\s*([\d.]+)/([\d.]+)/([\d.]+)`)

// ParsePingAverage returns the mean round-trip time, as printed, from ping output.
func ParsePingAverage(out string) (string, bool) {
	m := pingSummaryRe.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// PrefixToMask renders an IPv4 prefix length as a dotted netmask.
func PrefixToMask(prefix int) string {
	return util.PrefixToMask(prefix)
}

func fieldAfter(fields []string, key string) (string, bool) {
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == key {
			return fields[i+1], true
		}
	}
	return "", false
}
