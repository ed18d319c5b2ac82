package util

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// IsValidIPv4 checks if a string is a valid IPv4 dotted quad
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil && !strings.Contains(ipStr, ":")
}

// IsValidIPv4Mask checks if a string is a contiguous IPv4 netmask ("255.255.255.0")
func IsValidIPv4Mask(mask string) bool {
	_, ok := MaskToPrefix(mask)
	return ok
}

// MaskToPrefix converts a dotted netmask to its prefix length.
// Returns false for non-IPv4 or non-contiguous masks.
func MaskToPrefix(mask string) (int, bool) {
	if !IsValidIPv4(mask) {
		return 0, false
	}
	ones, bits := net.IPMask(net.ParseIP(mask).To4()).Size()
	if bits == 0 {
		return 0, false
	}
	return ones, true
}

// PrefixToMask renders a prefix length as a dotted netmask.
// Out-of-range prefixes are clamped to [0, 32].
func PrefixToMask(prefix int) string {
	if prefix < 0 {
		prefix = 0
	}
	if prefix > 32 {
		prefix = 32
	}
	var mask uint32
	if prefix != 0 {
		mask = 0xFFFFFFFF << (32 - prefix)
	}
	return fmt.Sprintf("%d.%d.%d.%d", mask>>24&0xFF, mask>>16&0xFF, mask>>8&0xFF, mask&0xFF)
}

// SplitIPMask splits a CIDR notation into IP and mask length
// Returns the IP (without mask) and mask length
func SplitIPMask(cidr string) (string, int) {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return cidr, 0 // Return as-is if no mask
	}
	maskLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], 0
	}
	return parts[0], maskLen
}
